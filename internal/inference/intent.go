package inference

import "strings"

// Intent is the coarse request category driving provider order
type Intent string

const (
	IntentCode      Intent = "code"
	IntentReasoning Intent = "reasoning"
	IntentChat      Intent = "chat"
)

var codeKeywords = []string{
	"code", "bug", "function", "compile", "stack trace", "refactor",
	"debug", "implement", "script", "regex", "syntax", "api",
	"typescript", "golang", "python", "sql",
}

var reasoningKeywords = []string{
	"why", "explain", "analyze", "analyse", "compare", "tradeoff",
	"trade-off", "plan", "strategy", "decide", "architecture",
	"design", "reason", "think through", "pros and cons",
}

// providerOrders maps each intent to its preferred provider order
var providerOrders = map[Intent][]string{
	IntentCode:      {"anthropic", "openai", "gemini"},
	IntentReasoning: {"anthropic", "gemini", "openai"},
	IntentChat:      {"openai", "anthropic", "gemini"},
}

// ClassifyIntent buckets a message by keyword scan. Code cues win over
// reasoning cues; anything else is chat.
func ClassifyIntent(text string) Intent {
	lower := strings.ToLower(text)
	for _, kw := range codeKeywords {
		if strings.Contains(lower, kw) {
			return IntentCode
		}
	}
	for _, kw := range reasoningKeywords {
		if strings.Contains(lower, kw) {
			return IntentReasoning
		}
	}
	return IntentChat
}

// ProviderOrder returns the preferred provider names for an intent
func ProviderOrder(intent Intent) []string {
	order, ok := providerOrders[intent]
	if !ok {
		order = providerOrders[IntentChat]
	}
	out := make([]string, len(order))
	copy(out, order)
	return out
}

// promoteStreaming moves the first streaming-capable client to at most
// index 1, never displacing the intent-driven first choice
func promoteStreaming(clients []Client) []Client {
	if len(clients) < 3 {
		return clients
	}
	for i, c := range clients {
		if !c.SupportsStreaming() {
			continue
		}
		if i <= 1 {
			return clients
		}
		out := make([]Client, 0, len(clients))
		out = append(out, clients[0], c)
		for j, other := range clients {
			if j == 0 || j == i {
				continue
			}
			out = append(out, other)
		}
		return out
	}
	return clients
}
