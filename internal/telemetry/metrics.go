package telemetry

// Metrics aggregates a slice of runs into rolling indicators
type Metrics struct {
	Count        int     `json:"count"`
	AvgQuality   float64 `json:"avgQuality"`
	SuccessRate  float64 `json:"successRate"`
	AvgLatencyMs float64 `json:"avgLatencyMs"`
	ErrorRate    float64 `json:"errorRate"`
}

// ComputeMetrics derives rolling metrics over a slice of runs. Quality
// is whatever bounded signal the runs were recorded with.
func ComputeMetrics(runs []Run) Metrics {
	m := Metrics{Count: len(runs)}
	if len(runs) == 0 {
		return m
	}

	var quality, latency float64
	var successes, errors int
	for _, r := range runs {
		quality += r.Quality
		latency += float64(r.LatencyMs)
		if r.Success {
			successes++
		}
		if r.Error != "" {
			errors++
		}
	}

	n := float64(len(runs))
	m.AvgQuality = quality / n
	m.SuccessRate = float64(successes) / n
	m.AvgLatencyMs = latency / n
	m.ErrorRate = float64(errors) / n
	return m
}
