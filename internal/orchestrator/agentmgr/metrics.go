package agentmgr

// performanceMetrics tracks the EMA-smoothed figures the load balancer and
// health checks consult. Smoothing factor alpha is fixed at 0.1.
type performanceMetrics struct {
	averageResponseTimeMs float64
	qualityScore          float64
	successRate           float64
	costEfficiency        float64
	load                  int // currentExecutions count, mirrored for scoring
}

const emaAlpha = 0.1

func newPerformanceMetrics() performanceMetrics {
	// Seed successRate at 1.0 so a brand-new agent isn't penalized by the
	// load-balancer formula before it has completed a single step.
	return performanceMetrics{successRate: 1.0, qualityScore: 0.5, costEfficiency: 0.5}
}

// record applies one step completion's contribution to every EMA metric.
func (m *performanceMetrics) record(elapsedMs float64, qualityScore, cost float64) {
	m.averageResponseTimeMs = 0.9*m.averageResponseTimeMs + emaAlpha*elapsedMs
	m.qualityScore = 0.9*m.qualityScore + emaAlpha*qualityScore

	success := 0.0
	if qualityScore >= 0.7 {
		success = 1.0
	}
	m.successRate = 0.9*m.successRate + emaAlpha*success

	if cost > 0 {
		m.costEfficiency = 0.9*m.costEfficiency + emaAlpha*(qualityScore/cost)
	}
}
