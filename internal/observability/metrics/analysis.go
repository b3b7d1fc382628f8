package metrics

// AnalysisRequest records one analysis request by mode and outcome.
func AnalysisRequest(mode, status string) {
	if !enabled {
		return
	}
	analysisTotal.WithLabelValues(mode, status).Inc()
}

// SlitherDuration records the runtime of one Slither subprocess.
func SlitherDuration(seconds float64) {
	if !enabled {
		return
	}
	slitherDuration.Observe(seconds)
}

// ExplorerFetch records one explorer source fetch.
func ExplorerFetch(blockchain, status string) {
	if !enabled {
		return
	}
	explorerFetchTotal.WithLabelValues(blockchain, status).Inc()
}

// SourceCache records a source cache lookup result ("hit" or "miss").
func SourceCache(result string) {
	if !enabled {
		return
	}
	sourceCacheTotal.WithLabelValues(result).Inc()
}
