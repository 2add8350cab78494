package services

import "github.com/prometheus/client_golang/prometheus"

var (
	// searchesTotal counts Matcher.Search calls by outcome:
	// ok, invalid, quota_exceeded, store_unavailable, failure.
	searchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "match_searches_total",
			Help: "Semantic searches by outcome.",
		},
		[]string{"outcome"},
	)

	// applicationsTotal counts CreateApplication calls by outcome. The two
	// conflict kinds are kept apart here even though the API merges them.
	applicationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "match_applications_total",
			Help: "Application attempts by outcome.",
		},
		[]string{"outcome"},
	)

	quotaRejections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "match_quota_rejections_total",
			Help: "Searches rejected because the daily quota was exhausted.",
		},
	)
)

func init() {
	prometheus.MustRegister(searchesTotal, applicationsTotal, quotaRejections)
}
