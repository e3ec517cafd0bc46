// Package metrics declares the Prometheus collectors exported at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitemeta_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sitemeta_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	CrawlerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitemeta_crawler_requests_total",
			Help: "Requests served with prerendered metadata to crawlers",
		},
		[]string{"bot", "kind"},
	)

	PrerenderPages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitemeta_prerender_pages_total",
			Help: "Pages written by the prerenderer",
		},
		[]string{"result"},
	)

	Rebuilds = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitemeta_rebuilds_total",
			Help: "Completed rebuild runs",
		},
		[]string{"result"},
	)
)
