package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP 层指标。
var (
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "influencehub",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by method, path and status.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)

// 搜索与评分指标。
var (
	SearchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "influencehub",
		Subsystem: "search",
		Name:      "requests_total",
		Help:      "Influencer search requests by outcome (hit, miss, error).",
	}, []string{"outcome"})

	CandidatesScored = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "influencehub",
		Subsystem: "search",
		Name:      "candidates_scored_total",
		Help:      "Number of candidates fully scored.",
	})

	CandidatesSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "influencehub",
		Subsystem: "search",
		Name:      "candidates_skipped_total",
		Help:      "Candidates dropped due to per-candidate fetch failures.",
	})
)

// 深度分析任务指标。
var (
	DeepSearchJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "influencehub",
		Subsystem: "deepsearch",
		Name:      "jobs_total",
		Help:      "Deep search jobs by outcome (completed, failed, cache_hit, rejected).",
	}, []string{"outcome"})

	DeepSearchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "influencehub",
		Subsystem: "deepsearch",
		Name:      "job_duration_seconds",
		Help:      "End-to-end duration of deep search jobs.",
		Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1200},
	})
)

// 上游 API 指标。
var (
	UpstreamCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "influencehub",
		Subsystem: "upstream",
		Name:      "calls_total",
		Help:      "Upstream API calls by service (youtube, gemini, videoai) and result.",
	}, []string{"service", "result"})

	RateLimitWaitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "influencehub",
		Subsystem: "ratelimit",
		Name:      "wait_duration_seconds",
		Help:      "Time spent waiting for a rate limit token.",
		Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
	})

	RateLimitTimeoutTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "influencehub",
		Subsystem: "ratelimit",
		Name:      "timeout_total",
		Help:      "Rate limit waits aborted by context cancellation.",
	})
)
