package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "contractguard_checks_total",
		Help: "The total number of compliance checks by verdict",
	}, []string{"verdict"})

	LatencyBucket = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "contractguard_latency_bucket",
		Help:    "Request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})

	RetrieverDegraded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "contractguard_retriever_degraded_total",
		Help: "Semantic retrieval degradations by reason",
	}, []string{"reason"})

	IdempotencyReplays = promauto.NewCounter(prometheus.CounterOpts{
		Name: "contractguard_idempotency_replays_total",
		Help: "Requests answered from the idempotency cache",
	})

	IdempotencyConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "contractguard_idempotency_conflicts_total",
		Help: "Idempotency key reuse with a different payload",
	})

	AuditAppends = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "contractguard_audit_appends_total",
		Help: "Audit ledger append attempts by status",
	}, []string{"status"})

	ChainVerifyFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "contractguard_chain_verify_failures_total",
		Help: "Hash chain verifications that found corruption",
	})
)
