package core

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the Prometheus collectors shared by a replica and a
// signature authority instance. The teacher pack carries
// prometheus/client_golang as a direct dependency for exactly this
// purpose; NewMetrics registers a private registry per instance so
// multiple replicas/signers in one test process do not collide on the
// default global registry.
type Metrics struct {
	Registry *prometheus.Registry

	BlobsCompleted  prometheus.Counter
	DigestsInserted prometheus.Counter
	BatchesClosed   prometheus.Counter
	BatchesPruned   prometheus.Counter
	SignFailures    prometheus.Counter
}

// NewMetrics builds a fresh, independently-registered Metrics set.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		BlobsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "da_replica_blobs_completed_total",
			Help: "Blobs that reached the Complete state after digest verification.",
		}),
		DigestsInserted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "da_signer_digests_inserted_total",
			Help: "Digests accepted by insert_digest (idempotent repeats are not counted).",
		}),
		BatchesClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "da_signer_batches_closed_total",
			Help: "Merkle batches that filled and were submitted for signing.",
		}),
		BatchesPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "da_signer_batches_pruned_total",
			Help: "Batches evicted once past confirmation_live_time.",
		}),
		SignFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "da_signer_sign_failures_total",
			Help: "Failed calls to the external ECDSA signer.",
		}),
	}
	reg.MustRegister(m.BlobsCompleted, m.DigestsInserted, m.BatchesClosed, m.BatchesPruned, m.SignFailures)
	return m
}
