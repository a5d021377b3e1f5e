package stats

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "btcvault"

// Metrics holds the counters of the wallet engine, registered on their own
// registry.
type Metrics struct {
	Registry *prometheus.Registry

	draftsCreated   prometheus.Counter
	draftsFinalized prometheus.Counter
	draftsAbandoned prometheus.Counter
	feeBumps        prometheus.Counter
	legacyImports   *prometheus.CounterVec
	syncedUtxos     prometheus.Counter
}

// NewMetrics creates and registers the counters.
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		draftsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "drafts_created_total",
			Help:      "Number of transaction drafts created.",
		}),
		draftsFinalized: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "drafts_finalized_total",
			Help:      "Number of transaction drafts signed and finalized.",
		}),
		draftsAbandoned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "drafts_abandoned_total",
			Help:      "Number of transaction drafts abandoned.",
		}),
		feeBumps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fee_bumps_total",
			Help:      "Number of replacement drafts created with BumpFee.",
		}),
		legacyImports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "legacy_imports_total",
			Help:      "Number of legacy wallet imports by outcome.",
		}, []string{"outcome"}),
		syncedUtxos: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "synced_utxos_total",
			Help:      "Number of new utxos added by chain synchronization.",
		}),
	}
	m.Registry.MustRegister(
		m.draftsCreated, m.draftsFinalized, m.draftsAbandoned, m.feeBumps,
		m.legacyImports, m.syncedUtxos,
		collectors.NewGoCollector(),
	)
	return m
}

// Outcomes of a legacy import.
const (
	ImportSucceeded = "success"
	ImportPartial   = "partial"
	ImportFailed    = "failure"
)

// DraftCreated ...
func (m *Metrics) DraftCreated() {
	if m != nil {
		m.draftsCreated.Inc()
	}
}

// DraftFinalized ...
func (m *Metrics) DraftFinalized() {
	if m != nil {
		m.draftsFinalized.Inc()
	}
}

// DraftAbandoned ...
func (m *Metrics) DraftAbandoned() {
	if m != nil {
		m.draftsAbandoned.Inc()
	}
}

// FeeBumped ...
func (m *Metrics) FeeBumped() {
	if m != nil {
		m.feeBumps.Inc()
	}
}

// LegacyImport counts an import with one of the Import* outcomes.
func (m *Metrics) LegacyImport(outcome string) {
	if m != nil {
		m.legacyImports.WithLabelValues(outcome).Inc()
	}
}

// UtxosSynced ...
func (m *Metrics) UtxosSynced(count int) {
	if m != nil {
		m.syncedUtxos.Add(float64(count))
	}
}
