package rewardsd

import "rewardvault/observability"

// Metrics exposes Prometheus collectors for rewardsd instrumentation.
type Metrics = observability.LedgerMetrics

// NewMetrics returns a lazily initialised metrics registry.
func NewMetrics() *Metrics { return observability.Ledger() }
