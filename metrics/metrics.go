package metrics

import "time"

// Recorder is the observability sink the settlement core emits into.
// Implementations must be safe for concurrent use.
type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
}

// Label keys the core emits. Implementations with fixed label schemas
// (Prometheus) read exactly these keys.
const (
	LabelNetwork  = "network"
	LabelHookType = "hook_type"
	LabelOutcome  = "outcome"
)

// Metric names emitted by the settlement core.
const (
	MetricGasDecision = "gas_decision"
	MetricSettlement  = "settlement"
	MetricFeeQuote    = "fee_quote"
)
