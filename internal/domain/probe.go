package domain

import "time"

// ProbeStatus is the health of one probed component.
type ProbeStatus string

const (
	// ProbeHealthy indicates the component responded in time.
	ProbeHealthy ProbeStatus = "healthy"
	// ProbeDegraded indicates the component responded slower than half its timeout.
	ProbeDegraded ProbeStatus = "degraded"
	// ProbeUnhealthy indicates a timeout, panic, error, or empty result.
	ProbeUnhealthy ProbeStatus = "unhealthy"
)

// ProbeResult is the outcome of one synthetic health probe.
// Results are appended to a fixed-size rolling window; oldest entries are
// evicted, never mutated.
type ProbeResult struct {
	Component string      `json:"component"`
	Status    ProbeStatus `json:"status"`
	LatencyMS float64     `json:"latency_ms"`
	Detail    string      `json:"detail,omitempty"`
	At        time.Time   `json:"at"`
}

// PromotionDecision records whether a candidate configuration change may go live.
type PromotionDecision struct {
	ConfigHash string  `json:"config_hash"`
	FusionGain int     `json:"fusion_gain"`
	Precision  float64 `json:"precision"`
	Recall     float64 `json:"recall"`
	F1         float64 `json:"f1"`
	FloorsMet  bool    `json:"floors_met"`
	Approved   bool    `json:"approved"`
}
