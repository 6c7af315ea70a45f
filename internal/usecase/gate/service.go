// Package gate runs synthetic health probes over the pipeline components,
// tracks rolling query performance, and decides whether a configuration
// change may be promoted.
package gate

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/fusegate/internal/domain"
)

// State is the gate's probe cycle state. Terminal-for-cycle states feed the
// next probing cycle; there is no permanent terminal state.
type State string

const (
	// StateIdle means no probe cycle has run yet.
	StateIdle State = "idle"
	// StateProbing means a probe cycle is in flight.
	StateProbing State = "probing"
	// StateHealthy means the last cycle found every component healthy.
	StateHealthy State = "healthy"
	// StateDegraded means the last cycle found at least one degraded component.
	StateDegraded State = "degraded"
	// StateUnhealthy means the last cycle found at least one unhealthy component.
	StateUnhealthy State = "unhealthy"
)

// Report is one probe cycle's outcome: overall status is the worst status
// among probed components.
type Report struct {
	Status  domain.ProbeStatus   `json:"status"`
	Results []domain.ProbeResult `json:"results"`
	Window  WindowStats          `json:"window"`
	// PerformanceDegraded flags rolling-metrics floor violations,
	// independent of component health.
	PerformanceDegraded bool `json:"performance_degraded"`
}

// Service owns the probe set, the probe history, and the rolling query
// window. One instance per pipeline; no package-level state.
type Service struct {
	probes  []Probe
	timeout time.Duration
	floors  Floors
	queries *QueryWindow
	history *probeHistory
	// probeTotal counts probe outcomes by component and status; may be nil.
	probeTotal *prometheus.CounterVec
	logger     *zap.Logger

	mu    sync.Mutex
	state State
	last  *Report
}

// New creates a gate service. probeTotal may be nil to disable metrics.
func New(
	probes []Probe,
	timeout time.Duration,
	windowSize int,
	floors Floors,
	probeTotal *prometheus.CounterVec,
	logger *zap.Logger,
) *Service {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		probes:     probes,
		timeout:    timeout,
		floors:     floors,
		queries:    NewQueryWindow(windowSize),
		history:    newProbeHistory(windowSize),
		probeTotal: probeTotal,
		logger:     logger,
		state:      StateIdle,
	}
}

// WithProbes installs the probe set after construction. The composition
// root needs this: the pipeline supplying the probes takes the gate as its
// query recorder. Call before serving; not safe once probing has started.
func (s *Service) WithProbes(probes []Probe) *Service {
	s.probes = probes
	return s
}

// RecordQuery appends one completed query to the rolling window.
func (s *Service) RecordQuery(latency time.Duration, failed bool) {
	s.queries.Append(QuerySample{
		LatencyMS: float64(latency) / float64(time.Millisecond),
		Err:       failed,
		At:        time.Now(),
	})
}

// Check runs a full probe cycle and returns the aggregated report.
func (s *Service) Check(ctx context.Context) Report {
	s.setState(StateProbing)

	report := Report{Status: domain.ProbeHealthy}
	for _, p := range s.probes {
		result := runProbe(ctx, p, s.timeout)
		report.Results = append(report.Results, result)
		report.Status = worst(report.Status, result.Status)
		s.history.append(result)

		if s.probeTotal != nil {
			s.probeTotal.WithLabelValues(result.Component, string(result.Status)).Inc()
		}
		if result.Status != domain.ProbeHealthy {
			s.logger.Warn("component probe failed",
				zap.String("component", result.Component),
				zap.String("status", string(result.Status)),
				zap.String("detail", result.Detail),
			)
		}
	}

	report.Window = s.queries.Stats()
	report.PerformanceDegraded = s.floors.Degraded(report.Window)

	s.mu.Lock()
	s.state = stateFor(report.Status)
	s.last = &report
	s.mu.Unlock()

	return report
}

// Snapshot returns the current state and the last report without probing.
func (s *Service) Snapshot() (State, *Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.last
}

// ProbeHistory returns the retained probe results, oldest first.
func (s *Service) ProbeHistory() []domain.ProbeResult {
	return s.history.snapshot()
}

// RunPeriodic probes on the given interval until ctx is cancelled.
func (s *Service) RunPeriodic(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report := s.Check(ctx)
			s.logger.Info("probe cycle finished",
				zap.String("status", string(report.Status)),
				zap.Bool("performance_degraded", report.PerformanceDegraded),
			)
		}
	}
}

func (s *Service) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func stateFor(status domain.ProbeStatus) State {
	switch status {
	case domain.ProbeDegraded:
		return StateDegraded
	case domain.ProbeUnhealthy:
		return StateUnhealthy
	default:
		return StateHealthy
	}
}

// probeHistory is a bounded FIFO of probe results.
type probeHistory struct {
	mu   sync.Mutex
	buf  []domain.ProbeResult
	next int
	full bool
}

func newProbeHistory(size int) *probeHistory {
	if size <= 0 {
		size = 1000
	}
	return &probeHistory{buf: make([]domain.ProbeResult, size)}
}

func (h *probeHistory) append(r domain.ProbeResult) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.buf[h.next] = r
	h.next++
	if h.next == len(h.buf) {
		h.next = 0
		h.full = true
	}
}

func (h *probeHistory) snapshot() []domain.ProbeResult {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.full {
		out := make([]domain.ProbeResult, h.next)
		copy(out, h.buf[:h.next])
		return out
	}
	out := make([]domain.ProbeResult, 0, len(h.buf))
	out = append(out, h.buf[h.next:]...)
	out = append(out, h.buf[:h.next]...)
	return out
}
