package gate

import (
	"sync"
	"time"

	"github.com/montanaflynn/stats"
)

// QuerySample is one completed pipeline query observation. Samples are
// appended to a fixed-size ring and evicted FIFO, never mutated.
type QuerySample struct {
	LatencyMS float64
	Err       bool
	At        time.Time
}

// QueryWindow is a bounded rolling window of recent query samples, safe for
// concurrent append and read from in-flight queries.
type QueryWindow struct {
	mu   sync.Mutex
	buf  []QuerySample
	next int
	full bool
}

// NewQueryWindow creates a window holding at most size samples.
func NewQueryWindow(size int) *QueryWindow {
	if size <= 0 {
		size = 1000
	}
	return &QueryWindow{buf: make([]QuerySample, size)}
}

// Append records a sample, evicting the oldest once the window is full.
func (w *QueryWindow) Append(s QuerySample) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf[w.next] = s
	w.next++
	if w.next == len(w.buf) {
		w.next = 0
		w.full = true
	}
}

// Len returns the number of samples currently held.
func (w *QueryWindow) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.full {
		return len(w.buf)
	}
	return w.next
}

// WindowStats summarizes the rolling window.
type WindowStats struct {
	Samples      int     `json:"samples"`
	AvgLatencyMS float64 `json:"avg_latency_ms"`
	P95LatencyMS float64 `json:"p95_latency_ms"`
	SuccessRate  float64 `json:"success_rate"`
	ErrorRate    float64 `json:"error_rate"`
	// ThroughputQPS is samples divided by the observed time span.
	ThroughputQPS float64 `json:"throughput_qps"`
}

// Stats computes rolling metrics over the current samples.
func (w *QueryWindow) Stats() WindowStats {
	w.mu.Lock()
	samples := make([]QuerySample, 0, len(w.buf))
	if w.full {
		samples = append(samples, w.buf[w.next:]...)
		samples = append(samples, w.buf[:w.next]...)
	} else {
		samples = append(samples, w.buf[:w.next]...)
	}
	w.mu.Unlock()

	out := WindowStats{Samples: len(samples)}
	if len(samples) == 0 {
		return out
	}

	latencies := make([]float64, len(samples))
	errs := 0
	for i, s := range samples {
		latencies[i] = s.LatencyMS
		if s.Err {
			errs++
		}
	}

	avg, _ := stats.Mean(latencies)
	p95, _ := stats.Percentile(latencies, 95)
	out.AvgLatencyMS = avg
	out.P95LatencyMS = p95
	out.ErrorRate = float64(errs) / float64(len(samples))
	out.SuccessRate = 1 - out.ErrorRate

	span := samples[len(samples)-1].At.Sub(samples[0].At)
	if span > 0 {
		out.ThroughputQPS = float64(len(samples)) / span.Seconds()
	}
	return out
}

// Floors are the fixed performance floors distinguishing "performance
// degradation" from component health.
type Floors struct {
	AvgLatencyMS   float64
	P95LatencyMS   float64
	MinSuccessRate float64
	MaxErrorRate   float64
}

// DefaultFloors returns the conservative performance floors.
func DefaultFloors() Floors {
	return Floors{
		AvgLatencyMS:   2000,
		P95LatencyMS:   5000,
		MinSuccessRate: 0.95,
		MaxErrorRate:   0.05,
	}
}

// Degraded reports whether the window statistics violate any floor.
// An empty window is not degraded.
func (f Floors) Degraded(s WindowStats) bool {
	if s.Samples == 0 {
		return false
	}
	return s.AvgLatencyMS >= f.AvgLatencyMS ||
		s.P95LatencyMS >= f.P95LatencyMS ||
		s.SuccessRate < f.MinSuccessRate ||
		s.ErrorRate > f.MaxErrorRate
}
