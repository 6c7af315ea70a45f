package gate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestQueryWindow_BoundedEviction(t *testing.T) {
	w := NewQueryWindow(3)

	for i := 0; i < 10; i++ {
		w.Append(QuerySample{LatencyMS: float64(i), At: time.Now()})
	}

	assert.Equal(t, 3, w.Len())

	// Only the newest three samples remain.
	stats := w.Stats()
	assert.Equal(t, 3, stats.Samples)
	assert.InDelta(t, 8.0, stats.AvgLatencyMS, 1e-9) // mean of 7, 8, 9
}

func TestQueryWindow_Stats(t *testing.T) {
	w := NewQueryWindow(100)
	base := time.Now()
	for i := 0; i < 20; i++ {
		w.Append(QuerySample{
			LatencyMS: 100,
			Err:       i < 2, // 10% errors
			At:        base.Add(time.Duration(i) * time.Second),
		})
	}

	stats := w.Stats()
	assert.Equal(t, 20, stats.Samples)
	assert.InDelta(t, 100.0, stats.AvgLatencyMS, 1e-9)
	assert.InDelta(t, 0.9, stats.SuccessRate, 1e-9)
	assert.InDelta(t, 0.1, stats.ErrorRate, 1e-9)
	assert.Greater(t, stats.ThroughputQPS, 0.0)
}

func TestQueryWindow_EmptyStats(t *testing.T) {
	stats := NewQueryWindow(10).Stats()
	assert.Equal(t, 0, stats.Samples)
}

func TestFloors_Degraded(t *testing.T) {
	floors := DefaultFloors()

	tests := []struct {
		name  string
		stats WindowStats
		want  bool
	}{
		{"empty window", WindowStats{}, false},
		{"all within floors", WindowStats{Samples: 50, AvgLatencyMS: 120, P95LatencyMS: 900, SuccessRate: 0.99, ErrorRate: 0.01}, false},
		{"average latency breach", WindowStats{Samples: 50, AvgLatencyMS: 2500, P95LatencyMS: 3000, SuccessRate: 1}, true},
		{"p95 breach", WindowStats{Samples: 50, AvgLatencyMS: 100, P95LatencyMS: 6000, SuccessRate: 1}, true},
		{"success rate breach", WindowStats{Samples: 50, AvgLatencyMS: 100, P95LatencyMS: 200, SuccessRate: 0.90, ErrorRate: 0.10}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, floors.Degraded(tt.stats))
		})
	}
}
