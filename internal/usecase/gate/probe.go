package gate

import (
	"context"
	"fmt"
	"time"

	"github.com/kailas-cloud/fusegate/internal/domain"
)

// Probe exercises one pipeline component against a fixed synthetic input.
// Run returns an error when the component fails or produces an empty result
// where one was expected.
type Probe struct {
	Component string
	Run       func(ctx context.Context) error
}

// runProbe executes one probe with a timeout, classifying the outcome:
// latency above the timeout or an error/panic is unhealthy, latency above
// half the timeout is degraded, anything else is healthy.
func runProbe(ctx context.Context, p Probe, timeout time.Duration) domain.ProbeResult {
	result := domain.ProbeResult{Component: p.Component, At: time.Now()}

	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	start := time.Now()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic: %v", r)
			}
		}()
		done <- p.Run(probeCtx)
	}()

	var err error
	select {
	case err = <-done:
	case <-probeCtx.Done():
		err = probeCtx.Err()
	}
	latency := time.Since(start)
	result.LatencyMS = float64(latency) / float64(time.Millisecond)

	switch {
	case err != nil:
		result.Status = domain.ProbeUnhealthy
		result.Detail = err.Error()
	case latency >= timeout:
		result.Status = domain.ProbeUnhealthy
		result.Detail = fmt.Sprintf("latency %s exceeded timeout %s", latency, timeout)
	case latency >= timeout/2:
		result.Status = domain.ProbeDegraded
		result.Detail = fmt.Sprintf("latency %s above half timeout", latency)
	default:
		result.Status = domain.ProbeHealthy
	}
	return result
}

// worst returns the lower of two statuses in the ordering
// healthy > degraded > unhealthy.
func worst(a, b domain.ProbeStatus) domain.ProbeStatus {
	rank := map[domain.ProbeStatus]int{
		domain.ProbeHealthy:   0,
		domain.ProbeDegraded:  1,
		domain.ProbeUnhealthy: 2,
	}
	if rank[b] > rank[a] {
		return b
	}
	return a
}
