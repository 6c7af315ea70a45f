// Package scorecache stores model scores (reranker, entailment) so repeated
// sentence/snippet pairs never pay for a second model call. Two tiers are
// provided: a per-process map and a Valkey-backed cache shared across
// replicas.
package scorecache

import (
	"context"
	"sync"
)

// Memory is a process-local score cache. Safe for concurrent use.
type Memory struct {
	mu     sync.RWMutex
	scores map[string]float64
}

// NewMemory creates an empty in-process cache.
func NewMemory() *Memory {
	return &Memory{scores: make(map[string]float64)}
}

// Get returns the cached score for key.
func (m *Memory) Get(_ context.Context, key string) (float64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	score, ok := m.scores[key]
	return score, ok
}

// Set stores the score for key.
func (m *Memory) Set(_ context.Context, key string, score float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scores[key] = score
}

// Len returns the number of cached scores.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.scores)
}

// Clear drops all cached scores.
func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scores = make(map[string]float64)
}
