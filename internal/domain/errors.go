package domain

import "errors"

var (
	// ErrInvalidConfig signals an out-of-range threshold or weight.
	// Fatal: rejected at construction, never silently clamped.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrUpstreamTimeout signals an index or model call exceeding its deadline.
	ErrUpstreamTimeout = errors.New("upstream timeout")
	// ErrUpstreamUnavailable signals a connection or model load failure.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrModelProviderError signals a model API failure.
	ErrModelProviderError = errors.New("model provider error")
	// ErrInsufficientEvidence signals that no answer sentence survived gating.
	ErrInsufficientEvidence = errors.New("insufficient evidence")
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrRateLimited signals a rate limit hit.
	ErrRateLimited = errors.New("rate limited")
)
