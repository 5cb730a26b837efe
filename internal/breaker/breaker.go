// Package breaker enforces the token/cost/error/heal-attempt budget limits
// described in SPEC_FULL.md §4.5, grounded on qralph-pipeline.py's
// cost-accumulation and error-bookkeeping call sites.
package breaker

import (
	"fmt"

	"github.com/sparkst/qralph/internal/state"
)

// Limits, static per SPEC_FULL.md §4.5.
const (
	MaxTokens                     = 500_000
	MaxCostUSD                    = 40.00
	MaxSameError                  = 3
	MaxHealAttempts               = 5
	OrphanCircuitBreakerThreshold = 3

	// errorKeyLen bounds how much of an error's text becomes its counting key.
	errorKeyLen = 100
	// maxErrorEntries bounds error_counts; the least-frequent entry is
	// evicted once this is exceeded.
	maxErrorEntries = 100
)

// Check reports whether any limit has already been exceeded and, if so,
// why. It requires the caller to be holding the exclusive state lock —
// enforced at compile time by the *state.Lock parameter rather than by a
// runtime flag check, per SPEC_FULL.md §4.1.1's witness-pattern mapping.
func Check(lock *state.Lock, s *state.State) (tripped bool, reason string) {
	if lock == nil {
		panic("breaker.Check called without holding the state lock")
	}

	switch {
	case s.CircuitBreakers.TotalTokens >= MaxTokens:
		return true, fmt.Sprintf("token budget exceeded: %d >= %d", s.CircuitBreakers.TotalTokens, MaxTokens)
	case s.CircuitBreakers.TotalCostUSD >= MaxCostUSD:
		return true, fmt.Sprintf("cost budget exceeded: %.2f >= %.2f", s.CircuitBreakers.TotalCostUSD, MaxCostUSD)
	case s.HealAttempts >= MaxHealAttempts:
		return true, fmt.Sprintf("heal attempts exhausted: %d >= %d", s.HealAttempts, MaxHealAttempts)
	}
	for key, count := range s.CircuitBreakers.ErrorCounts {
		if count >= MaxSameError {
			return true, fmt.Sprintf("repeated error %q seen %d times", key, count)
		}
	}
	return false, ""
}

// Update accumulates token/cost usage and, when maybeErr is non-empty,
// increments its bounded error count. It must run under the same lock as
// Check — the caller typically calls Update then Check then state.Save in
// one critical section.
func Update(lock *state.Lock, s *state.State, prices PriceTable, modelTier string, inputTokens, outputTokens int, maybeErr string) {
	if lock == nil {
		panic("breaker.Update called without holding the state lock")
	}

	s.CircuitBreakers.TotalTokens += inputTokens + outputTokens
	s.CircuitBreakers.TotalCostUSD += prices.Cost(modelTier, inputTokens, outputTokens)

	if maybeErr == "" {
		return
	}
	if s.CircuitBreakers.ErrorCounts == nil {
		s.CircuitBreakers.ErrorCounts = map[string]int{}
	}
	key := maybeErr
	if len(key) > errorKeyLen {
		key = key[:errorKeyLen]
	}
	s.CircuitBreakers.ErrorCounts[key]++

	evictLeastFrequent(s.CircuitBreakers.ErrorCounts, maxErrorEntries)
}

// evictLeastFrequent drops the lowest-count entry (ties broken
// lexicographically by key) until the map has at most max entries.
func evictLeastFrequent(counts map[string]int, max int) {
	for len(counts) > max {
		var victim string
		victimCount := -1
		for key, count := range counts {
			if victimCount == -1 || count < victimCount || (count == victimCount && key < victim) {
				victim = key
				victimCount = count
			}
		}
		delete(counts, victim)
	}
}

// TripOrphanThreshold reports whether an observed orphan count trips the
// process-registry circuit breaker described in SPEC_FULL.md §4.5/§4.6.
func TripOrphanThreshold(orphanCount int) bool {
	return orphanCount >= OrphanCircuitBreakerThreshold
}
