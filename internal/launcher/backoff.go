package launcher

import (
	"math/rand"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// BaseBackoff and MaxBackoff are the exact constants named in §4.5.
const (
	BaseBackoff = 250 * time.Millisecond
	MaxBackoff  = 5000 * time.Millisecond
	maxShift    = 8
	jitterMaxMs = 120
)

// backoffPolicy anchors the initial/max interval bounds that the spec's
// own shift formula must stay within. backoff/v5's own multiplier curve
// is a different shape than base_backoff << min(failures, 8), so
// computeBackoff below reimplements the exact shift formula rather than
// calling NextBackOff, but still sources its bounds from the same
// *backoff.ExponentialBackOff the rest of the pack configures retries
// with, instead of re-declaring the constants twice.
var backoffPolicy = func() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = BaseBackoff
	b.MaxInterval = MaxBackoff
	return b
}()

// computeBackoff returns the delay to wait after the given number of
// consecutive failures, per §4.5: base_backoff << min(failures, 8) capped
// at max_backoff, plus jitter uniform in [0, 120ms].
func computeBackoff(failures int) time.Duration {
	shift := failures
	if shift > maxShift {
		shift = maxShift
	}
	exp := backoffPolicy.InitialInterval << shift
	if exp > backoffPolicy.MaxInterval {
		exp = backoffPolicy.MaxInterval
	}
	jitter := time.Duration(rand.Intn(jitterMaxMs+1)) * time.Millisecond
	return exp + jitter
}

// RetryState is per-manifest-id launcher back-off state (§3).
type RetryState struct {
	Failures       int
	NextEligibleMs int64
}

// RetryTracker tracks RetryState per provider manifest id.
type RetryTracker struct {
	byID map[string]*RetryState
}

// NewRetryTracker creates an empty tracker.
func NewRetryTracker() *RetryTracker {
	return &RetryTracker{byID: make(map[string]*RetryState)}
}

// CanAttempt reports whether id is eligible to be (re)attempted at nowMs,
// and if not, a "skip: launch throttled until …" detail message.
func (t *RetryTracker) CanAttempt(id string, nowMs int64) (bool, string) {
	state, ok := t.byID[id]
	if !ok {
		return true, ""
	}
	if nowMs < state.NextEligibleMs {
		return false, throttledDetail(state.NextEligibleMs)
	}
	return true, ""
}

// MarkSuccess clears back-off state for id on a successful spawn.
func (t *RetryTracker) MarkSuccess(id string) {
	delete(t.byID, id)
}

// MarkFailure increments id's failure count and recomputes its next
// eligible time.
func (t *RetryTracker) MarkFailure(id string, nowMs int64) {
	state, ok := t.byID[id]
	if !ok {
		state = &RetryState{}
		t.byID[id] = state
	}
	state.Failures++
	state.NextEligibleMs = nowMs + computeBackoff(state.Failures).Milliseconds()
}

func throttledDetail(nextEligibleMs int64) string {
	return "skip: launch throttled until " + time.UnixMilli(nextEligibleMs).Format(time.RFC3339)
}
