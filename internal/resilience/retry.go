// Package resilience wraps a single LLM generation call with a per-attempt
// timeout and bounded retries with exponential backoff.
//
// The orchestrator treats every provider call the same way: a fixed number of
// attempts, each under its own wall-clock deadline, with a short capped
// backoff between attempts. The wrapper never returns an error — callers get
// either a result or a [Runtime] describing the exhausted retries, because
// stage failure is a policy decision made upstream (degrade, abort, or
// surface a message), not an exception.
package resilience

import (
	"context"
	"fmt"
	"time"

	"github.com/daybreakhan/quorum/pkg/provider/llm"
)

// Status values recorded in [Runtime.Status].
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

const (
	// backoffBase is the sleep before the first retry; each further retry
	// doubles it.
	backoffBase = 800 * time.Millisecond

	// backoffMax caps the sleep between attempts.
	backoffMax = 3 * time.Second

	// defaultAttemptTimeout applies when the policy leaves AttemptTimeout
	// unset.
	defaultAttemptTimeout = 60 * time.Second
)

// Policy controls the retry behaviour of [Call].
type Policy struct {
	// Attempts is the total number of attempts, including the first.
	// Values below 1 are treated as 1.
	Attempts int

	// AttemptTimeout is the wall-clock cap on a single attempt. Zero or
	// negative means the 60 s default.
	AttemptTimeout time.Duration
}

// Runtime describes what one wrapped call actually did.
type Runtime struct {
	// LatencyMS is the summed wall time of all attempts, in milliseconds.
	// Backoff sleeps between attempts are not counted.
	LatencyMS int64

	// Retries is the number of retries performed: 0 when the first attempt
	// succeeded, attempts-1 when all attempts were used.
	Retries int

	// Status is [StatusOK] or [StatusFailed].
	Status string

	// Err holds the last observed "<error-kind>: <message>" string when
	// Status is [StatusFailed].
	Err string
}

// Call runs one generation request through g under p. On success it returns
// the result and an ok Runtime; on exhaustion it returns a nil result and a
// failed Runtime carrying the last error.
//
// Cancellation of ctx aborts the in-flight attempt and any backoff sleep;
// remaining attempts are skipped.
func Call(ctx context.Context, p Policy, g llm.Generator, req llm.Request) (*llm.Result, Runtime) {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	timeout := p.AttemptTimeout
	if timeout <= 0 {
		timeout = defaultAttemptTimeout
	}

	var (
		latency time.Duration
		lastErr string
	)

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if !sleep(ctx, backoffFor(attempt)) {
				break
			}
		}

		start := time.Now()
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		res, err := g.Generate(attemptCtx, req)
		cancel()
		latency += time.Since(start)

		if err == nil && res != nil {
			return res, Runtime{
				LatencyMS: latency.Milliseconds(),
				Retries:   attempt,
				Status:    StatusOK,
			}
		}
		if err == nil {
			err = fmt.Errorf("generator returned no result")
		}
		lastErr = fmt.Sprintf("%T: %v", err, err)

		// The caller is gone; further attempts would be wasted work.
		if ctx.Err() != nil {
			break
		}
	}

	return nil, Runtime{
		LatencyMS: latency.Milliseconds(),
		Retries:   attempts - 1,
		Status:    StatusFailed,
		Err:       lastErr,
	}
}

// backoffFor returns the sleep duration before the given attempt (attempt 1
// is the first retry): base·2^(attempt-1), capped at backoffMax.
func backoffFor(attempt int) time.Duration {
	d := backoffBase << (attempt - 1)
	if d > backoffMax || d <= 0 {
		d = backoffMax
	}
	return d
}

// sleep blocks for d or until ctx is cancelled. It reports whether the full
// duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
