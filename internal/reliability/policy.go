package reliability

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"time"
)

// Policy guards every upstream call made by a single provider client. It
// combines the retry/backoff loop with the circuit breaker state machine
// described in the reliability engine design: a tripped breaker fails fast
// without invoking the callback at all; otherwise each attempt runs through
// backoff on a retryable outcome and updates the breaker's failure count on
// any terminal failure.
type Policy struct {
	cfg   Config
	state State
	rng   *rand.Rand
}

// NewPolicy creates a Policy from a resolved Config.
func NewPolicy(cfg Config) *Policy {
	return &Policy{cfg: Resolve(cfg), rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// ErrCircuitOpen is returned (wrapped with the operation name and wait
// hint) when the breaker is open and no attempt was made.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Do runs an HTTP attempt under the policy: status codes in
// cfg.RetryStatusCodes are retried with backoff; any status >= 500 or in
// the retry set counts as a breaker failure; anything else resets the
// breaker. Do never retries context cancellation/deadline errors.
func (p *Policy) Do(ctx context.Context, op string, attempt func(ctx context.Context) (*http.Response, error)) (*http.Response, error) {
	if open, wait := p.state.isOpen(time.Now()); open {
		return nil, fmt.Errorf("%s circuit breaker is open (retry in %dms): %w", op, wait.Milliseconds(), ErrCircuitOpen)
	}
	p.state.resetIfCooledDown(time.Now())

	maxAttempts := p.cfg.MaxRetries + 1
	var lastErr error
	var lastResp *http.Response

	for a := 1; a <= maxAttempts; a++ {
		resp, err := attempt(ctx)
		if err != nil {
			if isAbort(err) {
				return nil, err
			}
			lastErr = err
			if p.cfg.RetryOnNetworkErr && a < maxAttempts {
				if sleepErr := p.sleep(ctx, a); sleepErr != nil {
					return nil, sleepErr
				}
				continue
			}
			p.state.recordFailure(p.cfg.Threshold, p.cfg.CooldownMs, time.Now())
			return nil, lastErr
		}

		if p.cfg.isRetryStatus(resp.StatusCode) && a < maxAttempts {
			lastResp = resp
			if sleepErr := p.sleep(ctx, a); sleepErr != nil {
				return nil, sleepErr
			}
			continue
		}

		if resp.StatusCode >= 500 || p.cfg.isRetryStatus(resp.StatusCode) {
			p.state.recordFailure(p.cfg.Threshold, p.cfg.CooldownMs, time.Now())
			return resp, nil
		}

		p.state.recordSuccess()
		return resp, nil
	}
	if lastResp != nil {
		return lastResp, nil
	}
	return nil, lastErr
}

// Run is the non-HTTP equivalent of Do: any returned error is retryable
// (subject to RetryOnNetworkErr) until attempts are exhausted, at which
// point the breaker's failure counter is updated.
func (p *Policy) Run(ctx context.Context, op string, attempt func(ctx context.Context) error) error {
	if open, wait := p.state.isOpen(time.Now()); open {
		return fmt.Errorf("%s circuit breaker is open (retry in %dms): %w", op, wait.Milliseconds(), ErrCircuitOpen)
	}
	p.state.resetIfCooledDown(time.Now())

	maxAttempts := p.cfg.MaxRetries + 1
	var lastErr error

	for a := 1; a <= maxAttempts; a++ {
		err := attempt(ctx)
		if err == nil {
			p.state.recordSuccess()
			return nil
		}
		if isAbort(err) {
			return err
		}
		lastErr = err
		if p.cfg.RetryOnNetworkErr && a < maxAttempts {
			if sleepErr := p.sleep(ctx, a); sleepErr != nil {
				return sleepErr
			}
			continue
		}
		break
	}
	p.state.recordFailure(p.cfg.Threshold, p.cfg.CooldownMs, time.Now())
	return lastErr
}

// sleep waits the backoff duration for attempt a (1-based), cancellable by
// ctx. Cancellation during the sleep returns immediately with ctx.Err().
func (p *Policy) sleep(ctx context.Context, a int) error {
	delay := p.cfg.RetryBaseDelay * time.Duration(1<<(a-1))
	if delay > p.cfg.RetryMaxDelay {
		delay = p.cfg.RetryMaxDelay
	}
	if p.cfg.RetryJitter > 0 {
		delay += time.Duration(p.rng.Int63n(int64(p.cfg.RetryJitter) + 1))
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func isAbort(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Snapshot exposes the breaker's current failure count and open-until time,
// for tests and diagnostics.
func (p *Policy) Snapshot() (failures int, openUntil time.Time) {
	return p.state.snapshot()
}
