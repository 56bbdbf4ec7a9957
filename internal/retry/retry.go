// Package retry wraps operations against flaky collaborators with bounded
// exponential backoff. It is purely a control-flow component: no side
// effects beyond the wrapped operation.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// Policy is the retry configuration value object.
type Policy struct {
	MaxAttempts int           // total attempts, including the first
	BaseWait    time.Duration // wait before the second attempt
	MaxWait     time.Duration // cap on any single wait, hints included
	Jitter      float64       // max uniform increase fraction, e.g. 0.1 = up to +10%
}

// DefaultPolicy matches the pipeline defaults: 3 attempts, 1s..60s backoff,
// up to 10% jitter.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, BaseWait: time.Second, MaxWait: time.Minute, Jitter: 0.1}
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.BaseWait <= 0 {
		p.BaseWait = time.Second
	}
	if p.MaxWait <= 0 {
		p.MaxWait = time.Minute
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	return p
}

// Executor retries operations per its Policy. The zero value is unusable;
// construct with New.
type Executor struct {
	policy   Policy
	classify Classifier
	rng      *rand.Rand
	sleep    func(ctx context.Context, d time.Duration) error
}

func New(policy Policy, classify Classifier) *Executor {
	if classify == nil {
		classify = DefaultClassifier
	}
	return &Executor{
		policy:   policy.withDefaults(),
		classify: classify,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:    sleepCtx,
	}
}

// Do runs op until it succeeds, fails permanently, or attempts are
// exhausted; the last error is returned unwrapped for the caller to
// classify. The wait between attempts honors a RetryAfter hint when the
// error carries one, otherwise exponential backoff with jitter. ctx
// cancellation aborts waits, never an in-flight attempt.
func (e *Executor) Do(ctx context.Context, op func(ctx context.Context) error) error {
	var err error
	for attempt := 1; attempt <= e.policy.MaxAttempts; attempt++ {
		err = op(ctx)
		if err == nil {
			return nil
		}

		var pe permanentError
		if errors.As(err, &pe) {
			return pe.err
		}
		if !e.classify(err) {
			return err
		}
		if attempt == e.policy.MaxAttempts {
			break
		}

		wait := e.waitFor(attempt, err)
		if serr := e.sleep(ctx, wait); serr != nil {
			return serr
		}
	}
	return err
}

// waitFor computes the delay after the given failed attempt (1-based).
func (e *Executor) waitFor(attempt int, err error) time.Duration {
	p := e.policy

	base := backoff(p, attempt)
	var ra RetryAfterError
	if errors.As(err, &ra) {
		base = ra.RetryAfter()
		if base < 0 {
			base = 0
		}
	}
	d := jittered(base, p.Jitter, e.rng)
	if d > p.MaxWait {
		d = p.MaxWait
	}
	return d
}

// backoff returns min(base * 2^(attempt-1), max) without jitter.
func backoff(p Policy, attempt int) time.Duration {
	d := p.BaseWait
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.MaxWait {
			return p.MaxWait
		}
	}
	if d > p.MaxWait {
		return p.MaxWait
	}
	return d
}

// jittered increases d by up to frac, uniformly. Increase only: synchronized
// clients spreading out later is fine, earlier is not.
func jittered(d time.Duration, frac float64, rng *rand.Rand) time.Duration {
	if frac <= 0 || d <= 0 || rng == nil {
		return d
	}
	return d + time.Duration(rng.Float64()*frac*float64(d))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
