package crawler

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"time"

	"github.com/cenkalti/backoff/v4"

	"readtx/lib/browser"
)

// Outcome classifies one attempt of a retried operation. Timeouts are
// routine while a page is still rendering and only worth a debug line;
// anything else is unexpected and logged loudly before retrying.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeTimeout
	OutcomeError
)

type Result struct {
	Outcome Outcome
	Err     error
}

func OK() Result {
	return Result{Outcome: OutcomeOK}
}

func TimedOut(err error) Result {
	return Result{Outcome: OutcomeTimeout, Err: err}
}

func Failed(err error) Result {
	return Result{Outcome: OutcomeError, Err: err}
}

// ResultOf classifies a plain error: element-wait timeouts and context
// deadlines count as timeouts, everything else as an unexpected error.
func ResultOf(err error) Result {
	if err == nil {
		return OK()
	}
	if browser.IsTimeout(err) || errors.Is(err, context.DeadlineExceeded) {
		return TimedOut(err)
	}
	return Failed(err)
}

type RetryOptions struct {
	// MaxAttempts is the total number of tries. Defaults to 3.
	MaxAttempts int
	// Wait is the fixed pause between tries. Defaults to 1s.
	Wait time.Duration
}

func (o *RetryOptions) defaults() {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.Wait <= 0 {
		o.Wait = time.Second
	}
}

func callSite() string {
	pc, file, line, ok := runtime.Caller(2)
	if !ok {
		return "unknown"
	}
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return fmt.Sprintf("%s:%d", filepath.Base(file), line)
	}
	return fmt.Sprintf("%s (%s:%d)", fn.Name(), filepath.Base(file), line)
}

// Retry runs fn until it reports OK or the attempt budget is spent,
// pausing Wait between tries. Reports whether fn eventually succeeded;
// retried page interactions are frequently best-effort (cookie banners,
// slow widgets) and the caller decides whether failure is fatal. There
// is no rollback between attempts, fn must be safe to re-run.
func (b *Base) Retry(ctx context.Context, op string, opts RetryOptions, fn func(context.Context) Result) bool {
	opts.defaults()
	caller := callSite()

	policy := backoff.WithContext(
		backoff.WithMaxRetries(
			backoff.NewConstantBackOff(opts.Wait),
			uint64(opts.MaxAttempts-1),
		),
		ctx,
	)
	err := backoff.Retry(func() error {
		res := fn(ctx)
		switch res.Outcome {
		case OutcomeOK:
			return nil
		case OutcomeTimeout:
			b.log.Debug("timed out, retrying", "op", op, "err", res.Err)
		default:
			b.log.Error("unexpected failure, retrying",
				"op", op,
				"caller", caller,
				"err", res.Err,
			)
		}
		if res.Err != nil {
			return res.Err
		}
		return fmt.Errorf("%s reported failure without cause", op)
	}, policy)

	if err != nil {
		b.log.Error("retries exhausted",
			"op", op,
			"attempts", opts.MaxAttempts,
			"err", err,
		)
		return false
	}
	return true
}
