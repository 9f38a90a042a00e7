// Package converge provides a generic bounded-wait primitive: poll a probe
// until it reports done, its progress token stops advancing, or a deadline
// passes. It standardises the "wait for an asynchronous batch of browser
// operations to settle" pattern so every consumer gets consistent intervals,
// stability windows, and observability for free.
//
// The live browser gives no "batch complete" signal when tabs are created in
// parallel, so callers cannot know synchronously how many operations will
// materialise. Polling with a stability counter is the retrofit: if the
// progress token is unchanged for Stability consecutive polls, the state is
// considered settled and the caller proceeds with whatever is present.
//
// Typical usage:
//
//	out, err := converge.Wait(ctx, converge.Options{}, func(ctx context.Context) (bool, int64, error) {
//		tabs, err := env.Tabs(ctx, win)
//		if err != nil {
//			return false, 0, err
//		}
//		return len(tabs) >= want, int64(len(tabs)), nil
//	})
package converge

import (
	"context"
	"log/slog"
	"time"
)

// Probe inspects external state. done means the target condition holds.
// progress is a token that advances while the state is still moving; two
// polls returning the same token count toward the stability threshold.
// A probe error is logged and counted as a poll, never fatal.
type Probe func(ctx context.Context) (done bool, progress int64, err error)

// Options tunes the wait behaviour.
type Options struct {
	// Interval is the polling frequency. Default: 200ms.
	Interval time.Duration
	// Timeout caps the total wait. Default: 10s.
	Timeout time.Duration
	// Stability is the number of consecutive polls with unchanged progress
	// after which the state counts as settled. Default: 3.
	Stability int
	// Logger overrides the default slog logger.
	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.Interval <= 0 {
		o.Interval = 200 * time.Millisecond
	}
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	if o.Stability <= 0 {
		o.Stability = 3
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Outcome describes how the wait ended.
type Outcome int

const (
	// Converged means the probe reported done.
	Converged Outcome = iota
	// Stalled means progress stopped advancing for Stability polls.
	Stalled
	// TimedOut means the Timeout elapsed first.
	TimedOut
)

func (o Outcome) String() string {
	switch o {
	case Converged:
		return "converged"
	case Stalled:
		return "stalled"
	case TimedOut:
		return "timed_out"
	}
	return "unknown"
}

// Wait polls probe at opts.Interval until one of the three outcomes is
// reached. The only error it returns is ctx cancellation; probe errors are
// tolerated and retried on the next poll.
func Wait(ctx context.Context, opts Options, probe Probe) (Outcome, error) {
	opts.defaults()
	log := opts.Logger

	deadline := time.Now().Add(opts.Timeout)
	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	var (
		lastProgress int64 = -1
		stable       int
		polls        int
	)

	for {
		polls++
		done, progress, err := probe(ctx)
		if err != nil {
			log.Warn("converge: probe failed", "error", err, "poll", polls)
		} else {
			if done {
				return Converged, nil
			}
			if progress == lastProgress {
				stable++
				if stable >= opts.Stability {
					log.Debug("converge: stalled", "progress", progress, "polls", polls)
					return Stalled, nil
				}
			} else {
				// Progress moved: reset the stability window.
				lastProgress = progress
				stable = 0
			}
		}

		if time.Now().After(deadline) {
			log.Debug("converge: timed out", "polls", polls)
			return TimedOut, nil
		}

		select {
		case <-ctx.Done():
			return TimedOut, ctx.Err()
		case <-ticker.C:
		}
	}
}
