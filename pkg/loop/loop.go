// Package loop runs a task over and over until it decides to stop.
//
// The recurring loops of cmd/loops (dispatching, collecting, training watch,
// housekeeping) are built on Start.
package loop

import (
	"context"
	"fmt"
	"time"
)

type Next struct {
	// if not nil, breaks with error
	err error

	// if quit == true and err == nil, breaks without error
	quit bool

	// otherwise, continue loop with interval.
	interval time.Duration
}

func (n Next) String() string {
	if n.err != nil {
		return fmt.Sprintf("[break] with error: %v", n.err)
	}
	if n.quit {
		return "[break] without error"
	}

	return fmt.Sprintf("[continue] interval: %s", n.interval)
}

// continue loop.
//
// args:
//
// - interval: sleep before starting next task.
func Continue(interval time.Duration) Next {
	return Next{interval: interval}
}

// break loop.
//
// args:
//
// - err: If you break loop with error, set non nil value.
func Break(err error) Next {
	return Next{quit: true, err: err}
}

// Task is one turn of a loop.
//
// It receives the value the previous turn returned (the loop's running
// state: a cursor, a counter, a tally) and decides, via Next, whether the
// loop goes on.
type Task[T any] func(context.Context, T) (T, Next)

// Start runs task in a loop.
//
// Task and Loop
//
// Task should return 2 values.
//
// - T : any value the loop threads from turn to turn.
// The recurring loops thread their pick cursor this way.
//
// - next: Continue(time.Duration) or Break(error).
// To run one more turn, return Continue(time.Duration); the task is called
// again with the new T after the interval (can be 0).
// When done, return Break(error); pass nil when there is no error.
// Zero value (Next{}) equals Continue(0), that is, "go next ASAP!".
//
// Example
//
// Count 1 to 10:
//
//	Start(ctx, 1, func(_ context.Context, value int) (int, Next) {
//		value += 1
//		if 10 <= value {
//			return value, Break(nil)
//		}
//		return value, Continue(0)
//	})
//
// poll an annotation project's progress until its batch is complete:
//
//	Start(ctx, 0, func(ctx context.Context, reported int) (int, Next) {
//		n, err := tool.Progress(ctx, live.Ref)
//		if err != nil {
//			return reported, Break(err)
//		}
//		if batchSize <= n {
//			return n, Break(nil)
//		}
//		return n, Continue(30 * time.Second)
//	})
//
// Args
//
// - ctx : context. When it is Done, the loop breaks with ctx.Err().
//
// - init : your task is called as task(ctx, init) at the first turn.
//
// - task : task receiving (context, last value), returning (new value, Continue() or Break()).
//
// - options : options for the loop; see WithTimeout.
//
// Returns
//
// - T: the T the task returned at last.
// This value is always returned, with or without a non-nil error.
//
// - error: the error in Break(error). It is nil when the loop breaks with Break(nil).
func Start[T any](ctx context.Context, init T, task Task[T], options ...LoopOption) (T, error) {
	select {
	case <-ctx.Done():
		return init, ctx.Err()
	default:
	}

	value := init
	for {
		interval := 0 * time.Nanosecond

		lc := &loopConfig{ctx: ctx}
		for _, opt := range options {
			lc = opt(lc)
		}

		v, n := func() (T, Next) {
			ctx := lc.ctx
			if lc.deferred != nil {
				defer lc.deferred()
			}
			return task(ctx, value)
		}()

		if n.err != nil {
			return v, n.err
		} else if n.quit {
			return v, nil
		} else {
			value = v
			interval = n.interval
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			// shutting down has priority. it should come first, and checking timer later.
			if !timer.Stop() {
				<-timer.C // drain. see: time.Timer.Stop's document
			}
			return value, ctx.Err()

		case <-timer.C:
			continue
		}
	}
}

type loopConfig struct {
	ctx      context.Context
	deferred func()
}

type LoopOption func(*loopConfig) *loopConfig

// set timeout per loop
//
// this timeout is set on context.Context passed to task.
func WithTimeout(d time.Duration) LoopOption {
	return func(lc *loopConfig) *loopConfig {
		ctx, cancel := context.WithTimeout(lc.ctx, d)
		return &loopConfig{
			ctx: ctx,
			deferred: func() {
				if lc.deferred != nil {
					defer lc.deferred()
				}
				cancel()
			},
		}
	}
}
