package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/opst/pickfab/cmd/loops/recurring"
	"github.com/opst/pickfab/cmd/loops/tasks/collecting"
	"github.com/opst/pickfab/cmd/loops/tasks/dispatching"
	"github.com/opst/pickfab/cmd/loops/tasks/housekeeping"
	"github.com/opst/pickfab/cmd/loops/tasks/training"
	"github.com/opst/pickfab/pkg/domain"
	"github.com/opst/pickfab/pkg/domain/pickfab"
	"github.com/opst/pickfab/pkg/loop"
)

type LoggerOptions func(*log.Logger) *log.Logger

func byLogger(l *log.Logger, opt ...LoggerOptions) *log.Logger {
	for _, o := range opt {
		l = o(l)
	}
	return l
}

func Copied() LoggerOptions {
	return func(l *log.Logger) *log.Logger {
		return log.New(l.Writer(), l.Prefix(), l.Flags())
	}
}

func WithPrefix(pre string) LoggerOptions {
	return func(l *log.Logger) *log.Logger {
		l.SetPrefix(pre)
		return l
	}
}

func WithTimestamp() LoggerOptions {
	return func(l *log.Logger) *log.Logger {
		l.SetFlags(l.Flags() | log.Ldate | log.Ltime | log.Lmicroseconds)
		return l
	}
}

// Wrapper for monitoring loop tasks
//
//	Log the start and end of each time a task is executed. Essentially, it executes a task.
func monitor[T any](logger *log.Logger, task loop.Task[T]) loop.Task[T] {
	// counter for execution of the task
	var counter uint64
	return func(ctx context.Context, t T) (ret T, next loop.Next) {
		// func() capture the 'counter' variable
		counter += 1
		timestamp := time.Now()

		logger.Printf("task start: #0x%X: ", counter)

		// log at the end of the task
		defer func() {
			logger.Printf(
				"task end: #0x%X (takes %s): %s\n with value = %#v",
				counter, time.Since(timestamp), next, ret,
			)
		}()

		// execute the task specified by the argument
		ret, next = task(ctx, t)
		return
	}
}

// Manifest for starting a loop, which determines how the loop should behave.
type LoopManifest struct {
	// Type selects which loop to run.
	Type domain.LoopType

	// Policy for the looping
	Policy recurring.Policy
}

// Start the loop the manifest selects, blocking until it breaks.
func StartLoop(
	ctx context.Context,
	logger *log.Logger,
	cluster pickfab.Pickfab,
	manifest LoopManifest,
) error {
	switch manifest.Type {
	case domain.Dispatching:
		return StartDispatchingLoop(ctx, logger, cluster, manifest)
	case domain.Collecting:
		return StartCollectingLoop(ctx, logger, cluster, manifest)
	case domain.TrainingWatch:
		return StartTrainingWatchLoop(ctx, logger, cluster, manifest)
	case domain.Housekeeping:
		return StartHousekeepingLoop(ctx, logger, cluster, manifest)
	default:
		return fmt.Errorf("%w: %s", domain.ErrUnknwonLoopType, manifest.Type)
	}
}

func StartDispatchingLoop(
	ctx context.Context,
	logger *log.Logger,
	cluster pickfab.Pickfab,
	manifest LoopManifest,
) error {
	_, err := loop.Start(
		ctx, dispatching.Seed(),
		monitor(
			byLogger(logger, Copied(), WithPrefix("[dispatching loop]")),
			dispatching.Task(
				cluster.Project().Database(),
				cluster.Machine(),
			).Applied(manifest.Policy),
		),
		loop.WithTimeout(30*time.Second),
	)
	return err
}

func StartCollectingLoop(
	ctx context.Context,
	logger *log.Logger,
	cluster pickfab.Pickfab,
	manifest LoopManifest,
) error {
	_, err := loop.Start(
		ctx, collecting.Seed(),
		monitor(
			byLogger(logger, Copied(), WithPrefix("[collecting loop]")),
			collecting.Task(
				cluster.Project().Database(),
				cluster.Annotation(),
				cluster.Machine(),
			).Applied(manifest.Policy),
		),
		loop.WithTimeout(30*time.Second),
	)
	return err
}

func StartTrainingWatchLoop(
	ctx context.Context,
	logger *log.Logger,
	cluster pickfab.Pickfab,
	manifest LoopManifest,
) error {
	_, err := loop.Start(
		ctx, training.Seed(),
		monitor(
			byLogger(logger, Copied(), WithPrefix("[training loop]")),
			training.Task(
				cluster.Project().Database(),
				cluster.Machine(),
			).Applied(manifest.Policy),
		),
		loop.WithTimeout(30*time.Second),
	)
	return err
}

func StartHousekeepingLoop(
	ctx context.Context,
	logger *log.Logger,
	cluster pickfab.Pickfab,
	manifest LoopManifest,
) error {
	_, err := loop.Start(
		ctx, housekeeping.Seed(),
		monitor(
			byLogger(logger, Copied(), WithPrefix("[housekeeping loop]")),
			housekeeping.Task(
				cluster.Garbage().Database(),
				cluster.Annotation(),
			).Applied(manifest.Policy),
		),
	)
	return err
}
