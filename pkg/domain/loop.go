package domain

import (
	"errors"
	"fmt"
)

type LoopType string

const (
	// pick idle projects and dispatch the next batch for annotation.
	Dispatching LoopType = "dispatching"

	// poll annotation progress of dispatched projects and collect completed batches.
	Collecting LoopType = "collecting"

	// watch the ML backend until training completes (or stalls).
	TrainingWatch LoopType = "training"

	// delete retired remote annotation projects on the annotation tool.
	Housekeeping LoopType = "housekeeping"
)

// NOTE: we define them here, because...
//
// 1. "we have loops, they are like this" is a part of the model of pickfab.
//
// 2. When we make loops scalable, we will use database to throttle loops.
//

func (lt LoopType) String() string {
	return string(lt)
}

func (lt LoopType) IsKnown() bool {
	switch lt {
	case Dispatching, Collecting, TrainingWatch, Housekeeping:
		return true
	default:
		return false
	}
}

func AsLoopType(s string) (LoopType, error) {
	l := LoopType(s)
	if l.IsKnown() {
		return l, nil
	}
	return l, fmt.Errorf(`%w: "%s"`, ErrUnknwonLoopType, s)
}

var ErrUnknwonLoopType = errors.New("unknown loop type")
