package model

import (
	"context"
	"errors"
	"fmt"
)

// ErrBusy: the backend accepts at most one training job at a time.
//
// Callers treat this as retryable, not fatal.
var ErrBusy = errors.New("training already in progress")

type State string

const (
	Idle       State = "idle"
	InTraining State = "training"
)

func (s State) String() string {
	return string(s)
}

func AsState(s string) (State, error) {
	switch State(s) {
	case Idle:
		return Idle, nil
	case InTraining:
		return InTraining, nil
	default:
		return State(s), fmt.Errorf("'%s' is not a model state", s)
	}
}

// Status is the ML backend's reported status.
type Status struct {
	State State

	// Version counts completed trainings. 0 = no model trained yet.
	Version int
}

// Dataset groups training items by their label.
type Dataset map[string][]string

// Trainer is the contract with the ML backend.
type Trainer interface {
	// Setup tells the backend the class names of the run.
	Setup(ctx context.Context, classes []string) error

	// Predict returns the per-class probability distribution for an item,
	// keyed by class name.
	Predict(ctx context.Context, itemId string) (map[string]float64, error)

	// Train starts a training job over the dataset.
	//
	// Returns ErrBusy when a training job is already running.
	Train(ctx context.Context, dataset Dataset) error

	// Status reports whether the backend is idle or training, and the
	// version of the model it serves.
	//
	// Callers re-derive "is training done" from this on every resumption;
	// in-memory flags do not survive restarts.
	Status(ctx context.Context) (Status, error)
}
