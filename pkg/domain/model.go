package domain

import (
	"errors"
	"fmt"
)

var ErrUnknownTrainingSetPolicy = errors.New("unknown training set policy")

// TrainingSetPolicy selects which annotations feed retraining.
type TrainingSetPolicy string

const (
	// retrain with every annotation collected so far in the run.
	Cumulative TrainingSetPolicy = "cumulative"

	// retrain with only the annotations collected in the epoch that just completed.
	Newest TrainingSetPolicy = "newest"
)

func (t TrainingSetPolicy) String() string {
	return string(t)
}

func AsTrainingSetPolicy(s string) (TrainingSetPolicy, error) {
	switch TrainingSetPolicy(s) {
	case Cumulative:
		return Cumulative, nil
	case Newest:
		return Newest, nil
	default:
		return TrainingSetPolicy(s), fmt.Errorf("%w: %s", ErrUnknownTrainingSetPolicy, s)
	}
}
