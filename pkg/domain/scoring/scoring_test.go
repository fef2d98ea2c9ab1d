package scoring_test

import (
	"math"
	"testing"

	"github.com/opst/pickfab/pkg/domain/scoring"
)

func TestAsStrategy(t *testing.T) {
	for _, name := range []string{"least_confidence", "entropy", "margin"} {
		s, err := scoring.AsStrategy(name)
		if err != nil {
			t.Errorf("AsStrategy(%s) causes error: %v", name, err)
		}
		if s.String() != name {
			t.Errorf("AsStrategy(%s): actual=%s, expect=%s", name, s, name)
		}
	}

	if _, err := scoring.AsStrategy("most_confidence"); err == nil {
		t.Error("AsStrategy with unknown name does not cause error")
	}
}

func TestScore(t *testing.T) {
	const tolerance = 1e-9

	type When struct {
		strategy      scoring.Strategy
		probabilities []float64
	}
	type Then struct {
		score float64
	}

	theory := func(when When, then Then) func(*testing.T) {
		return func(t *testing.T) {
			actual := scoring.Score(when.strategy, when.probabilities)
			if math.Abs(actual-then.score) > tolerance {
				t.Errorf(
					"Score(%s, %v): actual=%v, expect=%v",
					when.strategy, when.probabilities, actual, then.score,
				)
			}
		}
	}

	t.Run("least_confidence is the model's top confidence", theory(
		When{strategy: scoring.LeastConfidence, probabilities: []float64{0.1, 0.7, 0.2}},
		Then{score: 0.7},
	))
	t.Run("entropy of a one-hot vector is 0", theory(
		When{strategy: scoring.Entropy, probabilities: []float64{0, 1, 0}},
		Then{score: 0},
	))
	t.Run("entropy of a uniform vector is log2(k)", theory(
		When{strategy: scoring.Entropy, probabilities: []float64{0.25, 0.25, 0.25, 0.25}},
		Then{score: 2},
	))
	t.Run("entropy of a two-class coin flip is 1", theory(
		When{strategy: scoring.Entropy, probabilities: []float64{0.5, 0.5}},
		Then{score: 1},
	))
	t.Run("margin is top1 - top2", theory(
		When{strategy: scoring.Margin, probabilities: []float64{0.5, 0.3, 0.2}},
		Then{score: 0.2},
	))
	t.Run("margin of tied top classes is 0", theory(
		When{strategy: scoring.Margin, probabilities: []float64{0.4, 0.4, 0.2}},
		Then{score: 0},
	))
	t.Run("margin of a single-class vector is that probability", theory(
		When{strategy: scoring.Margin, probabilities: []float64{1.0}},
		Then{score: 1.0},
	))
	t.Run("probabilities are used as-is, without renormalization", theory(
		When{strategy: scoring.LeastConfidence, probabilities: []float64{0.9, 0.9}},
		Then{score: 0.9},
	))
}

func TestScore_entropyStaysInBounds(t *testing.T) {
	// for vectors summing to 1 with k classes, entropy is within [0, log2(k)].
	for name, probabilities := range map[string][]float64{
		"skewed":      {0.7, 0.1, 0.1, 0.1},
		"almost sure": {0.97, 0.01, 0.01, 0.01},
		"two classes": {0.6, 0.4},
	} {
		t.Run(name, func(t *testing.T) {
			score := scoring.Score(scoring.Entropy, probabilities)
			max := math.Log2(float64(len(probabilities)))
			if score < 0 || max < score {
				t.Errorf(
					"entropy of %v: actual=%v, expect in [0, %v]",
					probabilities, score, max,
				)
			}
		})
	}
}

func TestScore_emptyVectorIsMaximallyUncertain(t *testing.T) {
	// the empty-vector score forces the item to the front of its
	// strategy's ordering.

	if s := scoring.Score(scoring.LeastConfidence, nil); !math.IsInf(s, -1) {
		t.Errorf("least_confidence of empty vector: actual=%v, expect=-Inf", s)
	}
	if s := scoring.Score(scoring.Entropy, nil); !math.IsInf(s, +1) {
		t.Errorf("entropy of empty vector: actual=%v, expect=+Inf", s)
	}
	if s := scoring.Score(scoring.Margin, nil); !math.IsInf(s, -1) {
		t.Errorf("margin of empty vector: actual=%v, expect=-Inf", s)
	}
}

func TestUrgency(t *testing.T) {
	// Urgency normalizes every strategy to "higher = more uncertain".

	type When struct {
		strategy scoring.Strategy

		// moreUncertain should get strictly higher urgency than lessUncertain.
		moreUncertain []float64
		lessUncertain []float64
	}

	theory := func(when When) func(*testing.T) {
		return func(t *testing.T) {
			more := scoring.Urgency(when.strategy, when.moreUncertain)
			less := scoring.Urgency(when.strategy, when.lessUncertain)
			if more <= less {
				t.Errorf(
					"urgency(%s): %v (urgency=%v) should rank above %v (urgency=%v)",
					when.strategy, when.moreUncertain, more, when.lessUncertain, less,
				)
			}
		}
	}

	t.Run("least_confidence: lower top-confidence is more urgent", theory(When{
		strategy:      scoring.LeastConfidence,
		moreUncertain: []float64{0.4, 0.3, 0.3},
		lessUncertain: []float64{0.9, 0.05, 0.05},
	}))
	t.Run("entropy: flatter distribution is more urgent", theory(When{
		strategy:      scoring.Entropy,
		moreUncertain: []float64{0.5, 0.5},
		lessUncertain: []float64{0.99, 0.01},
	}))
	t.Run("margin: narrower margin is more urgent", theory(When{
		strategy:      scoring.Margin,
		moreUncertain: []float64{0.45, 0.44, 0.11},
		lessUncertain: []float64{0.8, 0.1, 0.1},
	}))

	t.Run("empty vector is +Inf for every strategy", func(t *testing.T) {
		for _, strategy := range []scoring.Strategy{
			scoring.LeastConfidence, scoring.Entropy, scoring.Margin,
		} {
			if u := scoring.Urgency(strategy, []float64{}); !math.IsInf(u, +1) {
				t.Errorf("urgency(%s, []): actual=%v, expect=+Inf", strategy, u)
			}
		}
	})
}
