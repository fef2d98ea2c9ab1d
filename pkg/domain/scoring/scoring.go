package scoring

import (
	"errors"
	"fmt"
	"math"
)

var ErrUnknownStrategy = errors.New("unknown uncertainty strategy")

// Strategy is the scoring function used to rank candidate items.
type Strategy string

const (
	// score = max(probabilities). Lower score = more uncertain.
	LeastConfidence Strategy = "least_confidence"

	// score = -sum(p * log2(p)). Higher score = more uncertain.
	Entropy Strategy = "entropy"

	// score = top1 - top2 probability. Lower score = more uncertain.
	Margin Strategy = "margin"
)

func (s Strategy) String() string {
	return string(s)
}

func (s Strategy) IsKnown() bool {
	switch s {
	case LeastConfidence, Entropy, Margin:
		return true
	default:
		return false
	}
}

func AsStrategy(s string) (Strategy, error) {
	st := Strategy(s)
	if st.IsKnown() {
		return st, nil
	}
	return st, fmt.Errorf(`%w: "%s"`, ErrUnknownStrategy, s)
}

// Score computes the strategy's published score for a per-class probability
// vector.
//
// Each strategy keeps its own convention:
//
//   - LeastConfidence: max(probabilities). LOWER = more uncertain.
//   - Entropy: -sum(p*log2(p)) over p > 0. HIGHER = more uncertain.
//   - Margin: (largest) - (second largest), duplicates allowed. LOWER = more uncertain.
//
// An empty vector is maximally uncertain: the score is the infinity which puts
// the item at the front of the strategy's ordering.
//
// Probabilities are used as-is. Vectors not summing to 1 are NOT renormalized;
// this is a documented precision contract with the ML backend.
func Score(strategy Strategy, probabilities []float64) float64 {
	if len(probabilities) == 0 {
		switch strategy {
		case Entropy:
			return math.Inf(+1)
		default:
			return math.Inf(-1)
		}
	}

	switch strategy {
	case LeastConfidence:
		top1, _ := top2(probabilities)
		return top1
	case Entropy:
		return entropyOf(probabilities)
	case Margin:
		top1, top2 := top2(probabilities)
		return top1 - top2
	default:
		// unknown strategies never reach here; AsStrategy guards inputs.
		return math.NaN()
	}
}

// Urgency maps a probability vector onto the single internal scale used by
// selection: HIGHER = more uncertain, for every strategy.
//
// The mapping from Score is:
//
//   - LeastConfidence: -Score (negated max-confidence)
//   - Entropy: Score as-is
//   - Margin: -Score (negated margin)
//
// An empty vector yields +Inf for every strategy.
func Urgency(strategy Strategy, probabilities []float64) float64 {
	if len(probabilities) == 0 {
		return math.Inf(+1)
	}

	switch strategy {
	case Entropy:
		return Score(strategy, probabilities)
	default:
		return -Score(strategy, probabilities)
	}
}

func entropyOf(probabilities []float64) float64 {
	e := 0.0
	for _, p := range probabilities {
		if p <= 0 {
			continue // by convention, 0 * log2(0) = 0
		}
		e -= p * math.Log2(p)
	}
	return e
}

// the two largest values in probabilities. Duplicated values count twice:
// top2([0.5, 0.5]) = (0.5, 0.5).
//
// With a single-class vector, the second value is 0.
func top2(probabilities []float64) (float64, float64) {
	first, second := math.Inf(-1), math.Inf(-1)
	for _, p := range probabilities {
		if first < p {
			first, second = p, first
		} else if second < p {
			second = p
		}
	}
	if math.IsInf(second, -1) {
		second = 0
	}
	return first, second
}
