// Package selection narrows scored (or cold-start) candidates down to the
// batch dispatched for annotation in one epoch.
package selection

import (
	"math/rand"
	"sort"

	"github.com/opst/pickfab/pkg/domain"
)

// ByUrgency selects the batchSize most uncertain items.
//
// Items are ordered by urgency descending; ties are broken lexicographically
// by item id, so the selection is deterministic for a deterministic input.
//
// The result has length min(batchSize, len(scored)), holds no duplicates
// (assuming scored itself has none) and only items from scored.
func ByUrgency(scored []domain.ScoredItem, batchSize int) []string {
	if batchSize <= 0 {
		return []string{}
	}

	ordered := make([]domain.ScoredItem, len(scored))
	copy(ordered, scored)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Urgency != ordered[j].Urgency {
			return ordered[i].Urgency > ordered[j].Urgency
		}
		return ordered[i].ItemId < ordered[j].ItemId
	})

	if len(ordered) > batchSize {
		ordered = ordered[:batchSize]
	}

	selected := make([]string, len(ordered))
	for nth, s := range ordered {
		selected[nth] = s.ItemId
	}
	return selected
}

// AtRandom selects uniformly without replacement from itemIds.
//
// This is the cold-start fallback: at epoch 0, with no trained model, there
// are no predictions to score. The random source is injected for testability;
// production seeding happens in the caller.
//
// The result has length min(batchSize, len(itemIds)). itemIds is kept unchanged.
func AtRandom(itemIds []string, batchSize int, rnd *rand.Rand) []string {
	if batchSize <= 0 {
		return []string{}
	}

	shuffled := make([]string, len(itemIds))
	copy(shuffled, itemIds)
	rnd.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	if len(shuffled) > batchSize {
		shuffled = shuffled[:batchSize]
	}
	return shuffled
}
