package domain

import (
	"fmt"
	"time"

	"github.com/opst/pickfab/pkg/utils/cmp"
)

// AnnotationProject is a handle to the batch currently out for annotation
// on the remote annotation tool.
type AnnotationProject struct {
	// identifier of the project on the annotation tool.
	Ref string

	// title of the project on the annotation tool.
	//
	// Built with AnnotationTitle.
	Title string

	// item ids dispatched to the project.
	Items []string

	// when the project was created.
	Since time.Time
}

func (ap *AnnotationProject) Equal(o *AnnotationProject) bool {
	if (ap == nil) || (o == nil) {
		return (ap == nil) && (o == nil)
	}
	return ap.Ref == o.Ref &&
		ap.Title == o.Title &&
		cmp.SliceEq(ap.Items, o.Items) &&
		ap.Since.Equal(o.Since)
}

// title for the remote annotation project hosting the epoch's batch.
func AnnotationTitle(projectName string, epoch int) string {
	return fmt.Sprintf("%s_epoch_%d", projectName, epoch)
}

// AnnotatedItem is one (item, label) pair produced by the annotation tool.
type AnnotatedItem struct {
	ItemId string

	// class label chosen by the annotator. One of the project's LabelSchema.
	Label string

	// the epoch which collected this annotation.
	Epoch int

	// when the annotation was collected.
	Since time.Time
}

func (ai *AnnotatedItem) Equal(o *AnnotatedItem) bool {
	if (ai == nil) || (o == nil) {
		return (ai == nil) && (o == nil)
	}
	return ai.ItemId == o.ItemId &&
		ai.Label == o.Label &&
		ai.Epoch == o.Epoch &&
		ai.Since.Equal(o.Since)
}

// ScoredItem is an unlabeled item with its prediction and derived urgency.
//
// Ephemeral: never persisted.
type ScoredItem struct {
	ItemId string

	// per-class probabilities, laid out in the project's LabelSchema order.
	Probabilities []float64

	// derived uncertainty. Higher = more uncertain, for every strategy.
	Urgency float64
}
