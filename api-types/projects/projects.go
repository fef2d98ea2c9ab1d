package projects

import (
	"github.com/opst/pickfab-api-types/internal/utils/cmp"
	"github.com/opst/pickfab-api-types/misc/rfctime"
)

type Summary struct {
	Name        string          `json:"name"`
	Status      string          `json:"status"`
	BatchSize   int             `json:"batchSize"`
	Epoch       int             `json:"epoch"`
	MaxEpochs   int             `json:"maxEpochs"`
	Strategy    string          `json:"strategy"`
	TrainingSet string          `json:"trainingSet"`
	UpdatedAt   rfctime.RFC3339 `json:"updatedAt"`
}

func (s Summary) Equal(o Summary) bool {
	return s.Name == o.Name &&
		s.Status == o.Status &&
		s.BatchSize == o.BatchSize &&
		s.Epoch == o.Epoch &&
		s.MaxEpochs == o.MaxEpochs &&
		s.Strategy == o.Strategy &&
		s.TrainingSet == o.TrainingSet &&
		s.UpdatedAt.Equal(o.UpdatedAt)
}

type Detail struct {
	Summary
	LabelSchema      []string           `json:"labelSchema"`
	Annotated        []AnnotatedItem    `json:"annotated"`
	Live             *AnnotationProject `json:"live,omitempty"`
	TrainingDeadline *rfctime.RFC3339   `json:"trainingDeadline,omitempty"`
}

func (d Detail) Equal(o Detail) bool {

	liveEq := (d.Live == nil && o.Live == nil) ||
		(d.Live != nil && o.Live != nil && d.Live.Equal(*o.Live))

	deadlineEq := (d.TrainingDeadline == nil && o.TrainingDeadline == nil) ||
		(d.TrainingDeadline != nil && o.TrainingDeadline != nil &&
			d.TrainingDeadline.Equal(*o.TrainingDeadline))

	return d.Summary.Equal(o.Summary) &&
		cmp.SliceEqual(d.LabelSchema, o.LabelSchema) &&
		cmp.SliceEqualUnordered(d.Annotated, o.Annotated) &&
		liveEq &&
		deadlineEq
}

type AnnotatedItem struct {
	ItemId string          `json:"itemId"`
	Label  string          `json:"label"`
	Epoch  int             `json:"epoch"`
	Since  rfctime.RFC3339 `json:"since"`
}

func (a AnnotatedItem) Equal(o AnnotatedItem) bool {
	return a.ItemId == o.ItemId &&
		a.Label == o.Label &&
		a.Epoch == o.Epoch &&
		a.Since.Equal(o.Since)
}

type AnnotationProject struct {
	Ref   string          `json:"ref"`
	Title string          `json:"title"`
	Items []string        `json:"items"`
	Since rfctime.RFC3339 `json:"since"`
}

func (ap AnnotationProject) Equal(o AnnotationProject) bool {
	return ap.Ref == o.Ref &&
		ap.Title == o.Title &&
		cmp.SliceEqual(ap.Items, o.Items) &&
		ap.Since.Equal(o.Since)
}

// RegisterSpec is the request body registering a new project.
type RegisterSpec struct {
	Name        string   `json:"name" yaml:"name"`
	LabelSchema []string `json:"labelSchema" yaml:"labelSchema"`
	BatchSize   int      `json:"batchSize" yaml:"batchSize"`
	MaxEpochs   int      `json:"maxEpochs" yaml:"maxEpochs"`

	// default: least_confidence
	Strategy string `json:"strategy,omitempty" yaml:"strategy,omitempty"`

	// default: cumulative
	TrainingSet string `json:"trainingSet,omitempty" yaml:"trainingSet,omitempty"`
}

func (r RegisterSpec) Equal(o RegisterSpec) bool {
	return r.Name == o.Name &&
		cmp.SliceEqual(r.LabelSchema, o.LabelSchema) &&
		r.BatchSize == o.BatchSize &&
		r.MaxEpochs == o.MaxEpochs &&
		r.Strategy == o.Strategy &&
		r.TrainingSet == o.TrainingSet
}

// LoopResponse reports the outcome of starting (or re-starting) the
// active-learning loop of a project.
type LoopResponse struct {
	// "started" when this request moved the project,
	// "attached" when the loop was already running.
	Outcome string `json:"outcome"`

	Project Detail `json:"project"`
}

func (l LoopResponse) Equal(o LoopResponse) bool {
	return l.Outcome == o.Outcome && l.Project.Equal(o.Project)
}

// BatchSignal is the webhook payload the annotation tool delivers when
// annotations land.
type BatchSignal struct {
	// remote annotation project identifier on the tool.
	Ref string `json:"ref"`

	// how many items of the batch are annotated so far.
	TotalAnnotations int `json:"total_annotations"`
}

func (b BatchSignal) Equal(o BatchSignal) bool {
	return b.Ref == o.Ref && b.TotalAnnotations == o.TotalAnnotations
}

// SignalResponse reports what a BatchSignal caused.
type SignalResponse struct {
	// "accepted", "not-complete" or "ignored".
	Outcome string `json:"outcome"`
}

func (s SignalResponse) Equal(o SignalResponse) bool {
	return s.Outcome == o.Outcome
}
