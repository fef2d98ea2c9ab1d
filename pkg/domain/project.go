package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/opst/pickfab/pkg/domain/scoring"
	"github.com/opst/pickfab/pkg/utils/cmp"
)

type ProjectStatus string

const (
	// This Project is registered, but its active-learning loop is not started.
	Deactivated ProjectStatus = "deactivated"

	// This Project is waiting for the next batch to be selected and dispatched.
	Idle ProjectStatus = "idle"

	// This Project has a batch out for annotation on the annotation tool.
	Dispatched ProjectStatus = "dispatched"

	// This Project has triggered retraining and is waiting for the ML backend to become idle.
	Training ProjectStatus = "training"

	// This Project did not observe training completion within its deadline.
	//
	// Stalled projects are left for manual intervention; see Controller.Start.
	Stalled ProjectStatus = "stalled"

	// This Project's loop has terminated.
	Finished ProjectStatus = "finished"
)

func (ps ProjectStatus) String() string {
	return string(ps)
}

func AsProjectStatus(status string) (ProjectStatus, error) {
	switch status {
	case string(Deactivated):
		return Deactivated, nil
	case string(Idle):
		return Idle, nil
	case string(Dispatched):
		return Dispatched, nil
	case string(Training):
		return Training, nil
	case string(Stalled):
		return Stalled, nil
	case string(Finished):
		return Finished, nil
	default:
		return "", fmt.Errorf("'%s' is not ProjectStatus", status)
	}
}

// statuses where the active-learning loop is in flight.
//
// A project in these statuses holds the single in-flight epoch slot;
// starting another epoch is rejected.
func ActiveStatuses() []ProjectStatus {
	return []ProjectStatus{Idle, Dispatched, Training}
}

func (ps ProjectStatus) Active() bool {
	switch ps {
	case Idle, Dispatched, Training:
		return true
	default:
		return false
	}
}

// whether status transition ps -> next is legal or not.
//
// Transiting to the same status is always legal (no-op).
func (ps ProjectStatus) Transitable(next ProjectStatus) bool {
	if ps == next {
		return true
	}
	switch ps {
	case Deactivated:
		return next == Idle
	case Idle:
		return next == Dispatched || next == Finished
	case Dispatched:
		return next == Training
	case Training:
		return next == Idle || next == Finished || next == Stalled
	case Stalled:
		return next == Training
	case Finished:
		return next == Idle
	default:
		return false
	}
}

// Core part of Project.
type ProjectBody struct {
	// Name identifies this active-learning run.
	Name string

	// Ordered list of class names. The ordering fixes the layout of
	// probability vectors coming from the ML backend.
	LabelSchema []string

	// How many items are dispatched for annotation per epoch. Always > 0.
	BatchSize int

	// Current epoch. 0 <= Epoch <= MaxEpochs.
	Epoch int

	// Stopping bound. Always > 0.
	MaxEpochs int

	// Uncertainty strategy used to rank candidate items.
	Strategy scoring.Strategy

	// Which annotations feed retraining: all of them, or only the newest epoch's.
	TrainingSet TrainingSetPolicy

	Status ProjectStatus

	// last update timestamp.
	UpdatedAt time.Time
}

func (pb *ProjectBody) Equal(o *ProjectBody) bool {
	if (pb == nil) || (o == nil) {
		return (pb == nil) && (o == nil)
	}
	return pb.Name == o.Name &&
		cmp.SliceEq(pb.LabelSchema, o.LabelSchema) &&
		pb.BatchSize == o.BatchSize &&
		pb.Epoch == o.Epoch &&
		pb.MaxEpochs == o.MaxEpochs &&
		pb.Strategy == o.Strategy &&
		pb.TrainingSet == o.TrainingSet &&
		pb.Status == o.Status &&
		pb.UpdatedAt.Equal(o.UpdatedAt)
}

type Project struct {
	ProjectBody

	// Items annotated so far in this run. Grows monotonically within a run,
	// deduplicated by item id.
	Annotated []AnnotatedItem

	// The remote annotation project currently out for annotation, if any.
	//
	// At most one live remote project per Project.
	Live *AnnotationProject

	// Deadline to observe training completion. Set while Status is Training.
	TrainingDeadline *time.Time
}

func (p *Project) Equal(o *Project) bool {
	if (p == nil) || (o == nil) {
		return (p == nil) && (o == nil)
	}
	return p.ProjectBody.Equal(&o.ProjectBody) &&
		cmp.SliceContentEqWith(
			p.Annotated, o.Annotated,
			func(a, b AnnotatedItem) bool { return a.Equal(&b) },
		) &&
		p.Live.Equal(o.Live) &&
		cmp.PEqualWith(
			p.TrainingDeadline, o.TrainingDeadline,
			func(a, b time.Time) bool { return a.Equal(b) },
		)
}

// item ids which are already annotated in this run.
func (p *Project) AnnotatedItemIds() []string {
	ids := make([]string, 0, len(p.Annotated))
	for _, a := range p.Annotated {
		ids = append(ids, a.ItemId)
	}
	return ids
}

type ProjectCursor struct {
	// Name of project which is picked at last time
	Head string

	// interval to pick same project without changing status.
	Debounce time.Duration

	// status of project which is picked
	Status []ProjectStatus
}

func (c ProjectCursor) Equal(other ProjectCursor) bool {
	return c.Head == other.Head &&
		cmp.SliceContentEq(c.Status, other.Status)
}

// parameter to query projects
//
// When all dimension matches a project, this query matches the project.
type ProjectFindQuery struct {
	// match if project's name is one of these.
	//
	// If it is nil or empty, it means "match any".
	Name []string

	// match if project's status is one of these statuses.
	//
	// If it is nil or empty, it means "match any".
	Status []ProjectStatus
}

func (q ProjectFindQuery) Equal(other ProjectFindQuery) bool {
	return cmp.SliceContentEq(q.Name, other.Name) &&
		cmp.SliceContentEq(q.Status, other.Status)
}

// ProjectChange is the mutation record a state transition returns.
//
// The persistence layer applies a ProjectChange atomically: either all of
// its fields take effect, or (when the producing callback errored) none.
type ProjectChange struct {
	// status the project transits to.
	NextStatus ProjectStatus

	// epoch value after the transition.
	Epoch int

	// annotations newly collected in this transition, deduplicated by item id.
	//
	// Re-annotating a known item updates its label, never double-counts.
	NewAnnotations []AnnotatedItem

	// new live remote annotation project, if one was created.
	NewLive *AnnotationProject

	// when true, the current live remote project is retired into garbage.
	RetireLive bool

	// when true, the annotated-item set is cleared (run termination, for reuse).
	ResetProgress bool

	// deadline for the training watch. Set when NextStatus is Training.
	TrainingDeadline *time.Time
}

func (c ProjectChange) Equal(other ProjectChange) bool {
	return c.NextStatus == other.NextStatus &&
		c.Epoch == other.Epoch &&
		cmp.SliceContentEqWith(
			c.NewAnnotations, other.NewAnnotations,
			func(a, b AnnotatedItem) bool { return a.Equal(&b) },
		) &&
		c.NewLive.Equal(other.NewLive) &&
		c.RetireLive == other.RetireLive &&
		c.ResetProgress == other.ResetProgress &&
		cmp.PEqualWith(
			c.TrainingDeadline, other.TrainingDeadline,
			func(a, b time.Time) bool { return a.Equal(b) },
		)
}

// Unchanged returns a ProjectChange which keeps p as it is.
//
// The training deadline is carried over: applying a ProjectChange overwrites
// every persisted field, so a no-op change must restate the deadline or a
// Training project would lose it on the next stay-put probe.
func Unchanged(p Project) ProjectChange {
	return ProjectChange{
		NextStatus:       p.Status,
		Epoch:            p.Epoch,
		TrainingDeadline: p.TrainingDeadline,
	}
}

var (
	ErrProjectIsActive = errors.New("the project's loop is active")

	ErrProjectAlreadyExists = errors.New("project already exists")

	// project body violates its invariants.
	ErrInvalidProject = errors.New("invalid project")

	ErrInvalidProjectStateChanging = errors.New("cannot change project state")

	// training completion was not observed within the project's deadline.
	ErrTrainingStalled = errors.New("training is stalled")
)

func NewErrInvalidProjectStateChanging(from, to ProjectStatus) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidProjectStateChanging, from, to)
}
