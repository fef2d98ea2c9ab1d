// Package epoch implements the state transitions of the active-learning loop.
//
// Machine produces domain.ProjectChange records from collaborator calls and
// never persists anything itself; the project/db layer applies each change
// atomically. Controller (controller.go) is the seam receiving external
// "start" and "batch complete" events.
package epoch

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/opst/pickfab/pkg/domain"
	"github.com/opst/pickfab/pkg/domain/annotation"
	"github.com/opst/pickfab/pkg/domain/model"
	"github.com/opst/pickfab/pkg/domain/scoring"
	"github.com/opst/pickfab/pkg/domain/selection"
	"github.com/opst/pickfab/pkg/domain/storage"
)

// the reported annotation count does not match the batch size yet.
//
// Absorbed as a no-op by callers, never escalated.
var ErrBatchNotComplete = errors.New("batch is not complete yet")

// the project has no live remote annotation project to collect from.
var ErrNoLiveProject = errors.New("no live remote annotation project")

const DefaultTrainingBudget = 1 * time.Hour

type Machine struct {
	tool    annotation.Tool
	trainer model.Trainer
	storage storage.Interface

	rnd            *rand.Rand
	trainingBudget time.Duration
	now            func() time.Time
}

type Option func(*Machine) *Machine

// WithRandom injects the random source of the cold-start fallback.
func WithRandom(rnd *rand.Rand) Option {
	return func(m *Machine) *Machine {
		m.rnd = rnd
		return m
	}
}

// WithTrainingBudget bounds how long a project may stay Training before
// it is declared Stalled.
func WithTrainingBudget(d time.Duration) Option {
	return func(m *Machine) *Machine {
		m.trainingBudget = d
		return m
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Machine) *Machine {
		m.now = now
		return m
	}
}

func New(
	tool annotation.Tool,
	trainer model.Trainer,
	storage storage.Interface,
	options ...Option,
) *Machine {
	m := &Machine{
		tool:    tool,
		trainer: trainer,
		storage: storage,

		rnd:            rand.New(rand.NewSource(time.Now().UnixNano())),
		trainingBudget: DefaultTrainingBudget,
		now:            time.Now,
	}
	for _, opt := range options {
		m = opt(m)
	}
	return m
}

// candidates = all items known to storage, minus the already-annotated set.
//
// Ordering follows storage enumeration (sorted), which keeps selection
// deterministic.
func (m *Machine) candidates(ctx context.Context, p domain.Project) ([]string, error) {
	all, err := m.storage.ListItems(ctx)
	if err != nil {
		return nil, err
	}

	annotated := map[string]struct{}{}
	for _, a := range p.Annotated {
		annotated[a.ItemId] = struct{}{}
	}

	candidates := []string{}
	for _, id := range all {
		if _, ok := annotated[id]; ok {
			continue
		}
		candidates = append(candidates, id)
	}
	return candidates, nil
}

func finish(p domain.Project) domain.ProjectChange {
	return domain.ProjectChange{
		NextStatus:    domain.Finished,
		Epoch:         p.Epoch,
		RetireLive:    p.Live != nil,
		ResetProgress: true,
	}
}

// Dispatch performs the Idle -> Dispatched transition: select the next batch
// and ship it to the annotation tool.
//
// At epoch 0, or while the backend serves no trained model, selection falls
// back to uniform random. Otherwise each candidate is scored from the
// backend's predictions and the most uncertain batchSize items win.
//
// When no candidates remain, the run terminates early (-> Finished).
//
// Any collaborator failure abandons the transition: the returned error lets
// the caller keep the project at its pre-transition state.
func (m *Machine) Dispatch(ctx context.Context, p domain.Project) (domain.ProjectChange, error) {
	candidates, err := m.candidates(ctx, p)
	if err != nil {
		return domain.Unchanged(p), err
	}
	if len(candidates) == 0 {
		return finish(p), nil
	}

	batch, err := m.selectBatch(ctx, p, candidates)
	if err != nil {
		return domain.Unchanged(p), err
	}

	live, err := m.tool.CreateProject(ctx, annotation.ProjectSpec{
		Title:       domain.AnnotationTitle(p.Name, p.Epoch),
		LabelSchema: p.LabelSchema,
		Items:       batch,
	})
	if err != nil {
		return domain.Unchanged(p), err
	}

	return domain.ProjectChange{
		NextStatus: domain.Dispatched,
		Epoch:      p.Epoch,
		NewLive:    &live,

		// supersede the previous epoch's remote project, if any survived.
		RetireLive: p.Live != nil,
	}, nil
}

func (m *Machine) selectBatch(ctx context.Context, p domain.Project, candidates []string) ([]string, error) {
	coldStart := p.Epoch == 0
	if !coldStart {
		status, err := m.trainer.Status(ctx)
		if err != nil {
			return nil, err
		}
		coldStart = status.Version == 0
	}
	if coldStart {
		return selection.AtRandom(candidates, p.BatchSize, m.rnd), nil
	}

	scored := make([]domain.ScoredItem, len(candidates))
	for nth, itemId := range candidates {
		probabilities, err := m.trainer.Predict(ctx, itemId)
		if err != nil {
			return nil, err
		}
		vector := probabilityVector(p.LabelSchema, probabilities)
		scored[nth] = domain.ScoredItem{
			ItemId:        itemId,
			Probabilities: vector,
			Urgency:       scoring.Urgency(p.Strategy, vector),
		}
	}
	return selection.ByUrgency(scored, p.BatchSize), nil
}

// lay out a class-keyed prediction in LabelSchema order.
//
// Classes the backend did not report get probability 0. A prediction
// reporting no known class at all yields an empty vector, which scores as
// maximally uncertain.
func probabilityVector(labelSchema []string, probabilities map[string]float64) []float64 {
	known := false
	vector := make([]float64, len(labelSchema))
	for nth, class := range labelSchema {
		p, ok := probabilities[class]
		if ok {
			known = true
		}
		vector[nth] = p
	}
	if !known {
		return []float64{}
	}
	return vector
}

// Collect performs the Dispatched -> Training transition: pull completed
// annotations, merge them into the project's annotated set, and trigger
// retraining.
//
// The transition fires only when reported equals the project's batch size
// exactly; anything else returns ErrBatchNotComplete without side effects.
// (The collecting loop re-polls progress, so a missed or duplicated webhook
// converges without relaxing the comparison.)
//
// When the backend is already training, model.ErrBusy is returned and the
// transition may be retried.
func (m *Machine) Collect(ctx context.Context, p domain.Project, reported int) (domain.ProjectChange, error) {
	if reported != p.BatchSize {
		return domain.Unchanged(p), ErrBatchNotComplete
	}
	if p.Live == nil {
		return domain.Unchanged(p), ErrNoLiveProject
	}

	completed, err := m.tool.Completed(ctx, p.Live.Ref)
	if err != nil {
		return domain.Unchanged(p), err
	}

	newAnnotations := mergeAnnotations(p, completed)
	dataset := trainingDataset(p, newAnnotations)

	if err := m.trainer.Train(ctx, dataset); err != nil {
		return domain.Unchanged(p), err
	}

	deadline := m.now().Add(m.trainingBudget)
	return domain.ProjectChange{
		NextStatus:       domain.Training,
		Epoch:            p.Epoch + 1,
		NewAnnotations:   newAnnotations,
		TrainingDeadline: &deadline,
	}, nil
}

// deduplicate completed annotations by item id and stamp them with the
// collecting epoch. Later entries win: re-annotating an item updates its
// label and never double-counts.
func mergeAnnotations(p domain.Project, completed []domain.AnnotatedItem) []domain.AnnotatedItem {
	byItem := map[string]int{}
	merged := []domain.AnnotatedItem{}
	for _, a := range completed {
		a.Epoch = p.Epoch
		if nth, ok := byItem[a.ItemId]; ok {
			merged[nth] = a
			continue
		}
		byItem[a.ItemId] = len(merged)
		merged = append(merged, a)
	}
	return merged
}

// group training examples by label, honoring the project's TrainingSet
// policy: Cumulative trains on every annotation of the run, Newest only on
// the batch just collected.
func trainingDataset(p domain.Project, newAnnotations []domain.AnnotatedItem) model.Dataset {
	examples := newAnnotations
	if p.TrainingSet == domain.Cumulative {
		byItem := map[string]domain.AnnotatedItem{}
		for _, a := range p.Annotated {
			byItem[a.ItemId] = a
		}
		for _, a := range newAnnotations {
			byItem[a.ItemId] = a
		}

		examples = make([]domain.AnnotatedItem, 0, len(byItem))
		for _, a := range byItem {
			examples = append(examples, a)
		}
	}

	dataset := model.Dataset{}
	for _, a := range examples {
		dataset[a.Label] = append(dataset[a.Label], a.ItemId)
	}
	return dataset
}

// WatchTraining performs one probe of the Training state.
//
// Completion is re-derived from the backend's reported status on every
// probe; no in-memory flag survives restarts. Outcomes:
//
//   - backend still training, deadline not passed: stay Training.
//   - backend still training past the deadline: -> Stalled.
//   - backend idle, epoch budget spent or no candidates left: -> Finished.
//   - backend idle otherwise: -> Idle; the dispatching loop starts the next
//     epoch without any external trigger.
func (m *Machine) WatchTraining(ctx context.Context, p domain.Project) (domain.ProjectChange, error) {
	status, err := m.trainer.Status(ctx)
	if err != nil {
		return domain.Unchanged(p), err
	}

	if status.State == model.InTraining {
		if p.TrainingDeadline != nil && m.now().After(*p.TrainingDeadline) {
			return domain.ProjectChange{
				NextStatus: domain.Stalled,
				Epoch:      p.Epoch,
			}, nil
		}
		return domain.Unchanged(p), nil
	}

	if p.Epoch >= p.MaxEpochs {
		return finish(p), nil
	}

	candidates, err := m.candidates(ctx, p)
	if err != nil {
		return domain.Unchanged(p), err
	}
	if len(candidates) == 0 {
		return finish(p), nil
	}

	return domain.ProjectChange{
		NextStatus: domain.Idle,
		Epoch:      p.Epoch,
	}, nil
}
