package epoch_test

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/opst/pickfab/pkg/domain"
	"github.com/opst/pickfab/pkg/domain/annotation"
	annomock "github.com/opst/pickfab/pkg/domain/annotation/mock"
	"github.com/opst/pickfab/pkg/domain/epoch"
	"github.com/opst/pickfab/pkg/domain/model"
	trainermock "github.com/opst/pickfab/pkg/domain/model/mock"
	"github.com/opst/pickfab/pkg/domain/scoring"
	storagemock "github.com/opst/pickfab/pkg/domain/storage/mock"
	"github.com/opst/pickfab/pkg/utils/cmp"
	"github.com/opst/pickfab/pkg/utils/slices"
)

func ref[T any](v T) *T { return &v }

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func TestMachine_Dispatch(t *testing.T) {
	type When struct {
		project      domain.Project
		items        []string
		status       model.Status
		predictions  map[string]map[string]float64
		createdRef   string
		createdSince time.Time
	}

	type Then struct {
		change        domain.ProjectChange
		wantBatch     []string
		wantPredicted bool
	}

	theory := func(when When, then Then) func(*testing.T) {
		return func(t *testing.T) {
			ctx := context.Background()

			storage := storagemock.New()
			storage.Impl.ListItems = func(ctx context.Context) ([]string, error) {
				return when.items, nil
			}

			trainer := trainermock.New()
			trainer.Impl.Status = func(ctx context.Context) (model.Status, error) {
				return when.status, nil
			}
			trainer.Impl.Predict = func(ctx context.Context, itemId string) (map[string]float64, error) {
				p, ok := when.predictions[itemId]
				if !ok {
					t.Errorf("predict is requested for unexpected item: %s", itemId)
				}
				return p, nil
			}

			tool := annomock.New()
			tool.Impl.CreateProject = func(ctx context.Context, spec annotation.ProjectSpec) (domain.AnnotationProject, error) {
				return domain.AnnotationProject{
					Ref:   when.createdRef,
					Title: spec.Title,
					Items: spec.Items,
					Since: when.createdSince,
				}, nil
			}

			testee := epoch.New(
				tool, trainer, storage,
				epoch.WithRandom(rand.New(rand.NewSource(42))),
			)

			change, err := testee.Dispatch(ctx, when.project)
			if err != nil {
				t.Fatal(err)
			}

			if then.wantBatch != nil {
				if tool.Calls.CreateProject.Times() != 1 {
					t.Fatalf(
						"CreateProject is called %d times (expected: 1)",
						tool.Calls.CreateProject.Times(),
					)
				}
				spec := tool.Calls.CreateProject[0]

				wantTitle := domain.AnnotationTitle(when.project.Name, when.project.Epoch)
				if spec.Title != wantTitle {
					t.Errorf("title: actual=%s, expect=%s", spec.Title, wantTitle)
				}
				if !cmp.SliceEq(spec.LabelSchema, when.project.LabelSchema) {
					t.Errorf(
						"label schema: actual=%v, expect=%v",
						spec.LabelSchema, when.project.LabelSchema,
					)
				}
				if !cmp.SliceEq(spec.Items, then.wantBatch) {
					t.Errorf("batch: actual=%v, expect=%v", spec.Items, then.wantBatch)
				}

				then.change.NewLive = &domain.AnnotationProject{
					Ref:   when.createdRef,
					Title: wantTitle,
					Items: then.wantBatch,
					Since: when.createdSince,
				}
			}

			if !change.Equal(then.change) {
				t.Errorf(
					"change:\n===actual===\n%+v\n===expected===\n%+v",
					change, then.change,
				)
			}

			predicted := 0 < trainer.Calls.Predict.Times()
			if predicted != then.wantPredicted {
				t.Errorf(
					"predict called: actual=%v, expect=%v",
					predicted, then.wantPredicted,
				)
			}
		}
	}

	since := time.Date(2024, 10, 1, 12, 13, 14, 0, time.UTC)

	t.Run("when no unlabeled candidates remain, it finishes the run", theory(
		When{
			project: domain.Project{
				ProjectBody: domain.ProjectBody{
					Name: "proj", LabelSchema: []string{"cat", "dog"},
					BatchSize: 2, Epoch: 3, MaxEpochs: 10,
					Strategy: scoring.LeastConfidence, TrainingSet: domain.Cumulative,
					Status: domain.Idle,
				},
				Annotated: []domain.AnnotatedItem{
					{ItemId: "item-a", Label: "cat", Epoch: 1},
					{ItemId: "item-b", Label: "dog", Epoch: 2},
				},
				Live: &domain.AnnotationProject{Ref: "ls-12"},
			},
			items: []string{"item-a", "item-b"},
		},
		Then{
			change: domain.ProjectChange{
				NextStatus: domain.Finished, Epoch: 3,
				RetireLive: true, ResetProgress: true,
			},
		},
	))

	t.Run("at epoch 0, it selects at random without predicting", theory(
		When{
			project: domain.Project{
				ProjectBody: domain.ProjectBody{
					Name: "proj", LabelSchema: []string{"cat", "dog"},
					BatchSize: 3, Epoch: 0, MaxEpochs: 10,
					Strategy: scoring.LeastConfidence, TrainingSet: domain.Cumulative,
					Status: domain.Idle,
				},
			},
			items: []string{
				"item-00", "item-01", "item-02", "item-03", "item-04",
				"item-05", "item-06", "item-07", "item-08", "item-09",
			},
			createdRef:   "ls-1",
			createdSince: since,
		},
		Then{
			change: domain.ProjectChange{
				NextStatus: domain.Dispatched, Epoch: 0,
			},
			wantBatch: func() []string {
				items := []string{
					"item-00", "item-01", "item-02", "item-03", "item-04",
					"item-05", "item-06", "item-07", "item-08", "item-09",
				}
				rnd := rand.New(rand.NewSource(42))
				rnd.Shuffle(len(items), func(i, j int) {
					items[i], items[j] = items[j], items[i]
				})
				return items[:3]
			}(),
			wantPredicted: false,
		},
	))

	t.Run("when the backend has no trained model, it selects at random", theory(
		When{
			project: domain.Project{
				ProjectBody: domain.ProjectBody{
					Name: "proj", LabelSchema: []string{"cat", "dog"},
					BatchSize: 2, Epoch: 2, MaxEpochs: 10,
					Strategy: scoring.LeastConfidence, TrainingSet: domain.Cumulative,
					Status: domain.Idle,
				},
			},
			items:        []string{"item-a", "item-b", "item-c"},
			status:       model.Status{State: model.Idle, Version: 0},
			createdRef:   "ls-2",
			createdSince: since,
		},
		Then{
			change: domain.ProjectChange{
				NextStatus: domain.Dispatched, Epoch: 2,
			},
			wantBatch: func() []string {
				items := []string{"item-a", "item-b", "item-c"}
				rnd := rand.New(rand.NewSource(42))
				rnd.Shuffle(len(items), func(i, j int) {
					items[i], items[j] = items[j], items[i]
				})
				return items[:2]
			}(),
			wantPredicted: false,
		},
	))

	t.Run("with least confidence, it dispatches the least confidently predicted items", theory(
		When{
			project: domain.Project{
				ProjectBody: domain.ProjectBody{
					Name: "proj", LabelSchema: []string{"cat", "dog"},
					BatchSize: 2, Epoch: 2, MaxEpochs: 10,
					Strategy: scoring.LeastConfidence, TrainingSet: domain.Cumulative,
					Status: domain.Idle,
				},
				Annotated: []domain.AnnotatedItem{
					{ItemId: "item-x", Label: "cat", Epoch: 1},
				},
			},
			items:  []string{"item-a", "item-b", "item-c", "item-x"},
			status: model.Status{State: model.Idle, Version: 2},
			predictions: map[string]map[string]float64{
				"item-a": {"cat": 0.9, "dog": 0.1},
				"item-b": {"cat": 0.4, "dog": 0.6},
				"item-c": {"cat": 0.7, "dog": 0.3},
			},
			createdRef:   "ls-3",
			createdSince: since,
		},
		Then{
			change: domain.ProjectChange{
				NextStatus: domain.Dispatched, Epoch: 2,
			},
			wantBatch:     []string{"item-b", "item-c"},
			wantPredicted: true,
		},
	))

	t.Run("with entropy, it prefers the most even prediction", theory(
		When{
			project: domain.Project{
				ProjectBody: domain.ProjectBody{
					Name: "proj", LabelSchema: []string{"cat", "dog"},
					BatchSize: 1, Epoch: 1, MaxEpochs: 10,
					Strategy: scoring.Entropy, TrainingSet: domain.Cumulative,
					Status: domain.Idle,
				},
			},
			items:  []string{"item-certain", "item-coinflip"},
			status: model.Status{State: model.Idle, Version: 1},
			predictions: map[string]map[string]float64{
				"item-certain":  {"cat": 0.99, "dog": 0.01},
				"item-coinflip": {"cat": 0.5, "dog": 0.5},
			},
			createdRef:   "ls-4",
			createdSince: since,
		},
		Then{
			change: domain.ProjectChange{
				NextStatus: domain.Dispatched, Epoch: 1,
			},
			wantBatch:     []string{"item-coinflip"},
			wantPredicted: true,
		},
	))

	t.Run("when a live project survives, it is retired on redispatch", theory(
		When{
			project: domain.Project{
				ProjectBody: domain.ProjectBody{
					Name: "proj", LabelSchema: []string{"cat", "dog"},
					BatchSize: 1, Epoch: 0, MaxEpochs: 10,
					Strategy: scoring.Margin, TrainingSet: domain.Cumulative,
					Status: domain.Idle,
				},
				Live: &domain.AnnotationProject{Ref: "ls-stale"},
			},
			items:        []string{"item-a"},
			createdRef:   "ls-5",
			createdSince: since,
		},
		Then{
			change: domain.ProjectChange{
				NextStatus: domain.Dispatched, Epoch: 0,
				RetireLive: true,
			},
			wantBatch:     []string{"item-a"},
			wantPredicted: false,
		},
	))
}

func TestMachine_Dispatch_collaboratorFailures(t *testing.T) {
	ctx := context.Background()

	project := domain.Project{
		ProjectBody: domain.ProjectBody{
			Name: "proj", LabelSchema: []string{"cat", "dog"},
			BatchSize: 1, Epoch: 0, MaxEpochs: 10,
			Strategy: scoring.LeastConfidence, TrainingSet: domain.Cumulative,
			Status: domain.Idle,
		},
	}

	t.Run("when storage fails, the project is left unchanged", func(t *testing.T) {
		wantErr := errors.New("fake storage error")
		storage := storagemock.New()
		storage.Impl.ListItems = func(ctx context.Context) ([]string, error) {
			return nil, wantErr
		}

		testee := epoch.New(annomock.New(), trainermock.New(), storage)

		change, err := testee.Dispatch(ctx, project)
		if !errors.Is(err, wantErr) {
			t.Errorf("unexpected error: %+v", err)
		}
		if !change.Equal(domain.Unchanged(project)) {
			t.Errorf("change is not no-op: %+v", change)
		}
	})

	t.Run("when the annotation tool fails, the project is left unchanged", func(t *testing.T) {
		storage := storagemock.New()
		storage.Impl.ListItems = func(ctx context.Context) ([]string, error) {
			return []string{"item-a"}, nil
		}

		wantErr := errors.New("fake tool error")
		tool := annomock.New()
		tool.Impl.CreateProject = func(ctx context.Context, spec annotation.ProjectSpec) (domain.AnnotationProject, error) {
			return domain.AnnotationProject{}, wantErr
		}

		testee := epoch.New(tool, trainermock.New(), storage)

		change, err := testee.Dispatch(ctx, project)
		if !errors.Is(err, wantErr) {
			t.Errorf("unexpected error: %+v", err)
		}
		if !change.Equal(domain.Unchanged(project)) {
			t.Errorf("change is not no-op: %+v", change)
		}
	})
}

func TestMachine_Collect(t *testing.T) {
	now := time.Date(2024, 10, 2, 9, 0, 0, 0, time.UTC)
	budget := 30 * time.Minute

	project := domain.Project{
		ProjectBody: domain.ProjectBody{
			Name: "proj", LabelSchema: []string{"cat", "dog"},
			BatchSize: 2, Epoch: 3, MaxEpochs: 10,
			Strategy: scoring.LeastConfidence, TrainingSet: domain.Cumulative,
			Status: domain.Dispatched,
		},
		Annotated: []domain.AnnotatedItem{
			{ItemId: "item-old", Label: "cat", Epoch: 1},
		},
		Live: &domain.AnnotationProject{
			Ref: "ls-42", Title: "proj_epoch_3", Items: []string{"item-a", "item-b"},
		},
	}

	newMachine := func(tool *annomock.Tool, trainer *trainermock.Trainer) *epoch.Machine {
		return epoch.New(
			tool, trainer, storagemock.New(),
			epoch.WithTrainingBudget(budget),
			epoch.WithClock(fixedClock(now)),
		)
	}

	t.Run("when the reported count does not match the batch size, nothing happens", func(t *testing.T) {
		ctx := context.Background()
		tool := annomock.New()
		trainer := trainermock.New()
		testee := newMachine(tool, trainer)

		for _, reported := range []int{0, 1, 3} {
			change, err := testee.Collect(ctx, project, reported)
			if !errors.Is(err, epoch.ErrBatchNotComplete) {
				t.Errorf("reported=%d: unexpected error: %+v", reported, err)
			}
			if !change.Equal(domain.Unchanged(project)) {
				t.Errorf("reported=%d: change is not no-op: %+v", reported, change)
			}
		}
		if tool.Calls.Completed.Times() != 0 {
			t.Error("annotations are pulled for an incomplete batch")
		}
		if trainer.Calls.Train.Times() != 0 {
			t.Error("training is triggered for an incomplete batch")
		}
	})

	t.Run("when no live remote project exists, it errors without side effects", func(t *testing.T) {
		ctx := context.Background()
		testee := newMachine(annomock.New(), trainermock.New())

		broken := project
		broken.Live = nil

		change, err := testee.Collect(ctx, broken, broken.BatchSize)
		if !errors.Is(err, epoch.ErrNoLiveProject) {
			t.Errorf("unexpected error: %+v", err)
		}
		if !change.Equal(domain.Unchanged(broken)) {
			t.Errorf("change is not no-op: %+v", change)
		}
	})

	t.Run("when the batch is complete, it collects annotations and starts training", func(t *testing.T) {
		ctx := context.Background()

		tool := annomock.New()
		tool.Impl.Completed = func(ctx context.Context, ref string) ([]domain.AnnotatedItem, error) {
			if ref != "ls-42" {
				t.Errorf("annotations are pulled from unexpected project: %s", ref)
			}
			return []domain.AnnotatedItem{
				{ItemId: "item-a", Label: "cat"},
				{ItemId: "item-b", Label: "dog"},
			}, nil
		}

		trainer := trainermock.New()
		trainer.Impl.Train = func(ctx context.Context, dataset model.Dataset) error {
			want := model.Dataset{
				"cat": {"item-old", "item-a"},
				"dog": {"item-b"},
			}
			if len(dataset) != len(want) {
				t.Errorf("dataset: actual=%+v, expect=%+v", dataset, want)
			}
			for label, items := range want {
				if !cmp.SliceContentEq(dataset[label], items) {
					t.Errorf(
						"dataset[%s]: actual=%v, expect=%v",
						label, dataset[label], items,
					)
				}
			}
			return nil
		}

		testee := newMachine(tool, trainer)

		change, err := testee.Collect(ctx, project, project.BatchSize)
		if err != nil {
			t.Fatal(err)
		}

		deadline := now.Add(budget)
		want := domain.ProjectChange{
			NextStatus: domain.Training,
			Epoch:      4,
			NewAnnotations: []domain.AnnotatedItem{
				{ItemId: "item-a", Label: "cat", Epoch: 3},
				{ItemId: "item-b", Label: "dog", Epoch: 3},
			},
			TrainingDeadline: &deadline,
		}
		if !change.Equal(want) {
			t.Errorf(
				"change:\n===actual===\n%+v\n===expected===\n%+v",
				change, want,
			)
		}
		if trainer.Calls.Train.Times() != 1 {
			t.Errorf("Train is called %d times (expected: 1)", trainer.Calls.Train.Times())
		}
	})

	t.Run("with newest policy, only the fresh batch feeds training", func(t *testing.T) {
		ctx := context.Background()

		tool := annomock.New()
		tool.Impl.Completed = func(ctx context.Context, ref string) ([]domain.AnnotatedItem, error) {
			return []domain.AnnotatedItem{
				{ItemId: "item-a", Label: "cat"},
				{ItemId: "item-b", Label: "dog"},
			}, nil
		}

		trainer := trainermock.New()
		trainer.Impl.Train = func(ctx context.Context, dataset model.Dataset) error {
			items := slices.Concat(dataset["cat"], dataset["dog"])
			if cmp.SliceContains(items, []string{"item-old"}) {
				t.Errorf("stale annotations leak into a newest-policy dataset: %+v", dataset)
			}
			if !cmp.SliceContentEq(items, []string{"item-a", "item-b"}) {
				t.Errorf("dataset does not carry the fresh batch: %+v", dataset)
			}
			return nil
		}

		newest := project
		newest.TrainingSet = domain.Newest
		testee := newMachine(tool, trainer)

		if _, err := testee.Collect(ctx, newest, newest.BatchSize); err != nil {
			t.Fatal(err)
		}
	})

	t.Run("duplicated annotations for an item collapse to the last one", func(t *testing.T) {
		ctx := context.Background()

		tool := annomock.New()
		tool.Impl.Completed = func(ctx context.Context, ref string) ([]domain.AnnotatedItem, error) {
			return []domain.AnnotatedItem{
				{ItemId: "item-a", Label: "cat"},
				{ItemId: "item-b", Label: "dog"},
				{ItemId: "item-a", Label: "dog"}, // re-annotated
			}, nil
		}

		trainer := trainermock.New()
		trainer.Impl.Train = func(ctx context.Context, dataset model.Dataset) error {
			return nil
		}

		testee := newMachine(tool, trainer)

		change, err := testee.Collect(ctx, project, project.BatchSize)
		if err != nil {
			t.Fatal(err)
		}

		want := []domain.AnnotatedItem{
			{ItemId: "item-a", Label: "dog", Epoch: 3},
			{ItemId: "item-b", Label: "dog", Epoch: 3},
		}
		if !cmp.SliceContentEqWith(
			change.NewAnnotations, want,
			func(a, b domain.AnnotatedItem) bool { return a.Equal(&b) },
		) {
			t.Errorf(
				"new annotations: actual=%+v, expect=%+v",
				change.NewAnnotations, want,
			)
		}
	})

	t.Run("when the backend is busy, the transition is retryable", func(t *testing.T) {
		ctx := context.Background()

		tool := annomock.New()
		tool.Impl.Completed = func(ctx context.Context, ref string) ([]domain.AnnotatedItem, error) {
			return []domain.AnnotatedItem{
				{ItemId: "item-a", Label: "cat"},
				{ItemId: "item-b", Label: "dog"},
			}, nil
		}

		trainer := trainermock.New()
		trainer.Impl.Train = func(ctx context.Context, dataset model.Dataset) error {
			return model.ErrBusy
		}

		testee := newMachine(tool, trainer)

		change, err := testee.Collect(ctx, project, project.BatchSize)
		if !errors.Is(err, model.ErrBusy) {
			t.Errorf("unexpected error: %+v", err)
		}
		if !change.Equal(domain.Unchanged(project)) {
			t.Errorf("change is not no-op: %+v", change)
		}
	})

	t.Run("when pulling annotations fails, the project is left unchanged", func(t *testing.T) {
		ctx := context.Background()

		wantErr := errors.New("fake tool error")
		tool := annomock.New()
		tool.Impl.Completed = func(ctx context.Context, ref string) ([]domain.AnnotatedItem, error) {
			return nil, wantErr
		}

		trainer := trainermock.New()
		testee := newMachine(tool, trainer)

		change, err := testee.Collect(ctx, project, project.BatchSize)
		if !errors.Is(err, wantErr) {
			t.Errorf("unexpected error: %+v", err)
		}
		if !change.Equal(domain.Unchanged(project)) {
			t.Errorf("change is not no-op: %+v", change)
		}
		if trainer.Calls.Train.Times() != 0 {
			t.Error("training is triggered although annotations were not pulled")
		}
	})
}

func TestMachine_WatchTraining(t *testing.T) {
	now := time.Date(2024, 10, 3, 15, 0, 0, 0, time.UTC)

	type When struct {
		project domain.Project
		status  model.Status
		items   []string
	}

	type Then struct {
		change domain.ProjectChange
	}

	theory := func(when When, then Then) func(*testing.T) {
		return func(t *testing.T) {
			ctx := context.Background()

			storage := storagemock.New()
			storage.Impl.ListItems = func(ctx context.Context) ([]string, error) {
				return when.items, nil
			}

			trainer := trainermock.New()
			trainer.Impl.Status = func(ctx context.Context) (model.Status, error) {
				return when.status, nil
			}

			testee := epoch.New(
				annomock.New(), trainer, storage,
				epoch.WithClock(fixedClock(now)),
			)

			change, err := testee.WatchTraining(ctx, when.project)
			if err != nil {
				t.Fatal(err)
			}
			if !change.Equal(then.change) {
				t.Errorf(
					"change:\n===actual===\n%+v\n===expected===\n%+v",
					change, then.change,
				)
			}
		}
	}

	base := domain.ProjectBody{
		Name: "proj", LabelSchema: []string{"cat", "dog"},
		BatchSize: 2, Epoch: 3, MaxEpochs: 10,
		Strategy: scoring.LeastConfidence, TrainingSet: domain.Cumulative,
		Status: domain.Training,
	}

	t.Run("while the backend trains within the deadline, it stays put keeping the deadline", theory(
		When{
			project: domain.Project{
				ProjectBody:      base,
				TrainingDeadline: ref(now.Add(10 * time.Minute)),
			},
			status: model.Status{State: model.InTraining, Version: 3},
		},
		Then{
			change: domain.ProjectChange{
				NextStatus: domain.Training, Epoch: 3,
				TrainingDeadline: ref(now.Add(10 * time.Minute)),
			},
		},
	))

	t.Run("when the deadline passes while still training, it stalls", theory(
		When{
			project: domain.Project{
				ProjectBody:      base,
				TrainingDeadline: ref(now.Add(-1 * time.Minute)),
			},
			status: model.Status{State: model.InTraining, Version: 3},
		},
		Then{
			change: domain.ProjectChange{NextStatus: domain.Stalled, Epoch: 3},
		},
	))

	t.Run("when training ends and epochs remain, it goes idle for the next batch", theory(
		When{
			project: domain.Project{
				ProjectBody:      base,
				TrainingDeadline: ref(now.Add(10 * time.Minute)),
			},
			status: model.Status{State: model.Idle, Version: 4},
			items:  []string{"item-a", "item-b"},
		},
		Then{
			change: domain.ProjectChange{NextStatus: domain.Idle, Epoch: 3},
		},
	))

	t.Run("when the epoch budget is spent, it finishes keeping the epoch counter", theory(
		When{
			project: domain.Project{
				ProjectBody: func() domain.ProjectBody {
					b := base
					b.Epoch = 10 // == MaxEpochs
					return b
				}(),
				Live:             &domain.AnnotationProject{Ref: "ls-9"},
				TrainingDeadline: ref(now.Add(10 * time.Minute)),
			},
			status: model.Status{State: model.Idle, Version: 10},
			items:  []string{"item-a", "item-b"},
		},
		Then{
			change: domain.ProjectChange{
				NextStatus: domain.Finished, Epoch: 10,
				RetireLive: true, ResetProgress: true,
			},
		},
	))

	t.Run("when no candidates remain after training, it finishes early", theory(
		When{
			project: domain.Project{
				ProjectBody: base,
				Annotated: []domain.AnnotatedItem{
					{ItemId: "item-a", Label: "cat", Epoch: 1},
					{ItemId: "item-b", Label: "dog", Epoch: 2},
				},
				TrainingDeadline: ref(now.Add(10 * time.Minute)),
			},
			status: model.Status{State: model.Idle, Version: 4},
			items:  []string{"item-a", "item-b"},
		},
		Then{
			change: domain.ProjectChange{
				NextStatus: domain.Finished, Epoch: 3,
				ResetProgress: true,
			},
		},
	))

	t.Run("the deadline survives stay-put watches, so the project stalls past it", func(t *testing.T) {
		ctx := context.Background()

		trainer := trainermock.New()
		trainer.Impl.Status = func(ctx context.Context) (model.Status, error) {
			return model.Status{State: model.InTraining, Version: 3}, nil
		}

		current := now
		testee := epoch.New(
			annomock.New(), trainer, storagemock.New(),
			epoch.WithClock(func() time.Time { return current }),
		)

		deadline := now.Add(10 * time.Minute)
		project := domain.Project{
			ProjectBody:      base,
			TrainingDeadline: &deadline,
		}

		change, err := testee.WatchTraining(ctx, project)
		if err != nil {
			t.Fatal(err)
		}
		if change.TrainingDeadline == nil || !change.TrainingDeadline.Equal(deadline) {
			t.Fatalf("the stay-put change drops the deadline: %+v", change)
		}

		// apply the change the way the project store does: every field of
		// the record takes effect, the deadline included.
		project.Status = change.NextStatus
		project.Epoch = change.Epoch
		project.TrainingDeadline = change.TrainingDeadline

		current = deadline.Add(1 * time.Minute)
		change, err = testee.WatchTraining(ctx, project)
		if err != nil {
			t.Fatal(err)
		}
		if change.NextStatus != domain.Stalled {
			t.Errorf(
				"the project does not stall past its deadline: status=%s, deadline=%v",
				change.NextStatus, change.TrainingDeadline,
			)
		}
	})

	t.Run("when the status probe fails, the project is left unchanged", func(t *testing.T) {
		ctx := context.Background()

		wantErr := errors.New("fake backend error")
		trainer := trainermock.New()
		trainer.Impl.Status = func(ctx context.Context) (model.Status, error) {
			return model.Status{}, wantErr
		}

		testee := epoch.New(annomock.New(), trainer, storagemock.New())

		project := domain.Project{ProjectBody: base}
		change, err := testee.WatchTraining(ctx, project)
		if !errors.Is(err, wantErr) {
			t.Errorf("unexpected error: %+v", err)
		}
		if !change.Equal(domain.Unchanged(project)) {
			t.Errorf("change is not no-op: %+v", change)
		}
	})
}
