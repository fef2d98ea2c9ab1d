package collecting

import (
	"context"
	"errors"
	"time"

	"github.com/opst/pickfab/cmd/loops/recurring"
	"github.com/opst/pickfab/pkg/domain"
	"github.com/opst/pickfab/pkg/domain/annotation"
	"github.com/opst/pickfab/pkg/domain/epoch"
	"github.com/opst/pickfab/pkg/domain/model"
	projdb "github.com/opst/pickfab/pkg/domain/project/db"
)

// initial value for task
func Seed() domain.ProjectCursor {
	return domain.ProjectCursor{
		Status:   []domain.ProjectStatus{domain.Dispatched},
		Debounce: 30 * time.Second,
	}
}

// Collector produces the Dispatched -> Training transition of a picked
// project, given the annotation count the tool reports.
//
// epoch.Machine satisfies this.
type Collector interface {
	Collect(ctx context.Context, p domain.Project, reported int) (domain.ProjectChange, error)
}

// return:
//
// - task: pick a Dispatched project, poll the annotation tool's progress and
// collect the batch when it is complete.
//
// This polling is the safety net of the webhook: a missed or duplicated
// delivery converges here. An incomplete batch, and a busy ML backend, are
// absorbed as no-ops; the debounce window paces the re-poll.
func Task(
	projects projdb.Interface,
	tool annotation.Tool,
	machine Collector,
) recurring.Task[domain.ProjectCursor] {
	return func(ctx context.Context, cursor domain.ProjectCursor) (domain.ProjectCursor, bool, error) {
		_cursor, applied, err := projects.PickAndSetStatus(
			ctx, cursor,
			func(p domain.Project) (domain.ProjectChange, error) {
				if p.Live == nil {
					return domain.Unchanged(p), nil
				}

				reported, err := tool.Progress(ctx, p.Live.Ref)
				if err != nil {
					return domain.Unchanged(p), err
				}

				change, err := machine.Collect(ctx, p, reported)
				if errors.Is(err, epoch.ErrBatchNotComplete) || errors.Is(err, model.ErrBusy) {
					return domain.Unchanged(p), nil
				}
				return change, err
			},
		)
		return _cursor, applied, err
	}
}
