package training

import (
	"context"
	"time"

	"github.com/opst/pickfab/cmd/loops/recurring"
	"github.com/opst/pickfab/pkg/domain"
	projdb "github.com/opst/pickfab/pkg/domain/project/db"
)

// initial value for task
func Seed() domain.ProjectCursor {
	return domain.ProjectCursor{
		Status:   []domain.ProjectStatus{domain.Training},
		Debounce: 30 * time.Second,
	}
}

// Watcher probes the Training state of a picked project: back to Idle when
// the backend finished, Finished when the run is over, Stalled past the
// deadline.
//
// epoch.Machine satisfies this.
type Watcher interface {
	WatchTraining(ctx context.Context, p domain.Project) (domain.ProjectChange, error)
}

// return:
//
// - task: pick a Training project and probe the ML backend for completion.
func Task(
	projects projdb.Interface,
	machine Watcher,
) recurring.Task[domain.ProjectCursor] {
	return func(ctx context.Context, cursor domain.ProjectCursor) (domain.ProjectCursor, bool, error) {
		_cursor, applied, err := projects.PickAndSetStatus(
			ctx, cursor,
			func(p domain.Project) (domain.ProjectChange, error) {
				return machine.WatchTraining(ctx, p)
			},
		)
		return _cursor, applied, err
	}
}
