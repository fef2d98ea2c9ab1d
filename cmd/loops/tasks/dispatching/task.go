package dispatching

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
		Status:   []domain.ProjectStatus{domain.Idle},
		Debounce: 30 * time.Second,
	}
}

// Dispatcher produces the Idle -> Dispatched transition of a picked project.
//
// epoch.Machine satisfies this.
type Dispatcher interface {
	Dispatch(ctx context.Context, p domain.Project) (domain.ProjectChange, error)
}

// return:
//
// - task: pick an Idle project, select its next batch and ship it to the
// annotation tool.
func Task(
	projects projdb.Interface,
	machine Dispatcher,
) recurring.Task[domain.ProjectCursor] {
	return func(ctx context.Context, cursor domain.ProjectCursor) (domain.ProjectCursor, bool, error) {
		_cursor, applied, err := projects.PickAndSetStatus(
			ctx, cursor,
			func(p domain.Project) (domain.ProjectChange, error) {
				return machine.Dispatch(ctx, p)
			},
		)
		return _cursor, applied, err
	}
}
