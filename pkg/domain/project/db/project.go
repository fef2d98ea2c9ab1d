package db

import (
	"context"
	"time"

	"github.com/opst/pickfab/pkg/domain"
)

type Interface interface {
	// Register creates a new project.
	//
	// The project starts Deactivated with epoch 0 and no annotations.
	//
	// Returns error when the name is taken or the body violates its
	// invariants (batch size > 0, max epochs > 0, non-empty label schema).
	Register(ctx context.Context, project domain.Project) error

	// find projects which the query matches.
	//
	// Returns found project names, ordered by name.
	Find(ctx context.Context, query domain.ProjectFindQuery) ([]string, error)

	// Retrieve Projects with their annotations and live remote handle.
	//
	// Args
	//
	// - context.Context
	//
	// - []string: project names
	//
	// Returns
	//
	// - map[string]domain.Project: mapping name->Project. Missing names are
	// simply absent from the map.
	//
	// - error
	Get(ctx context.Context, names []string) (map[string]domain.Project, error)

	// Delete a project and everything it owns.
	//
	// Its live remote annotation project, if any, is retired into garbage
	// so the housekeeping loop deletes it on the tool.
	//
	// Returns ErrProjectIsActive when the project's loop is running,
	// ErrMissing when no such project exists.
	Delete(ctx context.Context, name string) error

	// update project status.
	//
	// Only legal transitions are accepted (see ProjectStatus.Transitable).
	// Transiting from Finished to Idle also resets epoch to 0 and clears
	// the annotated-item set, so a finished project can be reused.
	//
	// Returns ErrInvalidProjectStateChanging for an illegal transition,
	// ErrMissing when no such project exists.
	SetStatus(ctx context.Context, name string, newStatus domain.ProjectStatus) error

	// update the deadline bounding the training watch.
	//
	// Returns ErrMissing when no such project exists.
	SetTrainingDeadline(ctx context.Context, name string, deadline time.Time) error

	// pick next project of cursor, and apply the ProjectChange returned by task.
	//
	// The picked project is row-locked for the duration of task; the change
	// (status, epoch, new annotations, live handle, garbage) is applied in
	// the same transaction. When task returns an error, everything rolls
	// back and the project stays at its pre-transition state.
	//
	// Args
	//
	// - context.Context
	//
	// - cursorFrom: initial ProjectCursor
	//
	// - task: state transition work occurring while the project is locked.
	//
	// Return
	//
	// - ProjectCursor: cursor pointing at the picked project.
	// If no project can be picked, the cursor is as it was passed.
	//
	// - bool: true only when a change was applied and saved in database.
	//
	// - error
	PickAndSetStatus(
		ctx context.Context,
		cursorFrom domain.ProjectCursor,
		task func(domain.Project) (domain.ProjectChange, error),
	) (domain.ProjectCursor, bool, error)

	// pick the Dispatched project owning the live remote annotation project
	// remoteRef, and apply the ProjectChange returned by task, as
	// PickAndSetStatus does.
	//
	// Duplicate concurrent signals serialize on the row lock; the loser
	// finds no Dispatched project holding remoteRef and is a no-op.
	//
	// Return
	//
	// - bool: true only when a project was picked and the change saved.
	//
	// - error
	PickBySignal(
		ctx context.Context,
		remoteRef string,
		task func(domain.Project) (domain.ProjectChange, error),
	) (bool, error)
}
