package epoch

import (
	"context"
	"errors"
	"fmt"

	"github.com/opst/pickfab/pkg/domain"
	kerr "github.com/opst/pickfab/pkg/domain/errors"
	"github.com/opst/pickfab/pkg/domain/model"
	projdb "github.com/opst/pickfab/pkg/domain/project/db"
)

// SignalOutcome reports how a batch-complete signal was handled.
type SignalOutcome string

const (
	// the batch was complete and collection fired.
	SignalAccepted SignalOutcome = "accepted"

	// the reported count does not match the batch size, or the ML backend
	// cannot accept training yet; nothing happened. The collecting loop
	// retries.
	SignalNotComplete SignalOutcome = "not-complete"

	// no Dispatched project owns the signaled remote project; nothing happened.
	SignalIgnored SignalOutcome = "ignored"
)

// Controller receives external events for the active-learning loop: starting
// (or resuming) a project's run, and the annotation tool's batch-complete
// webhook.
//
// Everything else happens in the recurring loops, which drive Machine through
// the project database's pick-and-set operations.
type Controller struct {
	projects projdb.Interface
	machine  *Machine
}

func NewController(projects projdb.Interface, machine *Machine) *Controller {
	return &Controller{projects: projects, machine: machine}
}

// Start activates the active-learning loop of the named project.
//
// Start is idempotent against double delivery: a project already running
// (Idle, Dispatched or Training) is left untouched and no error is returned.
// A Deactivated project announces its label schema to the ML backend, then
// transits to Idle, which the dispatching loop picks up; a Finished project
// restarts without re-announcing. A Stalled project resumes watching with a
// fresh deadline.
func (c *Controller) Start(ctx context.Context, name string) error {
	projects, err := c.projects.Get(ctx, []string{name})
	if err != nil {
		return err
	}
	p, ok := projects[name]
	if !ok {
		return fmt.Errorf("%w: project %s", kerr.ErrMissing, name)
	}

	switch p.Status {
	case domain.Idle, domain.Dispatched, domain.Training:
		// already running; re-attach is a no-op.
		return nil
	case domain.Deactivated:
		// the backend needs the class list before the first epoch runs.
		if err := c.machine.trainer.Setup(ctx, p.LabelSchema); err != nil {
			return err
		}
		return c.projects.SetStatus(ctx, name, domain.Idle)
	case domain.Finished:
		return c.projects.SetStatus(ctx, name, domain.Idle)
	case domain.Stalled:
		deadline := c.machine.now().Add(c.machine.trainingBudget)
		if err := c.projects.SetTrainingDeadline(ctx, name, deadline); err != nil {
			return err
		}
		return c.projects.SetStatus(ctx, name, domain.Training)
	default:
		return domain.NewErrInvalidProjectStateChanging(p.Status, domain.Idle)
	}
}

// HandleBatchSignal processes the annotation tool's batch-complete webhook.
//
// remoteRef is the tool-side project the signal is about; reported is the
// annotation count the signal carries. The Dispatched project owning
// remoteRef is row-locked, so duplicate concurrent signals serialize and the
// losers are ignored. A signal for an unknown or non-Dispatched remote
// project is ignored, not an error: the collecting loop is the safety net.
// An incomplete batch and a busy ML backend are likewise absorbed as
// SignalNotComplete, the same way the collecting loop absorbs them.
func (c *Controller) HandleBatchSignal(ctx context.Context, remoteRef string, reported int) (SignalOutcome, error) {
	outcome := SignalIgnored
	applied, err := c.projects.PickBySignal(
		ctx, remoteRef,
		func(p domain.Project) (domain.ProjectChange, error) {
			change, err := c.machine.Collect(ctx, p, reported)
			if errors.Is(err, ErrBatchNotComplete) || errors.Is(err, model.ErrBusy) {
				outcome = SignalNotComplete
				return domain.Unchanged(p), nil
			}
			return change, err
		},
	)
	if err != nil {
		return SignalIgnored, err
	}
	if applied && outcome == SignalIgnored {
		outcome = SignalAccepted
	}
	return outcome, nil
}
