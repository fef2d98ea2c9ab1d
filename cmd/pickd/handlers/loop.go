package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	apiprojects "github.com/opst/pickfab-api-types/projects"
	apierr "github.com/opst/pickfab/pkg/api-types-binding/errors"
	bindprojects "github.com/opst/pickfab/pkg/api-types-binding/projects"
	"github.com/opst/pickfab/pkg/domain"
	kerr "github.com/opst/pickfab/pkg/domain/errors"
	kpjdb "github.com/opst/pickfab/pkg/domain/project/db"
)

// LoopStarter activates (or resumes) the active-learning loop of a project.
//
// epoch.Controller satisfies this.
type LoopStarter interface {
	Start(ctx context.Context, name string) error
}

func StartLoopHandler(
	dbProject kpjdb.Interface,
	controller LoopStarter,
	paramProjectName string,
) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Response().Header().Add("Content-Type", "application/json")
		ctx := c.Request().Context()
		name := c.Param(paramProjectName)

		found, err := dbProject.Get(ctx, []string{name})
		if err != nil {
			return apierr.InternalServerError(err)
		}
		p, ok := found[name]
		if !ok {
			return apierr.NotFound()
		}

		outcome := "started"
		if p.Status.Active() {
			outcome = "attached"
		}

		if err := controller.Start(ctx, name); err != nil {
			if errors.Is(err, kerr.ErrMissing) {
				return apierr.NotFound()
			}
			if errors.Is(err, domain.ErrInvalidProjectStateChanging) {
				return apierr.Conflict("prohibited operation", apierr.WithError(err))
			}
			return apierr.InternalServerError(err)
		}

		started, err := dbProject.Get(ctx, []string{name})
		if err != nil {
			return apierr.InternalServerError(err)
		}
		if p, ok := started[name]; ok {
			return c.JSON(http.StatusOK, apiprojects.LoopResponse{
				Outcome: outcome,
				Project: bindprojects.ComposeDetail(p),
			})
		}
		return apierr.NotFound()
	}
}

// RetryTrainingHandler resumes the training watch of a stalled project.
//
// Only Stalled projects can be retried; anything else conflicts.
func RetryTrainingHandler(
	dbProject kpjdb.Interface,
	controller LoopStarter,
	paramProjectName string,
) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Response().Header().Add("Content-Type", "application/json")
		ctx := c.Request().Context()
		name := c.Param(paramProjectName)

		found, err := dbProject.Get(ctx, []string{name})
		if err != nil {
			return apierr.InternalServerError(err)
		}
		p, ok := found[name]
		if !ok {
			return apierr.NotFound()
		}
		if p.Status != domain.Stalled {
			return apierr.Conflict(
				"the project is not stalled",
				apierr.WithAdvice("Only a stalled project can retry its training watch"),
			)
		}

		if err := controller.Start(ctx, name); err != nil {
			if errors.Is(err, kerr.ErrMissing) {
				return apierr.NotFound()
			}
			if errors.Is(err, domain.ErrInvalidProjectStateChanging) {
				return apierr.Conflict("prohibited operation", apierr.WithError(err))
			}
			return apierr.InternalServerError(err)
		}

		resumed, err := dbProject.Get(ctx, []string{name})
		if err != nil {
			return apierr.InternalServerError(err)
		}
		if p, ok := resumed[name]; ok {
			return c.JSON(http.StatusOK, bindprojects.ComposeDetail(p))
		}
		return apierr.NotFound()
	}
}
