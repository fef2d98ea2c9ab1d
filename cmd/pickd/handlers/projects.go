package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	apiprojects "github.com/opst/pickfab-api-types/projects"
	apierr "github.com/opst/pickfab/pkg/api-types-binding/errors"
	bindprojects "github.com/opst/pickfab/pkg/api-types-binding/projects"
	"github.com/opst/pickfab/pkg/domain"
	kerr "github.com/opst/pickfab/pkg/domain/errors"
	kpjdb "github.com/opst/pickfab/pkg/domain/project/db"
	"github.com/opst/pickfab/pkg/domain/scoring"
	kstrings "github.com/opst/pickfab/pkg/utils/strings"
)

func RegisterProjectHandler(dbProject kpjdb.Interface) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Response().Header().Add("Content-Type", "application/json")
		ctx := c.Request().Context()

		spec := apiprojects.RegisterSpec{}
		if err := c.Bind(&spec); err != nil {
			return apierr.BadRequest("the request body should be a project spec", err)
		}
		if spec.Name == "" {
			return apierr.BadRequest(`"name" is required`, nil)
		}
		if len(spec.LabelSchema) == 0 {
			return apierr.BadRequest(
				`"labelSchema" is required; this system needs the class list concluded at registration`,
				nil,
			)
		}

		if spec.Strategy == "" {
			spec.Strategy = string(scoring.LeastConfidence)
		}
		strategy, err := scoring.AsStrategy(spec.Strategy)
		if err != nil {
			return apierr.BadRequest(
				`"strategy" should be one of "least_confidence", "entropy" or "margin"`,
				err,
			)
		}

		if spec.TrainingSet == "" {
			spec.TrainingSet = string(domain.Cumulative)
		}
		trainingSet, err := domain.AsTrainingSetPolicy(spec.TrainingSet)
		if err != nil {
			return apierr.BadRequest(
				`"trainingSet" should be "cumulative" or "newest"`,
				err,
			)
		}

		project := domain.Project{
			ProjectBody: domain.ProjectBody{
				Name:        spec.Name,
				LabelSchema: spec.LabelSchema,
				BatchSize:   spec.BatchSize,
				MaxEpochs:   spec.MaxEpochs,
				Strategy:    strategy,
				TrainingSet: trainingSet,
				Status:      domain.Deactivated,
			},
		}

		if err := dbProject.Register(ctx, project); err != nil {
			if errors.Is(err, domain.ErrProjectAlreadyExists) {
				return apierr.Conflict(
					"project name is taken",
					apierr.WithError(err),
				)
			}
			if errors.Is(err, domain.ErrInvalidProject) {
				return apierr.BadRequest("invalid project spec", err)
			}
			return apierr.InternalServerError(err)
		}

		registered, err := dbProject.Get(ctx, []string{spec.Name})
		if err != nil {
			return apierr.InternalServerError(err)
		}
		p, ok := registered[spec.Name]
		if !ok {
			return apierr.NotFound()
		}

		return c.JSON(http.StatusOK, bindprojects.ComposeDetail(p))
	}
}

func FindProjectHandler(dbProject kpjdb.Interface) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Response().Header().Add("Content-Type", "application/json")
		ctx := c.Request().Context()

		query := domain.ProjectFindQuery{
			Name: kstrings.SplitIfNotEmpty(c.QueryParam("name"), ","),
		}
		for _, s := range kstrings.SplitIfNotEmpty(c.QueryParam("status"), ",") {
			status, err := domain.AsProjectStatus(s)
			if err != nil {
				return apierr.BadRequest(
					`"status" should be one of "deactivated", "idle", "dispatched", "training", "stalled" or "finished"`,
					err,
				)
			}
			query.Status = append(query.Status, status)
		}

		names, err := dbProject.Find(ctx, query)
		if err != nil {
			return apierr.InternalServerError(err)
		}

		found, err := dbProject.Get(ctx, names)
		if err != nil {
			return apierr.InternalServerError(err)
		}

		resp := make([]apiprojects.Detail, 0, len(found))
		for _, name := range names {
			resp = append(resp, bindprojects.ComposeDetail(found[name]))
		}

		return c.JSON(http.StatusOK, resp)
	}
}

func GetProjectHandler(dbProject kpjdb.Interface, paramProjectName string) echo.HandlerFunc {
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

		return c.JSON(http.StatusOK, bindprojects.ComposeDetail(p))
	}
}

func DeleteProjectHandler(dbProject kpjdb.Interface, paramProjectName string) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Response().Header().Add("Content-Type", "application/json")
		ctx := c.Request().Context()
		name := c.Param(paramProjectName)

		if err := dbProject.Delete(ctx, name); err != nil {
			if errors.Is(err, kerr.ErrMissing) {
				return apierr.NotFound()
			}
			if errors.Is(err, domain.ErrProjectIsActive) {
				return apierr.Conflict(
					"the project's loop is running",
					apierr.WithError(err),
					apierr.WithAdvice("Wait for the loop to finish, or it will keep dispatching batches"),
				)
			}
			return apierr.InternalServerError(err)
		}

		c.Response().WriteHeader(http.StatusNoContent)
		return nil
	}
}
