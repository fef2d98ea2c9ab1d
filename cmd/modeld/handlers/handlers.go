package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sort"

	"github.com/labstack/echo/v4"
	"github.com/opst/pickfab/pkg/domain/model"
)

// wire error body. The adapter on the pickfab side keys on status codes
// only; detail is for humans.
type Detail struct {
	Detail string `json:"detail"`
}

func detail(c echo.Context, code int, message string) error {
	return c.JSON(code, Detail{Detail: message})
}

type Predictor interface {
	Predict(ctx context.Context, item io.Reader) (map[string]float64, int, error)
}

type Prediction struct {
	Probabilities  map[string]float64 `json:"probabilities"`
	PredictedClass string             `json:"predicted_class"`
	ModelVersion   int                `json:"model_version"`
}

func PredictHandler(predictor Predictor) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		fh, err := c.FormFile("item")
		if err != nil {
			return detail(c, http.StatusBadRequest, `"item" file is required`)
		}
		item, err := fh.Open()
		if err != nil {
			return detail(c, http.StatusBadRequest, `"item" file can not be read`)
		}
		defer item.Close()

		probabilities, version, err := predictor.Predict(ctx, item)
		if err != nil {
			return detail(c, http.StatusInternalServerError, err.Error())
		}

		return c.JSON(http.StatusOK, Prediction{
			Probabilities:  probabilities,
			PredictedClass: predictedClass(probabilities),
			ModelVersion:   version,
		})
	}
}

// the most probable class. Ties break to the lexicographically smallest
// name, so the answer is deterministic.
func predictedClass(probabilities map[string]float64) string {
	classes := make([]string, 0, len(probabilities))
	for class := range probabilities {
		classes = append(classes, class)
	}
	sort.Strings(classes)

	predicted := ""
	best := 0.0
	for _, class := range classes {
		if p := probabilities[class]; best < p {
			predicted, best = class, p
		}
	}
	return predicted
}

type Trainer interface {
	Train(ctx context.Context, dataset io.Reader, onDone func(error)) error
}

// TrainHandler accepts a tar.gz dataset upload and starts training.
//
// onDone receives the training job's outcome when it settles; modeld logs
// it there.
func TrainHandler(trainer Trainer, onDone func(error)) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		fh, err := c.FormFile("dataset")
		if err != nil {
			return detail(c, http.StatusBadRequest, `"dataset" file is required`)
		}
		dataset, err := fh.Open()
		if err != nil {
			return detail(c, http.StatusBadRequest, `"dataset" file can not be read`)
		}
		defer dataset.Close()

		if err := trainer.Train(ctx, dataset, onDone); err != nil {
			if errors.Is(err, model.ErrBusy) {
				return detail(c, http.StatusConflict, "Training already in progress")
			}
			return detail(c, http.StatusInternalServerError, err.Error())
		}

		return c.JSON(http.StatusAccepted, map[string]string{"status": "accepted"})
	}
}

type Prober interface {
	Status(ctx context.Context) (model.Status, error)
}

type StatusResponse struct {
	Status       string `json:"status"`
	ModelVersion int    `json:"model_version"`
}

func StatusHandler(prober Prober) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		status, err := prober.Status(ctx)
		if err != nil {
			return detail(c, http.StatusInternalServerError, err.Error())
		}

		return c.JSON(http.StatusOK, StatusResponse{
			Status:       status.State.String(),
			ModelVersion: status.Version,
		})
	}
}

type Configurer interface {
	Setup(ctx context.Context, classes []string) error
}

func SetupHandler(configurer Configurer) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		spec := struct {
			Classes []string `json:"classes"`
		}{}
		if err := c.Bind(&spec); err != nil {
			return detail(c, http.StatusBadRequest, "the request body should be a setup spec")
		}
		if len(spec.Classes) == 0 {
			return detail(c, http.StatusBadRequest, `"classes" is required`)
		}

		if err := configurer.Setup(ctx, spec.Classes); err != nil {
			return detail(c, http.StatusInternalServerError, err.Error())
		}

		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	}
}

func HealthHandler() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	}
}
