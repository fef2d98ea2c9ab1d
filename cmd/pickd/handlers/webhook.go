package handlers

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	apiprojects "github.com/opst/pickfab-api-types/projects"
	apierr "github.com/opst/pickfab/pkg/api-types-binding/errors"
	"github.com/opst/pickfab/pkg/domain/epoch"
)

// Header carrying the keychain-signed token registered with the webhook.
const WebhookTokenHeader = "X-Pickfab-Token"

// TokenVerifier checks the token of an inbound webhook delivery.
type TokenVerifier func(ctx context.Context, token string) error

// BatchSignalHandler routes a verified batch signal into the loop.
//
// epoch.Controller satisfies this.
type BatchSignalHandler interface {
	HandleBatchSignal(ctx context.Context, remoteRef string, reported int) (epoch.SignalOutcome, error)
}

func AnnotationWebhookHandler(
	verify TokenVerifier,
	controller BatchSignalHandler,
) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Response().Header().Add("Content-Type", "application/json")
		ctx := c.Request().Context()

		token := c.Request().Header.Get(WebhookTokenHeader)
		if token == "" {
			return apierr.Unauthorized("token is missing", nil)
		}
		if err := verify(ctx, token); err != nil {
			return apierr.Unauthorized("token is invalid", err)
		}

		signal := apiprojects.BatchSignal{}
		if err := c.Bind(&signal); err != nil {
			return apierr.BadRequest("the request body should be a batch signal", err)
		}
		if signal.Ref == "" {
			return apierr.BadRequest(`"ref" is required`, nil)
		}

		outcome, err := controller.HandleBatchSignal(ctx, signal.Ref, signal.TotalAnnotations)
		if err != nil {
			return apierr.InternalServerError(err)
		}

		return c.JSON(http.StatusOK, apiprojects.SignalResponse{
			Outcome: string(outcome),
		})
	}
}
