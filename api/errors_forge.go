package api

import (
	"errors"
	"net/http"

	"github.com/xraph/forge"

	"github.com/xraph/herald"
	"github.com/xraph/herald/endpoint"
)

// mapError converts Herald errors to Forge HTTP errors using the same
// status codes as the net/http handler.
func mapError(err error) error {
	var verr *endpoint.ValidationError
	switch {
	case errors.As(err, &verr):
		return forge.BadRequest(err.Error())
	case errors.Is(err, herald.ErrInvalidEvent):
		return forge.BadRequest(err.Error())
	case errors.Is(err, herald.ErrWebhookNotFound):
		return forge.NotFound(err.Error())
	case errors.Is(err, herald.ErrDeliveryNotFound):
		return forge.NotFound(err.Error())
	case errors.Is(err, herald.ErrNotSubscribed):
		return forge.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, herald.ErrNotDeadLettered):
		return forge.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, herald.ErrInvalidPayload):
		return forge.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, herald.ErrUnknownEventType):
		return forge.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, herald.ErrStopped):
		return forge.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	default:
		return forge.InternalError(err)
	}
}
