package handlers

import (
	"errors"
	"net/http"

	"commhub/internal/apperr"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// ErrorResponse is the JSON body of every failed request
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// ErrorHandler renders echo and application errors as JSON
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg, ok := he.Message.(string)
		if !ok {
			msg = http.StatusText(he.Code)
		}
		writeError(c, he.Code, ErrorResponse{Error: msg})
		return
	}

	status := apperr.HTTPStatus(err)
	body := ErrorResponse{Error: err.Error(), Kind: string(apperr.KindOf(err))}
	if status >= http.StatusInternalServerError && !apperr.Is(err, apperr.KindProviderTemporary) && !apperr.Is(err, apperr.KindProviderPermanent) {
		zerolog.Ctx(c.Request().Context()).Error().Err(err).
			Str("method", c.Request().Method).
			Str("path", c.Path()).
			Msg("Request failed")
		body.Error = "Internal server error"
	}
	writeError(c, status, body)
}

func writeError(c echo.Context, status int, body ErrorResponse) {
	var err error
	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.JSON(status, body)
	}
	if err != nil {
		zerolog.Ctx(c.Request().Context()).Warn().Err(err).Msg("Failed to write error response")
	}
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg, Kind: string(apperr.KindValidation)})
}
