package http

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vectorstored/internal/errdefs"
)

// ErrorBody is the payload of every error response.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the machine-readable code and a message.
type ErrorDetail struct {
	Code    errdefs.Code `json:"code"`
	Message string       `json:"message"`
}

// statusOf maps an error code onto an HTTP status.
func statusOf(code errdefs.Code) int {
	switch code {
	case errdefs.CodeConfiguration:
		return http.StatusBadRequest
	case errdefs.CodeUnsupportedInput:
		return http.StatusUnsupportedMediaType
	case errdefs.CodeNotFound:
		return http.StatusNotFound
	case errdefs.CodeModelLoad:
		return http.StatusServiceUnavailable
	case errdefs.CodeEmbedding:
		return http.StatusBadGateway
	case errdefs.CodeCancelled, errdefs.CodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// codeOfStatus classifies errors raised by echo itself.
func codeOfStatus(status int) errdefs.Code {
	switch {
	case status == http.StatusNotFound || status == http.StatusMethodNotAllowed:
		return errdefs.CodeNotFound
	case status < http.StatusInternalServerError:
		return errdefs.CodeConfiguration
	default:
		return errdefs.CodeInternal
	}
}

func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	ctx := c.Request().Context()

	var (
		status int
		detail ErrorDetail
		he     *echo.HTTPError
	)
	if errors.As(err, &he) {
		status = he.Code
		detail = ErrorDetail{Code: codeOfStatus(status), Message: fmt.Sprint(he.Message)}
	} else {
		detail = ErrorDetail{Code: errdefs.CodeOf(err), Message: err.Error()}
		status = statusOf(detail.Code)
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error(ctx, "request failed", zap.String("code", string(detail.Code)), zap.Error(err))
	}
	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.JSON(status, ErrorBody{Error: detail})
	}
	if err != nil {
		s.logger.Warn(ctx, "writing error response failed", zap.Error(err))
	}
}

// badRequest wraps a binding failure as a configuration error.
func badRequest(err error) error {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return errdefs.Configuration("invalid request: %v", he.Message)
	}
	return errdefs.Configuration("invalid request: %v", err)
}
