package util

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/mediaforge/mediaforge/internal/task"
)

// AsHTTPError maps a pipeline error onto an echo HTTP error, preserving the
// machine-readable taxonomy kind so clients can distinguish transient
// failures from input mistakes.
func AsHTTPError(err error) *echo.HTTPError {
	if errors.Is(err, task.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, errorBody(task.NotFound, "no task could be found"))
	}

	var taskErr *task.Error
	if !errors.As(err, &taskErr) {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return echo.NewHTTPError(statusFor(taskErr.Kind), errorBody(taskErr.Kind, taskErr.Detail))
}

func statusFor(kind task.ErrorKind) int {
	switch kind {
	case task.NotFound, task.FormatNotFound:
		return http.StatusNotFound
	case task.Busy:
		return http.StatusConflict
	case task.InvalidEditSpec:
		return http.StatusUnprocessableEntity
	case task.InvalidSource, task.UnreachableSource:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func errorBody(kind task.ErrorKind, detail string) map[string]string {
	return map[string]string{"error": string(kind), "detail": detail}
}

// ApplyConversion maps a slice of models through the given conversion
// function, for handlers returning list DTOs.
func ApplyConversion[T any, D any](models []T, conversion func(T) D) []D {
	dtos := make([]D, len(models))
	for index, model := range models {
		dtos[index] = conversion(model)
	}

	return dtos
}
