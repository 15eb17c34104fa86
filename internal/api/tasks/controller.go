package tasks

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/mediaforge/mediaforge/internal/api/util"
	"github.com/mediaforge/mediaforge/internal/task"
)

type (
	StatusReader interface {
		Get(id uuid.UUID) (task.Task, error)
	}

	Cleaner interface {
		Remove(id uuid.UUID) error
	}

	Controller struct {
		reader  StatusReader
		cleaner Cleaner
	}
)

func New(reader StatusReader, cleaner Cleaner) *Controller {
	return &Controller{reader: reader, cleaner: cleaner}
}

func (controller *Controller) SetRoutes(eg *echo.Group) {
	eg.GET("/tasks/:id", controller.status)
	eg.GET("/tasks/:id/artifact", controller.artifact)
	eg.DELETE("/tasks/:id", controller.cleanup)
}

// status returns a point-in-time snapshot of the task; clients poll this
// endpoint at whatever cadence they like and will observe non-decreasing
// progress until a terminal state.
func (controller *Controller) status(ec echo.Context) error {
	id, err := uuid.Parse(ec.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "task id must be a UUID")
	}

	record, err := controller.reader.Get(id)
	if err != nil {
		return util.AsHTTPError(err)
	}

	return ec.JSON(http.StatusOK, NewStatusDto(record))
}

// artifact serves the finished file of a READY task as an attachment.
func (controller *Controller) artifact(ec echo.Context) error {
	id, err := uuid.Parse(ec.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "task id must be a UUID")
	}

	record, err := controller.reader.Get(id)
	if err != nil {
		return util.AsHTTPError(err)
	}
	if record.Status != task.READY || record.Result == nil {
		return echo.NewHTTPError(http.StatusConflict, "task has no artifact to serve yet")
	}

	return ec.Attachment(record.Result.Path, record.Result.DownloadName)
}

// cleanup is the explicit client-confirmed deletion path. Unknown IDs
// succeed; a task still in flight is rejected with Busy.
func (controller *Controller) cleanup(ec echo.Context) error {
	id, err := uuid.Parse(ec.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "task id must be a UUID")
	}

	if err := controller.cleaner.Remove(id); err != nil {
		return util.AsHTTPError(err)
	}

	return ec.NoContent(http.StatusNoContent)
}
