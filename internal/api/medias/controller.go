package medias

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/mediaforge/mediaforge/internal/api/util"
	"github.com/mediaforge/mediaforge/internal/asset"
	"github.com/mediaforge/mediaforge/internal/edit"
)

type (
	Editor interface {
		Process(assetID uuid.UUID, spec edit.Spec) (uuid.UUID, error)
	}

	AssetDto struct {
		ID           string `json:"id"`
		Duration     int    `json:"duration"`
		NeedsExtract bool   `json:"needs_extract"`
	}

	Controller struct {
		store  *asset.Store
		editor Editor
	}
)

func New(store *asset.Store, editor Editor) *Controller {
	return &Controller{store: store, editor: editor}
}

func (controller *Controller) SetRoutes(eg *echo.Group) {
	eg.POST("/upload", controller.upload)
	eg.POST("/assets/:id/process", controller.process)
}

// upload stores a multipart media file as a new asset, probing it for
// duration and stream layout.
func (controller *Controller) upload(ec echo.Context) error {
	header, err := ec.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "a 'file' form field is required")
	}

	content, err := header.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "uploaded file could not be opened")
	}
	defer content.Close()

	subject, err := controller.store.Save(header.Filename, content)
	if err != nil {
		return util.AsHTTPError(err)
	}

	return ec.JSON(http.StatusCreated, AssetDto{
		ID:           subject.ID.String(),
		Duration:     int(subject.Duration.Seconds()),
		NeedsExtract: subject.NeedsExtract,
	})
}

// process submits an audio edit of the asset and returns the task ID for
// polling. Spec violations are rejected here, synchronously, before any
// external process is spawned; a busy asset is rejected with Busy.
func (controller *Controller) process(ec echo.Context) error {
	assetID, err := uuid.Parse(ec.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "asset id must be a UUID")
	}

	var spec edit.Spec
	if err := ec.Bind(&spec); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	taskID, err := controller.editor.Process(assetID, spec)
	if err != nil {
		return util.AsHTTPError(err)
	}

	return ec.JSON(http.StatusAccepted, map[string]string{"task_id": taskID.String()})
}
