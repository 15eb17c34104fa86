package downloads

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/mediaforge/mediaforge/internal/api/util"
	"github.com/mediaforge/mediaforge/internal/fetch"
	"github.com/mediaforge/mediaforge/internal/probe"
)

type (
	Prober interface {
		Probe(ctx context.Context, url string) (*probe.SourceInfo, error)
	}

	Fetcher interface {
		Fetch(url string, formatID string, kind fetch.MediaKind, options fetch.Options) (uuid.UUID, error)
	}

	AnalyzeRequest struct {
		URL string `json:"url" validate:"required,url"`
	}

	DownloadRequest struct {
		URL      string        `json:"url" validate:"required,url"`
		FormatID string        `json:"format_id" validate:"required"`
		Kind     string        `json:"kind" validate:"required,oneof=video audio"`
		Options  fetch.Options `json:"options"`
	}

	Controller struct {
		prober  Prober
		fetcher Fetcher
	}
)

func New(prober Prober, fetcher Fetcher) *Controller {
	return &Controller{prober: prober, fetcher: fetcher}
}

func (controller *Controller) SetRoutes(eg *echo.Group) {
	eg.POST("/analyze", controller.analyze)
	eg.POST("/download", controller.download)
}

// analyze probes the source URL and returns its metadata and selectable
// formats. Pure query; nothing is written and nothing is remembered.
func (controller *Controller) analyze(ec echo.Context) error {
	var request AnalyzeRequest
	if err := bindAndValidate(ec, &request); err != nil {
		return err
	}

	source, err := controller.prober.Probe(ec.Request().Context(), request.URL)
	if err != nil {
		return util.AsHTTPError(err)
	}

	return ec.JSON(http.StatusOK, NewSourceDto(source))
}

// download submits a fetch task and returns its ID for subsequent polling.
func (controller *Controller) download(ec echo.Context) error {
	var request DownloadRequest
	if err := bindAndValidate(ec, &request); err != nil {
		return err
	}

	taskID, err := controller.fetcher.Fetch(request.URL, request.FormatID, fetch.MediaKind(request.Kind), request.Options)
	if err != nil {
		return util.AsHTTPError(err)
	}

	return ec.JSON(http.StatusAccepted, map[string]string{"task_id": taskID.String()})
}

func bindAndValidate(ec echo.Context, request any) error {
	if err := ec.Bind(request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := ec.Validate(request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	return nil
}
