package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/mediaforge/mediaforge/internal/api/downloads"
	"github.com/mediaforge/mediaforge/internal/api/medias"
	"github.com/mediaforge/mediaforge/internal/api/tasks"
	"github.com/mediaforge/mediaforge/pkg/logger"
)

var log = logger.Get("HTTP")

type (
	Config struct {
		Host string `yaml:"host" env:"HOST_ADDR" env-default:"0.0.0.0"`
		Port string `yaml:"port" env:"HOST_PORT" env-default:"8080"`
	}

	// Gateway is the REST boundary of the pipeline. It owns no domain
	// behaviour: requests are bound, validated, and handed to the services;
	// task outcomes are only ever observed by polling the status endpoint.
	// The gateway is identity-agnostic; authentication is an external
	// concern layered in front of it.
	Gateway struct {
		config Config
		echo   *echo.Echo
	}

	requestValidator struct {
		validate *validator.Validate
	}
)

func (rv *requestValidator) Validate(request any) error {
	return rv.validate.Struct(request)
}

func NewGateway(
	config Config,
	downloadsController *downloads.Controller,
	mediasController *medias.Controller,
	tasksController *tasks.Controller,
) *Gateway {
	ec := echo.New()
	ec.HideBanner = true
	ec.HidePort = true
	ec.Validator = &requestValidator{validate: validator.New()}

	ec.Use(middleware.Recover())
	ec.Use(middleware.CORS())

	apiGroup := ec.Group("/api")
	downloadsController.SetRoutes(apiGroup)
	mediasController.SetRoutes(apiGroup)
	tasksController.SetRoutes(apiGroup)

	return &Gateway{config: config, echo: ec}
}

// Run starts the HTTP listener and blocks until the context is cancelled,
// at which point the server is drained and shut down.
func (gateway *Gateway) Run(ctx context.Context) error {
	address := fmt.Sprintf("%s:%s", gateway.config.Host, gateway.config.Port)

	errChannel := make(chan error, 1)
	go func() {
		log.Emit(logger.NEW, "Starting HTTP gateway on %s\n", address)
		if err := gateway.echo.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChannel <- err
		}
	}()

	select {
	case err := <-errChannel:
		return err
	case <-ctx.Done():
	}

	log.Emit(logger.STOP, "Closing HTTP gateway\n")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second*15)
	defer cancel()

	return gateway.echo.Shutdown(shutdownCtx)
}
