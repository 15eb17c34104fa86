package internal

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/mediaforge/mediaforge/internal/api"
	"github.com/mediaforge/mediaforge/internal/api/downloads"
	"github.com/mediaforge/mediaforge/internal/api/medias"
	"github.com/mediaforge/mediaforge/internal/api/tasks"
	"github.com/mediaforge/mediaforge/internal/asset"
	"github.com/mediaforge/mediaforge/internal/cleanup"
	"github.com/mediaforge/mediaforge/internal/edit"
	"github.com/mediaforge/mediaforge/internal/event"
	"github.com/mediaforge/mediaforge/internal/fetch"
	"github.com/mediaforge/mediaforge/internal/ffmpeg"
	"github.com/mediaforge/mediaforge/internal/probe"
	"github.com/mediaforge/mediaforge/internal/task"
	"github.com/mediaforge/mediaforge/pkg/logger"
)

var log = logger.Get("Core")

type RunnableService interface {
	Run(context.Context) error
}

// forgeImpl is the composition root: it wires the registry, stores and
// services together and supervises their lifecycles. The task registry is
// passed into every component explicitly; there is no ambient singleton.
type forgeImpl struct {
	config ForgeConfig

	eventBus   event.EventCoordinator
	registry   *task.Registry
	assetStore *asset.Store

	services map[string]RunnableService
}

func New(config ForgeConfig) *forgeImpl {
	log.Emit(logger.DEBUG, "Bootstrapping services using config: %#v\n", config)

	eventBus := event.New()
	registry := task.NewRegistry(eventBus)
	runner := ffmpeg.NewRunner(config.Ffmpeg)
	prober := probe.NewProber()

	if err := os.MkdirAll(config.getOutputPath(), os.ModePerm); err != nil {
		panic(fmt.Sprintf("failed to create output directory: %s", err))
	}

	assetStore, err := asset.NewStore(config.getUploadPath(), runner)
	if err != nil {
		panic(fmt.Sprintf("failed to construct asset store: %s", err))
	}

	fetchService := fetch.New(registry, prober, runner, config.getOutputPath(), config.FetchTimeout)
	editService := edit.New(registry, assetStore, runner, config.getOutputPath())
	cleanupService := cleanup.New(config.Cleanup, registry, assetStore, eventBus, config.getOutputPath())

	gateway := api.NewGateway(
		config.API,
		downloads.New(prober, fetchService),
		medias.New(assetStore, editService),
		tasks.New(registry, cleanupService),
	)

	return &forgeImpl{
		config:     config,
		eventBus:   eventBus,
		registry:   registry,
		assetStore: assetStore,
		services: map[string]RunnableService{
			"fetch":   fetchService,
			"edit":    editService,
			"cleanup": cleanupService,
			"gateway": gateway,
		},
	}
}

// Run brings up every service and blocks until the context is cancelled or
// a service fails; either way all remaining services are wound down before
// returning.
func (forge *forgeImpl) Run(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	var (
		wg       sync.WaitGroup
		mutex    sync.Mutex
		firstErr error
	)

	for label, service := range forge.services {
		wg.Add(1)
		go func(label string, service RunnableService) {
			defer wg.Done()

			if err := service.Run(ctx); err != nil {
				log.Errorf("Service %s failed: %v\n", label, err)

				mutex.Lock()
				if firstErr == nil {
					firstErr = fmt.Errorf("service %s failed: %w", label, err)
				}
				mutex.Unlock()
				cancel()
			}
		}(label, service)
	}

	log.Emit(logger.SUCCESS, "All services running\n")
	wg.Wait()

	return firstErr
}
