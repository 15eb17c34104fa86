package cleanup

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/mediaforge/mediaforge/internal/asset"
	"github.com/mediaforge/mediaforge/internal/event"
	"github.com/mediaforge/mediaforge/internal/task"
	"github.com/mediaforge/mediaforge/pkg/logger"
)

var log = logger.Get("CleanupServ")

type (
	Config struct {
		RetentionWindow time.Duration `yaml:"retention_window" env:"CLEANUP_RETENTION_WINDOW" env-default:"2h"`
		SweepInterval   time.Duration `yaml:"sweep_interval" env:"CLEANUP_SWEEP_INTERVAL" env-default:"5m"`
	}

	assetStore interface {
		All() []asset.MediaAsset
		Remove(id uuid.UUID) error
	}

	// Service deletes task records and their artifacts, either on explicit
	// client request or via a background sweep once the fixed retention
	// window from task creation lapses. The sweep guards against clients
	// that never confirm cleanup of their finished tasks.
	Service struct {
		config     Config
		registry   *task.Registry
		assets     assetStore
		eventBus   event.EventCoordinator
		outputPath string
	}
)

func New(config Config, registry *task.Registry, assets assetStore, eventBus event.EventCoordinator, outputPath string) *Service {
	return &Service{
		config:     config,
		registry:   registry,
		assets:     assets,
		eventBus:   eventBus,
		outputPath: outputPath,
	}
}

// Run sweeps on a fixed interval until the context is cancelled. Task
// completion events trigger an immediate retention check so that a task
// whose creation-keyed window lapsed mid-flight is collected promptly
// rather than waiting out another tick.
func (service *Service) Run(ctx context.Context) error {
	completions := make(event.HandlerChannel, 64)
	service.eventBus.RegisterHandlerChannel(completions, event.TaskCompleteEvent)

	ticker := time.NewTicker(service.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			service.sweep()
		case message := <-completions:
			if taskID, ok := message.Payload.(uuid.UUID); ok {
				service.collectIfExpired(taskID)
			}
		case <-ctx.Done():
			log.Emit(logger.STOP, "Shutting down (context cancelled)\n")
			return nil
		}
	}
}

// Remove is the explicit, client-confirmed cleanup path. It is idempotent:
// an unknown ID succeeds silently. A task which has not reached a terminal
// state is rejected with Busy; its worker is about to produce the very file
// this call would delete.
func (service *Service) Remove(id uuid.UUID) error {
	record, err := service.registry.Get(id)
	if err != nil {
		return nil
	}

	if !record.Terminal() {
		return task.NewError(task.Busy, "task %s is still %s and cannot be cleaned up", id, record.Status)
	}

	if err := os.RemoveAll(filepath.Join(service.outputPath, id.String())); err != nil {
		return task.NewError(task.IOFailure, "failed to remove artifacts for task %s: %s", id, err)
	}

	service.registry.Delete(id)
	log.Emit(logger.REMOVE, "Cleaned up task %s\n", id)

	return nil
}

// sweep collects every terminal task past the retention window, then
// removes assets which are past retention and not owned by any live task.
func (service *Service) sweep() {
	for _, record := range service.registry.All() {
		if time.Since(record.CreatedAt) < service.config.RetentionWindow {
			continue
		}
		if !record.Terminal() {
			// Still running; its window is checked again once it concludes.
			continue
		}

		if err := service.Remove(record.ID); err != nil {
			log.Warnf("Sweep failed to remove task %s: %v\n", record.ID, err)
		}
	}

	service.sweepAssets()
}

func (service *Service) sweepAssets() {
	owned := make(map[uuid.UUID]struct{})
	for _, record := range service.registry.All() {
		if record.OwnerID != nil {
			owned[*record.OwnerID] = struct{}{}
		}
	}

	for _, subject := range service.assets.All() {
		if time.Since(subject.UploadedAt) < service.config.RetentionWindow {
			continue
		}
		if _, inUse := owned[subject.ID]; inUse {
			continue
		}

		if err := service.assets.Remove(subject.ID); err != nil {
			log.Warnf("Sweep failed to remove asset %s: %v\n", subject.ID, err)
		}
	}
}

func (service *Service) collectIfExpired(taskID uuid.UUID) {
	record, err := service.registry.Get(taskID)
	if err != nil {
		return
	}

	if time.Since(record.CreatedAt) >= service.config.RetentionWindow {
		if err := service.Remove(taskID); err != nil {
			log.Warnf("Failed to collect expired task %s: %v\n", taskID, err)
		}
	}
}
