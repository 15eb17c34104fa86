package edit

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/mediaforge/mediaforge/internal/asset"
	"github.com/mediaforge/mediaforge/internal/ffmpeg"
	"github.com/mediaforge/mediaforge/internal/task"
	"github.com/mediaforge/mediaforge/pkg/logger"
)

var log = logger.Get("EditServ")

type (
	runner interface {
		Run(ctx context.Context, invocation ffmpeg.Invocation, onProgress ffmpeg.ProgressCallback) error
	}

	assetStore interface {
		Get(id uuid.UUID) (asset.MediaAsset, error)
	}

	// Service accepts audio edit requests, compiles them, and drives the
	// resulting plans through the process runner: one worker goroutine per
	// accepted task, with the task registry as the only shared state.
	//
	// Each asset admits at most one in-flight edit; a second request against
	// a busy asset is rejected with Busy rather than queued, so two workers
	// can never race on shared derived files.
	Service struct {
		mutex    sync.Mutex
		inflight map[uuid.UUID]uuid.UUID

		registry   *task.Registry
		assets     assetStore
		runner     runner
		outputPath string

		runCtx context.Context
		taskWg sync.WaitGroup
	}
)

// Worker progress is mapped into 0-90; the remainder is reserved for the
// finalize step which verifies the artifact on disk.
const progressCeiling = 90.0

func New(registry *task.Registry, assets assetStore, runner runner, outputPath string) *Service {
	return &Service{
		inflight:   make(map[uuid.UUID]uuid.UUID),
		registry:   registry,
		assets:     assets,
		runner:     runner,
		outputPath: outputPath,
		runCtx:     context.Background(),
	}
}

// Run blocks until the context is cancelled, then waits for in-flight edit
// workers to conclude.
func (service *Service) Run(ctx context.Context) error {
	service.mutex.Lock()
	service.runCtx = ctx
	service.mutex.Unlock()

	<-ctx.Done()
	log.Emit(logger.STOP, "Shutting down (context cancelled), waiting for edit workers\n")
	service.taskWg.Wait()

	return nil
}

// Process validates the edit spec against the target asset and, if it is
// accepted, allocates a task and dispatches a worker for it. Validation
// violations surface synchronously with zero external side effects.
func (service *Service) Process(assetID uuid.UUID, spec Spec) (uuid.UUID, error) {
	subject, err := service.assets.Get(assetID)
	if err != nil {
		return uuid.Nil, err
	}

	if taskErr := spec.Validate(subject.Duration); taskErr != nil {
		return uuid.Nil, taskErr
	}

	service.mutex.Lock()
	defer service.mutex.Unlock()

	if existing, busy := service.inflight[assetID]; busy {
		return uuid.Nil, task.NewError(task.Busy, "asset %s is already being processed by task %s", assetID, existing)
	}

	record := service.registry.Create(task.KindAudioEdit, &assetID)
	service.inflight[assetID] = record.ID

	service.taskWg.Add(1)
	go service.drive(record.ID, subject, spec)

	log.Emit(logger.NEW, "Accepted edit of asset %s as %s\n", assetID, &record)
	return record.ID, nil
}

// drive is the worker for one edit task; it owns every registry mutation
// for its task ID from here to the terminal state.
func (service *Service) drive(taskID uuid.UUID, subject asset.MediaAsset, spec Spec) {
	defer func() {
		service.mutex.Lock()
		delete(service.inflight, subject.ID)
		service.mutex.Unlock()
		service.taskWg.Done()
	}()

	workDir := filepath.Join(service.outputPath, taskID.String())
	plan := Compile(spec, Source{
		Path:         subject.Path,
		Duration:     subject.Duration,
		NeedsExtract: subject.NeedsExtract,
	}, workDir)

	if err := service.registry.Start(taskID); err != nil {
		log.Errorf("Failed to start edit task %s: %v\n", taskID, err)
		return
	}

	service.mutex.Lock()
	runCtx := service.runCtx
	service.mutex.Unlock()

	span := progressCeiling / float64(len(plan.Stages))
	for index, stage := range plan.Stages {
		base := span * float64(index)
		onProgress := func(percent float64) {
			overall := base + (percent/100)*span
			_ = service.registry.Update(taskID, int(overall), "applying "+stage.Label)
		}

		log.Emit(logger.DEBUG, "Task %s running stage %q\n", taskID, stage.Label)
		if err := service.runner.Run(runCtx, ffmpeg.Invocation{
			Args:       stage.Args,
			OutputPath: stage.OutputPath,
			Duration:   stage.Duration,
		}, onProgress); err != nil {
			_ = service.registry.Fail(taskID, task.AsError(err, task.ToolFailure))
			return
		}
	}

	service.finalize(taskID, plan)
}

// finalize verifies the artifact exists and is non-empty before declaring
// the task READY, and clears stage intermediates.
func (service *Service) finalize(taskID uuid.UUID, plan *Plan) {
	_ = service.registry.Update(taskID, progressCeiling, "finalizing")

	info, err := os.Stat(plan.OutputPath)
	if err != nil {
		_ = service.registry.Fail(taskID, task.NewError(task.IOFailure, "edited output missing: %s", err))
		return
	}
	if info.Size() == 0 {
		_ = service.registry.Fail(taskID, task.NewError(task.IOFailure, "edited output is empty"))
		return
	}

	for _, intermediate := range plan.Intermediates() {
		if err := os.Remove(intermediate); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warnf("Failed to remove intermediate %s: %v\n", intermediate, err)
		}
	}

	_ = service.registry.Complete(taskID, task.Result{
		Path:         plan.OutputPath,
		Ext:          plan.Ext,
		Size:         info.Size(),
		DownloadName: "edit." + plan.Ext,
	})
}
