package fetch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lrstanley/go-ytdlp"
	"github.com/mediaforge/mediaforge/internal/ffmpeg"
	"github.com/mediaforge/mediaforge/internal/probe"
	"github.com/mediaforge/mediaforge/internal/task"
	"github.com/mediaforge/mediaforge/pkg/logger"
)

var log = logger.Get("FetchServ")

type (
	// MediaKind selects which streams of the source a fetch request wants.
	MediaKind string

	// Options carries the basic transcode parameters applied as a post-step
	// to an audio fetch. The zero value means "as downloaded".
	Options struct {
		Codec      string  `json:"codec"`
		Bitrate    int     `json:"bitrate"`
		Channels   int     `json:"channels"`
		SampleRate int     `json:"sample_rate"`
		GainDB     float64 `json:"gain_db"`
	}

	prober interface {
		Probe(ctx context.Context, url string) (*probe.SourceInfo, error)
	}

	runner interface {
		Run(ctx context.Context, invocation ffmpeg.Invocation, onProgress ffmpeg.ProgressCallback) error
	}

	// Service is the download executor: it accepts fetch requests, allocates
	// a task for each and dispatches a worker which re-probes the source,
	// drives yt-dlp, and finalizes the artifact. Fire-and-poll: callers learn
	// of the outcome only through the task registry.
	Service struct {
		mutex      sync.Mutex
		registry   *task.Registry
		prober     prober
		runner     runner
		outputPath string
		timeout    time.Duration

		runCtx context.Context
		taskWg sync.WaitGroup
	}
)

const (
	KindVideo MediaKind = "video"
	KindAudio MediaKind = "audio"
)

// Download progress is mapped below these marks, reserving headroom for the
// audio post-transcode and the finalize step respectively.
const (
	audioDownloadCeiling = 60.0
	postStepCeiling      = 90.0
)

func New(registry *task.Registry, prober prober, runner runner, outputPath string, timeout time.Duration) *Service {
	return &Service{
		registry:   registry,
		prober:     prober,
		runner:     runner,
		outputPath: outputPath,
		timeout:    timeout,
		runCtx:     context.Background(),
	}
}

// Run blocks until the context is cancelled, then waits for in-flight fetch
// workers to conclude.
func (service *Service) Run(ctx context.Context) error {
	service.mutex.Lock()
	service.runCtx = ctx
	service.mutex.Unlock()

	<-ctx.Done()
	log.Emit(logger.STOP, "Shutting down (context cancelled), waiting for fetch workers\n")
	service.taskWg.Wait()

	return nil
}

// Fetch accepts a fetch request and returns the ID of the task created for
// it. There is no automatic retry: a failed fetch surfaces immediately and a
// caller wanting another attempt submits a new request with a fresh ID.
func (service *Service) Fetch(url string, formatID string, kind MediaKind, options Options) (uuid.UUID, error) {
	if url == "" || formatID == "" {
		return uuid.Nil, task.NewError(task.InvalidSource, "a source URL and format id are required")
	}
	if kind != KindVideo && kind != KindAudio {
		return uuid.Nil, task.NewError(task.InvalidSource, "unknown media kind %q", kind)
	}

	record := service.registry.Create(task.KindFetch, nil)

	service.taskWg.Add(1)
	go service.drive(record.ID, url, formatID, kind, options)

	log.Emit(logger.NEW, "Accepted fetch of %s (format=%s kind=%s) as %s\n", url, formatID, kind, &record)
	return record.ID, nil
}

// drive is the worker for one fetch task. The task stays QUEUED through the
// re-probe so that a format resolution failure never reaches RUNNING.
func (service *Service) drive(taskID uuid.UUID, url string, formatID string, kind MediaKind, options Options) {
	defer service.taskWg.Done()

	service.mutex.Lock()
	ctx := service.runCtx
	service.mutex.Unlock()

	runCtx, cancel := context.WithTimeout(ctx, service.timeout)
	defer cancel()

	// Never trust client-held format metadata: only the id is accepted, and
	// it must resolve against a fresh probe.
	source, err := service.prober.Probe(runCtx, url)
	if err != nil {
		_ = service.registry.Fail(taskID, task.AsError(err, task.UnreachableSource))
		return
	}

	descriptor := resolveFormat(source, formatID)
	if descriptor == nil {
		_ = service.registry.Fail(taskID, task.NewError(task.FormatNotFound, "format %q was not offered by a fresh probe of the source", formatID))
		return
	}

	if err := service.registry.Start(taskID); err != nil {
		log.Errorf("Failed to start fetch task %s: %v\n", taskID, err)
		return
	}

	outputDir := filepath.Join(service.outputPath, taskID.String())
	if err := os.MkdirAll(outputDir, os.ModePerm); err != nil {
		_ = service.registry.Fail(taskID, task.NewError(task.IOFailure, "failed to create task output directory: %s", err))
		return
	}

	downloaded, err := service.download(runCtx, taskID, url, descriptor.ID, kind, outputDir)
	if err != nil {
		_ = service.registry.Fail(taskID, classifyFetchError(runCtx, err))
		return
	}

	if kind == KindAudio {
		transcoded, err := service.applyAudioOptions(runCtx, taskID, downloaded, source.Duration, options)
		if err != nil {
			_ = service.registry.Fail(taskID, task.AsError(err, task.ToolFailure))
			return
		}
		downloaded = transcoded
	}

	service.finalize(taskID, downloaded)
}

// download drives yt-dlp for the resolved format. Video requests mux the
// selected stream with the best audio into a single mp4 container; audio
// requests extract the audio stream only.
func (service *Service) download(ctx context.Context, taskID uuid.UUID, url string, formatID string, kind MediaKind, outputDir string) (string, error) {
	ceiling := postStepCeiling
	if kind == KindAudio {
		ceiling = audioDownloadCeiling
	}

	dl := ytdlp.New().
		NoPlaylist().
		ForceOverwrites().
		Output(filepath.Join(outputDir, "media.%(ext)s"))

	if kind == KindVideo {
		dl = dl.Format(fmt.Sprintf("%s+bestaudio/%s/best", formatID, formatID)).
			MergeOutputFormat("mp4")
	} else {
		dl = dl.Format(fmt.Sprintf("%s/bestaudio/best", formatID)).
			ExtractAudio()
	}

	dl.ProgressFunc(500*time.Millisecond, func(update ytdlp.ProgressUpdate) {
		if update.TotalBytes <= 0 {
			return
		}

		percent := float64(update.DownloadedBytes) / float64(update.TotalBytes)
		_ = service.registry.Update(taskID, int(percent*ceiling), "downloading")
	})

	if _, err := dl.Run(ctx, url); err != nil {
		return "", err
	}

	return locateDownload(outputDir)
}

// applyAudioOptions runs the basic transcode parameters (codec, bitrate,
// channels, sample rate, volume) over the downloaded audio as a post-step.
func (service *Service) applyAudioOptions(ctx context.Context, taskID uuid.UUID, input string, duration time.Duration, options Options) (string, error) {
	codec, ext := audioCodec(options.Codec)
	output := filepath.Join(filepath.Dir(input), "media-transcoded."+ext)

	args := []string{"-i", input}
	if options.GainDB != 0 {
		args = append(args, "-af", fmt.Sprintf("volume=%gdB", options.GainDB))
	}
	if options.Channels > 0 {
		args = append(args, "-ac", fmt.Sprint(options.Channels))
	}
	if options.SampleRate > 0 {
		args = append(args, "-ar", fmt.Sprint(options.SampleRate))
	}
	args = append(args, "-c:a", codec)
	if options.Bitrate > 0 {
		args = append(args, "-b:a", fmt.Sprintf("%dk", options.Bitrate))
	}
	args = append(args, output)

	onProgress := func(percent float64) {
		overall := audioDownloadCeiling + (percent/100)*(postStepCeiling-audioDownloadCeiling)
		_ = service.registry.Update(taskID, int(overall), "transcoding")
	}

	if err := service.runner.Run(ctx, ffmpeg.Invocation{
		Args:       args,
		OutputPath: output,
		Duration:   duration,
	}, onProgress); err != nil {
		return "", err
	}

	if err := os.Remove(input); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warnf("Failed to remove pre-transcode download %s: %v\n", input, err)
	}

	return output, nil
}

// finalize verifies the artifact exists and is non-empty before declaring
// the task READY with a content-appropriate extension.
func (service *Service) finalize(taskID uuid.UUID, path string) {
	_ = service.registry.Update(taskID, postStepCeiling, "finalizing")

	info, err := os.Stat(path)
	if err != nil {
		_ = service.registry.Fail(taskID, task.NewError(task.IOFailure, "downloaded output missing: %s", err))
		return
	}
	if info.Size() == 0 {
		_ = service.registry.Fail(taskID, task.NewError(task.IOFailure, "downloaded output is empty"))
		return
	}

	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	_ = service.registry.Complete(taskID, task.Result{
		Path:         path,
		Ext:          ext,
		Size:         info.Size(),
		DownloadName: "media." + ext,
	})
}

func resolveFormat(source *probe.SourceInfo, formatID string) *probe.FormatDescriptor {
	for index := range source.Formats {
		if source.Formats[index].ID == formatID {
			return &source.Formats[index]
		}
	}

	return nil
}

// locateDownload finds the single artifact yt-dlp produced; the extension is
// chosen by the tool so the worker globs for it rather than guessing.
func locateDownload(outputDir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(outputDir, "media.*"))
	if err != nil || len(matches) == 0 {
		return "", task.NewError(task.IOFailure, "download concluded but no output file was found in %s", outputDir)
	}

	return matches[0], nil
}

func classifyFetchError(ctx context.Context, err error) *task.Error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return task.NewError(task.Timeout, "fetch exceeded its wall-clock ceiling")
	}

	message := strings.ToLower(err.Error())
	switch {
	case strings.Contains(message, "requested format is not available"),
		strings.Contains(message, "requested format not available"):
		return task.NewError(task.FormatNotFound, "requested format vanished between probe and fetch: %s", err)
	case strings.Contains(message, "unable to download webpage"),
		strings.Contains(message, "name or service not known"),
		strings.Contains(message, "connection refused"):
		return task.NewError(task.UnreachableSource, "source became unreachable: %s", err)
	default:
		return task.NewError(task.ToolFailure, "extraction tool exited abnormally: %s", errorTail(err))
	}
}

// errorTail trims an error message down to its final lines; yt-dlp failures
// embed the full stderr transcript.
func errorTail(err error) string {
	message := strings.TrimSpace(err.Error())
	lines := strings.Split(message, "\n")
	if len(lines) > 5 {
		lines = lines[len(lines)-5:]
	}

	return strings.Join(lines, "\n")
}

func audioCodec(requested string) (codec string, ext string) {
	switch requested {
	case "", "mp3":
		return "libmp3lame", "mp3"
	case "aac":
		return "aac", "m4a"
	case "opus":
		return "libopus", "opus"
	case "flac":
		return "flac", "flac"
	case "wav":
		return "pcm_s16le", "wav"
	default:
		return "libmp3lame", "mp3"
	}
}
