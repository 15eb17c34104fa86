package ffmpeg

import (
	"bufio"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mediaforge/mediaforge/internal/task"
	"github.com/mediaforge/mediaforge/pkg/logger"
)

var log = logger.Get("FFmpeg")

type Config struct {
	FfmpegBinaryPath  string        `yaml:"ffmpeg_binary" env:"FFMPEG_BINARY_PATH" env-default:"ffmpeg"`
	FfprobeBinaryPath string        `yaml:"ffprobe_binary" env:"FFPROBE_BINARY_PATH" env-default:"ffprobe"`
	MaxConcurrent     int           `yaml:"max_concurrent" env:"FFMPEG_MAX_CONCURRENT" env-default:"4"`
	CommandTimeout    time.Duration `yaml:"command_timeout" env:"FFMPEG_COMMAND_TIMEOUT" env-default:"30m"`
}

// Invocation describes a single external ffmpeg command: the argument list
// (everything following the binary and the runner's own global flags) and the
// expected duration of the output timeline, which the runner uses to convert
// ffmpeg's out_time progress reports into a percentage.
type Invocation struct {
	Args       []string
	OutputPath string
	Duration   time.Duration
}

type ProgressCallback func(percent float64)

// Runner executes ffmpeg invocations as child processes, reporting live
// progress parsed from the `-progress pipe:1` key=value stream. A fixed-size
// slot pool bounds the number of simultaneous external processes; excess
// invocations block waiting for a slot rather than being rejected.
type Runner struct {
	config Config
	slots  chan struct{}
}

func NewRunner(config Config) *Runner {
	if config.MaxConcurrent < 1 {
		config.MaxConcurrent = 1
	}

	return &Runner{
		config: config,
		slots:  make(chan struct{}, config.MaxConcurrent),
	}
}

// Run spawns the invocation and blocks until it concludes, delivering
// monotonic 0-100 progress to the callback along the way. The invocation is
// subject to the configured wall-clock ceiling; on breach the process is
// terminated and a Timeout error returned. A non-zero exit is returned as a
// ToolFailure carrying the tail of the captured stderr.
func (runner *Runner) Run(ctx context.Context, invocation Invocation, onProgress ProgressCallback) error {
	select {
	case runner.slots <- struct{}{}:
		defer func() { <-runner.slots }()
	case <-ctx.Done():
		return ctx.Err()
	}

	runCtx, cancel := context.WithTimeout(ctx, runner.config.CommandTimeout)
	defer cancel()

	if err := os.MkdirAll(filepath.Dir(invocation.OutputPath), os.ModePerm); err != nil {
		return task.NewError(task.IOFailure, "failed to create output directory: %s", err)
	}

	args := append([]string{"-hide_banner", "-loglevel", "error", "-nostats", "-y", "-progress", "pipe:1"}, invocation.Args...)
	cmd := exec.CommandContext(runCtx, runner.config.FfmpegBinaryPath, args...) //nolint:gosec

	stderr := newTailBuffer(4096)
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return task.NewError(task.IOFailure, "failed to open ffmpeg stdout pipe: %s", err)
	}

	log.Emit(logger.DEBUG, "Spawning ffmpeg with args %v\n", args)
	if err := cmd.Start(); err != nil {
		return task.NewError(task.ToolFailure, "failed to spawn ffmpeg: %s", err)
	}

	runner.pumpProgress(stdout, invocation.Duration, onProgress)

	if err := cmd.Wait(); err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return task.NewError(task.Timeout, "ffmpeg invocation exceeded wall-clock ceiling of %s", runner.config.CommandTimeout)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		return task.NewError(task.ToolFailure, "ffmpeg exited abnormally: %s", stderr.Tail())
	}

	if onProgress != nil {
		onProgress(100)
	}

	return nil
}

// pumpProgress consumes the key=value progress stream until the pipe closes,
// converting out_time reports to a percentage of the expected duration. The
// percentage delivered to the callback never decreases, regardless of any
// backwards timestamps ffmpeg emits around filter graph flushes.
func (runner *Runner) pumpProgress(pipe interface{ Read([]byte) (int, error) }, duration time.Duration, onProgress ProgressCallback) {
	scanner := bufio.NewScanner(pipe)
	lastReported := float64(0)

	for scanner.Scan() {
		outTime, ok := parseProgressLine(scanner.Text())
		if !ok || onProgress == nil || duration <= 0 {
			continue
		}

		percent := (outTime.Seconds() / duration.Seconds()) * 100
		if percent > 99 {
			percent = 99
		}
		if percent > lastReported {
			lastReported = percent
			onProgress(percent)
		}
	}
}

// parseProgressLine extracts the transcode position from one line of ffmpeg's
// progress stream. Only out_time_ms lines are of interest; the value is in
// microseconds despite the suffix.
func parseProgressLine(line string) (time.Duration, bool) {
	key, value, found := strings.Cut(strings.TrimSpace(line), "=")
	if !found || key != "out_time_ms" {
		return 0, false
	}

	micros, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || micros < 0 {
		return 0, false
	}

	return time.Duration(micros) * time.Microsecond, true
}
