package ffmpeg

import (
	"fmt"
	"strconv"
	"time"

	"github.com/floostack/transcoder/ffmpeg"
)

// FileInfo is the subset of ffprobe metadata the pipeline cares about for
// locally stored files: how long the media runs for, and which stream types
// it carries (a video stream on an uploaded asset means an audio-only
// extraction must happen before any editing).
type FileInfo struct {
	Duration time.Duration
	HasVideo bool
	HasAudio bool
}

// ProbeFile runs ffprobe against a local file and condenses the metadata.
func (runner *Runner) ProbeFile(path string) (*FileInfo, error) {
	cfg := ffmpeg.Config{
		FfmpegBinPath:  runner.config.FfmpegBinaryPath,
		FfprobeBinPath: runner.config.FfprobeBinaryPath,
	}

	metadata, err := ffmpeg.New(&cfg).Input(path).GetMetadata()
	if err != nil {
		return nil, fmt.Errorf("failed to extract file metadata information using ffprobe: %w", err)
	}

	info := &FileInfo{}
	if seconds, err := strconv.ParseFloat(metadata.GetFormat().GetDuration(), 64); err == nil {
		info.Duration = time.Duration(seconds * float64(time.Second))
	}

	for _, stream := range metadata.GetStreams() {
		switch stream.GetCodecType() {
		case "video":
			info.HasVideo = true
		case "audio":
			info.HasAudio = true
		}
	}

	return info, nil
}
