package probe

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lrstanley/go-ytdlp"
	"github.com/mediaforge/mediaforge/internal/task"
	"github.com/mediaforge/mediaforge/pkg/logger"
)

var log = logger.Get("Prober")

type (
	// FormatDescriptor is one selectable quality option returned by probing a
	// source. Descriptors are an immutable snapshot of a single probe call and
	// are never persisted; a later fetch re-probes rather than trusting a
	// stale client-held descriptor.
	FormatDescriptor struct {
		ID         string
		Quality    string
		Resolution string
		FPS        int
		Filesize   string
		Ext        string
		HasVideo   bool
		HasAudio   bool
	}

	// SourceInfo is the outcome of one probe: descriptive metadata plus the
	// ordered format list, best quality first.
	SourceInfo struct {
		Title     string
		Duration  time.Duration
		Thumbnail string
		Source    string
		Formats   []FormatDescriptor
	}

	// Prober queries a source URL for metadata and selectable stream
	// descriptors using yt-dlp. It is a pure query; no artifacts are written
	// and nothing is cached between calls.
	Prober struct{}
)

const maxReportedFormats = 10

func NewProber() *Prober { return &Prober{} }

func (prober *Prober) Probe(ctx context.Context, url string) (*SourceInfo, error) {
	log.Emit(logger.DEBUG, "Probing source %s\n", url)

	result, err := ytdlp.New().
		SkipDownload().
		DumpSingleJSON().
		NoPlaylist().
		NoWarnings().
		Run(ctx, url)
	if err != nil {
		return nil, classifyProbeError(err)
	}

	infos, err := result.GetExtractedInfo()
	if err != nil || len(infos) == 0 {
		return nil, task.NewError(task.InvalidSource, "source yielded no usable media metadata")
	}

	info := infos[0]
	source := &SourceInfo{
		Title:     derefString(info.Title),
		Thumbnail: derefString(info.Thumbnail),
		Source:    derefString(info.Extractor),
		Formats:   collectFormats(info.Formats),
	}
	if info.Duration != nil {
		source.Duration = time.Duration(*info.Duration * float64(time.Second))
	}

	if len(source.Formats) == 0 {
		return nil, task.NewError(task.InvalidSource, "source is reachable but exposes no downloadable formats")
	}

	return source, nil
}

// collectFormats filters the raw yt-dlp format list down to distinct video
// qualities, ordered best-first, capped to a sensible count. Formats without
// a video stream are skipped; clients selecting an audio download still pick
// from this list and the executor extracts the audio stream instead.
func collectFormats(raw []*ytdlp.ExtractedFormat) []FormatDescriptor {
	descriptors := make([]FormatDescriptor, 0, len(raw))
	seenQualities := make(map[string]struct{})

	for _, format := range raw {
		if format == nil || derefString(format.FormatID) == "" {
			continue
		}

		height := int(derefFloat(format.Height))
		vcodec := derefString(format.VCodec)
		if height == 0 || vcodec == "" || vcodec == "none" {
			continue
		}

		fps := int(derefFloat(format.FPS))
		quality := fmt.Sprintf("%dp", height)
		if fps > 30 {
			quality = fmt.Sprintf("%s %dfps", quality, fps)
		}

		if _, seen := seenQualities[quality]; seen {
			continue
		}
		seenQualities[quality] = struct{}{}

		acodec := derefString(format.ACodec)
		descriptors = append(descriptors, FormatDescriptor{
			ID:         derefString(format.FormatID),
			Quality:    quality,
			Resolution: fmt.Sprintf("%dx%d", int(derefFloat(format.Width)), height),
			FPS:        fps,
			Filesize:   humanizeBytes(derefInt(format.FileSize)),
			Ext:        derefString(format.Extension),
			HasVideo:   true,
			HasAudio:   acodec != "" && acodec != "none",
		})
	}

	sort.SliceStable(descriptors, func(i, j int) bool {
		return qualityRank(descriptors[i].Quality) > qualityRank(descriptors[j].Quality)
	})

	if len(descriptors) > maxReportedFormats {
		descriptors = descriptors[:maxReportedFormats]
	}

	return descriptors
}

func qualityRank(quality string) int {
	var height, fps int
	fmt.Sscanf(quality, "%dp %dfps", &height, &fps)
	return height*1000 + fps
}

// classifyProbeError maps a yt-dlp failure onto the error taxonomy by
// inspecting the message: resolution failures are UnreachableSource, while a
// reachable page that is not a supported media reference is InvalidSource.
func classifyProbeError(err error) *task.Error {
	message := strings.ToLower(err.Error())
	switch {
	case strings.Contains(message, "unable to download webpage"),
		strings.Contains(message, "name or service not known"),
		strings.Contains(message, "failed to resolve"),
		strings.Contains(message, "connection refused"),
		strings.Contains(message, "timed out"):
		return task.NewError(task.UnreachableSource, "source URL could not be resolved: %s", err)
	case strings.Contains(message, "unsupported url"),
		strings.Contains(message, "is not a valid url"),
		strings.Contains(message, "no video formats"),
		strings.Contains(message, "no media found"):
		return task.NewError(task.InvalidSource, "source is not a supported media reference: %s", err)
	default:
		return task.NewError(task.UnreachableSource, "probe failed: %s", err)
	}
}

func humanizeBytes(size float64) string {
	if size <= 0 {
		return "Unknown"
	}

	for _, unit := range []string{"B", "KB", "MB", "GB"} {
		if size < 1024.0 {
			return fmt.Sprintf("%.1f %s", size, unit)
		}
		size /= 1024.0
	}

	return fmt.Sprintf("%.1f TB", size)
}

func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func derefFloat(value *float64) float64 {
	if value == nil {
		return 0
	}
	return *value
}

func derefInt(value *int) float64 {
	if value == nil {
		return 0
	}
	return float64(*value)
}
