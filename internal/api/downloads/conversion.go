package downloads

import (
	"github.com/mediaforge/mediaforge/internal/api/util"
	"github.com/mediaforge/mediaforge/internal/probe"
)

type (
	FormatDto struct {
		ID         string `json:"format_id"`
		Quality    string `json:"quality"`
		Resolution string `json:"resolution"`
		FPS        int    `json:"fps,omitempty"`
		Filesize   string `json:"filesize"`
		Ext        string `json:"ext"`
		HasVideo   bool   `json:"has_video"`
		HasAudio   bool   `json:"has_audio"`
	}

	SourceDto struct {
		Title     string      `json:"title"`
		Duration  int         `json:"duration"`
		Thumbnail string      `json:"thumbnail,omitempty"`
		Source    string      `json:"source"`
		Formats   []FormatDto `json:"formats"`
	}
)

func NewSourceDto(source *probe.SourceInfo) SourceDto {
	return SourceDto{
		Title:     source.Title,
		Duration:  int(source.Duration.Seconds()),
		Thumbnail: source.Thumbnail,
		Source:    source.Source,
		Formats:   util.ApplyConversion(source.Formats, NewFormatDto),
	}
}

func NewFormatDto(descriptor probe.FormatDescriptor) FormatDto {
	return FormatDto{
		ID:         descriptor.ID,
		Quality:    descriptor.Quality,
		Resolution: descriptor.Resolution,
		FPS:        descriptor.FPS,
		Filesize:   descriptor.Filesize,
		Ext:        descriptor.Ext,
		HasVideo:   descriptor.HasVideo,
		HasAudio:   descriptor.HasAudio,
	}
}
