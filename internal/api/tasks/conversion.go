package tasks

import (
	"fmt"

	"github.com/mediaforge/mediaforge/internal/task"
)

type (
	ErrorDto struct {
		Kind   string `json:"kind"`
		Detail string `json:"detail"`
	}

	StatusDto struct {
		ID          string    `json:"id"`
		Kind        string    `json:"kind"`
		Status      string    `json:"status"`
		Progress    int       `json:"progress"`
		Message     string    `json:"message"`
		Ready       bool      `json:"ready"`
		DownloadURL string    `json:"download_url,omitempty"`
		Ext         string    `json:"ext,omitempty"`
		Error       *ErrorDto `json:"error,omitempty"`
	}
)

func NewStatusDto(record task.Task) StatusDto {
	dto := StatusDto{
		ID:       record.ID.String(),
		Kind:     string(record.Kind),
		Status:   record.Status.String(),
		Progress: record.Progress,
		Message:  record.Message,
		Ready:    record.Status == task.READY,
	}

	if record.Result != nil {
		dto.DownloadURL = fmt.Sprintf("/api/tasks/%s/artifact", record.ID)
		dto.Ext = record.Result.Ext
	}
	if record.Error != nil {
		dto.Error = &ErrorDto{Kind: string(record.Error.Kind), Detail: record.Error.Detail}
	}

	return dto
}
