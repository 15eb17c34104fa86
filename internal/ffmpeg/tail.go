package ffmpeg

import (
	"strings"
	"sync"
)

// tailBuffer is an io.Writer which retains only the final `limit` bytes
// written to it. ffmpeg's stderr can run to megabytes on a long transcode;
// the useful part of a failure is almost always the last few lines.
type tailBuffer struct {
	mutex sync.Mutex
	data  []byte
	limit int
}

func newTailBuffer(limit int) *tailBuffer {
	return &tailBuffer{limit: limit}
}

func (buffer *tailBuffer) Write(p []byte) (int, error) {
	buffer.mutex.Lock()
	defer buffer.mutex.Unlock()

	buffer.data = append(buffer.data, p...)
	if overflow := len(buffer.data) - buffer.limit; overflow > 0 {
		buffer.data = buffer.data[overflow:]
	}

	return len(p), nil
}

func (buffer *tailBuffer) Tail() string {
	buffer.mutex.Lock()
	defer buffer.mutex.Unlock()

	return strings.TrimSpace(string(buffer.data))
}
