package ffmpeg

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_ParseProgressLine(t *testing.T) {
	tests := []struct {
		Summary  string
		Line     string
		Expected time.Duration
		OK       bool
	}{
		{"microsecond position", "out_time_ms=1500000", time.Millisecond * 1500, true},
		{"zero position", "out_time_ms=0", 0, true},
		{"surrounding whitespace", "  out_time_ms=250000  ", time.Millisecond * 250, true},
		{"uninteresting key", "frame=120", 0, false},
		{"textual out_time variant", "out_time=00:00:01.500000", 0, false},
		{"negative position", "out_time_ms=-1", 0, false},
		{"non-numeric value", "out_time_ms=N/A", 0, false},
		{"no separator", "progress", 0, false},
		{"empty line", "", 0, false},
	}

	for _, test := range tests {
		t.Run(test.Summary, func(t *testing.T) {
			parsed, ok := parseProgressLine(test.Line)
			require.Equal(t, test.OK, ok)
			assert.Equal(t, test.Expected, parsed)
		})
	}
}

func Test_PumpProgress_MonotonicAndCapped(t *testing.T) {
	stream := strings.NewReader(strings.Join([]string{
		"frame=10",
		"out_time_ms=1000000",
		"progress=continue",
		"out_time_ms=5000000",
		"out_time_ms=4000000", // filter graph flush can step backwards
		"out_time_ms=60000000",
		"progress=end",
	}, "\n"))

	reported := make([]float64, 0)
	runner := NewRunner(Config{MaxConcurrent: 1, CommandTimeout: time.Minute})
	runner.pumpProgress(stream, time.Second*10, func(percent float64) {
		reported = append(reported, percent)
	})

	require.Len(t, reported, 3)
	assert.Equal(t, float64(10), reported[0])
	assert.Equal(t, float64(50), reported[1])
	assert.Equal(t, float64(99), reported[2], "the pump never reports completion itself")

	for i := 1; i < len(reported); i++ {
		assert.Greater(t, reported[i], reported[i-1])
	}
}

func Test_PumpProgress_NoCallbackOrUnknownDuration(t *testing.T) {
	runner := NewRunner(Config{MaxConcurrent: 1})

	assert.NotPanics(t, func() {
		runner.pumpProgress(strings.NewReader("out_time_ms=1000000\n"), time.Second*10, nil)
	})

	invoked := false
	runner.pumpProgress(strings.NewReader("out_time_ms=1000000\n"), 0, func(float64) { invoked = true })
	assert.False(t, invoked, "progress is unknowable without an expected duration")
}

func Test_TailBuffer_RetainsOnlyFinalBytes(t *testing.T) {
	buffer := newTailBuffer(16)

	_, err := buffer.Write([]byte("the first part is discarded "))
	require.NoError(t, err)
	_, err = buffer.Write([]byte("but the tail stays"))
	require.NoError(t, err)

	assert.Equal(t, "t the tail stays", buffer.Tail())
}

func Test_TailBuffer_TrimsWhitespace(t *testing.T) {
	buffer := newTailBuffer(64)

	_, err := buffer.Write([]byte("Error opening output file\n\n"))
	require.NoError(t, err)

	assert.Equal(t, "Error opening output file", buffer.Tail())
}

func Test_NewRunner_ClampsConcurrency(t *testing.T) {
	runner := NewRunner(Config{MaxConcurrent: 0})
	assert.Equal(t, 1, cap(runner.slots))

	runner = NewRunner(Config{MaxConcurrent: 8})
	assert.Equal(t, 8, cap(runner.slots))
}
