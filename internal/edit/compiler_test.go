package edit

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWorkDir = "/tmp/forge-test"

func stageLabels(plan *Plan) []string {
	labels := make([]string, 0, len(plan.Stages))
	for _, stage := range plan.Stages {
		labels = append(labels, stage.Label)
	}

	return labels
}

func Test_Compile_MinimalSpecIsSingleEncodeStage(t *testing.T) {
	source := Source{Path: "/uploads/a.wav", Duration: time.Second * 60}
	plan := Compile(validSpec(), source, testWorkDir)

	require.Equal(t, []string{"encode"}, stageLabels(plan))
	assert.Equal(t, filepath.Join(testWorkDir, "edit.mp3"), plan.OutputPath)
	assert.Equal(t, "mp3", plan.Ext)
	assert.Equal(t,
		[]string{"-i", "/uploads/a.wav", "-c:a", "libmp3lame", "-b:a", "192k", filepath.Join(testWorkDir, "edit.mp3")},
		plan.Stages[0].Args)
	assert.Empty(t, plan.Intermediates())
}

func Test_Compile_ContainerSourceGetsExtractStageFirst(t *testing.T) {
	source := Source{Path: "/uploads/a.mp4", Duration: time.Second * 60, NeedsExtract: true}
	plan := Compile(validSpec(), source, testWorkDir)

	require.Equal(t, []string{"extract", "encode"}, stageLabels(plan))

	extract := plan.Stages[0]
	assert.Equal(t,
		[]string{"-i", "/uploads/a.mp4", "-vn", "-c:a", "pcm_s16le", filepath.Join(testWorkDir, "extract.wav")},
		extract.Args)

	// The encode stage consumes the extracted audio, not the container.
	assert.Equal(t, filepath.Join(testWorkDir, "extract.wav"), plan.Stages[1].Args[1])
	assert.Equal(t, []string{filepath.Join(testWorkDir, "extract.wav")}, plan.Intermediates())
}

func Test_Compile_TrimOnly(t *testing.T) {
	spec := validSpec()
	spec.Trim = &Window{Start: 1.5, End: 11.5}

	source := Source{Path: "/uploads/a.wav", Duration: time.Second * 60}
	plan := Compile(spec, source, testWorkDir)

	require.Equal(t, []string{"trim", "encode"}, stageLabels(plan))
	assert.Contains(t, plan.Stages[0].Args, "[0:a]atrim=start=1.500:end=11.500,asetpts=PTS-STARTPTS[aout]")
	assert.Equal(t, time.Second*10, plan.Stages[0].Duration)
	assert.Equal(t, time.Second*10, plan.FinalDuration)
}

func Test_Compile_CutMiddleWithCrossfade(t *testing.T) {
	spec := validSpec()
	spec.Trim = &Window{Start: 0, End: 10}
	spec.CutMiddle = &Window{Start: 2, End: 3}
	spec.Crossfade = 0.5

	source := Source{Path: "/uploads/a.wav", Duration: time.Second * 60}
	plan := Compile(spec, source, testWorkDir)

	require.Equal(t, []string{"segment-a", "segment-b", "splice", "encode"}, stageLabels(plan))

	// Segment boundaries are source coordinates: trim start plus the cut
	// offsets, which are relative to the trimmed timeline.
	assert.Contains(t, plan.Stages[0].Args, "[0:a]atrim=start=0.000:end=2.000,asetpts=PTS-STARTPTS[aout]")
	assert.Contains(t, plan.Stages[1].Args, "[0:a]atrim=start=3.000:end=10.000,asetpts=PTS-STARTPTS[aout]")
	assert.Contains(t, plan.Stages[2].Args, "[0:a][1:a]acrossfade=d=0.500:c1=tri:c2=tri[aout]")

	assert.Equal(t, time.Millisecond*8500, plan.FinalDuration)
	assert.Len(t, plan.Intermediates(), 3)
}

func Test_Compile_CutMiddleWithoutCrossfadeConcats(t *testing.T) {
	spec := validSpec()
	spec.CutMiddle = &Window{Start: 10, End: 20}

	source := Source{Path: "/uploads/a.wav", Duration: time.Second * 60}
	plan := Compile(spec, source, testWorkDir)

	require.Equal(t, []string{"segment-a", "segment-b", "splice", "encode"}, stageLabels(plan))
	assert.Contains(t, plan.Stages[2].Args, "[0:a][1:a]concat=n=2:v=0:a=1[aout]")
	assert.Equal(t, time.Second*50, plan.FinalDuration)
}

func Test_Compile_EncodeFilterOrderingAndOptions(t *testing.T) {
	spec := Spec{
		Codec:      "aac",
		Bitrate:    128,
		Trim:       &Window{Start: 0, End: 20},
		FadeIn:     Fade{Enabled: true, Duration: 1},
		FadeOut:    Fade{Enabled: true, Duration: 2},
		GainDB:     -3,
		Channels:   1,
		SampleRate: 44100,
	}

	source := Source{Path: "/uploads/a.wav", Duration: time.Second * 60}
	plan := Compile(spec, source, testWorkDir)

	encode := plan.Stages[len(plan.Stages)-1]
	assert.Equal(t, []string{
		"-i", filepath.Join(testWorkDir, "trimmed.wav"),
		"-af", "afade=t=in:st=0:d=1.000,afade=t=out:st=18.000:d=2.000,volume=-3dB",
		"-ac", "1",
		"-ar", "44100",
		"-c:a", "aac",
		"-b:a", "128k",
		filepath.Join(testWorkDir, "edit.m4a"),
	}, encode.Args)
	assert.Equal(t, "m4a", plan.Ext)
}

func Test_Compile_LosslessOmitsBitrate(t *testing.T) {
	spec := Spec{Codec: "flac"}
	source := Source{Path: "/uploads/a.wav", Duration: time.Second * 60}
	plan := Compile(spec, source, testWorkDir)

	encode := plan.Stages[len(plan.Stages)-1]
	assert.NotContains(t, encode.Args, "-b:a")
	assert.Contains(t, encode.Args, "flac")
	assert.Equal(t, filepath.Join(testWorkDir, "edit.flac"), plan.OutputPath)
}

func Test_Compile_CodecExtensions(t *testing.T) {
	tests := map[string]string{"mp3": "mp3", "aac": "m4a", "opus": "opus", "flac": "flac", "wav": "wav"}

	source := Source{Path: "/uploads/a.wav", Duration: time.Second * 60}
	for codec, ext := range tests {
		plan := Compile(Spec{Codec: codec, Bitrate: 128}, source, testWorkDir)
		assert.Equalf(t, ext, plan.Ext, "codec %s", codec)
	}
}
