package edit

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

type (
	// Source is the material an edit operates on, resolved from a stored
	// media asset by the service before compilation.
	Source struct {
		Path         string
		Duration     time.Duration
		NeedsExtract bool
	}

	// Stage is one external invocation in a compiled plan: an argument list
	// for the process runner, the file it produces, and the expected duration
	// of that file (used for progress reporting).
	Stage struct {
		Label      string
		Args       []string
		OutputPath string
		Duration   time.Duration
	}

	// Plan is the ordered, immutable transform sequence compiled from one
	// edit spec. Stages run strictly in order; the final stage produces the
	// finished artifact at OutputPath.
	Plan struct {
		Stages        []Stage
		OutputPath    string
		Ext           string
		FinalDuration time.Duration
	}
)

// Compile turns a validated spec plus its source material into the fixed
// transform sequence:
//
//  1. audio-only extraction (container sources only)
//  2. trim
//  3. cut-middle split into segments A/B, spliced by crossfade or concat
//  4. fade-in/fade-out against the final spliced timeline
//  5. channel / sample-rate / volume conversion
//  6. encode (or lossless passthrough)
//
// Steps 4-6 are filter and output options of a single encode invocation, so
// a plan holds at most five stages and usually fewer. Compile is pure: it
// writes nothing and spawns nothing.
func Compile(spec Spec, source Source, workDir string) *Plan {
	plan := &Plan{FinalDuration: spec.FinalDuration(source.Duration)}

	current := source.Path
	trim := spec.trimWindow(source.Duration)

	if source.NeedsExtract {
		output := filepath.Join(workDir, "extract.wav")
		plan.push(Stage{
			Label:      "extract",
			Args:       []string{"-i", current, "-vn", "-c:a", "pcm_s16le", output},
			OutputPath: output,
			Duration:   source.Duration,
		})
		current = output
	}

	switch {
	case spec.CutMiddle != nil:
		// The cut splits the trimmed timeline into segment A (everything
		// before the cut) and segment B (everything after). Both are cut
		// directly from the source coordinates in one pass each.
		cut := *spec.CutMiddle
		segmentA := filepath.Join(workDir, "segment-a.wav")
		segmentB := filepath.Join(workDir, "segment-b.wav")
		spliced := filepath.Join(workDir, "spliced.wav")

		plan.push(trimStage("segment-a", current, segmentA, trim.Start, trim.Start+cut.Start))
		plan.push(trimStage("segment-b", current, segmentB, trim.Start+cut.End, trim.End))

		var filter string
		if spec.Crossfade > 0 {
			// Triangular curves give complementary linear gain ramps over the
			// overlap, summed by the filter.
			filter = fmt.Sprintf("[0:a][1:a]acrossfade=d=%.3f:c1=tri:c2=tri[aout]", spec.Crossfade)
		} else {
			filter = "[0:a][1:a]concat=n=2:v=0:a=1[aout]"
		}

		plan.push(Stage{
			Label:      "splice",
			Args:       []string{"-i", segmentA, "-i", segmentB, "-filter_complex", filter, "-map", "[aout]", "-c:a", "pcm_s16le", spliced},
			OutputPath: spliced,
			Duration:   plan.FinalDuration,
		})
		current = spliced

	case spec.Trim != nil:
		output := filepath.Join(workDir, "trimmed.wav")
		plan.push(trimStage("trim", current, output, trim.Start, trim.End))
		current = output
	}

	encodeCodec, ext := codecArgs(spec)
	plan.Ext = ext
	plan.OutputPath = filepath.Join(workDir, "edit."+ext)

	args := []string{"-i", current}
	if filter := encodeFilter(spec, plan.FinalDuration); filter != "" {
		args = append(args, "-af", filter)
	}
	if spec.Channels > 0 {
		args = append(args, "-ac", fmt.Sprint(spec.Channels))
	}
	if spec.SampleRate > 0 {
		args = append(args, "-ar", fmt.Sprint(spec.SampleRate))
	}
	args = append(args, "-c:a", encodeCodec)
	if !spec.IsLossless() {
		args = append(args, "-b:a", fmt.Sprintf("%dk", spec.Bitrate))
	}
	args = append(args, plan.OutputPath)

	plan.push(Stage{
		Label:      "encode",
		Args:       args,
		OutputPath: plan.OutputPath,
		Duration:   plan.FinalDuration,
	})

	return plan
}

// Intermediates lists every stage output which is not the final artifact,
// for removal once the plan has run.
func (plan *Plan) Intermediates() []string {
	paths := make([]string, 0, len(plan.Stages))
	for _, stage := range plan.Stages {
		if stage.OutputPath != plan.OutputPath {
			paths = append(paths, stage.OutputPath)
		}
	}

	return paths
}

func (plan *Plan) push(stage Stage) {
	plan.Stages = append(plan.Stages, stage)
}

func trimStage(label, input, output string, start, end float64) Stage {
	filter := fmt.Sprintf("[0:a]atrim=start=%.3f:end=%.3f,asetpts=PTS-STARTPTS[aout]", start, end)

	return Stage{
		Label:      label,
		Args:       []string{"-i", input, "-filter_complex", filter, "-map", "[aout]", "-c:a", "pcm_s16le", output},
		OutputPath: output,
		Duration:   time.Duration((end - start) * float64(time.Second)),
	}
}

// encodeFilter assembles the -af chain for the encode stage: fades against
// the final spliced timeline, then gain.
func encodeFilter(spec Spec, finalDuration time.Duration) string {
	parts := make([]string, 0, 3)

	if spec.FadeIn.Enabled && spec.FadeIn.Duration > 0 {
		parts = append(parts, fmt.Sprintf("afade=t=in:st=0:d=%.3f", spec.FadeIn.Duration))
	}
	if spec.FadeOut.Enabled && spec.FadeOut.Duration > 0 {
		start := finalDuration.Seconds() - spec.FadeOut.Duration
		if start < 0 {
			start = 0
		}
		parts = append(parts, fmt.Sprintf("afade=t=out:st=%.3f:d=%.3f", start, spec.FadeOut.Duration))
	}
	if spec.GainDB != 0 {
		parts = append(parts, fmt.Sprintf("volume=%gdB", spec.GainDB))
	}

	return strings.Join(parts, ",")
}

func codecArgs(spec Spec) (codec string, ext string) {
	switch spec.Codec {
	case "mp3":
		return "libmp3lame", "mp3"
	case "aac":
		return "aac", "m4a"
	case "opus":
		return "libopus", "opus"
	case "flac":
		return "flac", "flac"
	case "wav":
		return "pcm_s16le", "wav"
	}

	// Validation precedes compilation, so this is unreachable for accepted specs.
	return "copy", spec.Codec
}
