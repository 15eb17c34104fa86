package edit

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mediaforge/mediaforge/internal/task"
)

var validate = validator.New()

type (
	// Window is a [start, end) time range in seconds.
	Window struct {
		Start float64 `json:"start" validate:"min=0"`
		End   float64 `json:"end" validate:"min=0"`
	}

	Fade struct {
		Enabled  bool    `json:"enabled"`
		Duration float64 `json:"duration" validate:"min=0"`
	}

	// Spec describes one requested audio edit. Trim is in source seconds;
	// the cut-middle window and every other offset are relative to the
	// trimmed timeline.
	Spec struct {
		Codec      string  `json:"codec" validate:"required,oneof=mp3 aac opus flac wav"`
		Bitrate    int     `json:"bitrate" validate:"omitempty,min=8,max=512"`
		Lossless   bool    `json:"lossless"`
		Trim       *Window `json:"trim,omitempty"`
		FadeIn     Fade    `json:"fade_in"`
		FadeOut    Fade    `json:"fade_out"`
		CutMiddle  *Window `json:"cut_middle,omitempty"`
		Crossfade  float64 `json:"crossfade" validate:"min=0"`
		Channels   int     `json:"channels" validate:"omitempty,oneof=1 2"`
		SampleRate int     `json:"sample_rate" validate:"omitempty,oneof=8000 16000 22050 44100 48000 96000"`
		GainDB     float64 `json:"gain_db" validate:"min=-60,max=20"`
	}
)

// IsLossless reports whether encoding should pass samples through unmodified.
// The flag is implied by an inherently lossless codec selection.
func (spec *Spec) IsLossless() bool {
	return spec.Lossless || spec.Codec == "flac" || spec.Codec == "wav"
}

func (w Window) length() float64 { return w.End - w.Start }

// trimWindow returns the effective trim range in source seconds; absent an
// explicit trim the whole asset is the timeline.
func (spec *Spec) trimWindow(assetDuration time.Duration) Window {
	if spec.Trim != nil {
		return *spec.Trim
	}

	return Window{Start: 0, End: assetDuration.Seconds()}
}

// FinalDuration computes the length of the finished timeline after trimming,
// cut-middle removal and crossfade overlap.
func (spec *Spec) FinalDuration(assetDuration time.Duration) time.Duration {
	length := spec.trimWindow(assetDuration).length()
	if spec.CutMiddle != nil {
		length -= spec.CutMiddle.length()
		length -= spec.Crossfade
	}

	return time.Duration(length * float64(time.Second))
}

// Validate checks the spec against both its structural rules and the
// window/duration invariants relative to the asset it will be applied to.
// All violations surface as InvalidEditSpec before any process is spawned.
func (spec *Spec) Validate(assetDuration time.Duration) *task.Error {
	if err := validate.Struct(spec); err != nil {
		return task.NewError(task.InvalidEditSpec, "edit spec is malformed: %s", err)
	}

	if !spec.IsLossless() && spec.Bitrate == 0 {
		return task.NewError(task.InvalidEditSpec, "a bitrate is required for lossy codec %q", spec.Codec)
	}

	trim := spec.trimWindow(assetDuration)
	if trim.length() <= 0 {
		return task.NewError(task.InvalidEditSpec, "trim window [%g, %g] is empty", trim.Start, trim.End)
	}
	if spec.Trim != nil && trim.End > assetDuration.Seconds() {
		return task.NewError(task.InvalidEditSpec, "trim window ends at %gs but the asset is only %gs long", trim.End, assetDuration.Seconds())
	}

	if spec.CutMiddle == nil {
		if spec.Crossfade > 0 {
			return task.NewError(task.InvalidEditSpec, "a crossfade requires a cut-middle window")
		}
	} else {
		cut := *spec.CutMiddle
		if cut.length() <= 0 {
			return task.NewError(task.InvalidEditSpec, "cut-middle window [%g, %g] is empty", cut.Start, cut.End)
		}

		// Cut offsets are relative to the trimmed timeline and must leave a
		// non-empty segment on both sides of the removed range.
		if cut.Start <= 0 || cut.End >= trim.length() {
			return task.NewError(task.InvalidEditSpec, "cut-middle window [%g, %g] must lie strictly inside the trimmed timeline of %gs", cut.Start, cut.End, trim.length())
		}

		segmentA := cut.Start
		segmentB := trim.length() - cut.End
		if spec.Crossfade >= segmentA || spec.Crossfade >= segmentB {
			return task.NewError(task.InvalidEditSpec, "crossfade of %gs is not smaller than both adjoining segments (%gs and %gs)", spec.Crossfade, segmentA, segmentB)
		}
	}

	finalLength := spec.FinalDuration(assetDuration).Seconds()
	if spec.FadeIn.Enabled && spec.FadeIn.Duration > finalLength {
		return task.NewError(task.InvalidEditSpec, "fade-in of %gs exceeds the final timeline of %gs", spec.FadeIn.Duration, finalLength)
	}
	if spec.FadeOut.Enabled && spec.FadeOut.Duration > finalLength {
		return task.NewError(task.InvalidEditSpec, "fade-out of %gs exceeds the final timeline of %gs", spec.FadeOut.Duration, finalLength)
	}

	return nil
}
