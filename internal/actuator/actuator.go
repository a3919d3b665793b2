// Package actuator delivers waveforms to haptic output devices.
package actuator

import (
	"context"
	"errors"

	"github.com/fyrsmithlabs/hapticd/internal/pattern"
)

// Pair is one duration/amplitude step of a waveform.
type Pair struct {
	DurationMs int64 `json:"duration_ms"`
	Amplitude  int   `json:"amplitude"`
}

// Waveform is the command sent to a device for one decision.
type Waveform struct {
	Package string `json:"package"`
	Pairs   []Pair `json:"pairs"`
}

// FromSpec converts a parsed pattern into a waveform for pkg.
func FromSpec(pkg string, spec pattern.Spec) Waveform {
	pairs := make([]Pair, len(spec))
	for i, seg := range spec {
		pairs[i] = Pair{DurationMs: seg.DurationMs, Amplitude: seg.Amplitude}
	}
	return Waveform{Package: pkg, Pairs: pairs}
}

// TotalMs returns the summed duration of the waveform.
func (w Waveform) TotalMs() int64 {
	var total int64
	for _, p := range w.Pairs {
		total += p.DurationMs
	}
	return total
}

// Actuator plays waveforms. Dispatch must not block on playback; a newer
// waveform supersedes one still playing.
type Actuator interface {
	Dispatch(ctx context.Context, w Waveform) error
}

// Multi dispatches to every actuator and joins their errors.
type Multi []Actuator

// Dispatch implements Actuator.
func (m Multi) Dispatch(ctx context.Context, w Waveform) error {
	var errs []error
	for _, a := range m {
		if err := a.Dispatch(ctx, w); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
