package actuator

import (
	"context"
	"sync"
)

// Recorder keeps the most recent dispatched waveforms in memory.
type Recorder struct {
	mu    sync.Mutex
	limit int
	seen  []Waveform
	err   error
}

// NewRecorder keeps at most limit waveforms; limit <= 0 keeps all.
func NewRecorder(limit int) *Recorder {
	return &Recorder{limit: limit}
}

// FailWith makes subsequent dispatches return err after recording.
func (r *Recorder) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// Dispatch implements Actuator.
func (r *Recorder) Dispatch(ctx context.Context, w Waveform) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seen = append(r.seen, w)
	if r.limit > 0 && len(r.seen) > r.limit {
		r.seen = r.seen[len(r.seen)-r.limit:]
	}
	return r.err
}

// Waveforms returns a copy of the recorded waveforms, oldest first.
func (r *Recorder) Waveforms() []Waveform {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Waveform, len(r.seen))
	copy(out, r.seen)
	return out
}

// Last returns the most recent waveform.
func (r *Recorder) Last() (Waveform, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.seen) == 0 {
		return Waveform{}, false
	}
	return r.seen[len(r.seen)-1], true
}
