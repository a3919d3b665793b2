package pattern

import (
	"errors"
	"strconv"
	"strings"
)

// ErrNegativePulse indicates a negative pulse or pause duration.
var ErrNegativePulse = errors.New("pulse and pause must be non-negative")

// Pulse is one vibrate-then-rest step appended by AppendPulse.
type Pulse struct {
	PulseMs  int64
	PauseMs  int64
	Strength *int // nil keeps the default amplitude
}

// AppendPulse appends "pulse[:strength], pause" to text. A blank text is
// seeded with a leading "0" rest so the pulse lands on a vibrate position.
// Strength is clamped to [MinAmplitude, MaxAmplitude]. The result must
// still parse; otherwise the parse error is returned and text is unchanged.
func AppendPulse(text string, p Pulse) (string, error) {
	if p.PulseMs < 0 || p.PauseMs < 0 {
		return text, ErrNegativePulse
	}

	pulseTok := strconv.FormatInt(p.PulseMs, 10)
	if p.Strength != nil {
		pulseTok += ":" + strconv.Itoa(clampAmplitude(*p.Strength))
	}
	addition := pulseTok + ", " + strconv.FormatInt(p.PauseMs, 10)

	current := strings.TrimSpace(text)
	var out string
	if current == "" {
		out = "0, " + addition
	} else {
		out = current + ", " + addition
	}

	if _, err := Parse(out); err != nil {
		return text, err
	}
	return out, nil
}

func clampAmplitude(a int) int {
	if a < MinAmplitude {
		return MinAmplitude
	}
	if a > MaxAmplitude {
		return MaxAmplitude
	}
	return a
}
