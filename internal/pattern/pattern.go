package pattern

import (
	"strconv"
	"strings"
)

// Limits of the pattern DSL.
const (
	MaxSegmentMs     = 15_000
	MaxTotalMs       = 60_000
	MinAmplitude     = 1
	MaxAmplitude     = 255
	DefaultAmplitude = MaxAmplitude
)

// Segment is one duration/amplitude unit of a waveform.
// Amplitude 0 means rest.
type Segment struct {
	DurationMs int64 `json:"duration_ms"`
	Amplitude  int   `json:"amplitude"`
}

// Spec is a parsed, validated pattern. It is never empty when returned by Parse.
type Spec []Segment

// IsVibrate reports whether the segment at index i is a vibrate segment.
func IsVibrate(i int) bool {
	return i%2 == 1
}

// Timings returns the segment durations in order.
func (s Spec) Timings() []int64 {
	out := make([]int64, len(s))
	for i, seg := range s {
		out[i] = seg.DurationMs
	}
	return out
}

// Amplitudes returns the segment amplitudes in order.
func (s Spec) Amplitudes() []int {
	out := make([]int, len(s))
	for i, seg := range s {
		out[i] = seg.Amplitude
	}
	return out
}

// TotalMs returns the summed duration of all segments.
func (s Spec) TotalMs() int64 {
	var total int64
	for _, seg := range s {
		total += seg.DurationMs
	}
	return total
}

// String returns the canonical text form.
func (s Spec) String() string {
	return Format(s)
}

// Parse parses pattern text into a Spec.
//
// Returns a *ParseError matching ErrInvalidPattern on any failure.
func Parse(text string) (Spec, error) {
	tokens := splitTokens(text)
	if len(tokens) == 0 {
		return nil, &ParseError{Index: -1, Err: ErrEmpty}
	}

	spec := make(Spec, 0, len(tokens))
	var total int64
	for i, tok := range tokens {
		durTok, ampTok, _ := strings.Cut(tok, ":")
		durTok = strings.TrimSpace(durTok)
		ampTok = strings.TrimSpace(ampTok)

		dur, err := strconv.ParseInt(durTok, 10, 64)
		if err != nil || dur < 0 {
			return nil, &ParseError{Index: i, Token: tok, Err: ErrInvalidDuration}
		}
		if dur > MaxSegmentMs {
			return nil, &ParseError{Index: i, Token: tok, Err: ErrSegmentTooLong}
		}
		total += dur
		if total > MaxTotalMs {
			return nil, &ParseError{Index: i, Token: tok, Err: ErrTotalTooLong}
		}

		amp := 0
		if IsVibrate(i) {
			amp = DefaultAmplitude
			if ampTok != "" {
				amp, err = strconv.Atoi(ampTok)
				if err != nil || amp < MinAmplitude || amp > MaxAmplitude {
					return nil, &ParseError{Index: i, Token: tok, Err: ErrInvalidAmplitude}
				}
			}
		}

		spec = append(spec, Segment{DurationMs: dur, Amplitude: amp})
	}

	return spec, nil
}

// Format renders a Spec in canonical form: rests as "d", vibrates as "d:a",
// joined by ", ".
func Format(spec Spec) string {
	parts := make([]string, len(spec))
	for i, seg := range spec {
		if IsVibrate(i) {
			parts[i] = strconv.FormatInt(seg.DurationMs, 10) + ":" + strconv.Itoa(seg.Amplitude)
		} else {
			parts[i] = strconv.FormatInt(seg.DurationMs, 10)
		}
	}
	return strings.Join(parts, ", ")
}

// Canonicalize parses text and returns its canonical form.
func Canonicalize(text string) (string, error) {
	spec, err := Parse(text)
	if err != nil {
		return "", err
	}
	return Format(spec), nil
}

// splitTokens splits on commas, trims and drops empty tokens.
func splitTokens(text string) []string {
	raw := strings.Split(text, ",")
	tokens := make([]string, 0, len(raw))
	for _, t := range raw {
		if t = strings.TrimSpace(t); t != "" {
			tokens = append(tokens, t)
		}
	}
	return tokens
}
