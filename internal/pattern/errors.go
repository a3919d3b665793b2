package pattern

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidPattern is matched by every parse failure.
	ErrInvalidPattern = errors.New("invalid pattern")

	// ErrEmpty indicates the text contained no segments.
	ErrEmpty = fmt.Errorf("%w: no segments", ErrInvalidPattern)

	// ErrInvalidDuration indicates a duration token is not a non-negative integer.
	ErrInvalidDuration = fmt.Errorf("%w: invalid duration", ErrInvalidPattern)

	// ErrSegmentTooLong indicates a single segment exceeds MaxSegmentMs.
	ErrSegmentTooLong = fmt.Errorf("%w: segment exceeds %dms", ErrInvalidPattern, MaxSegmentMs)

	// ErrTotalTooLong indicates the summed durations exceed MaxTotalMs.
	ErrTotalTooLong = fmt.Errorf("%w: total exceeds %dms", ErrInvalidPattern, MaxTotalMs)

	// ErrInvalidAmplitude indicates a vibrate amplitude outside [1,255].
	ErrInvalidAmplitude = fmt.Errorf("%w: amplitude must be %d-%d", ErrInvalidPattern, MinAmplitude, MaxAmplitude)
)

// ParseError describes which segment of a pattern failed to parse.
type ParseError struct {
	Index int    // 0-based segment index, -1 when not tied to a segment
	Token string // the offending segment text
	Err   error  // one of the sentinel errors above
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	if e.Index < 0 {
		return e.Err.Error()
	}
	return fmt.Sprintf("segment %d %q: %v", e.Index, e.Token, e.Err)
}

// Unwrap allows errors.Is against the sentinel errors.
func (e *ParseError) Unwrap() error {
	return e.Err
}
