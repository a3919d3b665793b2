// Package pattern parses, validates and formats the vibration pattern DSL.
//
// A pattern is a comma-separated list of segments:
//
//	segment ("," segment)*
//	segment = duration (":" amplitude)?
//
// Segments alternate by position. Even (0-based) positions are rests and
// always carry amplitude 0; an amplitude written on a rest is accepted and
// ignored. Odd positions vibrate at the given amplitude (1-255), or at full
// strength (255) when none is given.
//
// Limits: each duration is at most 15000ms and the whole pattern at most
// 60000ms.
//
// Example:
//
//	spec, err := pattern.Parse("0, 200:128, 100, 400")
//	if err != nil {
//	    return err
//	}
//	fmt.Println(pattern.Format(spec)) // 0, 200:128, 100, 400:255
package pattern
