package main

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	httpapi "github.com/fyrsmithlabs/hapticd/internal/http"
	"github.com/fyrsmithlabs/hapticd/internal/pattern"
)

func newPatternCmd(c *client) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pattern",
		Short: "Build, check and generate vibration patterns",
	}
	cmd.AddCommand(
		newPatternValidateCmd(c),
		newPatternPulseCmd(),
		newPatternGenerateCmd(c),
	)
	return cmd
}

func newPatternValidateCmd(c *client) *cobra.Command {
	var local bool
	cmd := &cobra.Command{
		Use:   "validate <pattern>",
		Short: "Check a pattern and print its canonical form",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if local {
				spec, err := pattern.Parse(args[0])
				if err != nil {
					return err
				}
				return printPattern(cmd, httpapi.PatternResponse{
					Pattern:  pattern.Format(spec),
					Segments: spec,
					TotalMs:  spec.TotalMs(),
				})
			}

			var resp httpapi.PatternResponse
			if err := c.do(http.MethodPost, "/api/v1/patterns/validate", httpapi.PatternRequest{Pattern: args[0]}, &resp); err != nil {
				return err
			}
			return printPattern(cmd, resp)
		},
	}
	cmd.Flags().BoolVar(&local, "local", false, "validate without contacting the server")
	return cmd
}

// newPatternPulseCmd is the text-building counterpart of the pattern
// editor's "add pulse" control. It runs locally.
func newPatternPulseCmd() *cobra.Command {
	var (
		base     string
		pulseMs  int64
		pauseMs  int64
		strength int
	)
	cmd := &cobra.Command{
		Use:   "pulse",
		Short: "Append a pulse and pause to a pattern",
		Long: `Append "pulse[:strength], pause" to a pattern. An empty pattern starts
with a 0ms rest so the pulse vibrates. Strength is clamped to 1-255.

Examples:
  hapticctl pattern pulse --pulse 200 --pause 100
  hapticctl pattern pulse --pattern "0, 200, 100" --pulse 400 --pause 0 --strength 90`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := pattern.Pulse{PulseMs: pulseMs, PauseMs: pauseMs}
			if cmd.Flags().Changed("strength") {
				p.Strength = &strength
			}
			out, err := pattern.AppendPulse(base, p)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&base, "pattern", "", "pattern to extend")
	cmd.Flags().Int64Var(&pulseMs, "pulse", 200, "vibrate duration in ms")
	cmd.Flags().Int64Var(&pauseMs, "pause", 100, "rest duration in ms")
	cmd.Flags().IntVar(&strength, "strength", pattern.MaxAmplitude, "amplitude 1-255")
	return cmd
}

func newPatternGenerateCmd(c *client) *cobra.Command {
	return &cobra.Command{
		Use:   "generate <description>",
		Short: "Generate a pattern from a text description",
		Long: `Ask the daemon's pattern generator for a pattern matching a description.

Example:
  hapticctl pattern generate "a heartbeat that speeds up"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := httpapi.GenerateRequest{Prompt: strings.Join(args, " ")}
			var resp httpapi.PatternResponse
			if err := c.do(http.MethodPost, "/api/v1/patterns/generate", req, &resp); err != nil {
				return err
			}
			return printPattern(cmd, resp)
		},
	}
}

func printPattern(cmd *cobra.Command, p httpapi.PatternResponse) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, p.Pattern)
	fmt.Fprintf(out, "%d segments, %dms total\n", len(p.Segments), p.TotalMs)
	return nil
}
