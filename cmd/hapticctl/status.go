package main

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/hapticd/internal/engine"
	httpapi "github.com/fyrsmithlabs/hapticd/internal/http"
	"github.com/fyrsmithlabs/hapticd/internal/ingest"
	"github.com/fyrsmithlabs/hapticd/internal/rules"
)

func newHealthCmd(c *client) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check hapticd server health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp httpapi.HealthResponse
			if err := c.do(http.MethodGet, "/health", nil, &resp); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Server Status: %s\n", resp.Status)
			if resp.Version != "" {
				fmt.Fprintf(out, "Version:       %s\n", resp.Version)
			}
			if t := resp.Telemetry; t != nil {
				fmt.Fprintf(out, "Telemetry:     healthy=%t degraded=%t\n", t.Healthy, t.Degraded)
				for _, r := range t.Reasons {
					fmt.Fprintf(out, "  - %s\n", r)
				}
			}
			return nil
		},
	}
}

func newStatusCmd(c *client) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show rule counts and the last seen and matched packages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp httpapi.StatusResponse
			if err := c.do(http.MethodGet, "/api/v1/status", nil, &resp); err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), resp)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Rules:       %d app, %d sender\n", resp.Counts.Apps, resp.Counts.Senders)
			fmt.Fprintf(out, "Last event:  %s\n", observation(resp.LastEvent))
			fmt.Fprintf(out, "Last match:  %s\n", observation(resp.LastMatch))
			if resp.Ingest != nil {
				fmt.Fprintf(out, "Ingest:      %d received, %d resolved, %d dropped\n",
					resp.Ingest.Received, resp.Ingest.Resolved, resp.Ingest.Dropped)
			}
			if n := len(resp.Recent); n > 0 {
				w := resp.Recent[n-1]
				fmt.Fprintf(out, "Last buzz:   %s, %d steps, %dms\n", w.Package, len(w.Pairs), w.TotalMs())
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newResolveCmd(c *client) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <package> [text...]",
		Short: "Send a notification event and print the decision",
		Long: `Send a notification event to the daemon. A matching rule vibrates the
device exactly as a real notification would.

Example:
  hapticctl resolve com.chat "Alice: lunch?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n := ingest.Notification{
				PackageID:     args[0],
				ExtractedText: strings.Join(args[1:], " "),
				TimestampMs:   time.Now().UnixMilli(),
			}
			var d engine.Decision
			if err := c.do(http.MethodPost, "/api/v1/events", n, &d); err != nil {
				return err
			}
			printDecision(cmd, d)
			return nil
		},
	}
}

func printDecision(cmd *cobra.Command, d engine.Decision) {
	out := cmd.OutOrStdout()
	if !d.Vibrate() {
		fmt.Fprintf(out, "silent (%s)\n", d.Reason)
		return
	}
	fmt.Fprintf(out, "vibrate (%s) %s\n", d.Reason, d.PatternText)
	if d.Key != nil {
		fmt.Fprintf(out, "  rule:  %s %q\n", d.Key, d.RuleName)
	}
	if d.Token != "" {
		fmt.Fprintf(out, "  token: %s\n", d.Token)
	}
}

func observation(o *rules.Observation) string {
	if o == nil {
		return "never"
	}
	return fmt.Sprintf("%s at %s", o.Package, o.At.Local().Format(time.RFC3339))
}
