package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/hapticd/internal/bundle"
)

func newBundleCmd(c *client) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bundle",
		Short: "Import and export rule bundles (TOML or YAML)",
	}
	cmd.AddCommand(newBundleImportCmd(c), newBundleExportCmd(c))
	return cmd
}

func newBundleImportCmd(c *client) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Apply a bundle file to the daemon",
		Long: `Apply every entry of a bundle. Invalid entries are reported and skipped.
The format follows the file extension (.toml, .yaml, .yml).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := bundle.FormatFromPath(args[0])
			if err != nil {
				return err
			}
			// Decode locally first so syntax errors name the file.
			b, err := bundle.Load(args[0])
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}

			body, err := c.raw(http.MethodPost, "/api/v1/bundle?format="+string(format), "application/"+string(format), data)
			if err != nil {
				return err
			}
			var report bundle.Report
			if err := decodeJSON(body, &report); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Applied %d app rules, %d sender rules, %d mute flags (%d entries read)\n",
				report.Apps, report.Senders, report.Mutes, len(b.Apps)+len(b.Senders))
			for _, f := range report.Failures {
				fmt.Fprintf(out, "  rejected %s: %s\n", f.Entry, f.Error)
			}
			if !report.OK() {
				return fmt.Errorf("%d entries rejected", len(report.Failures))
			}
			return nil
		},
	}
}

func newBundleExportCmd(c *client) *cobra.Command {
	var (
		output string
		format string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export every rule as a bundle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := exportFormat(format, output)
			if err != nil {
				return err
			}
			data, err := c.raw(http.MethodGet, "/api/v1/bundle?format="+string(f), "", nil)
			if err != nil {
				return err
			}
			if output == "" || output == "-" {
				_, err := cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(output, data, 0600); err != nil {
				return fmt.Errorf("failed to write %s: %w", output, err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to file instead of stdout")
	cmd.Flags().StringVar(&format, "format", "", "toml or yaml (default from --output extension, else toml)")
	return cmd
}

// exportFormat resolves --format, then the output extension.
func exportFormat(flag, output string) (bundle.Format, error) {
	if flag != "" {
		return bundle.ParseFormat(flag)
	}
	if output != "" && output != "-" {
		return bundle.FormatFromPath(output)
	}
	return bundle.FormatTOML, nil
}
