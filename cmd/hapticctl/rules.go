package main

import (
	"fmt"
	"net/http"
	"net/url"
	"text/tabwriter"

	"github.com/spf13/cobra"

	httpapi "github.com/fyrsmithlabs/hapticd/internal/http"
	"github.com/fyrsmithlabs/hapticd/internal/rules"
)

func newRulesCmd(c *client) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage app and sender rules",
	}
	cmd.AddCommand(
		newRulesListCmd(c),
		newRulesGetCmd(c),
		newRulesSetCmd(c),
		newRulesDeleteCmd(c),
	)
	return cmd
}

func newRulesListCmd(c *client) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list [package]",
		Short: "List rules, optionally only the sender rules of one package",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/v1/rules"
			if len(args) == 1 {
				path = rulePath(args[0]) + "/senders"
			}
			var resp httpapi.RulesResponse
			if err := c.do(http.MethodGet, path, nil, &resp); err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			return printRules(cmd, resp.Rules)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newRulesGetCmd(c *client) *cobra.Command {
	var sender string
	cmd := &cobra.Command{
		Use:   "get <package>",
		Short: "Show the app rule, or a sender rule with --sender",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var rule rules.Rule
			if err := c.do(http.MethodGet, ruleURL(args[0], sender), nil, &rule); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), rule)
		},
	}
	cmd.Flags().StringVar(&sender, "sender", "", "sender name or token")
	return cmd
}

func newRulesSetCmd(c *client) *cobra.Command {
	var sender, name string
	cmd := &cobra.Command{
		Use:   "set <package> <pattern>",
		Short: "Save a rule. An empty pattern deletes it",
		Long: `Save the app rule for a package, or a sender rule with --sender.

A pattern is a comma-separated list of durations in milliseconds that
alternates rest and vibrate, starting with rest. A vibrate segment may carry
an amplitude 1-255 after a colon.

Examples:
  hapticctl rules set com.chat "0, 200:128, 100, 200"
  hapticctl rules set com.chat "0, 800" --sender "Alice" --name "Alice buzz"`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pkg, text := args[0], args[1]

			var (
				rule rules.Rule
				err  error
			)
			if sender == "" {
				err = c.do(http.MethodPut, rulePath(pkg), httpapi.AppRuleRequest{Pattern: text, Name: name}, &rule)
			} else {
				err = c.do(http.MethodPut, rulePath(pkg)+"/senders",
					httpapi.SenderRuleRequest{Sender: sender, Pattern: text, Name: name}, &rule)
			}
			if err != nil {
				return err
			}
			if rule.Key.Package == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "Rule deleted")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s: %s (%s)\n", rule.Key, rule.PatternText, rule.Name)
			return nil
		},
	}
	cmd.Flags().StringVar(&sender, "sender", "", "save a sender rule for this sender")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	return cmd
}

func newRulesDeleteCmd(c *client) *cobra.Command {
	var sender string
	cmd := &cobra.Command{
		Use:   "delete <package>",
		Short: "Delete the app rule, or a sender rule with --sender",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.do(http.MethodDelete, ruleURL(args[0], sender), nil, nil); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Rule deleted")
			return nil
		},
	}
	cmd.Flags().StringVar(&sender, "sender", "", "sender name or token")
	return cmd
}

func newMuteCmd(c *client) *cobra.Command {
	return &cobra.Command{
		Use:   "mute <package> [on|off]",
		Short: "Show or set whether an app is silent when no sender rule matches",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/v1/apps/" + url.PathEscape(args[0]) + "/mute"

			var settings rules.AppSettings
			if len(args) == 1 {
				if err := c.do(http.MethodGet, path, nil, &settings); err != nil {
					return err
				}
			} else {
				var on bool
				switch args[1] {
				case "on", "true":
					on = true
				case "off", "false":
				default:
					return fmt.Errorf("expected on or off, got %q", args[1])
				}
				req := httpapi.MuteRequest{MuteWhenNoSenderMatch: &on}
				if err := c.do(http.MethodPut, path, req, &settings); err != nil {
					return err
				}
			}

			state := "off"
			if settings.MuteWhenNoSenderMatch {
				state = "on"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: mute when no sender matches is %s\n", settings.Package, state)
			return nil
		},
	}
}

// ruleURL addresses the app rule, or the sender rule when sender is set.
// The sender is normalized client side so display names work.
func ruleURL(pkg, sender string) string {
	if sender == "" {
		return rulePath(pkg)
	}
	return rulePath(pkg) + "/senders/" + url.PathEscape(rules.NormalizeToken(sender))
}

func printRules(cmd *cobra.Command, list []rules.Rule) error {
	out := cmd.OutOrStdout()
	if len(list) == 0 {
		fmt.Fprintln(out, "No rules")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PACKAGE\tKIND\tSENDERS\tNAME\tPATTERN")
	for _, r := range list {
		senders := r.Senders
		if senders == "" {
			senders = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.Key.Package, r.Key.Kind, senders, r.Name, r.PatternText)
	}
	return tw.Flush()
}
