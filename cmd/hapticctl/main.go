// Package main implements hapticctl, the command-line client for the hapticd
// REST API.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// client talks to a hapticd server.
type client struct {
	baseURL string
	http    *http.Client
}

func newRootCmd() *cobra.Command {
	c := &client{http: &http.Client{}}
	var timeout time.Duration

	root := &cobra.Command{
		Use:   "hapticctl",
		Short: "CLI for hapticd",
		Long: `hapticctl manages haptic rules on a running hapticd daemon.

Examples:
  # Vibrate twice for every chat notification
  hapticctl rules set com.chat "0, 200, 100, 200"

  # A longer buzz when Alice writes
  hapticctl rules set com.chat "0, 800" --sender Alice

  # Check what a notification would do
  hapticctl resolve com.chat "Alice: are you there?"`,
		Version:       version,
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			c.baseURL = strings.TrimRight(c.baseURL, "/")
			c.http.Timeout = timeout
		},
	}

	root.PersistentFlags().StringVar(&c.baseURL, "server", "http://127.0.0.1:9470", "hapticd server URL")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "request timeout")

	root.AddCommand(
		newHealthCmd(c),
		newStatusCmd(c),
		newRulesCmd(c),
		newMuteCmd(c),
		newResolveCmd(c),
		newPatternCmd(c),
		newBundleCmd(c),
	)
	return root
}

// do sends body as JSON and decodes a JSON response into out. out may be
// nil. Non-2xx responses become errors carrying the server message.
func (c *client) do(method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, out)
}

// raw sends data with contentType and returns the response body.
func (c *client) raw(method, path, contentType string, data []byte) ([]byte, error) {
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to %s: %w", req.URL, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError(resp.StatusCode, respBody)
	}
	return respBody, nil
}

func (c *client) send(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", req.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return fmt.Errorf("server returned status %d (failed to read response body: %w)", resp.StatusCode, readErr)
		}
		return statusError(resp.StatusCode, body)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// statusError prefers the echo error message over the raw body.
func statusError(code int, body []byte) error {
	var he struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &he) == nil && he.Message != "" {
		return fmt.Errorf("server returned status %d: %s", code, he.Message)
	}
	return fmt.Errorf("server returned status %d: %s", code, strings.TrimSpace(string(body)))
}

func rulePath(pkg string) string {
	return "/api/v1/rules/" + url.PathEscape(pkg)
}

func decodeJSON(data []byte, out any) error {
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
