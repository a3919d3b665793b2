package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/hapticd/internal/actuator"
	"github.com/fyrsmithlabs/hapticd/internal/engine"
	httpapi "github.com/fyrsmithlabs/hapticd/internal/http"
	"github.com/fyrsmithlabs/hapticd/internal/kv"
	"github.com/fyrsmithlabs/hapticd/internal/rules"
)

type stubGenerator struct{}

func (stubGenerator) Generate(_ context.Context, prompt string) (string, error) {
	return "0, 100, 50, 100", nil
}

type harness struct {
	url      string
	store    *rules.KVStore
	recorder *actuator.Recorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	store := rules.NewKVStore(kv.NewMemory(), nil)
	rec := actuator.NewRecorder(5)
	eng, err := engine.New(store, rec)
	require.NoError(t, err)

	server, err := httpapi.NewServer(httpapi.Deps{
		Store:     store,
		Resolver:  eng,
		Generator: stubGenerator{},
		Recorder:  rec,
	}, zap.NewNop(), &httpapi.Config{Version: "test"})
	require.NoError(t, err)

	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return &harness{url: ts.URL, store: store, recorder: rec}
}

// run executes hapticctl against the harness and returns stdout.
func (h *harness) run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--server", h.url}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestHealth(t *testing.T) {
	h := newHarness(t)
	out, err := h.run(t, "health")
	require.NoError(t, err)
	assert.Contains(t, out, "Server Status: ok")
	assert.Contains(t, out, "Version:       test")
}

func TestRules(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	out, err := h.run(t, "rules", "set", "com.chat", "0,200,100", "--name", "Chat")
	require.NoError(t, err)
	assert.Equal(t, "Saved app:com.chat: 0, 200:255, 100 (Chat)\n", out)

	out, err = h.run(t, "rules", "set", "com.chat", "0, 800", "--sender", "Alice")
	require.NoError(t, err)
	assert.Contains(t, out, "sender:com.chat|alice")

	rule, err := h.store.Get(ctx, rules.Sender("com.chat", "alice"))
	require.NoError(t, err)
	assert.Equal(t, rules.DefaultName, rule.Name)

	out, err = h.run(t, "rules", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "PACKAGE")
	assert.Contains(t, out, "Alice")
	assert.Contains(t, out, "0, 800:255")

	out, err = h.run(t, "rules", "list", "com.chat", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"token": "alice"`)
	assert.NotContains(t, out, `"kind": "app"`)

	out, err = h.run(t, "rules", "get", "com.chat", "--sender", " ALICE ")
	require.NoError(t, err)
	assert.Contains(t, out, `"senders": "Alice"`)

	_, err = h.run(t, "rules", "set", "com.chat", "0, 100:0")
	assert.ErrorContains(t, err, "422")

	out, err = h.run(t, "rules", "delete", "com.chat", "--sender", "Alice")
	require.NoError(t, err)
	assert.Equal(t, "Rule deleted\n", out)
	_, err = h.store.Get(ctx, rules.Sender("com.chat", "alice"))
	assert.ErrorIs(t, err, rules.ErrNotFound)

	out, err = h.run(t, "rules", "set", "com.chat", "")
	require.NoError(t, err)
	assert.Equal(t, "Rule deleted\n", out)

	out, err = h.run(t, "rules", "list")
	require.NoError(t, err)
	assert.Equal(t, "No rules\n", out)

	_, err = h.run(t, "rules", "get", "com.chat")
	assert.ErrorContains(t, err, "404")
}

func TestMuteAndResolve(t *testing.T) {
	h := newHarness(t)

	_, err := h.run(t, "rules", "set", "com.chat", "0, 100")
	require.NoError(t, err)
	_, err = h.run(t, "rules", "set", "com.chat", "0, 600", "--sender", "Alice")
	require.NoError(t, err)

	out, err := h.run(t, "mute", "com.chat", "on")
	require.NoError(t, err)
	assert.Equal(t, "com.chat: mute when no sender matches is on\n", out)

	out, err = h.run(t, "mute", "com.chat")
	require.NoError(t, err)
	assert.Contains(t, out, "is on")

	_, err = h.run(t, "mute", "com.chat", "maybe")
	assert.ErrorContains(t, err, "expected on or off")

	out, err = h.run(t, "resolve", "com.chat", "Alice:", "lunch?")
	require.NoError(t, err)
	assert.Contains(t, out, "vibrate (sender) 0, 600:255")
	assert.Contains(t, out, "token: alice")

	out, err = h.run(t, "resolve", "com.chat", "Bob: hi")
	require.NoError(t, err)
	assert.Equal(t, "silent (muted)\n", out)

	out, err = h.run(t, "resolve", "com.chat")
	require.NoError(t, err)
	assert.Contains(t, out, "vibrate (app)")

	assert.Len(t, h.recorder.Waveforms(), 2)

	out, err = h.run(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Rules:       1 app, 1 sender")
	assert.Contains(t, out, "Last match:  com.chat at ")
	assert.Contains(t, out, "Last buzz:   com.chat, 2 steps, 100ms")
}

func TestPattern(t *testing.T) {
	h := newHarness(t)

	t.Run("validate remote", func(t *testing.T) {
		out, err := h.run(t, "pattern", "validate", "0,200:80,100")
		require.NoError(t, err)
		assert.Equal(t, "0, 200:80, 100\n3 segments, 300ms total\n", out)
	})

	t.Run("validate local", func(t *testing.T) {
		out, err := h.run(t, "pattern", "validate", "--local", "500")
		require.NoError(t, err)
		assert.Equal(t, "500\n1 segments, 500ms total\n", out)

		_, err = h.run(t, "pattern", "validate", "--local", "0, abc")
		assert.Error(t, err)
	})

	t.Run("pulse", func(t *testing.T) {
		out, err := h.run(t, "pattern", "pulse", "--pulse", "200", "--pause", "100")
		require.NoError(t, err)
		assert.Equal(t, "0, 200, 100\n", out)

		out, err = h.run(t, "pattern", "pulse", "--pattern", "0, 200, 100", "--pulse", "50", "--pause", "0", "--strength", "999")
		require.NoError(t, err)
		assert.Equal(t, "0, 200, 100, 50:255, 0\n", out)

		_, err = h.run(t, "pattern", "pulse", "--pulse", "-1")
		assert.Error(t, err)
	})

	t.Run("generate", func(t *testing.T) {
		out, err := h.run(t, "pattern", "generate", "double", "tap")
		require.NoError(t, err)
		assert.Equal(t, "0, 100:255, 50, 100:255\n4 segments, 250ms total\n", out)
	})
}

func TestBundle(t *testing.T) {
	h := newHarness(t)
	dir := t.TempDir()

	in := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(in, []byte(`
apps:
  - package: com.chat
    pattern: "0, 100"
senders:
  - package: com.chat
    sender: Alice
    pattern: "0, 600"
`), 0600))

	out, err := h.run(t, "bundle", "import", in)
	require.NoError(t, err)
	assert.Contains(t, out, "Applied 1 app rules, 1 sender rules, 0 mute flags")

	out, err = h.run(t, "bundle", "export")
	require.NoError(t, err)
	assert.Contains(t, out, "[[apps]]")
	assert.Contains(t, out, `pattern = "0, 600:255"`)

	exported := filepath.Join(dir, "out.yml")
	_, err = h.run(t, "bundle", "export", "-o", exported)
	require.NoError(t, err)
	data, err := os.ReadFile(exported)
	require.NoError(t, err)
	assert.Contains(t, string(data), "sender: Alice")

	t.Run("rejected entries fail the command", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.toml")
		require.NoError(t, os.WriteFile(bad, []byte(`
[[senders]]
package = "com.chat"
sender = "Mallory"
pattern = "0, 100:0"
`), 0600))

		out, err := h.run(t, "bundle", "import", bad)
		assert.ErrorContains(t, err, "1 entries rejected")
		assert.Contains(t, out, "rejected sender:com.chat|Mallory")
	})

	t.Run("unknown extension", func(t *testing.T) {
		_, err := h.run(t, "bundle", "import", filepath.Join(dir, "rules.json"))
		assert.Error(t, err)
	})
}

func TestExportFormat(t *testing.T) {
	f, err := exportFormat("", "")
	require.NoError(t, err)
	assert.Equal(t, "toml", string(f))

	f, err = exportFormat("", "rules.yml")
	require.NoError(t, err)
	assert.Equal(t, "yaml", string(f))

	f, err = exportFormat("yaml", "rules.toml")
	require.NoError(t, err)
	assert.Equal(t, "yaml", string(f))

	_, err = exportFormat("xml", "")
	assert.Error(t, err)
}

func TestStatusError(t *testing.T) {
	err := statusError(409, []byte(`{"message":"key mismatch"}`))
	assert.EqualError(t, err, "server returned status 409: key mismatch")

	err = statusError(502, []byte("bad gateway\n"))
	assert.EqualError(t, err, "server returned status 502: bad gateway")
}
