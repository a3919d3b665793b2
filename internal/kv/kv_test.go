package kv

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/hapticd/internal/natstest"
)

func backends(t *testing.T) map[string]Backend {
	t.Helper()

	sqlite, err := OpenSQLite(filepath.Join(t.TempDir(), "sub", "rules.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	nb, err := OpenNATS(natstest.Connect(t), "test_rules")
	require.NoError(t, err)

	return map[string]Backend{
		"memory": NewMemory(),
		"sqlite": sqlite,
		"nats":   nb,
	}
}

func TestBackends(t *testing.T) {
	ctx := context.Background()

	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			t.Run("get missing", func(t *testing.T) {
				_, err := b.Get(ctx, "missing")
				assert.ErrorIs(t, err, ErrNotFound)
			})

			t.Run("put get overwrite", func(t *testing.T) {
				require.NoError(t, b.Put(ctx, "pattern_com.chat", "one"))
				got, err := b.Get(ctx, "pattern_com.chat")
				require.NoError(t, err)
				assert.Equal(t, "one", got)

				require.NoError(t, b.Put(ctx, "pattern_com.chat", "two"))
				got, err = b.Get(ctx, "pattern_com.chat")
				require.NoError(t, err)
				assert.Equal(t, "two", got)
			})

			t.Run("delete is idempotent", func(t *testing.T) {
				require.NoError(t, b.Put(ctx, "gone", "x"))
				require.NoError(t, b.Delete(ctx, "gone"))
				require.NoError(t, b.Delete(ctx, "gone"))
				require.NoError(t, b.Delete(ctx, "never-existed"))

				_, err := b.Get(ctx, "gone")
				assert.ErrorIs(t, err, ErrNotFound)
			})

			t.Run("keys by prefix sorted", func(t *testing.T) {
				require.NoError(t, b.Put(ctx, "pattern_sender_com.chat|bob", "b"))
				require.NoError(t, b.Put(ctx, "pattern_sender_com.chat|alice", "a"))
				require.NoError(t, b.Put(ctx, "pattern_sender_com.mail|zed", "z"))

				keys, err := b.Keys(ctx, "pattern_sender_com.chat|")
				require.NoError(t, err)
				assert.Equal(t, []string{
					"pattern_sender_com.chat|alice",
					"pattern_sender_com.chat|bob",
				}, keys)

				keys, err = b.Keys(ctx, "pattern_sender_")
				require.NoError(t, err)
				assert.Len(t, keys, 3)
			})

			t.Run("arbitrary key bytes", func(t *testing.T) {
				key := "pattern_sender_com.x|Ünïcode name=1 "
				require.NoError(t, b.Put(ctx, key, "v"))
				got, err := b.Get(ctx, key)
				require.NoError(t, err)
				assert.Equal(t, "v", got)

				keys, err := b.Keys(ctx, "pattern_sender_com.x|")
				require.NoError(t, err)
				assert.Equal(t, []string{key}, keys)
			})
		})
	}
}

func TestBackends_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := NewMemory()
	_, err := m.Get(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, m.Put(ctx, "k", "v"), context.Canceled)
}

func TestMemory_Snapshot(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Put(context.Background(), "a", "1"))

	snap := m.Snapshot()
	snap["a"] = "mutated"

	got, err := m.Get(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, "1", got)
}

func TestSQLite_Persists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "rules.db")

	s, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, "mute_no_sender_com.chat", "true"))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Get(ctx, "mute_no_sender_com.chat")
	require.NoError(t, err)
	assert.Equal(t, "true", got)
}

func TestNATS_ReopenExistingBucket(t *testing.T) {
	ctx := context.Background()
	nc := natstest.Connect(t)

	first, err := OpenNATS(nc, "")
	require.NoError(t, err)
	require.NoError(t, first.Put(ctx, "last_package", "com.chat"))

	second, err := OpenNATS(nc, DefaultBucket)
	require.NoError(t, err)
	got, err := second.Get(ctx, "last_package")
	require.NoError(t, err)
	assert.Equal(t, "com.chat", got)
}

func TestOpenNATS_NilConn(t *testing.T) {
	_, err := OpenNATS(nil, "x")
	assert.Error(t, err)
}

func TestKeyEscaping(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"pattern_com-chat", "pattern_com-chat"},
		{"pattern_com.chat", "pattern_com=2Echat"},
		{"a|b", "a=7Cb"},
		{"x=y", "x=3Dy"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			enc := encodeKey(tt.in)
			assert.Equal(t, tt.want, enc)

			dec, err := decodeKey(enc)
			require.NoError(t, err)
			assert.Equal(t, tt.in, dec)
		})
	}

	_, err := decodeKey("bad=7")
	assert.Error(t, err)
	_, err = decodeKey("bad=ZZ")
	assert.Error(t, err)
}
