package actuator

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/fyrsmithlabs/hapticd/internal/natstest"
	"github.com/fyrsmithlabs/hapticd/internal/pattern"
)

func testWaveform() Waveform {
	return FromSpec("com.chat", pattern.Spec{{DurationMs: 0, Amplitude: 0}, {DurationMs: 200, Amplitude: 128}, {DurationMs: 100, Amplitude: 0}})
}

func TestFromSpec(t *testing.T) {
	w := testWaveform()
	assert.Equal(t, "com.chat", w.Package)
	assert.Equal(t, []Pair{{0, 0}, {200, 128}, {100, 0}}, w.Pairs)
	assert.Equal(t, int64(300), w.TotalMs())
}

func TestRecorder(t *testing.T) {
	ctx := context.Background()
	r := NewRecorder(2)

	_, ok := r.Last()
	assert.False(t, ok)

	for _, pkg := range []string{"a", "b", "c"} {
		require.NoError(t, r.Dispatch(ctx, Waveform{Package: pkg}))
	}

	got := r.Waveforms()
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].Package)

	last, ok := r.Last()
	require.True(t, ok)
	assert.Equal(t, "c", last.Package)

	boom := errors.New("device offline")
	r.FailWith(boom)
	assert.ErrorIs(t, r.Dispatch(ctx, Waveform{Package: "d"}), boom)
	last, _ = r.Last()
	assert.Equal(t, "d", last.Package)
}

func TestMulti(t *testing.T) {
	ctx := context.Background()
	ok := NewRecorder(0)
	failing := NewRecorder(0)
	boom := errors.New("boom")
	failing.FailWith(boom)

	err := Multi{ok, failing}.Dispatch(ctx, testWaveform())
	assert.ErrorIs(t, err, boom)
	assert.Len(t, ok.Waveforms(), 1)
	assert.Len(t, failing.Waveforms(), 1)

	assert.NoError(t, Multi{ok}.Dispatch(ctx, testWaveform()))
}

func TestLog(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	a := NewLog(zap.New(core))

	require.NoError(t, a.Dispatch(context.Background(), testWaveform()))

	entries := logs.FilterMessage("vibrate").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "com.chat", fields["package"])
	assert.Equal(t, int64(300), fields["total_ms"])
}

func TestSubjectToken(t *testing.T) {
	tests := map[string]string{
		"com.chat":      "com_chat",
		"com.Foo-bar_1": "com_Foo-bar_1",
		"a b>c*":        "a_b_c_",
		"":              "_",
	}
	for in, want := range tests {
		assert.Equal(t, want, SubjectToken(in), in)
	}
}

func TestNATS_Dispatch(t *testing.T) {
	nc := natstest.Connect(t)

	a, err := NewNATS(nc, "haptics.vibrate.", nil)
	require.NoError(t, err)
	assert.Equal(t, "haptics.vibrate.com_chat", a.Subject("com.chat"))

	sub, err := nc.SubscribeSync("haptics.vibrate.>")
	require.NoError(t, err)
	require.NoError(t, nc.Flush())

	require.NoError(t, a.Dispatch(context.Background(), testWaveform()))

	msg, err := sub.NextMsg(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, "haptics.vibrate.com_chat", msg.Subject)

	var got Waveform
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	assert.Equal(t, testWaveform(), got)
}

func TestNewNATS_Validation(t *testing.T) {
	_, err := NewNATS(nil, "", nil)
	assert.Error(t, err)

	nc := natstest.Connect(t)
	a, err := NewNATS(nc, "", nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultSubjectPrefix+".x", a.Subject("x"))
}

func TestNATS_DispatchClosedConnection(t *testing.T) {
	server := natstest.StartServer(t)
	nc, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)

	a, err := NewNATS(nc, "", nil)
	require.NoError(t, err)
	nc.Close()

	assert.Error(t, a.Dispatch(context.Background(), testWaveform()))
}
