package ingest

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/hapticd/internal/actuator"
	"github.com/fyrsmithlabs/hapticd/internal/engine"
	"github.com/fyrsmithlabs/hapticd/internal/kv"
	"github.com/fyrsmithlabs/hapticd/internal/natstest"
	"github.com/fyrsmithlabs/hapticd/internal/rules"
)

func newTestEngine(t *testing.T) (*engine.Engine, *actuator.Recorder) {
	t.Helper()

	ctx := context.Background()
	store := rules.NewKVStore(kv.NewMemory(), nil)
	_, err := store.Put(ctx, rules.App("com.chat"), rules.Input{Pattern: "0, 100"})
	require.NoError(t, err)
	_, err = store.Put(ctx, rules.Sender("com.chat", "alice"), rules.Input{Pattern: "0, 200:90", Senders: "alice"})
	require.NoError(t, err)

	rec := actuator.NewRecorder(0)
	e, err := engine.New(store, rec)
	require.NoError(t, err)
	return e, rec
}

func request(t *testing.T, s *Subscriber, subject string, payload []byte) Reply {
	t.Helper()

	msg, err := s.nc.Request(subject, payload, 2*time.Second)
	require.NoError(t, err)

	var r Reply
	require.NoError(t, json.Unmarshal(msg.Data, &r))
	return r
}

func TestSubscriber_RequestReply(t *testing.T) {
	nc := natstest.Connect(t)
	e, rec := newTestEngine(t)

	s, err := NewSubscriber(nc, "", e, nil)
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	t.Run("raw notification", func(t *testing.T) {
		payload, _ := json.Marshal(Notification{
			PackageID: "com.chat",
			Messages:  []Message{{Sender: "Alice"}},
			Text:      "lunch?",
		})
		r := request(t, s, "notifications.com_chat", payload)

		assert.NotEmpty(t, r.EventID)
		require.NotNil(t, r.Decision)
		assert.Equal(t, engine.ReasonSender, r.Decision.Reason)
		assert.Equal(t, "alice", r.Decision.Token)
	})

	t.Run("engine event", func(t *testing.T) {
		payload, _ := json.Marshal(engine.Event{PackageID: "com.chat", ExtractedText: "bob"})
		r := request(t, s, "notifications.com_chat", payload)

		require.NotNil(t, r.Decision)
		assert.Equal(t, engine.ReasonApp, r.Decision.Reason)
	})

	t.Run("malformed payload", func(t *testing.T) {
		r := request(t, s, "notifications.x", []byte("{not json"))
		assert.Nil(t, r.Decision)
		assert.Equal(t, "malformed payload", r.Error)
	})

	t.Run("missing package", func(t *testing.T) {
		r := request(t, s, "notifications.x", []byte(`{"text":"hi"}`))
		assert.Nil(t, r.Decision)
		assert.Contains(t, r.Error, "package_id")
	})

	assert.Len(t, rec.Waveforms(), 2)
	assert.Equal(t, Stats{Received: 4, Resolved: 2, Dropped: 2}, s.Stats())
}

func TestSubscriber_FireAndForget(t *testing.T) {
	nc := natstest.Connect(t)
	e, rec := newTestEngine(t)

	s, err := NewSubscriber(nc, "notifications.>", e, nil)
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))

	payload, _ := json.Marshal(engine.Event{PackageID: "com.chat"})
	require.NoError(t, nc.Publish("notifications.com_chat", payload))
	require.NoError(t, nc.Flush())

	require.Eventually(t, func() bool {
		return len(rec.Waveforms()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop())
}

func TestSubscriber_StartTwice(t *testing.T) {
	nc := natstest.Connect(t)
	e, _ := newTestEngine(t)

	s, err := NewSubscriber(nc, "", e, nil)
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.Error(t, s.Start(context.Background()))
}

func TestNewSubscriber_Validation(t *testing.T) {
	e, _ := newTestEngine(t)
	_, err := NewSubscriber(nil, "", e, nil)
	assert.Error(t, err)

	_, err = NewSubscriber(natstest.Connect(t), "", nil, nil)
	assert.Error(t, err)
}
