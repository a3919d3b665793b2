package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNotification_ExtractText(t *testing.T) {
	tests := []struct {
		name string
		n    Notification
		want string
	}{
		{
			name: "all fields in order",
			n: Notification{
				Messages:          []Message{{Sender: "Alice"}},
				ConversationTitle: "Team",
				Title:             "New message",
				SubText:           "sub",
				BigTitle:          "big",
				Text:              "hello",
				BigText:           "hello there",
			},
			want: "Alice Team New message sub big hello hello there",
		},
		{
			name: "blank fields skipped",
			n:    Notification{Title: "  ", Text: "ping"},
			want: "ping",
		},
		{
			name: "first message with a sender",
			n: Notification{
				Messages: []Message{{Text: "no sender"}, {Name: "Bob"}, {Sender: "Carol"}},
				Text:     "hi",
			},
			want: "Bob hi",
		},
		{
			name: "from used when sender and name missing",
			n:    Notification{Messages: []Message{{From: "Dave"}}},
			want: "Dave",
		},
		{
			name: "empty",
			n:    Notification{},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.n.ExtractText())
		})
	}
}

func TestNotification_Event(t *testing.T) {
	t.Run("explicit text wins", func(t *testing.T) {
		ev := Notification{PackageID: " com.chat ", ExtractedText: "alice: hi", Title: "ignored", TimestampMs: 42}.Event()
		assert.Equal(t, "com.chat", ev.PackageID)
		assert.Equal(t, "alice: hi", ev.ExtractedText)
		assert.Equal(t, int64(42), ev.TimestampMs)
	})

	t.Run("raw fields extracted", func(t *testing.T) {
		ev := Notification{PackageID: "com.chat", Title: "Alice", Text: "hi"}.Event()
		assert.Equal(t, "Alice hi", ev.ExtractedText)
	})
}
