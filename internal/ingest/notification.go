// Package ingest receives notification events over NATS and feeds them to
// the resolution engine.
package ingest

import (
	"strings"

	"github.com/fyrsmithlabs/hapticd/internal/engine"
)

// Message is one entry of a messaging-style notification.
type Message struct {
	Sender string `json:"sender,omitempty"`
	Name   string `json:"name,omitempty"`
	From   string `json:"from,omitempty"`
	Text   string `json:"text,omitempty"`
}

// sender returns the first non-empty of Sender, Name and From.
func (m Message) sender() string {
	for _, s := range []string{m.Sender, m.Name, m.From} {
		if s != "" {
			return s
		}
	}
	return ""
}

// Notification is the inbound wire payload. Publishers either send the
// already extracted text or the raw notification fields.
type Notification struct {
	PackageID     string `json:"package_id"`
	ExtractedText string `json:"extracted_text,omitempty"`
	TimestampMs   int64  `json:"timestamp_ms,omitempty"`

	Messages          []Message `json:"messages,omitempty"`
	ConversationTitle string    `json:"conversation_title,omitempty"`
	Title             string    `json:"title,omitempty"`
	SubText           string    `json:"sub_text,omitempty"`
	BigTitle          string    `json:"big_title,omitempty"`
	Text              string    `json:"text,omitempty"`
	BigText           string    `json:"big_text,omitempty"`
}

// ExtractText joins the non-blank text fields with single spaces: the first
// message sender, then conversation title, title, sub text, big title, text
// and big text.
func (n Notification) ExtractText() string {
	var sender string
	for _, m := range n.Messages {
		if s := m.sender(); strings.TrimSpace(s) != "" {
			sender = s
			break
		}
	}

	candidates := []string{
		sender,
		n.ConversationTitle,
		n.Title,
		n.SubText,
		n.BigTitle,
		n.Text,
		n.BigText,
	}
	parts := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if strings.TrimSpace(c) != "" {
			parts = append(parts, c)
		}
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}

// Event converts the payload into an engine event. Explicit extracted text
// takes precedence over the raw fields.
func (n Notification) Event() engine.Event {
	text := n.ExtractedText
	if strings.TrimSpace(text) == "" {
		text = n.ExtractText()
	}
	return engine.Event{
		PackageID:     strings.TrimSpace(n.PackageID),
		ExtractedText: text,
		TimestampMs:   n.TimestampMs,
	}
}
