package rules

import (
	"strings"
	"time"

	"github.com/fyrsmithlabs/hapticd/internal/pattern"
)

// DefaultName is stored when a rule is saved without a name.
const DefaultName = "Untitled pattern"

// Rule is a stored haptic rule.
type Rule struct {
	Key         RuleKey      `json:"key"`
	Pattern     pattern.Spec `json:"segments"`
	PatternText string       `json:"pattern"`
	Name        string       `json:"name"`
	// Senders is the raw comma-separated sender string. Sender rules only.
	Senders string `json:"senders,omitempty"`
}

// SenderTokens returns the lowercased, trimmed, non-empty sender tokens.
func (r Rule) SenderTokens() []string {
	if r.Senders == "" {
		return nil
	}
	parts := strings.Split(r.Senders, ",")
	tokens := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			tokens = append(tokens, p)
		}
	}
	return tokens
}

// Input is the user-supplied content of a rule.
type Input struct {
	Pattern string `json:"pattern"`
	Name    string `json:"name"`
	Senders string `json:"senders,omitempty"`
}

// AppSettings holds per-application flags.
type AppSettings struct {
	Package               string `json:"package"`
	MuteWhenNoSenderMatch bool   `json:"mute_when_no_sender_match"`
}

// Observation records when a package was last seen.
type Observation struct {
	Package string    `json:"package"`
	At      time.Time `json:"at"`
}
