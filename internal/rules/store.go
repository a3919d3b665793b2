package rules

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrSaveRejected is returned when a rule cannot be saved.
	ErrSaveRejected = errors.New("rule rejected")

	// ErrNotFound is returned when a rule does not exist.
	ErrNotFound = errors.New("rule not found")

	// ErrKeyMismatch is returned when the sender string of a sender rule
	// does not normalize to the key's token.
	ErrKeyMismatch = errors.New("sender does not match rule key")
)

// Store persists rules, per-app settings and observability records.
type Store interface {
	// Put creates or replaces the rule at key. A blank pattern deletes the
	// rule and returns (nil, nil).
	Put(ctx context.Context, key RuleKey, in Input) (*Rule, error)

	// Get returns the rule at key or ErrNotFound.
	Get(ctx context.Context, key RuleKey) (*Rule, error)

	// Delete removes the rule at key. Missing keys are not an error.
	Delete(ctx context.Context, key RuleKey) error

	// List returns every rule ordered by package then sender string.
	List(ctx context.Context) ([]Rule, error)

	// SenderRules returns the sender rules of pkg ordered by token.
	SenderRules(ctx context.Context, pkg string) ([]Rule, error)

	// SetMute sets the mute-when-no-sender-match flag of pkg.
	SetMute(ctx context.Context, pkg string, enabled bool) error

	// Mute returns the flag of pkg, false when never set.
	Mute(ctx context.Context, pkg string) (bool, error)

	// MutedPackages returns every package whose flag is set, sorted. A flag
	// outlives the rules of its package.
	MutedPackages(ctx context.Context) ([]string, error)

	RecordLastEvent(ctx context.Context, pkg string, at time.Time) error
	RecordLastMatch(ctx context.Context, pkg string, at time.Time) error

	// LastEvent and LastMatch return nil when nothing was recorded.
	LastEvent(ctx context.Context) (*Observation, error)
	LastMatch(ctx context.Context) (*Observation, error)
}
