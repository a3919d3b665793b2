// Package rules persists haptic rules keyed by application and sender.
package rules

import (
	"strings"
)

// Kind distinguishes app-wide rules from sender-specific rules.
type Kind string

const (
	KindApp    Kind = "app"
	KindSender Kind = "sender"
)

// Storage key prefixes. The legacy prefixes are only read for migration.
const (
	appPrefix    = "pattern_"
	senderPrefix = "pattern_sender_"
	mutePrefix   = "mute_no_sender_"

	legacyNamePrefix        = "pattern_name_"
	legacySenderNamePrefix  = "pattern_sender_name_"
	legacySenderValuePrefix = "pattern_sender_value_"

	keyLastPackage      = "last_package"
	keyLastTime         = "last_time"
	keyLastMatchPackage = "last_match_package"
	keyLastMatchTime    = "last_match_time"
)

// RuleKey identifies a rule. Keys compare with ==.
type RuleKey struct {
	Kind    Kind   `json:"kind"`
	Package string `json:"package"`
	Token   string `json:"token,omitempty"`
}

// App returns the key of the app-wide rule for pkg.
func App(pkg string) RuleKey {
	return RuleKey{Kind: KindApp, Package: pkg}
}

// Sender returns the key of the sender rule for pkg whose raw sender string
// is raw.
func Sender(pkg, raw string) RuleKey {
	return RuleKey{Kind: KindSender, Package: pkg, Token: NormalizeToken(raw)}
}

// NormalizeToken lowercases and trims raw, then replaces every rune outside
// [a-z0-9._-] with '_'.
func NormalizeToken(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r == '.' || r == '_' || r == '-':
			return r
		}
		return '_'
	}, s)
}

// StorageKey returns the backend key holding the rule record.
func (k RuleKey) StorageKey() string {
	if k.Kind == KindSender {
		return senderPrefix + k.Package + "|" + k.Token
	}
	return appPrefix + k.Package
}

func (k RuleKey) legacyKeys() []string {
	if k.Kind == KindSender {
		suffix := k.Package + "|" + k.Token
		return []string{legacySenderNamePrefix + suffix, legacySenderValuePrefix + suffix}
	}
	return []string{legacyNamePrefix + k.Package}
}

// String implements fmt.Stringer.
func (k RuleKey) String() string {
	if k.Kind == KindSender {
		return string(k.Kind) + ":" + k.Package + "|" + k.Token
	}
	return string(k.Kind) + ":" + k.Package
}

// parseStorageKey maps a backend key holding a legacy value back to a
// RuleKey. Legacy side keys and unrelated keys report false.
func parseStorageKey(key string) (RuleKey, bool) {
	switch {
	case strings.HasPrefix(key, legacySenderNamePrefix),
		strings.HasPrefix(key, legacySenderValuePrefix),
		strings.HasPrefix(key, legacyNamePrefix):
		return RuleKey{}, false
	case strings.HasPrefix(key, senderPrefix):
		pkg, token, ok := strings.Cut(strings.TrimPrefix(key, senderPrefix), "|")
		if !ok || pkg == "" || token == "" {
			return RuleKey{}, false
		}
		return RuleKey{Kind: KindSender, Package: pkg, Token: token}, true
	case strings.HasPrefix(key, appPrefix):
		pkg := strings.TrimPrefix(key, appPrefix)
		if pkg == "" {
			return RuleKey{}, false
		}
		return App(pkg), true
	}
	return RuleKey{}, false
}
