// Package matcher selects the sender rule whose token best matches the text
// of a notification.
package matcher

import (
	"strings"

	"github.com/fyrsmithlabs/hapticd/internal/rules"
)

// Result is the winning rule and the token that matched.
type Result struct {
	Rule  rules.Rule
	Token string
}

// Match returns the sender rule of pkg whose token is the longest
// case-insensitive substring of text.
//
// Ties on length go to the lexically smallest token, then to the rule with
// the smallest key token, so the result does not depend on the order of
// senderRules. Rules of other packages are ignored.
func Match(pkg, text string, senderRules []rules.Rule) (*Result, bool) {
	haystack := strings.ToLower(text)
	if strings.TrimSpace(haystack) == "" {
		return nil, false
	}

	var best *Result
	for _, r := range senderRules {
		if r.Key.Kind != rules.KindSender || r.Key.Package != pkg {
			continue
		}
		for _, tok := range r.SenderTokens() {
			if !strings.Contains(haystack, tok) {
				continue
			}
			if best == nil || better(tok, r, best) {
				best = &Result{Rule: r, Token: tok}
			}
		}
	}

	if best == nil {
		return nil, false
	}
	return best, true
}

func better(tok string, r rules.Rule, cur *Result) bool {
	if len(tok) != len(cur.Token) {
		return len(tok) > len(cur.Token)
	}
	if tok != cur.Token {
		return tok < cur.Token
	}
	return r.Key.Token < cur.Rule.Key.Token
}
