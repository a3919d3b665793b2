package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeToken(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"Alice", "alice"},
		{"  Bob Smith ", "bob_smith"},
		{"alice,bob", "alice_bob"},
		{"a.b-c_d", "a.b-c_d"},
		{"Zoë", "zo_"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeToken(tt.raw))
		})
	}
}

func TestRuleKey(t *testing.T) {
	t.Run("equality", func(t *testing.T) {
		assert.Equal(t, Sender("com.chat", "Alice"), Sender("com.chat", " alice "))
		assert.NotEqual(t, App("com.chat"), Sender("com.chat", "alice"))
		assert.True(t, App("com.chat") == App("com.chat"))
	})

	t.Run("storage keys", func(t *testing.T) {
		assert.Equal(t, "pattern_com.chat", App("com.chat").StorageKey())
		assert.Equal(t, "pattern_sender_com.chat|alice", Sender("com.chat", "Alice").StorageKey())
	})

	t.Run("string", func(t *testing.T) {
		assert.Equal(t, "app:com.chat", App("com.chat").String())
		assert.Equal(t, "sender:com.chat|alice", Sender("com.chat", "alice").String())
	})
}

func TestParseStorageKey(t *testing.T) {
	tests := []struct {
		key  string
		want RuleKey
		ok   bool
	}{
		{"pattern_com.chat", App("com.chat"), true},
		{"pattern_sender_com.chat|alice", Sender("com.chat", "alice"), true},
		{"pattern_name_com.chat", RuleKey{}, false},
		{"pattern_sender_name_com.chat|alice", RuleKey{}, false},
		{"pattern_sender_value_com.chat|alice", RuleKey{}, false},
		{"pattern_sender_com.chat", RuleKey{}, false},
		{"pattern_", RuleKey{}, false},
		{"mute_no_sender_com.chat", RuleKey{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, ok := parseStorageKey(tt.key)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRule_SenderTokens(t *testing.T) {
	r := Rule{Senders: " Alice , ,BOB,  "}
	assert.Equal(t, []string{"alice", "bob"}, r.SenderTokens())
	assert.Nil(t, Rule{}.SenderTokens())
}
