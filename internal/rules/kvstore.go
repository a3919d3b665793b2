package rules

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/hapticd/internal/kv"
	"github.com/fyrsmithlabs/hapticd/internal/pattern"
)

// record is the JSON value stored at a rule's storage key.
type record struct {
	Kind    Kind   `json:"kind"`
	Package string `json:"package"`
	Token   string `json:"token,omitempty"`
	Pattern string `json:"pattern"`
	Name    string `json:"name"`
	Senders string `json:"senders,omitempty"`
}

// KVStore implements Store over a kv.Backend.
//
// Each rule is a single JSON record so a save is one backend Put. Values
// written by older releases (bare pattern text with name and sender
// strings under side keys) are still readable; the side keys are removed
// the next time the rule is written or deleted.
type KVStore struct {
	backend kv.Backend
	logger  *zap.Logger
}

// NewKVStore creates a store over backend.
func NewKVStore(backend kv.Backend, logger *zap.Logger) *KVStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KVStore{backend: backend, logger: logger}
}

// Put implements Store.
func (s *KVStore) Put(ctx context.Context, key RuleKey, in Input) (*Rule, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	if strings.TrimSpace(in.Pattern) == "" {
		return nil, s.Delete(ctx, key)
	}

	var senders string
	if key.Kind == KindSender {
		senders = strings.TrimSpace(in.Senders)
		if senders == "" {
			return nil, fmt.Errorf("%w: sender is required", ErrSaveRejected)
		}
		if NormalizeToken(senders) != key.Token {
			return nil, fmt.Errorf("%w: %q normalizes to %q, key token is %q",
				ErrKeyMismatch, senders, NormalizeToken(senders), key.Token)
		}
	}

	spec, err := pattern.Parse(in.Pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSaveRejected, err)
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = DefaultName
	}

	rec := record{
		Kind:    key.Kind,
		Package: key.Package,
		Token:   key.Token,
		Pattern: pattern.Format(spec),
		Name:    name,
		Senders: senders,
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode rule: %w", err)
	}
	if err := s.backend.Put(ctx, key.StorageKey(), string(data)); err != nil {
		return nil, fmt.Errorf("save rule %s: %w", key, err)
	}
	s.removeLegacy(ctx, key)

	return &Rule{
		Key:         key,
		Pattern:     spec,
		PatternText: rec.Pattern,
		Name:        name,
		Senders:     senders,
	}, nil
}

// Get implements Store.
func (s *KVStore) Get(ctx context.Context, key RuleKey) (*Rule, error) {
	value, err := s.backend.Get(ctx, key.StorageKey())
	if errors.Is(err, kv.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load rule %s: %w", key, err)
	}
	return s.decode(ctx, key, value)
}

// Delete implements Store.
func (s *KVStore) Delete(ctx context.Context, key RuleKey) error {
	if err := s.backend.Delete(ctx, key.StorageKey()); err != nil {
		return fmt.Errorf("delete rule %s: %w", key, err)
	}
	s.removeLegacy(ctx, key)
	return nil
}

// List implements Store.
func (s *KVStore) List(ctx context.Context) ([]Rule, error) {
	keys, err := s.backend.Keys(ctx, appPrefix)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}

	out := make([]Rule, 0, len(keys))
	for _, k := range keys {
		rule, err := s.ruleAt(ctx, k)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			s.logger.Warn("skipping unreadable rule", zap.String("key", k), zap.Error(err))
			continue
		}
		out = append(out, *rule)
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if pa, pb := strings.ToLower(a.Key.Package), strings.ToLower(b.Key.Package); pa != pb {
			return pa < pb
		}
		if a.Senders != b.Senders {
			return a.Senders < b.Senders
		}
		if a.Key.Kind != b.Key.Kind {
			return a.Key.Kind == KindApp
		}
		return a.Key.Token < b.Key.Token
	})
	return out, nil
}

// SenderRules implements Store.
func (s *KVStore) SenderRules(ctx context.Context, pkg string) ([]Rule, error) {
	keys, err := s.backend.Keys(ctx, senderPrefix+pkg+"|")
	if err != nil {
		return nil, fmt.Errorf("list sender rules for %s: %w", pkg, err)
	}

	out := make([]Rule, 0, len(keys))
	for _, k := range keys {
		rule, err := s.ruleAt(ctx, k)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			s.logger.Warn("skipping unreadable sender rule", zap.String("key", k), zap.Error(err))
			continue
		}
		if rule.Key.Kind != KindSender || rule.Key.Package != pkg {
			continue
		}
		out = append(out, *rule)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Key.Token < out[j].Key.Token
	})
	return out, nil
}

// SetMute implements Store.
func (s *KVStore) SetMute(ctx context.Context, pkg string, enabled bool) error {
	if pkg == "" {
		return fmt.Errorf("%w: package is required", ErrSaveRejected)
	}
	if err := s.backend.Put(ctx, mutePrefix+pkg, strconv.FormatBool(enabled)); err != nil {
		return fmt.Errorf("set mute for %s: %w", pkg, err)
	}
	return nil
}

// Mute implements Store.
func (s *KVStore) Mute(ctx context.Context, pkg string) (bool, error) {
	value, err := s.backend.Get(ctx, mutePrefix+pkg)
	if errors.Is(err, kv.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get mute for %s: %w", pkg, err)
	}
	enabled, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("parse mute for %s: %w", pkg, err)
	}
	return enabled, nil
}

// MutedPackages implements Store.
func (s *KVStore) MutedPackages(ctx context.Context) ([]string, error) {
	keys, err := s.backend.Keys(ctx, mutePrefix)
	if err != nil {
		return nil, fmt.Errorf("list mute flags: %w", err)
	}

	var out []string
	for _, k := range keys {
		pkg := strings.TrimPrefix(k, mutePrefix)
		muted, err := s.Mute(ctx, pkg)
		if err != nil {
			s.logger.Warn("skipping unreadable mute flag", zap.String("key", k), zap.Error(err))
			continue
		}
		if muted {
			out = append(out, pkg)
		}
	}
	sort.Strings(out)
	return out, nil
}

// RecordLastEvent implements Store.
func (s *KVStore) RecordLastEvent(ctx context.Context, pkg string, at time.Time) error {
	return s.recordObservation(ctx, keyLastPackage, keyLastTime, pkg, at)
}

// RecordLastMatch implements Store.
func (s *KVStore) RecordLastMatch(ctx context.Context, pkg string, at time.Time) error {
	return s.recordObservation(ctx, keyLastMatchPackage, keyLastMatchTime, pkg, at)
}

// LastEvent implements Store.
func (s *KVStore) LastEvent(ctx context.Context) (*Observation, error) {
	return s.observation(ctx, keyLastPackage, keyLastTime)
}

// LastMatch implements Store.
func (s *KVStore) LastMatch(ctx context.Context) (*Observation, error) {
	return s.observation(ctx, keyLastMatchPackage, keyLastMatchTime)
}

func (s *KVStore) recordObservation(ctx context.Context, pkgKey, timeKey, pkg string, at time.Time) error {
	if err := s.backend.Put(ctx, pkgKey, pkg); err != nil {
		return fmt.Errorf("record %s: %w", pkgKey, err)
	}
	if err := s.backend.Put(ctx, timeKey, strconv.FormatInt(at.UnixMilli(), 10)); err != nil {
		return fmt.Errorf("record %s: %w", timeKey, err)
	}
	return nil
}

func (s *KVStore) observation(ctx context.Context, pkgKey, timeKey string) (*Observation, error) {
	pkg, err := s.backend.Get(ctx, pkgKey)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", pkgKey, err)
	}

	raw, err := s.backend.Get(ctx, timeKey)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", timeKey, err)
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || ms <= 0 {
		return nil, nil
	}

	return &Observation{Package: pkg, At: time.UnixMilli(ms)}, nil
}

// ruleAt reads the rule stored at backend key k. An app package such as
// "name_tag.app" shares its key with a legacy side key, so records name
// their own rule and the key prefix is only trusted for legacy values.
func (s *KVStore) ruleAt(ctx context.Context, k string) (*Rule, error) {
	value, err := s.backend.Get(ctx, k)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load rule %s: %w", k, err)
	}

	key, ok := parseStorageKey(k)
	if isRecord(value) {
		var id RuleKey
		if json.Unmarshal([]byte(value), &id) == nil && id.Kind != "" {
			key, ok = id, validateKey(id) == nil && id.StorageKey() == k
		}
	}
	if !ok {
		return nil, ErrNotFound
	}
	return s.decode(ctx, key, value)
}

func isRecord(value string) bool {
	return strings.HasPrefix(strings.TrimSpace(value), "{")
}

// decode turns a stored value into a Rule, falling back to the legacy
// layout when the value is not a JSON record.
func (s *KVStore) decode(ctx context.Context, key RuleKey, value string) (*Rule, error) {
	var rec record
	if isRecord(value) {
		if err := json.Unmarshal([]byte(value), &rec); err != nil {
			return nil, fmt.Errorf("decode rule %s: %w", key, err)
		}
		if rec.Kind != "" && (rec.Kind != key.Kind || rec.Package != key.Package || rec.Token != key.Token) {
			return nil, ErrNotFound
		}
	} else {
		legacy, err := s.legacyRecord(ctx, key, value)
		if err != nil {
			return nil, err
		}
		rec = legacy
	}

	spec, err := pattern.Parse(rec.Pattern)
	if err != nil {
		return nil, fmt.Errorf("decode rule %s: %w", key, err)
	}
	name := rec.Name
	if name == "" {
		name = DefaultName
	}

	return &Rule{
		Key:         key,
		Pattern:     spec,
		PatternText: pattern.Format(spec),
		Name:        name,
		Senders:     rec.Senders,
	}, nil
}

func (s *KVStore) legacyRecord(ctx context.Context, key RuleKey, value string) (record, error) {
	rec := record{Kind: key.Kind, Package: key.Package, Token: key.Token, Pattern: value}

	side := key.legacyKeys()
	name, err := s.optional(ctx, side[0])
	if err != nil {
		return rec, err
	}
	rec.Name = name

	if key.Kind == KindSender {
		senders, err := s.optional(ctx, side[1])
		if err != nil {
			return rec, err
		}
		rec.Senders = senders
	}
	return rec, nil
}

func (s *KVStore) optional(ctx context.Context, key string) (string, error) {
	v, err := s.backend.Get(ctx, key)
	if errors.Is(err, kv.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", key, err)
	}
	return v, nil
}

// removeLegacy deletes the side keys of key. A side key holding a record
// is another package's rule and is left alone.
func (s *KVStore) removeLegacy(ctx context.Context, key RuleKey) {
	for _, k := range key.legacyKeys() {
		v, err := s.backend.Get(ctx, k)
		if errors.Is(err, kv.ErrNotFound) {
			continue
		}
		if err != nil {
			s.logger.Warn("failed to read legacy key", zap.String("key", k), zap.Error(err))
			continue
		}
		if isRecord(v) {
			continue
		}
		if err := s.backend.Delete(ctx, k); err != nil {
			s.logger.Warn("failed to remove legacy key", zap.String("key", k), zap.Error(err))
		}
	}
}

func validateKey(key RuleKey) error {
	if key.Package == "" {
		return fmt.Errorf("%w: package is required", ErrSaveRejected)
	}
	if strings.Contains(key.Package, "|") {
		return fmt.Errorf("%w: package %q contains '|'", ErrSaveRejected, key.Package)
	}
	switch key.Kind {
	case KindApp:
		return nil
	case KindSender:
		if key.Token == "" {
			return fmt.Errorf("%w: sender is required", ErrSaveRejected)
		}
		return nil
	}
	return fmt.Errorf("%w: unknown rule kind %q", ErrSaveRejected, key.Kind)
}

var _ Store = (*KVStore)(nil)
