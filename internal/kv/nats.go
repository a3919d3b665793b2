package kv

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/nats-io/nats.go"
)

// DefaultBucket is the JetStream KeyValue bucket used when none is configured.
const DefaultBucket = "hapticd_rules"

// NATS is a Backend stored in a JetStream KeyValue bucket.
//
// JetStream restricts keys to [-/_=.a-zA-Z0-9]; every other byte (and the
// escape byte '=' itself) is written as "=XX" hex and decoded on listing.
type NATS struct {
	kv nats.KeyValue
}

// OpenNATS binds to bucket, creating it with single-revision history when
// it does not exist.
func OpenNATS(nc *nats.Conn, bucket string) (*NATS, error) {
	if nc == nil {
		return nil, errors.New("nats connection is required")
	}
	if bucket == "" {
		bucket = DefaultBucket
	}

	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream context: %w", err)
	}

	kv, err := js.KeyValue(bucket)
	if errors.Is(err, nats.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{
			Bucket:      bucket,
			Description: "hapticd haptic rules",
			History:     1,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("bind bucket %q: %w", bucket, err)
	}

	return &NATS{kv: kv}, nil
}

// Get implements Backend.
func (n *NATS) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	entry, err := n.kv.Get(encodeKey(key))
	if errors.Is(err, nats.ErrKeyNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get %q: %w", key, err)
	}
	return string(entry.Value()), nil
}

// Put implements Backend.
func (n *NATS) Put(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := n.kv.PutString(encodeKey(key), value); err != nil {
		return fmt.Errorf("put %q: %w", key, err)
	}
	return nil
}

// Delete implements Backend.
func (n *NATS) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := n.kv.Delete(encodeKey(key))
	if err != nil && !errors.Is(err, nats.ErrKeyNotFound) {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

// Keys implements Backend.
func (n *NATS) Keys(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := n.kv.Keys(nats.Context(ctx))
	if errors.Is(err, nats.ErrNoKeysFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}

	var keys []string
	for _, enc := range raw {
		k, err := decodeKey(enc)
		if err != nil {
			// Foreign key written by another client; not ours.
			continue
		}
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Close is a no-op; the caller owns the connection.
func (n *NATS) Close() error {
	return nil
}

const hexDigits = "0123456789ABCDEF"

func isKeySafe(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '-' || c == '_':
		return true
	}
	return false
}

// encodeKey maps an arbitrary key onto the JetStream key alphabet.
func encodeKey(key string) string {
	var b strings.Builder
	b.Grow(len(key))
	for i := 0; i < len(key); i++ {
		c := key[i]
		if isKeySafe(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('=')
		b.WriteByte(hexDigits[c>>4])
		b.WriteByte(hexDigits[c&0x0f])
	}
	return b.String()
}

func decodeKey(enc string) (string, error) {
	var b strings.Builder
	b.Grow(len(enc))
	for i := 0; i < len(enc); i++ {
		c := enc[i]
		if c != '=' {
			b.WriteByte(c)
			continue
		}
		if i+2 >= len(enc) {
			return "", fmt.Errorf("truncated escape in %q", enc)
		}
		hi := strings.IndexByte(hexDigits, enc[i+1])
		lo := strings.IndexByte(hexDigits, enc[i+2])
		if hi < 0 || lo < 0 {
			return "", fmt.Errorf("invalid escape in %q", enc)
		}
		b.WriteByte(byte(hi<<4 | lo))
		i += 2
	}
	return b.String(), nil
}

var _ Backend = (*NATS)(nil)
