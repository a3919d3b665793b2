// Package bundle reads and writes declarative rule files.
//
// A bundle lists app rules and sender rules in TOML or YAML:
//
//	[[apps]]
//	package = "com.chat"
//	name = "Chat"
//	pattern = "0, 200, 100, 200"
//	mute_when_no_sender_match = true
//
//	[[senders]]
//	package = "com.chat"
//	sender = "Alice"
//	pattern = "0, 600:255"
//
// Apply validates every entry on its own. Invalid entries are reported and
// skipped; valid ones are written.
package bundle

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// maxBundleSize caps how much of a bundle file is read.
const maxBundleSize = 1 << 20

// Format is a bundle encoding.
type Format string

const (
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
)

var (
	// ErrUnknownFormat is returned for an unsupported format or extension.
	ErrUnknownFormat = errors.New("unknown bundle format")
	// ErrInvalidBundle is returned when a bundle cannot be decoded.
	ErrInvalidBundle = errors.New("invalid bundle")
)

// AppEntry is an app rule, an app mute flag, or both. A blank pattern
// leaves the stored app rule untouched.
type AppEntry struct {
	Package               string `toml:"package" yaml:"package"`
	Name                  string `toml:"name,omitempty" yaml:"name,omitempty"`
	Pattern               string `toml:"pattern,omitempty" yaml:"pattern,omitempty"`
	MuteWhenNoSenderMatch *bool  `toml:"mute_when_no_sender_match,omitempty" yaml:"mute_when_no_sender_match,omitempty"`
}

// SenderEntry is a sender rule. Sender may list several names separated
// by commas.
type SenderEntry struct {
	Package string `toml:"package" yaml:"package"`
	Sender  string `toml:"sender" yaml:"sender"`
	Name    string `toml:"name,omitempty" yaml:"name,omitempty"`
	Pattern string `toml:"pattern" yaml:"pattern"`
}

// Bundle is the decoded content of a rule file.
type Bundle struct {
	Apps    []AppEntry    `toml:"apps,omitempty" yaml:"apps,omitempty"`
	Senders []SenderEntry `toml:"senders,omitempty" yaml:"senders,omitempty"`
}

// ParseFormat accepts "toml", "yaml" or "yml".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "toml":
		return FormatTOML, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// FormatFromPath picks the format from the file extension.
func FormatFromPath(path string) (Format, error) {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		return "", fmt.Errorf("%w: %s has no extension", ErrUnknownFormat, path)
	}
	return ParseFormat(ext)
}

// Load reads the bundle at path.
func Load(path string) (*Bundle, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open bundle: %w", err)
	}
	defer f.Close()

	b, err := Decode(f, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return b, nil
}

// Decode reads a bundle from r. Unknown keys are rejected.
func Decode(r io.Reader, format Format) (*Bundle, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBundleSize+1))
	if err != nil {
		return nil, fmt.Errorf("read bundle: %w", err)
	}
	if len(data) > maxBundleSize {
		return nil, fmt.Errorf("%w: larger than %d bytes", ErrInvalidBundle, maxBundleSize)
	}

	var b Bundle
	switch format {
	case FormatTOML:
		md, err := toml.NewDecoder(bytes.NewReader(data)).Decode(&b)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidBundle, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("%w: unknown key %q", ErrInvalidBundle, undecoded[0].String())
		}
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&b); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidBundle, err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	return &b, nil
}

// Encode writes b to w in the given format.
func Encode(w io.Writer, b *Bundle, format Format) error {
	switch format {
	case FormatTOML:
		if err := toml.NewEncoder(w).Encode(b); err != nil {
			return fmt.Errorf("encode toml: %w", err)
		}
		return nil
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(b); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	}
	return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}

// sort orders entries by package, then sender.
func (b *Bundle) sort() {
	sort.SliceStable(b.Apps, func(i, j int) bool {
		return strings.ToLower(b.Apps[i].Package) < strings.ToLower(b.Apps[j].Package)
	})
	sort.SliceStable(b.Senders, func(i, j int) bool {
		a, c := b.Senders[i], b.Senders[j]
		if pa, pc := strings.ToLower(a.Package), strings.ToLower(c.Package); pa != pc {
			return pa < pc
		}
		return a.Sender < c.Sender
	})
}
