package actuator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// DefaultSubjectPrefix is the subject prefix waveforms are published under.
const DefaultSubjectPrefix = "haptics.vibrate"

// NATS publishes waveforms as JSON to <prefix>.<package>.
type NATS struct {
	nc     *nats.Conn
	prefix string
	logger *zap.Logger
}

// NewNATS creates a publishing actuator.
func NewNATS(nc *nats.Conn, prefix string, logger *zap.Logger) (*NATS, error) {
	if nc == nil {
		return nil, errors.New("nats connection is required")
	}
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NATS{nc: nc, prefix: strings.TrimSuffix(prefix, "."), logger: logger}, nil
}

// Subject returns the subject waveforms for pkg are published on.
func (n *NATS) Subject(pkg string) string {
	return n.prefix + "." + SubjectToken(pkg)
}

// Dispatch implements Actuator. Publishing is fire-and-forget.
func (n *NATS) Dispatch(ctx context.Context, w Waveform) error {
	data, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("marshal waveform: %w", err)
	}

	subject := n.Subject(w.Package)
	if err := n.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish to %s: %w", subject, err)
	}

	n.logger.Debug("published waveform",
		zap.String("subject", subject),
		zap.Int("pairs", len(w.Pairs)),
	)
	return nil
}

// SubjectToken maps pkg onto a single NATS subject token.
func SubjectToken(pkg string) string {
	if pkg == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_':
			return r
		}
		return '_'
	}, pkg)
}
