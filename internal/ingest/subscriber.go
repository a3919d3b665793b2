package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/hapticd/internal/engine"
	"github.com/fyrsmithlabs/hapticd/internal/logging"
)

// DefaultSubject is the subject events are received on.
const DefaultSubject = "notifications.>"

// Resolver resolves events. *engine.Engine satisfies it.
type Resolver interface {
	Resolve(ctx context.Context, ev engine.Event) (engine.Decision, error)
}

// Reply is sent back when an inbound message carries a reply subject.
type Reply struct {
	EventID  string           `json:"event_id"`
	Decision *engine.Decision `json:"decision,omitempty"`
	Error    string           `json:"error,omitempty"`
}

// Stats counts processed messages.
type Stats struct {
	Received int64 `json:"received"`
	Resolved int64 `json:"resolved"`
	Dropped  int64 `json:"dropped"`
}

// Subscriber consumes notification events from a NATS subject. Callbacks
// of one subscription run sequentially.
type Subscriber struct {
	nc       *nats.Conn
	subject  string
	resolver Resolver
	logger   *zap.Logger

	mu  sync.Mutex
	sub *nats.Subscription
	ctx context.Context

	received atomic.Int64
	resolved atomic.Int64
	dropped  atomic.Int64
}

// NewSubscriber creates a subscriber. An empty subject uses DefaultSubject.
func NewSubscriber(nc *nats.Conn, subject string, resolver Resolver, logger *zap.Logger) (*Subscriber, error) {
	if nc == nil {
		return nil, errors.New("nats connection is required")
	}
	if resolver == nil {
		return nil, errors.New("resolver is required")
	}
	if subject == "" {
		subject = DefaultSubject
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Subscriber{nc: nc, subject: subject, resolver: resolver, logger: logger}, nil
}

// Start subscribes. ctx is used for every resolution until Stop.
func (s *Subscriber) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sub != nil {
		return errors.New("subscriber already started")
	}

	s.ctx = ctx
	sub, err := s.nc.Subscribe(s.subject, s.handle)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", s.subject, err)
	}
	s.sub = sub

	s.logger.Info("listening for notifications", zap.String("subject", s.subject))
	return nil
}

// Stop drains the subscription so in-flight messages finish.
func (s *Subscriber) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sub == nil {
		return nil
	}
	err := s.sub.Drain()
	s.sub = nil
	return err
}

// Stats returns message counters.
func (s *Subscriber) Stats() Stats {
	return Stats{
		Received: s.received.Load(),
		Resolved: s.resolved.Load(),
		Dropped:  s.dropped.Load(),
	}
}

func (s *Subscriber) handle(msg *nats.Msg) {
	s.received.Add(1)

	eventID := uuid.NewString()
	ctx := logging.WithEventID(s.context(), eventID)
	log := s.logger.With(logging.ContextFields(ctx)...)

	var n Notification
	if err := json.Unmarshal(msg.Data, &n); err != nil {
		s.dropped.Add(1)
		log.Warn("dropping malformed notification",
			zap.String("subject", msg.Subject),
			zap.Error(err),
		)
		s.reply(msg, Reply{EventID: eventID, Error: "malformed payload"})
		return
	}

	d, err := s.resolver.Resolve(ctx, n.Event())
	if err != nil {
		s.dropped.Add(1)
		log.Warn("failed to resolve notification",
			zap.String("package", n.PackageID),
			zap.Error(err),
		)
		s.reply(msg, Reply{EventID: eventID, Error: err.Error()})
		return
	}

	s.resolved.Add(1)
	s.reply(msg, Reply{EventID: eventID, Decision: &d})
}

func (s *Subscriber) reply(msg *nats.Msg, r Reply) {
	if msg.Reply == "" {
		return
	}
	data, err := json.Marshal(r)
	if err != nil {
		s.logger.Error("failed to encode reply", zap.Error(err))
		return
	}
	if err := msg.Respond(data); err != nil {
		s.logger.Warn("failed to send reply", zap.Error(err))
	}
}

func (s *Subscriber) context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil {
		return context.Background()
	}
	return s.ctx
}
