// Package engine resolves inbound notification events against stored rules
// and dispatches the winning waveform.
//
// Precedence, first match wins:
//
//  1. a sender rule whose token appears in the event text (longest token)
//  2. silence, when the text is non-blank and the app is muted on no match
//  3. the app-wide rule
//  4. silence
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/hapticd/internal/actuator"
	"github.com/fyrsmithlabs/hapticd/internal/matcher"
	"github.com/fyrsmithlabs/hapticd/internal/pattern"
	"github.com/fyrsmithlabs/hapticd/internal/rules"
)

const instrumentationName = "github.com/fyrsmithlabs/hapticd/internal/engine"

// ErrInvalidEvent is returned for events without a package id.
var ErrInvalidEvent = errors.New("invalid event")

// Outcome is the action taken for an event.
type Outcome string

const (
	OutcomeVibrate Outcome = "vibrate"
	OutcomeSilent  Outcome = "silent"
)

// Reason explains an Outcome.
type Reason string

const (
	ReasonSender  Reason = "sender"
	ReasonApp     Reason = "app"
	ReasonMuted   Reason = "muted"
	ReasonNoRule  Reason = "no_rule"
	ReasonIgnored Reason = "ignored"
)

// Event is an inbound notification.
type Event struct {
	PackageID     string `json:"package_id"`
	ExtractedText string `json:"extracted_text"`
	TimestampMs   int64  `json:"timestamp_ms"`
}

// Decision is the result of resolving an Event.
type Decision struct {
	Outcome     Outcome        `json:"outcome"`
	Reason      Reason         `json:"reason"`
	Key         *rules.RuleKey `json:"key,omitempty"`
	Token       string         `json:"token,omitempty"`
	RuleName    string         `json:"rule_name,omitempty"`
	PatternText string         `json:"pattern,omitempty"`
	Pattern     pattern.Spec   `json:"segments,omitempty"`
}

// Vibrate reports whether the decision plays a waveform.
func (d Decision) Vibrate() bool {
	return d.Outcome == OutcomeVibrate
}

// Engine resolves events one at a time.
type Engine struct {
	mu sync.Mutex

	store    rules.Store
	actuator actuator.Actuator
	logger   *zap.Logger
	tracer   trace.Tracer
	metrics  *Metrics
	now      func() time.Time
	ignore   map[string]struct{}
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithClock sets the clock used for observability timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithMetrics sets the Prometheus collectors.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithTracer sets the tracer.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		if t != nil {
			e.tracer = t
		}
	}
}

// WithIgnorePackages silences events from pkgs before any rule lookup.
func WithIgnorePackages(pkgs ...string) Option {
	return func(e *Engine) {
		for _, p := range pkgs {
			if p = strings.TrimSpace(p); p != "" {
				e.ignore[p] = struct{}{}
			}
		}
	}
}

// New creates an engine.
func New(store rules.Store, act actuator.Actuator, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, errors.New("rule store is required")
	}
	if act == nil {
		return nil, errors.New("actuator is required")
	}

	e := &Engine{
		store:    store,
		actuator: act,
		logger:   zap.NewNop(),
		tracer:   otel.Tracer(instrumentationName),
		metrics:  NewMetrics(nil),
		now:      time.Now,
		ignore:   make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Resolve decides what to do with ev and, on Vibrate, dispatches the
// waveform. Calls are serialized.
//
// An error is returned only when rules cannot be read; observability
// writes and dispatch failures are logged and never change the decision.
func (e *Engine) Resolve(ctx context.Context, ev Event) (Decision, error) {
	pkg := strings.TrimSpace(ev.PackageID)
	if pkg == "" {
		return Decision{}, fmt.Errorf("%w: package_id is required", ErrInvalidEvent)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	start := e.now()
	ctx, span := e.tracer.Start(ctx, "engine.resolve")
	defer span.End()
	span.SetAttributes(attribute.String("package", pkg))

	d, err := e.resolve(ctx, pkg, ev.ExtractedText)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.logger.Error("resolve failed", zap.String("package", pkg), zap.Error(err))
		return Decision{}, err
	}

	span.SetAttributes(
		attribute.String("outcome", string(d.Outcome)),
		attribute.String("reason", string(d.Reason)),
	)
	e.metrics.Decisions.WithLabelValues(string(d.Outcome), string(d.Reason)).Inc()

	if d.Vibrate() {
		e.afterMatch(ctx, pkg, d)
	}

	e.metrics.ResolveDuration.Observe(e.now().Sub(start).Seconds())
	e.logger.Debug("resolved event",
		zap.String("package", pkg),
		zap.Int64("timestamp_ms", ev.TimestampMs),
		zap.String("outcome", string(d.Outcome)),
		zap.String("reason", string(d.Reason)),
	)
	return d, nil
}

func (e *Engine) resolve(ctx context.Context, pkg, text string) (Decision, error) {
	if _, ok := e.ignore[pkg]; ok {
		return Decision{Outcome: OutcomeSilent, Reason: ReasonIgnored}, nil
	}

	if err := e.store.RecordLastEvent(ctx, pkg, e.now()); err != nil {
		e.logger.Warn("failed to record last event", zap.String("package", pkg), zap.Error(err))
	}

	senderRules, err := e.store.SenderRules(ctx, pkg)
	if err != nil {
		return Decision{}, fmt.Errorf("load sender rules: %w", err)
	}
	if m, ok := matcher.Match(pkg, text, senderRules); ok {
		return vibrate(ReasonSender, m.Rule, m.Token), nil
	}

	if strings.TrimSpace(text) != "" {
		muted, err := e.store.Mute(ctx, pkg)
		if err != nil {
			return Decision{}, fmt.Errorf("load mute flag: %w", err)
		}
		if muted {
			return Decision{Outcome: OutcomeSilent, Reason: ReasonMuted}, nil
		}
	}

	rule, err := e.store.Get(ctx, rules.App(pkg))
	if errors.Is(err, rules.ErrNotFound) {
		return Decision{Outcome: OutcomeSilent, Reason: ReasonNoRule}, nil
	}
	if err != nil {
		return Decision{}, fmt.Errorf("load app rule: %w", err)
	}
	return vibrate(ReasonApp, *rule, ""), nil
}

func (e *Engine) afterMatch(ctx context.Context, pkg string, d Decision) {
	if err := e.store.RecordLastMatch(ctx, pkg, e.now()); err != nil {
		e.logger.Warn("failed to record last match", zap.String("package", pkg), zap.Error(err))
	}

	if err := e.actuator.Dispatch(ctx, actuator.FromSpec(pkg, d.Pattern)); err != nil {
		e.metrics.DispatchErrors.Inc()
		e.logger.Warn("dispatch failed", zap.String("package", pkg), zap.Error(err))
	}
}

func vibrate(reason Reason, r rules.Rule, token string) Decision {
	key := r.Key
	return Decision{
		Outcome:     OutcomeVibrate,
		Reason:      reason,
		Key:         &key,
		Token:       token,
		RuleName:    r.Name,
		PatternText: r.PatternText,
		Pattern:     r.Pattern,
	}
}
