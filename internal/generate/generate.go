// Package generate turns a free-text description into a vibration pattern
// using a remote generation service.
//
// Requests go to POST <base>/v1/vibration/pattern with {"model","user_prompt"}
// and the service answers {"pattern"}. The returned text must parse as a
// pattern; callers receive its canonical form. A request makes at most two
// attempts and only retries after an attempt times out.
package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/hapticd/internal/pattern"
)

const (
	patternPath           = "/v1/vibration/pattern"
	maxAttempts           = 2
	maxResponseBytes      = 64 << 10
	defaultModel          = "gpt-5-mini"
	defaultAttemptTimeout = 20 * time.Second
)

var (
	// ErrDisabled is returned when no generator is configured.
	ErrDisabled = errors.New("pattern generation is disabled")
	// ErrEmptyPrompt is returned for a blank prompt.
	ErrEmptyPrompt = errors.New("prompt is required")
	// ErrRateLimited is returned on HTTP 429 or when the local limiter has
	// no capacity before the caller's deadline.
	ErrRateLimited = errors.New("generation rate limited")
	// ErrRequestFailed covers transport errors, non-2xx responses and a
	// second timeout.
	ErrRequestFailed = errors.New("generation request failed")
	// ErrInvalidResponse is returned when the reply has no usable pattern.
	ErrInvalidResponse = errors.New("invalid generation response")
)

// Config configures a Client.
type Config struct {
	BaseURL        string
	Model          string
	APIKey         string
	AttemptTimeout time.Duration
	RateLimit      float64 // requests per second
	Burst          int
	HTTPClient     *http.Client
}

// Result is delivered by GenerateAsync.
type Result struct {
	Pattern string
	Err     error
}

// Client calls the generation service.
type Client struct {
	baseURL        string
	model          string
	apiKey         string
	attemptTimeout time.Duration
	httpClient     *http.Client
	limiter        *rate.Limiter
	logger         *zap.Logger
	metrics        *metrics
}

// New creates a Client. reg may be nil to skip metric registration.
func New(cfg Config, logger *zap.Logger, reg prometheus.Registerer) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("generator base URL is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	timeout := cfg.AttemptTimeout
	if timeout <= 0 {
		timeout = defaultAttemptTimeout
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &Client{
		baseURL:        base,
		model:          model,
		apiKey:         cfg.APIKey,
		attemptTimeout: timeout,
		httpClient:     httpClient,
		limiter:        rate.NewLimiter(limit, burst),
		logger:         logger,
		metrics:        newMetrics(reg),
	}, nil
}

type request struct {
	Model      string `json:"model"`
	UserPrompt string `json:"user_prompt"`
}

type response struct {
	Pattern string `json:"pattern"`
}

// Generate requests a pattern for prompt and returns its canonical text.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	text, err := c.generate(ctx, prompt)
	c.metrics.observe(err)
	return text, err
}

// GenerateAsync runs Generate in the background. The returned channel
// receives exactly one Result. There is no way to cancel an in-flight
// request; each attempt is bounded by the attempt timeout.
func (c *Client) GenerateAsync(prompt string) <-chan Result {
	out := make(chan Result, 1)
	go func() {
		text, err := c.Generate(context.Background(), prompt)
		out <- Result{Pattern: text, Err: err}
	}()
	return out
}

func (c *Client) generate(ctx context.Context, prompt string) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", ErrEmptyPrompt
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("%w: %w", ErrRateLimited, err)
	}

	body, err := json.Marshal(request{Model: c.model, UserPrompt: prompt})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	requestID := uuid.NewString()
	logger := c.logger.With(zap.String("request.id", requestID))

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		text, err := c.attempt(ctx, requestID, body)
		if err == nil {
			logger.Debug("pattern generated", zap.Int("attempt", attempt))
			return text, nil
		}
		var te *transportError
		if !errors.As(err, &te) {
			logger.Warn("generation failed", zap.Int("attempt", attempt), zap.Error(err))
			return "", err
		}
		if !te.timeout(ctx) {
			logger.Warn("generation request failed", zap.Int("attempt", attempt), zap.Error(err))
			return "", fmt.Errorf("%w: %w", ErrRequestFailed, err)
		}
		logger.Warn("generation attempt timed out", zap.Int("attempt", attempt))
		lastErr = err
	}
	return "", fmt.Errorf("%w: %d attempts timed out: %w", ErrRequestFailed, maxAttempts, lastErr)
}

func (c *Client) attempt(ctx context.Context, requestID string, body []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+patternPath, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &transportError{err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", &transportError{err: err}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", ErrRateLimited
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return "", fmt.Errorf("%w: status %d", ErrRequestFailed, resp.StatusCode)
	}

	var out response
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}
	text := strings.TrimSpace(out.Pattern)
	if text == "" {
		return "", fmt.Errorf("%w: blank pattern", ErrInvalidResponse)
	}
	canonical, err := pattern.Canonicalize(text)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}
	return canonical, nil
}

// transportError is a failure to send the request or read the reply.
type transportError struct {
	err error
}

func (e *transportError) Error() string { return e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

// timeout reports whether the attempt ran out of time while the caller's
// context was still live.
func (e *transportError) timeout(parent context.Context) bool {
	if parent.Err() != nil {
		return false
	}
	if errors.Is(e.err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(e.err, &ne) && ne.Timeout()
}
