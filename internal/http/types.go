package http

import (
	"github.com/fyrsmithlabs/hapticd/internal/actuator"
	"github.com/fyrsmithlabs/hapticd/internal/ingest"
	"github.com/fyrsmithlabs/hapticd/internal/pattern"
	"github.com/fyrsmithlabs/hapticd/internal/rules"
	"github.com/fyrsmithlabs/hapticd/internal/telemetry"
)

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status    string                  `json:"status"`
	Version   string                  `json:"version,omitempty"`
	Telemetry *telemetry.HealthStatus `json:"telemetry,omitempty"`
}

// RulesResponse is the response body for rule listings.
type RulesResponse struct {
	Rules []rules.Rule `json:"rules"`
}

// AppRuleRequest is the request body for PUT /api/v1/rules/:package.
type AppRuleRequest struct {
	Pattern string `json:"pattern"`
	Name    string `json:"name"`
}

// SenderRuleRequest is the request body for
// PUT /api/v1/rules/:package/senders.
type SenderRuleRequest struct {
	Sender  string `json:"sender"`
	Pattern string `json:"pattern"`
	Name    string `json:"name"`
}

// MuteRequest is the request body for PUT /api/v1/apps/:package/mute.
type MuteRequest struct {
	MuteWhenNoSenderMatch *bool `json:"mute_when_no_sender_match"`
}

// PatternRequest is the request body for POST /api/v1/patterns/validate.
type PatternRequest struct {
	Pattern string `json:"pattern"`
}

// PatternResponse describes a valid pattern.
type PatternResponse struct {
	Pattern  string       `json:"pattern"`
	Segments pattern.Spec `json:"segments"`
	TotalMs  int64        `json:"total_ms"`
}

// GenerateRequest is the request body for POST /api/v1/patterns/generate.
type GenerateRequest struct {
	Prompt string `json:"prompt"`
}

// StatusResponse is the response body for GET /api/v1/status.
type StatusResponse struct {
	Status    string              `json:"status"`
	Version   string              `json:"version,omitempty"`
	Counts    StatusCounts        `json:"counts"`
	LastEvent *rules.Observation  `json:"last_event,omitempty"`
	LastMatch *rules.Observation  `json:"last_match,omitempty"`
	Recent    []actuator.Waveform `json:"recent_waveforms,omitempty"`
	Ingest    *ingest.Stats       `json:"ingest,omitempty"`
}

// StatusCounts counts stored rules.
type StatusCounts struct {
	Apps    int `json:"apps"`
	Senders int `json:"senders"`
}
