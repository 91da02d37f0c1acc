package models

import (
	"fmt"
	"time"
)

// Mode selects the instruction template and the result variant.
type Mode string

const (
	ModeMessage Mode = "message"
	ModeConcern Mode = "concern"
)

// ParseMode maps a wire value to a Mode. Empty selects ModeMessage.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "":
		return ModeMessage, nil
	case ModeMessage, ModeConcern:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown mode %q", s)
}

// ToneMode selects the stylistic overlay sent to the backend.
type ToneMode string

const (
	ToneWarm   ToneMode = "warm"
	ToneDirect ToneMode = "direct"
)

// ParseToneMode maps a wire value to a ToneMode. Empty selects ToneWarm.
func ParseToneMode(s string) (ToneMode, error) {
	switch ToneMode(s) {
	case "":
		return ToneWarm, nil
	case ToneWarm, ToneDirect:
		return ToneMode(s), nil
	}
	return "", fmt.Errorf("unknown tone mode %q", s)
}

type AnalysisRequest struct {
	Text       string   `json:"text"`
	Mode       Mode     `json:"mode"`
	ToneMode   ToneMode `json:"toneMode"`
	SelfTrait  string   `json:"selfTrait,omitempty"`
	OtherTrait string   `json:"otherTrait,omitempty"`
	Key        string   `json:"-"`
}

// HistoryEntry is immutable once created.
type HistoryEntry struct {
	Mode        Mode      `json:"mode"`
	InputDigest string    `json:"input_digest"`
	SummaryLine string    `json:"summary_line"`
	Timestamp   time.Time `json:"timestamp"`
}

// Outcome labels how a request finished, for logs and the access log.
type Outcome string

const (
	OutcomeLive     Outcome = "live"
	OutcomeCache    Outcome = "cache"
	OutcomeFallback Outcome = "fallback"
)

type AccessLog struct {
	ID             int64     `json:"id"`
	RequestID      string    `json:"request_id"`
	ClientKey      string    `json:"client_key"`
	Mode           Mode      `json:"mode"`
	ToneMode       ToneMode  `json:"tone_mode"`
	Outcome        string    `json:"outcome"`
	StatusCode     int       `json:"status_code"`
	ResponseTimeMs int       `json:"response_time_ms"`
	RequestSize    int64     `json:"request_size"`
	ResponseSize   int64     `json:"response_size"`
	Timestamp      time.Time `json:"timestamp"`
}

type AccessStats struct {
	ClientKey     string         `json:"client_key"`
	TotalRequests int64          `json:"total_requests"`
	AvgLatencyMs  float64        `json:"avg_latency_ms"`
	ByOutcome     map[string]int `json:"by_outcome"`
	LastSeen      *time.Time     `json:"last_seen,omitempty"`
}
