// Package transport talks to the remote collector: the init call that
// returns remote config and server time, and the batch upload of events.
//
// Every call is reduced to an Outcome. The delivery pipeline decides what
// to do with claimed events purely from that value.
package transport

import (
	"context"

	"github.com/roach88/beacon/internal/payload"
)

// Outcome classifies a collector call.
type Outcome int

const (
	OK Outcome = iota
	Created
	Unauthorized
	BadRequest
	NoResponse
	Timeout
	BadResponse
	EncodeFailed
	DecodeFailed
	UnknownCode
)

var outcomeNames = [...]string{
	OK:           "ok",
	Created:      "created",
	Unauthorized: "unauthorized",
	BadRequest:   "bad_request",
	NoResponse:   "no_response",
	Timeout:      "timeout",
	BadResponse:  "bad_response",
	EncodeFailed: "encode_failed",
	DecodeFailed: "decode_failed",
	UnknownCode:  "unknown_code",
}

// String returns the snake_case outcome name.
func (o Outcome) String() string {
	if o < 0 || int(o) >= len(outcomeNames) {
		return "invalid"
	}
	return outcomeNames[o]
}

// ParseOutcome is the inverse of String.
func ParseOutcome(s string) (Outcome, bool) {
	for i, name := range outcomeNames {
		if name == s {
			return Outcome(i), true
		}
	}
	return 0, false
}

// Success reports whether the collector accepted the request.
func (o Outcome) Success() bool {
	return o == OK || o == Created
}

// Retryable reports whether the request never got an answer, so claimed
// events must go back to the buffer.
func (o Outcome) Retryable() bool {
	return o == NoResponse || o == Timeout
}

// Definitive reports whether claimed events are deleted after this
// outcome. Every non-retryable outcome is definitive, including
// UnknownCode: an unrecognized status drops the batch.
func (o Outcome) Definitive() bool {
	return !o.Retryable()
}

// InitRequest is sent at every session start.
type InitRequest struct {
	Platform    string `json:"platform"`
	OSVersion   string `json:"os_version"`
	SDKVersion  string `json:"sdk_version"`
	Build       string `json:"build,omitempty"`
	UserID      string `json:"user_id,omitempty"`
	ConfigsHash string `json:"configs_hash,omitempty"`
}

// ConfigEntry is one remote config key with its validity window in
// server seconds. Zero bounds are open.
type ConfigEntry struct {
	Key     string `json:"key"`
	Value   any    `json:"value"`
	StartTS int64  `json:"start_ts,omitempty"`
	EndTS   int64  `json:"end_ts,omitempty"`
}

// ConfigDocument is the init response. TimeOffset is filled in locally
// so a cached document carries the offset measured when it was fetched.
type ConfigDocument struct {
	ServerTS    int64         `json:"server_ts"`
	Enabled     *bool         `json:"enabled,omitempty"`
	ConfigsHash string        `json:"configs_hash,omitempty"`
	Configs     []ConfigEntry `json:"configs,omitempty"`
	TimeOffset  int64         `json:"time_offset,omitempty"`
}

// IsEnabled is false only when the collector explicitly disabled
// telemetry.
func (d *ConfigDocument) IsEnabled() bool {
	return d == nil || d.Enabled == nil || *d.Enabled
}

// Transport is the collector client. Calls block the scheduler, so
// implementations must bound them with a timeout.
type Transport interface {
	PostInit(ctx context.Context, req InitRequest) (Outcome, *ConfigDocument)
	PostEvents(ctx context.Context, events []payload.Object) (Outcome, []byte)
}
