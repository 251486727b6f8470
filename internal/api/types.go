package api

import (
	"encoding/json"

	"github.com/mattjoyce/tspl-agent/internal/dispatch"
	"github.com/mattjoyce/tspl-agent/internal/netinfo"
)

// Plain-text bodies returned by POST /print.
const (
	msgMissingTSPL   = "missing field 'tspl' (string)"
	msgSent          = "Sent to printer."
	msgPrintFailed   = "Print failed: "
	msgUnexpected    = "Unexpected failure."
	msgPayloadTooBig = "Payload too large."
)

// PrintRequest is the JSON body for POST /print. Fields are kept raw so a
// non-string tspl can be told apart from a missing one.
type PrintRequest struct {
	TSPL     json.RawMessage `json:"tspl"`
	ClientIP json.RawMessage `json:"client_ip,omitempty"`
}

// ErrorResponse is returned on auth errors
type ErrorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	OK            bool                `json:"ok"`
	Printer       string              `json:"printer"`
	AuthRequired  bool                `json:"authRequired"`
	Origins       []string            `json:"origins"`
	IPv4Local     string              `json:"ipv4_local"`
	Interfaces    []netinfo.Interface `json:"interfaces"`
	Platform      string              `json:"platform"`
	Strategies    []string            `json:"strategies"`
	UptimeSeconds int64               `json:"uptime_seconds"`
	Version       string              `json:"version"`
	Dispatch      dispatch.Stats      `json:"dispatch"`
}
