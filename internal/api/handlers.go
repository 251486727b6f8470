package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/tspl-agent/internal/dispatch"
	"github.com/mattjoyce/tspl-agent/internal/netinfo"
)

// handleHealth handles GET /health (no auth).
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := netinfo.Collect(s.interfaces)

	origins := s.config.AllowedOrigins
	if origins == nil {
		origins = []string{}
	}

	respondJSON(w, http.StatusOK, HealthResponse{
		OK:            true,
		Printer:       s.config.Printer,
		AuthRequired:  s.config.Token != "",
		Origins:       origins,
		IPv4Local:     snap.IPv4Local,
		Interfaces:    snap.Interfaces,
		Platform:      s.config.Platform,
		Strategies:    s.dispatcher.Chain(),
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Version:       s.config.Version,
		Dispatch:      s.dispatcher.Stats(),
	})
}

// handleWhoami handles GET /whoami (no auth).
func (s *Server) handleWhoami(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, netinfo.Collect(s.interfaces))
}

// handlePrint handles POST /print.
func (s *Server) handlePrint(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes)

	var req PrintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			s.logger.Warn("print payload too large", "limit", tooBig.Limit, "remote_addr", r.RemoteAddr)
			writeText(w, http.StatusRequestEntityTooLarge, msgPayloadTooBig)
			return
		}
		s.logger.Debug("invalid print body", "error", err)
		writeText(w, http.StatusBadRequest, msgMissingTSPL)
		return
	}

	var tspl string
	if len(req.TSPL) == 0 || json.Unmarshal(req.TSPL, &tspl) != nil || tspl == "" {
		s.logger.Debug("print body without tspl string")
		writeText(w, http.StatusBadRequest, msgMissingTSPL)
		return
	}

	submittedFrom := r.RemoteAddr
	var clientIP string
	if len(req.ClientIP) > 0 && json.Unmarshal(req.ClientIP, &clientIP) == nil && clientIP != "" {
		submittedFrom = clientIP
	}

	job := dispatch.Job{
		ID:            uuid.NewString(),
		Content:       []byte(tspl),
		Printer:       s.config.Printer,
		SubmittedFrom: submittedFrom,
	}
	s.logger.Info("print request", "job_id", job.ID, "printer", job.Printer, "client_ip", submittedFrom, "size", len(job.Content))

	outcome, err := s.dispatcher.Dispatch(r.Context(), job)
	if err != nil {
		s.logger.Error("print request failed unexpectedly", "job_id", job.ID, "error", err)
		writeText(w, http.StatusInternalServerError, msgUnexpected)
		return
	}
	if !outcome.Success {
		detail := "unknown error"
		if outcome.Err != nil {
			detail = outcome.Err.Error()
		}
		writeText(w, http.StatusInternalServerError, msgPrintFailed+detail)
		return
	}

	writeText(w, http.StatusOK, msgSent)
}

// respondJSON is a helper to write JSON responses
func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeText writes a plain-text response
func writeText(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(statusCode)
	_, _ = w.Write([]byte(message))
}
