package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/kalkia/sarah-agent/internal/campaign"
	"github.com/kalkia/sarah-agent/internal/models"
	"github.com/kalkia/sarah-agent/internal/twiml"
)

// inboundHandler handles the inbound SMS webhook (POST /sms/inbound,
// form-encoded From/Body). Processing-logic failures never surface as a 5xx:
// the engine degrades internally and the transport always receives a
// well-formed (possibly empty) TwiML document. Only boundary validation
// failures (missing sender or body) short-circuit with a client error.
func (s *Server) inboundHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.inboundHandler: processing inbound SMS", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.inboundHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		slog.Warn("Server.inboundHandler: failed to parse form", "error", err)
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	from := r.FormValue("From")
	body := r.FormValue("Body")
	if from == "" {
		slog.Warn("Server.inboundHandler: missing sender")
		http.Error(w, models.ErrMissingSender.Error(), http.StatusBadRequest)
		return
	}
	if body == "" {
		slog.Warn("Server.inboundHandler: missing body", "from", from)
		http.Error(w, models.ErrMissingBody.Error(), http.StatusBadRequest)
		return
	}

	slog.Info("Server.inboundHandler: inbound SMS", "from", from, "body_len", len(body))

	ctx, cancel := context.WithTimeout(r.Context(), DefaultRequestTimeout)
	defer cancel()

	reply := s.engine.HandleInbound(ctx, from, body)
	writeTwiML(w, twiml.RenderReply(reply))
}

// statusHandler handles the message-status webhook (POST /sms/status).
// Reserved hook for delivery-status reconciliation: the sid and status are
// logged and the request is acknowledged with 200 regardless of content.
func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		slog.Warn("Server.statusHandler: failed to parse form", "error", err)
	}
	slog.Info("Server.statusHandler: message status update",
		"sid", r.FormValue("MessageSid"),
		"status", r.FormValue("MessageStatus"))
	w.WriteHeader(http.StatusOK)
}

// healthHandler provides a liveness endpoint (GET /health). Returns the
// fixed payload with 200 whenever the process is up.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "follow-up-agent",
	})
}

// campaignStartRequest is the payload for POST /campaign/start.
type campaignStartRequest struct {
	Phone string `json:"phone"`
	Step  string `json:"step,omitempty"`
	Delay string `json:"delay,omitempty"`
}

// campaignStartHandler kicks off the delayed follow-up chain for a recipient
// (POST /campaign/start). The first step fires after its canonical delay
// unless an explicit delay override is given.
func (s *Server) campaignStartHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.campaignStartHandler: processing request", "method", r.Method)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if r.Body != nil {
		defer r.Body.Close()
	}
	var req campaignStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.campaignStartHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if req.Phone == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing required field: phone"))
		return
	}

	step := campaign.StepFollowUp1
	if req.Step != "" {
		step = campaign.Step(req.Step)
	}
	delay, ok := campaign.StepDelay(step)
	if !ok {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Unknown campaign step"))
		return
	}
	if req.Delay != "" {
		parsed, err := time.ParseDuration(req.Delay)
		if err != nil {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid delay duration"))
			return
		}
		delay = parsed
	}

	jobID, err := s.campaigns.Schedule(req.Phone, step, delay)
	if err != nil {
		slog.Error("Server.campaignStartHandler: failed to schedule step", "error", err, "phone", req.Phone)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to schedule campaign step"))
		return
	}

	slog.Info("Server.campaignStartHandler: campaign scheduled", "phone", req.Phone, "step", step, "job_id", jobID)
	writeJSONResponse(w, http.StatusCreated, models.Success(map[string]string{"job_id": jobID}))
}

// writeTwiML writes a TwiML document with a 200 status.
func writeTwiML(w http.ResponseWriter, doc string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(doc)); err != nil {
		slog.Error("api.writeTwiML: failed to write response", "error", err)
	}
}
