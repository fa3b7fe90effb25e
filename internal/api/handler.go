package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/minbarhq/minbar/internal/db"
	"github.com/minbarhq/minbar/internal/metrics"
	"github.com/minbarhq/minbar/internal/notify"
	"github.com/minbarhq/minbar/internal/provider"
	"github.com/minbarhq/minbar/internal/redis"
)

// Notifier is the delivery surface the handlers call into. *notify.Service
// satisfies it.
type Notifier interface {
	SendSMS(ctx context.Context, rcpt notify.Recipient, message string, opts notify.Options) provider.Result
	MakeCall(ctx context.Context, rcpt notify.Recipient, audioURL string, opts notify.Options) provider.Result
	MakeTextCall(ctx context.Context, rcpt notify.Recipient, text string, opts notify.Options) provider.Result
	SendWhatsApp(ctx context.Context, rcpt notify.Recipient, message string, opts notify.Options) provider.Result
	ProviderStatus(country string) []notify.ProviderStatusEntry
}

// SessionReader resolves voice call sessions for the status webhook.
// *redis.SessionStore satisfies it; nil disables the voice endpoints.
type SessionReader interface {
	Get(ctx context.Context, phone string) (*redis.VoiceCallSession, error)
	GetByCallID(ctx context.Context, callID string) (*redis.VoiceCallSession, error)
}

// Auditor reads persisted audit and health rows. *db.Repository satisfies it;
// nil disables the read endpoints (the database is optional at startup).
type Auditor interface {
	ListCommunicationLogs(ctx context.Context, userID string, limit int) ([]*db.CommunicationLog, error)
	ListProviderHealth(ctx context.Context, country string) ([]*db.ProviderHealth, error)
}

// ErrorResponse represents an error in problem+json format
type ErrorResponse struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Handler holds dependencies for API handlers
type Handler struct {
	logger   *zap.Logger
	notifier Notifier
	sessions SessionReader
	auditor  Auditor
}

// NewHandler creates a new API handler
func NewHandler(logger *zap.Logger, notifier Notifier, sessions SessionReader, auditor Auditor) *Handler {
	return &Handler{
		logger:   logger,
		notifier: notifier,
		sessions: sessions,
		auditor:  auditor,
	}
}

// MessageRequest is the body for SMS/WhatsApp sends and text calls.
type MessageRequest struct {
	UserID      string `json:"user_id"`
	Phone       string `json:"phone"`
	CountryCode string `json:"country_code"`
	Message     string `json:"message"`
	Context     string `json:"context,omitempty"`
	SkipLog     bool   `json:"skip_log,omitempty"`
}

// CallRequest is the body for voice calls: exactly one of audio_url or text.
type CallRequest struct {
	UserID      string `json:"user_id"`
	Phone       string `json:"phone"`
	CountryCode string `json:"country_code"`
	AudioURL    string `json:"audio_url,omitempty"`
	Text        string `json:"text,omitempty"`
	Context     string `json:"context,omitempty"`
	SkipLog     bool   `json:"skip_log,omitempty"`
}

// SendSMS handles POST /v1/messages/sms
func (h *Handler) SendSMS(w http.ResponseWriter, r *http.Request) {
	var req MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}
	if req.Message == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing message", "message is required")
		return
	}

	res := h.notifier.SendSMS(r.Context(), recipient(req.UserID, req.Phone, req.CountryCode), req.Message, notify.Options{
		Context: req.Context,
		SkipLog: req.SkipLog,
	})
	h.writeResult(w, res)
}

// SendWhatsApp handles POST /v1/messages/whatsapp
func (h *Handler) SendWhatsApp(w http.ResponseWriter, r *http.Request) {
	var req MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}
	if req.Message == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing message", "message is required")
		return
	}

	res := h.notifier.SendWhatsApp(r.Context(), recipient(req.UserID, req.Phone, req.CountryCode), req.Message, notify.Options{
		Context: req.Context,
		SkipLog: req.SkipLog,
	})
	h.writeResult(w, res)
}

// MakeCall handles POST /v1/calls — audio_url plays a file, text is spoken.
func (h *Handler) MakeCall(w http.ResponseWriter, r *http.Request) {
	var req CallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}
	if (req.AudioURL == "") == (req.Text == "") {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid call payload", "exactly one of audio_url or text is required")
		return
	}

	rcpt := recipient(req.UserID, req.Phone, req.CountryCode)
	opts := notify.Options{Context: req.Context, SkipLog: req.SkipLog}

	var res provider.Result
	if req.AudioURL != "" {
		res = h.notifier.MakeCall(r.Context(), rcpt, req.AudioURL, opts)
	} else {
		res = h.notifier.MakeTextCall(r.Context(), rcpt, req.Text, opts)
	}
	h.writeResult(w, res)
}

// GetVoiceSession handles GET /v1/voice/sessions/{phone}. The voice webhook
// layer calls this to recover the audio URL or TTS text for a callback that
// carries only the phone number (optionally ?call_id= when the carrier
// issued one).
func (h *Handler) GetVoiceSession(w http.ResponseWriter, r *http.Request) {
	if h.sessions == nil {
		h.writeError(w, http.StatusServiceUnavailable, "unavailable", "Session store not configured", "")
		return
	}

	var (
		session *redis.VoiceCallSession
		err     error
	)
	if callID := r.URL.Query().Get("call_id"); callID != "" {
		session, err = h.sessions.GetByCallID(r.Context(), callID)
		if errors.Is(err, redis.ErrSessionNotFound) {
			// An unknown carrier id can still resolve by phone.
			session, err = h.sessions.Get(r.Context(), chi.URLParam(r, "phone"))
		}
	} else {
		session, err = h.sessions.Get(r.Context(), chi.URLParam(r, "phone"))
	}

	if errors.Is(err, redis.ErrSessionNotFound) {
		metrics.RecordVoiceSessionLookup("miss")
		h.writeError(w, http.StatusNotFound, "not_found", "Voice session not found", "")
		return
	}
	if err != nil {
		h.logger.Error("voice session lookup failed", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Session lookup failed", "")
		return
	}

	metrics.RecordVoiceSessionLookup("hit")
	h.writeJSON(w, http.StatusOK, session)
}

// VoiceEventRequest is a call-completion event posted by the webhook layer.
type VoiceEventRequest struct {
	Phone           string  `json:"phone"`
	CallID          string  `json:"call_id,omitempty"`
	Status          string  `json:"status"`
	DurationSeconds int     `json:"duration_seconds"`
	Cost            float64 `json:"cost"`
}

// PostVoiceEvent handles POST /v1/voice/events. Completion events are
// telemetry only: the fallback decision already happened when the call was
// initiated, so events are logged and counted but change nothing.
func (h *Handler) PostVoiceEvent(w http.ResponseWriter, r *http.Request) {
	var req VoiceEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}
	if req.Status == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing status", "status is required")
		return
	}

	metrics.RecordVoiceEvent(req.Status)
	h.logger.Info("voice call completed",
		zap.String("status", req.Status),
		zap.String("call_id", req.CallID),
		zap.Int("duration_seconds", req.DurationSeconds),
		zap.Float64("cost", req.Cost),
	)

	w.WriteHeader(http.StatusAccepted)
}

// GetProviderStatus handles GET /v1/providers/status?country=NG
func (h *Handler) GetProviderStatus(w http.ResponseWriter, r *http.Request) {
	country := r.URL.Query().Get("country")
	if country == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing country", "country query parameter is required")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"country":   country,
		"providers": h.notifier.ProviderStatus(country),
	})
}

// GetCommunications handles GET /v1/users/{user_id}/communications — the
// most recent audit rows for one user.
func (h *Handler) GetCommunications(w http.ResponseWriter, r *http.Request) {
	if h.auditor == nil {
		h.writeError(w, http.StatusServiceUnavailable, "unavailable", "Audit store not configured", "")
		return
	}

	userID := chi.URLParam(r, "user_id")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	logs, err := h.auditor.ListCommunicationLogs(r.Context(), userID, limit)
	if err != nil {
		h.logger.Error("communication log query failed", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Audit query failed", "")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"user_id":        userID,
		"communications": logs,
	})
}

// GetProviderHealth handles GET /v1/providers/health — the persisted health
// rows, surviving restarts unlike the in-memory tracker behind
// /providers/status.
func (h *Handler) GetProviderHealth(w http.ResponseWriter, r *http.Request) {
	if h.auditor == nil {
		h.writeError(w, http.StatusServiceUnavailable, "unavailable", "Audit store not configured", "")
		return
	}

	rows, err := h.auditor.ListProviderHealth(r.Context(), r.URL.Query().Get("country"))
	if err != nil {
		h.logger.Error("provider health query failed", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Health query failed", "")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"providers": rows})
}

// Healthz handles GET /healthz
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func recipient(userID, phone, country string) notify.Recipient {
	return notify.Recipient{UserID: userID, Phone: phone, CountryCode: country}
}

func (h *Handler) writeResult(w http.ResponseWriter, res provider.Result) {
	status := http.StatusOK
	if !res.Success {
		status = http.StatusBadGateway
	}
	h.writeJSON(w, status, res)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, errType, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Type:   errType,
		Title:  title,
		Status: status,
		Detail: detail,
	})
}
