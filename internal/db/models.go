package db

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// Communication types recorded in the audit log.
const (
	CommTypeSMS      = "sms"
	CommTypeVoice    = "voice"
	CommTypeWhatsApp = "whatsapp"
)

// SentinelProvider is logged when a chain exhausts every candidate (or never
// attempts one), so operators can still see the failure.
const SentinelProvider = "none"

// CommunicationLog is one append-only audit row per delivery attempt chain.
// The recipient is stored hashed+truncated, never in the clear.
type CommunicationLog struct {
	ID             uuid.UUID `json:"id"`
	UserID         string    `json:"user_id"`
	CommType       string    `json:"comm_type"`
	Provider       string    `json:"provider"`
	Recipient      string    `json:"recipient"` // hashed, see HashRecipient
	MessageID      string    `json:"message_id,omitempty"`
	Success        bool      `json:"success"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	Cost           float64   `json:"cost"`
	Context        string    `json:"context,omitempty"` // e.g. "fajr", "maghrib"
	ResponseTimeMs int64     `json:"response_time_ms"`
	CountryCode    string    `json:"country_code"`
	RawResponse    string    `json:"raw_response,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// ProviderHealth is the persisted mirror of one health tracker series,
// upserted after every attempt.
type ProviderHealth struct {
	Provider              string     `json:"provider"`
	CountryCode           string     `json:"country_code"`
	TotalAttempts         int64      `json:"total_attempts"`
	SuccessfulAttempts    int64      `json:"successful_attempts"`
	FailedAttempts        int64      `json:"failed_attempts"`
	ConsecutiveFailures   int64      `json:"consecutive_failures"`
	AverageResponseTimeMs float64    `json:"average_response_time_ms"`
	AverageCost           float64    `json:"average_cost"`
	IsHealthy             bool       `json:"is_healthy"`
	LastSuccessAt         *time.Time `json:"last_success_at,omitempty"`
	LastFailureAt         *time.Time `json:"last_failure_at,omitempty"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

// HashRecipient reduces a phone number to a stable, non-reversible audit
// token: sha256 prefix plus the last two digits for operator eyeballing.
func HashRecipient(phone string) string {
	if phone == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(phone))
	tail := phone
	if len(tail) > 2 {
		tail = tail[len(tail)-2:]
	}
	return hex.EncodeToString(sum[:6]) + "…" + tail
}
