package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/minbarhq/minbar/internal/provider"
)

// DefaultSessionTTL bounds session growth. Voice callbacks arrive within
// seconds of the dial; a session older than this is worthless.
const DefaultSessionTTL = 1 * time.Hour

// ErrSessionNotFound is returned when no session exists for a phone number
// (never written, already consumed by TTL, or expired).
var ErrSessionNotFound = errors.New("voice call session not found")

// VoiceCallSession correlates a phone number with the payload of an
// in-flight voice call. Some carriers' status callbacks cannot carry custom
// parameters, so the webhook recovers the audio URL or TTS text from here
// using only the phone number it receives back.
type VoiceCallSession struct {
	CallType    string     `json:"call_type"`
	AudioURL    string     `json:"audio_url,omitempty"`
	Text        string     `json:"text,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	RetrievedAt *time.Time `json:"retrieved_at,omitempty"`
}

// SessionStore is the redis-backed voice call correlator.
type SessionStore struct {
	client *Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewSessionStore(client *Client, ttl time.Duration, logger *zap.Logger) *SessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionStore{
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

func sessionKey(phone string) string {
	return fmt.Sprintf("voicesession:%s", phone)
}

func callKey(callID string) string {
	return fmt.Sprintf("voicecall:%s", callID)
}

// PutSession stores the session under the phone number with the store TTL.
// Implements provider.VoiceSessionWriter. A concurrent call to the same
// phone number overwrites the previous session; that race is accepted and
// bounded by the TTL (see LinkCallID for the mitigation when the carrier
// issues its own id).
func (s *SessionStore) PutSession(ctx context.Context, phone string, session provider.VoiceSession) error {
	entry := VoiceCallSession{
		CallType:  session.CallType,
		AudioURL:  session.AudioURL,
		Text:      session.Text,
		CreatedAt: time.Now(),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal voice session: %w", err)
	}

	if err := s.client.rdb.Set(ctx, sessionKey(phone), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("store voice session: %w", err)
	}

	s.logger.Debug("voice session stored",
		zap.String("call_type", session.CallType),
	)
	return nil
}

// Get retrieves the session for a phone number and stamps RetrievedAt. The
// session stays readable until the TTL so a carrier retry of the same
// callback still resolves.
func (s *SessionStore) Get(ctx context.Context, phone string) (*VoiceCallSession, error) {
	key := sessionKey(phone)

	val, err := s.client.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var session VoiceCallSession
	if err := json.Unmarshal([]byte(val), &session); err != nil {
		return nil, fmt.Errorf("invalid stored session: %w", err)
	}

	if session.RetrievedAt == nil {
		now := time.Now()
		session.RetrievedAt = &now
		if data, err := json.Marshal(session); err == nil {
			// Preserve the remaining TTL rather than resetting it.
			s.client.rdb.Set(ctx, key, data, redis.KeepTTL)
		}
	}

	return &session, nil
}

// LinkCallID aliases a carrier-issued call id to the phone key, letting the
// webhook resolve by id and sidestep the same-phone race when the carrier
// provides one.
func (s *SessionStore) LinkCallID(ctx context.Context, callID, phone string) error {
	if callID == "" {
		return nil
	}
	if err := s.client.rdb.Set(ctx, callKey(callID), phone, s.ttl).Err(); err != nil {
		return fmt.Errorf("link call id: %w", err)
	}
	return nil
}

// GetByCallID resolves a session through a carrier-issued call id.
func (s *SessionStore) GetByCallID(ctx context.Context, callID string) (*VoiceCallSession, error) {
	phone, err := s.client.rdb.Get(ctx, callKey(callID)).Result()
	if err == redis.Nil {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	return s.Get(ctx, phone)
}
