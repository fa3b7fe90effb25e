// Package notify is the public entry point of the delivery core: it resolves
// the fallback chain for a recipient's country and walks it until one
// transport succeeds.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/minbarhq/minbar/internal/db"
	"github.com/minbarhq/minbar/internal/health"
	"github.com/minbarhq/minbar/internal/metrics"
	"github.com/minbarhq/minbar/internal/provider"
)

// rawResponseLimit caps the diagnostic blob stored per audit row.
const rawResponseLimit = 2048

// SMS prefixes used when a voice or WhatsApp send degrades to SMS because no
// capable provider covers the recipient's country.
const (
	audioFallbackPrefix = "Audio: "
	voiceFallbackPrefix = "Voice: "
)

// Recipient is the caller-supplied user context for one delivery.
type Recipient struct {
	UserID string
	Phone  string
	// CountryCode is ISO 3166-1 alpha-2, case-insensitive. Operations
	// uppercase it on entry so health keys, audit rows and registry lookups
	// all agree on one spelling.
	CountryCode string
}

// Options tune one delivery chain.
type Options struct {
	// Context tags the audit row with the triggering event, e.g. "fajr".
	Context string
	// SkipLog suppresses the audit row for synthetic test sends.
	SkipLog bool
}

// Repository is the persistence surface the service needs. *db.Repository
// satisfies it; a nil Repository disables persistence (health stays
// in-memory, no audit rows).
type Repository interface {
	InsertCommunicationLog(ctx context.Context, entry *db.CommunicationLog) error
	UpsertProviderHealth(ctx context.Context, snap health.Snapshot) error
}

// Service orchestrates provider fallback. All dependencies are injected;
// nothing here reaches for globals.
type Service struct {
	registry *provider.Registry
	tracker  *health.Tracker
	repo     Repository
	logger   *zap.Logger
}

func NewService(registry *provider.Registry, tracker *health.Tracker, repo Repository, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		registry: registry,
		tracker:  tracker,
		repo:     repo,
		logger:   logger,
	}
}

// candidate pairs a provider with the capability call for this chain.
type candidate struct {
	name   string
	invoke func(ctx context.Context) provider.Result
}

// SendSMS delivers a text message, falling through the country's provider
// chain until one succeeds.
func (s *Service) SendSMS(ctx context.Context, rcpt Recipient, message string, opts Options) provider.Result {
	rcpt.CountryCode = strings.ToUpper(rcpt.CountryCode)
	var candidates []candidate
	for _, p := range s.registry.ProvidersForCountry(rcpt.CountryCode) {
		sender, ok := p.(provider.SMSSender)
		if !ok {
			continue
		}
		candidates = append(candidates, candidate{
			name: p.Name(),
			invoke: func(ctx context.Context) provider.Result {
				return sender.SendSMS(ctx, rcpt.Phone, message, rcpt.CountryCode)
			},
		})
	}
	return s.deliver(ctx, db.CommTypeSMS, rcpt, opts, candidates)
}

// MakeCall places a voice call that plays a hosted audio file. If no
// voice-capable provider covers the country, it degrades to SMS carrying the
// audio reference.
func (s *Service) MakeCall(ctx context.Context, rcpt Recipient, audioURL string, opts Options) provider.Result {
	rcpt.CountryCode = strings.ToUpper(rcpt.CountryCode)
	candidates := s.voiceCandidates(rcpt, func(caller provider.VoiceCaller) func(context.Context) provider.Result {
		return func(ctx context.Context) provider.Result {
			return caller.MakeCall(ctx, rcpt.Phone, audioURL, rcpt.CountryCode)
		}
	})
	if len(candidates) == 0 {
		s.logger.Info("no voice provider for country, degrading to sms",
			zap.String("country", rcpt.CountryCode),
		)
		return s.SendSMS(ctx, rcpt, audioFallbackPrefix+audioURL, opts)
	}
	return s.deliver(ctx, db.CommTypeVoice, rcpt, opts, candidates)
}

// MakeTextCall places a voice call that speaks the text via TTS, degrading
// to a prefixed SMS when no voice provider covers the country.
func (s *Service) MakeTextCall(ctx context.Context, rcpt Recipient, text string, opts Options) provider.Result {
	rcpt.CountryCode = strings.ToUpper(rcpt.CountryCode)
	candidates := s.voiceCandidates(rcpt, func(caller provider.VoiceCaller) func(context.Context) provider.Result {
		return func(ctx context.Context) provider.Result {
			return caller.MakeTextCall(ctx, rcpt.Phone, text, rcpt.CountryCode)
		}
	})
	if len(candidates) == 0 {
		s.logger.Info("no voice provider for country, degrading to sms",
			zap.String("country", rcpt.CountryCode),
		)
		return s.SendSMS(ctx, rcpt, voiceFallbackPrefix+text, opts)
	}
	return s.deliver(ctx, db.CommTypeVoice, rcpt, opts, candidates)
}

// SendWhatsApp delivers a WhatsApp message, degrading to a plain SMS of the
// same text when no WhatsApp provider covers the country. SMS is the
// lowest-common-denominator channel.
func (s *Service) SendWhatsApp(ctx context.Context, rcpt Recipient, message string, opts Options) provider.Result {
	rcpt.CountryCode = strings.ToUpper(rcpt.CountryCode)
	var candidates []candidate
	for _, p := range s.registry.ProvidersForCountry(rcpt.CountryCode) {
		sender, ok := p.(provider.WhatsAppSender)
		if !ok {
			continue
		}
		candidates = append(candidates, candidate{
			name: p.Name(),
			invoke: func(ctx context.Context) provider.Result {
				return sender.SendWhatsApp(ctx, rcpt.Phone, message, rcpt.CountryCode)
			},
		})
	}
	if len(candidates) == 0 {
		s.logger.Info("no whatsapp provider for country, degrading to sms",
			zap.String("country", rcpt.CountryCode),
		)
		return s.SendSMS(ctx, rcpt, message, opts)
	}
	return s.deliver(ctx, db.CommTypeWhatsApp, rcpt, opts, candidates)
}

func (s *Service) voiceCandidates(rcpt Recipient, bind func(provider.VoiceCaller) func(context.Context) provider.Result) []candidate {
	var candidates []candidate
	for _, p := range s.registry.ProvidersForCountry(rcpt.CountryCode) {
		caller, ok := p.(provider.VoiceCaller)
		if !ok {
			continue
		}
		candidates = append(candidates, candidate{name: p.Name(), invoke: bind(caller)})
	}
	return candidates
}

// deliver walks the candidate chain strictly sequentially: providers are
// ordered by preference and a parallel attempt would burn cost on a
// lower-preference transport. The loop stops at the first success; every
// attempt updates the health tracker; one audit row is written for the
// whole chain.
func (s *Service) deliver(ctx context.Context, commType string, rcpt Recipient, opts Options, candidates []candidate) provider.Result {
	phone := strings.TrimSpace(rcpt.Phone)
	if phone == "" {
		// Terminal: no provider attempted, no health update.
		res := provider.Failed(db.SentinelProvider, "recipient has no destination phone number", "")
		s.writeLog(ctx, commType, rcpt, opts, res, 0)
		return res
	}

	chainStart := time.Now()
	var last provider.Result
	attempts := 0

	for _, c := range candidates {
		attempts++
		started := time.Now()
		res := c.invoke(ctx)
		elapsed := time.Since(started)

		snap := s.tracker.Record(c.name, rcpt.CountryCode, res.Success, elapsed, res.Cost)
		metrics.RecordDeliveryAttempt(c.name, rcpt.CountryCode, res.Success, res.Cost)
		if s.repo != nil {
			if err := s.repo.UpsertProviderHealth(ctx, snap); err != nil {
				s.logger.Warn("health persistence failed", zap.Error(err))
			}
		}

		if res.Success {
			metrics.RecordFallbackDepth(commType, attempts)
			s.logger.Info("delivery succeeded",
				zap.String("comm_type", commType),
				zap.String("provider", c.name),
				zap.String("country", rcpt.CountryCode),
				zap.Int("attempt", attempts),
				zap.Duration("response_time", elapsed),
			)
			s.writeLog(ctx, commType, rcpt, opts, res, time.Since(chainStart))
			return res
		}

		last = res
		s.logger.Warn("provider attempt failed",
			zap.String("comm_type", commType),
			zap.String("provider", c.name),
			zap.String("country", rcpt.CountryCode),
			zap.Int("attempt", attempts),
			zap.String("error", res.ErrorMessage),
		)
	}

	metrics.RecordFallbackDepth(commType, attempts)
	metrics.RecordChainExhausted(commType, rcpt.CountryCode)

	var res provider.Result
	if attempts == 0 {
		res = provider.Failed(db.SentinelProvider,
			fmt.Sprintf("no %s-capable provider configured for country %q", commType, rcpt.CountryCode), "")
	} else {
		res = provider.Failed(db.SentinelProvider,
			fmt.Sprintf("all %d providers failed; last error from %s: %s", attempts, last.Provider, last.ErrorMessage),
			last.Raw)
	}

	s.logger.Error("delivery chain exhausted",
		zap.String("comm_type", commType),
		zap.String("country", rcpt.CountryCode),
		zap.Int("attempts", attempts),
		zap.String("error", res.ErrorMessage),
	)
	s.writeLog(ctx, commType, rcpt, opts, res, time.Since(chainStart))
	return res
}

func (s *Service) writeLog(ctx context.Context, commType string, rcpt Recipient, opts Options, res provider.Result, elapsed time.Duration) {
	if opts.SkipLog || s.repo == nil {
		return
	}

	raw := res.Raw
	if len(raw) > rawResponseLimit {
		raw = raw[:rawResponseLimit]
	}

	entry := &db.CommunicationLog{
		UserID:         rcpt.UserID,
		CommType:       commType,
		Provider:       res.Provider,
		Recipient:      db.HashRecipient(provider.FormatPhone(rcpt.Phone, rcpt.CountryCode)),
		MessageID:      res.MessageID,
		Success:        res.Success,
		ErrorMessage:   res.ErrorMessage,
		Cost:           res.Cost,
		Context:        opts.Context,
		ResponseTimeMs: elapsed.Milliseconds(),
		CountryCode:    rcpt.CountryCode,
		RawResponse:    raw,
	}
	if err := s.repo.InsertCommunicationLog(ctx, entry); err != nil {
		s.logger.Warn("audit log write failed", zap.Error(err))
	}
}

// ProviderStatusEntry is the read-only health/cost view for one provider in
// one country's chain.
type ProviderStatusEntry struct {
	Provider       string           `json:"provider"`
	Configured     bool             `json:"configured"`
	Countries      []string         `json:"countries"`
	CostPerMessage float64          `json:"cost_per_message"`
	CostPerMinute  float64          `json:"cost_per_minute"`
	Health         *health.Snapshot `json:"health,omitempty"`
}

// ProviderStatus reports the resolved chain for a country in preference
// order, with current cost and health. Health is nil for providers that have
// not been attempted yet in that country.
func (s *Service) ProviderStatus(country string) []ProviderStatusEntry {
	country = strings.ToUpper(country)
	providers := s.registry.ProvidersForCountry(country)

	out := make([]ProviderStatusEntry, 0, len(providers))
	for _, p := range providers {
		entry := ProviderStatusEntry{
			Provider:       p.Name(),
			Configured:     p.IsConfigured(),
			Countries:      p.SupportedCountries(),
			CostPerMessage: p.CostPerMessage(country),
			CostPerMinute:  p.CostPerMinute(country),
		}
		if snap, ok := s.tracker.Snapshot(p.Name(), country); ok {
			entry.Health = &snap
		}
		out = append(out, entry)
	}
	return out
}
