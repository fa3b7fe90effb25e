// Package provider implements the outbound transports (SMS, voice, WhatsApp)
// and the registry that resolves the preferred transports for a country.
package provider

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// CountryAny is the wildcard sentinel in SupportedCountries meaning the
// provider accepts any destination country. The universal fallback provider
// reports exactly this.
const CountryAny = "*"

// Provider is the base contract every transport implements. Capability
// interfaces (SMSSender, VoiceCaller, WhatsAppSender) embed it; a transport
// implements whichever subset its API supports, and callers dispatch by
// interface assertion rather than type inspection.
type Provider interface {
	// Name is the unique registry key, e.g. "termii".
	Name() string

	// IsConfigured reports whether required credentials were present at
	// construction. Operations on an unconfigured provider still return a
	// well-formed failed Result instead of panicking.
	IsConfigured() bool

	// SupportedCountries returns ISO country codes, or []string{CountryAny}.
	SupportedCountries() []string

	// CostPerMessage returns the per-message USD cost for a country,
	// falling back to the provider default for unlisted countries.
	CostPerMessage(country string) float64

	// CostPerMinute returns the per-minute voice USD cost for a country,
	// falling back to the provider default. Zero for SMS-only transports.
	CostPerMinute(country string) float64

	// FormatAddress normalizes a local phone number into international
	// form. Idempotent: an already-international number passes through.
	FormatAddress(raw, country string) string
}

// SMSSender is the SMS capability.
type SMSSender interface {
	Provider
	SendSMS(ctx context.Context, to, message, country string) Result
}

// VoiceCaller is the voice capability: either play a hosted audio file or
// speak a text payload.
type VoiceCaller interface {
	Provider
	MakeCall(ctx context.Context, to, audioURL, country string) Result
	MakeTextCall(ctx context.Context, to, text, country string) Result
}

// WhatsAppSender is the WhatsApp capability.
type WhatsAppSender interface {
	Provider
	SendWhatsApp(ctx context.Context, to, message, country string) Result
}

// VoiceSession is the payload a voice provider stashes before dialing when
// its status callback cannot carry custom parameters. The webhook handler
// recovers it by phone number alone.
type VoiceSession struct {
	CallType string `json:"call_type"`
	AudioURL string `json:"audio_url,omitempty"`
	Text     string `json:"text,omitempty"`
}

// Voice call types stored in sessions.
const (
	CallTypeAudio = "adhan_audio"
	CallTypeText  = "tts_text"
)

// VoiceSessionWriter is implemented by the session store. Providers that
// need callback correlation receive one at construction. PutSession runs
// before the dial; LinkCallID runs after, once the carrier has issued its
// own call id, so callbacks that do carry the id sidestep the same-phone
// overwrite race.
type VoiceSessionWriter interface {
	PutSession(ctx context.Context, phone string, session VoiceSession) error
	LinkCallID(ctx context.Context, callID, phone string) error
}

// costFor looks up a per-country cost table, returning def for countries the
// table does not list. Never negative.
func costFor(table map[string]float64, country string, def float64) float64 {
	if c, ok := table[country]; ok {
		return c
	}
	return def
}

// debugResult synthesizes a success for debug-mode providers without any
// network I/O. The identifier shape is deterministic (debug-<name>-<uuid>)
// and the cost comes from the real cost table so downstream logging code is
// exercised identically to production.
func debugResult(name string, cost float64) Result {
	return Succeeded(
		name,
		fmt.Sprintf("debug-%s-%s", name, uuid.NewString()),
		cost,
		StatusSent,
		"debug mode: no network call performed",
	)
}

// notConfiguredResult is returned by every operation on a provider whose
// credentials were missing at construction.
func notConfiguredResult(name string) Result {
	return Failed(name, fmt.Sprintf("provider %s is not configured", name), "")
}
