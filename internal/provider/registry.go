package provider

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/minbarhq/minbar/internal/config"
)

// universalProviderName terminates every fallback chain.
const universalProviderName = "twilio"

// countryPreferences is the country -> ordered provider name table. Order is
// a configuration-time policy (cheapest reliable route first); the service
// never re-orders it at call time. Countries not listed here resolve to the
// universal fallback alone.
var countryPreferences = map[string][]string{
	"NG": {"termii", "africastalking", "twilio"},
	"GH": {"termii", "twilio"},
	"KE": {"africastalking", "termii", "twilio"},
	"UG": {"africastalking", "twilio"},
	"TZ": {"africastalking", "twilio"},
	"RW": {"africastalking", "twilio"},
	"MW": {"africastalking", "twilio"},
	"ZM": {"africastalking", "twilio"},
	"ZA": {"termii", "twilio"},
	"US": {"sns", "twilio"},
	"CA": {"sns", "twilio"},
	"GB": {"sns", "twilio"},
	"SA": {"sns", "twilio"},
	"AE": {"sns", "twilio"},
	"IN": {"sns", "twilio"},
}

// Registry is the process-wide provider catalogue plus the country preference
// table. It is built once at startup (Init is a guarded no-op on repeat
// calls) and read-only afterwards, so lookups take no lock.
type Registry struct {
	once      sync.Once
	providers map[string]Provider
	prefs     map[string][]string
	universal string
	logger    *zap.Logger
}

// NewRegistry creates an empty registry with the default preference table.
// Call Init to construct the configured providers.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		providers: make(map[string]Provider),
		prefs:     countryPreferences,
		universal: universalProviderName,
		logger:    logger,
	}
}

// NewStaticRegistry builds a fully-specified registry. Used by tests and by
// Init internally; prefs maps country codes to provider-name preference
// order and universal names the wildcard fallback provider.
func NewStaticRegistry(logger *zap.Logger, prefs map[string][]string, universal string, providers ...Provider) *Registry {
	r := NewRegistry(logger)
	if prefs != nil {
		r.prefs = prefs
	}
	if universal != "" {
		r.universal = universal
	}
	for _, p := range providers {
		r.register(p)
	}
	return r
}

// Init constructs every configured provider exactly once. Providers whose
// construction fails are skipped with a warning; initialization itself never
// fails. If nothing at all ends up configured, the universal provider is
// constructed in debug mode so the system stays operable.
func (r *Registry) Init(ctx context.Context, cfg *config.Config, sessions VoiceSessionWriter) {
	r.once.Do(func() {
		timeout := cfg.ProviderTimeout

		r.register(NewTermii(cfg.Termii, timeout, r.logger))
		r.register(NewAfricasTalking(cfg.AfricasTalking, timeout, sessions, r.logger))
		r.register(NewTwilio(cfg.Twilio, timeout, r.logger))

		if snsProvider, err := NewSNS(ctx, cfg.SNS, r.logger); err != nil {
			r.logger.Warn("skipping sns provider", zap.Error(err))
		} else {
			r.register(snsProvider)
		}

		if !r.anyConfigured() {
			r.logger.Warn("no provider configured; falling back to debug-mode universal provider")
			debugCfg := cfg.Twilio
			debugCfg.Debug = true
			r.providers[r.universal] = NewTwilio(debugCfg, timeout, r.logger)
		}

		for name, p := range r.providers {
			r.logger.Info("provider registered",
				zap.String("provider", name),
				zap.Bool("configured", p.IsConfigured()),
				zap.Strings("countries", p.SupportedCountries()),
			)
		}
	})
}

func (r *Registry) register(p Provider) {
	r.providers[p.Name()] = p
}

func (r *Registry) anyConfigured() bool {
	for _, p := range r.providers {
		if p.IsConfigured() {
			return true
		}
	}
	return false
}

// Provider returns a provider by name.
func (r *Registry) Provider(name string) (Provider, bool) {
	p, ok := r.providers[name]
	return p, ok
}

// Providers returns every registered provider, configured or not.
func (r *Registry) Providers() []Provider {
	out := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		out = append(out, p)
	}
	return out
}

// ProvidersForCountry resolves the configured providers for a country in
// preference order, with the universal fallback appended as the final safety
// net. Unknown countries get the universal fallback alone. The result is
// never empty as long as at least one provider is configured.
func (r *Registry) ProvidersForCountry(code string) []Provider {
	code = strings.ToUpper(code)

	var out []Provider
	seen := make(map[string]bool)

	for _, name := range r.prefs[code] {
		p, ok := r.providers[name]
		if !ok || !p.IsConfigured() || seen[name] {
			continue
		}
		out = append(out, p)
		seen[name] = true
	}

	if !seen[r.universal] {
		if p, ok := r.providers[r.universal]; ok && p.IsConfigured() {
			out = append(out, p)
		}
	}

	return out
}
