package provider

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/minbarhq/minbar/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{ProviderTimeout: time.Second}
}

// fakeProvider implements Provider and SMSSender for registry tests.
type fakeProvider struct {
	name       string
	configured bool
	countries  []string
}

func (f *fakeProvider) Name() string                       { return f.name }
func (f *fakeProvider) IsConfigured() bool                 { return f.configured }
func (f *fakeProvider) SupportedCountries() []string       { return f.countries }
func (f *fakeProvider) CostPerMessage(string) float64      { return 0.01 }
func (f *fakeProvider) CostPerMinute(string) float64       { return 0 }
func (f *fakeProvider) FormatAddress(raw, c string) string { return FormatPhone(raw, c) }
func (f *fakeProvider) SendSMS(ctx context.Context, to, message, country string) Result {
	return Succeeded(f.name, "msg-1", 0.01, StatusSent, "")
}

func testPrefs() map[string][]string {
	return map[string][]string{
		"NG": {"alpha", "beta", "universal"},
		"KE": {"beta"},
	}
}

func TestProvidersForCountry_PreferenceOrder(t *testing.T) {
	r := NewStaticRegistry(zap.NewNop(), testPrefs(), "universal",
		&fakeProvider{name: "alpha", configured: true, countries: []string{"NG"}},
		&fakeProvider{name: "beta", configured: true, countries: []string{"NG", "KE"}},
		&fakeProvider{name: "universal", configured: true, countries: []string{CountryAny}},
	)

	got := r.ProvidersForCountry("NG")
	want := []string{"alpha", "beta", "universal"}
	assertProviderNames(t, got, want)
}

func TestProvidersForCountry_FiltersUnconfigured(t *testing.T) {
	r := NewStaticRegistry(zap.NewNop(), testPrefs(), "universal",
		&fakeProvider{name: "alpha", configured: false, countries: []string{"NG"}},
		&fakeProvider{name: "beta", configured: true, countries: []string{"NG", "KE"}},
		&fakeProvider{name: "universal", configured: true, countries: []string{CountryAny}},
	)

	assertProviderNames(t, r.ProvidersForCountry("NG"), []string{"beta", "universal"})
}

func TestProvidersForCountry_AppendsUniversalFallback(t *testing.T) {
	r := NewStaticRegistry(zap.NewNop(), testPrefs(), "universal",
		&fakeProvider{name: "beta", configured: true, countries: []string{"KE"}},
		&fakeProvider{name: "universal", configured: true, countries: []string{CountryAny}},
	)

	// KE's table lists only beta; universal is appended as the safety net.
	assertProviderNames(t, r.ProvidersForCountry("KE"), []string{"beta", "universal"})
}

func TestProvidersForCountry_UnknownCountryGetsUniversalOnly(t *testing.T) {
	r := NewStaticRegistry(zap.NewNop(), testPrefs(), "universal",
		&fakeProvider{name: "alpha", configured: true, countries: []string{"NG"}},
		&fakeProvider{name: "universal", configured: true, countries: []string{CountryAny}},
	)

	assertProviderNames(t, r.ProvidersForCountry("FR"), []string{"universal"})
}

func TestProvidersForCountry_LowercaseCode(t *testing.T) {
	r := NewStaticRegistry(zap.NewNop(), testPrefs(), "universal",
		&fakeProvider{name: "alpha", configured: true, countries: []string{"NG"}},
		&fakeProvider{name: "universal", configured: true, countries: []string{CountryAny}},
	)

	assertProviderNames(t, r.ProvidersForCountry("ng"), []string{"alpha", "universal"})
}

func TestProvidersForCountry_NeverEmptyWhenConfigured(t *testing.T) {
	r := NewStaticRegistry(zap.NewNop(), testPrefs(), "universal",
		&fakeProvider{name: "universal", configured: true, countries: []string{CountryAny}},
	)

	for _, code := range []string{"NG", "KE", "FR", "ZZ", ""} {
		if len(r.ProvidersForCountry(code)) == 0 {
			t.Errorf("ProvidersForCountry(%q) returned empty list", code)
		}
	}
}

func TestRegistryInit_Idempotent(t *testing.T) {
	r := NewRegistry(zap.NewNop())

	cfg := testConfig()
	r.Init(context.Background(), cfg, nil)
	first := len(r.Providers())

	// Second init is a guarded no-op.
	r.Init(context.Background(), cfg, nil)
	if got := len(r.Providers()); got != first {
		t.Errorf("second Init changed provider count: %d -> %d", first, got)
	}
}

func TestRegistryInit_DebugFallbackWhenNothingConfigured(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	r.Init(context.Background(), testConfig(), nil)

	// No credentials anywhere: the universal provider must still resolve,
	// running in debug mode.
	got := r.ProvidersForCountry("NG")
	if len(got) == 0 {
		t.Fatal("expected debug-mode universal provider, got empty list")
	}
	if got[len(got)-1].Name() != universalProviderName {
		t.Errorf("expected universal fallback %q, got %q", universalProviderName, got[len(got)-1].Name())
	}
}

func assertProviderNames(t *testing.T, got []Provider, want []string) {
	t.Helper()
	if len(got) != len(want) {
		names := make([]string, len(got))
		for i, p := range got {
			names[i] = p.Name()
		}
		t.Fatalf("expected providers %v, got %v", want, names)
	}
	for i, p := range got {
		if p.Name() != want[i] {
			t.Errorf("position %d: expected %q, got %q", i, want[i], p.Name())
		}
	}
}
