package notify

import (
	"context"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/minbarhq/minbar/internal/db"
	"github.com/minbarhq/minbar/internal/health"
	"github.com/minbarhq/minbar/internal/provider"
)

// fakeSMS is an SMS-only provider with a scripted outcome.
type fakeSMS struct {
	name       string
	configured bool
	succeed    bool
	calls      int
	lastMsg    string
}

func (f *fakeSMS) Name() string                       { return f.name }
func (f *fakeSMS) IsConfigured() bool                 { return f.configured }
func (f *fakeSMS) SupportedCountries() []string       { return []string{"NG"} }
func (f *fakeSMS) CostPerMessage(string) float64      { return 0.01 }
func (f *fakeSMS) CostPerMinute(string) float64       { return 0 }
func (f *fakeSMS) FormatAddress(raw, c string) string { return provider.FormatPhone(raw, c) }

func (f *fakeSMS) SendSMS(ctx context.Context, to, message, country string) provider.Result {
	f.calls++
	f.lastMsg = message
	if f.succeed {
		return provider.Succeeded(f.name, "id-"+f.name, 0.01, provider.StatusSent, "")
	}
	return provider.Failed(f.name, f.name+" went wrong", "")
}

// fakeVoice adds the voice capability on top of fakeSMS.
type fakeVoice struct {
	fakeSMS
	voiceCalls int
}

func (f *fakeVoice) MakeCall(ctx context.Context, to, audioURL, country string) provider.Result {
	f.voiceCalls++
	if f.succeed {
		return provider.Succeeded(f.name, "call-"+f.name, 0.05, provider.StatusInitiated, "")
	}
	return provider.Failed(f.name, f.name+" call failed", "")
}

func (f *fakeVoice) MakeTextCall(ctx context.Context, to, text, country string) provider.Result {
	return f.MakeCall(ctx, to, text, country)
}

// memRepo records persistence calls in memory.
type memRepo struct {
	logs    []*db.CommunicationLog
	upserts int
}

func (m *memRepo) InsertCommunicationLog(ctx context.Context, entry *db.CommunicationLog) error {
	m.logs = append(m.logs, entry)
	return nil
}

func (m *memRepo) UpsertProviderHealth(ctx context.Context, snap health.Snapshot) error {
	m.upserts++
	return nil
}

func newTestService(repo Repository, providers ...provider.Provider) (*Service, *health.Tracker) {
	names := make([]string, len(providers))
	for i, p := range providers {
		names[i] = p.Name()
	}
	registry := provider.NewStaticRegistry(zap.NewNop(),
		map[string][]string{"NG": names},
		names[len(names)-1], // last provider doubles as the universal fallback
		providers...,
	)
	tracker := health.NewTracker()
	return NewService(registry, tracker, repo, zap.NewNop()), tracker
}

func ngUser() Recipient {
	return Recipient{UserID: "user-1", Phone: "08031234567", CountryCode: "NG"}
}

func TestSendSMS_FirstProviderWins(t *testing.T) {
	a := &fakeSMS{name: "a", configured: true, succeed: true}
	b := &fakeSMS{name: "b", configured: true, succeed: true}
	svc, _ := newTestService(nil, a, b)

	res := svc.SendSMS(context.Background(), ngUser(), "Fajr at 05:12", Options{})
	if !res.Success || res.Provider != "a" {
		t.Fatalf("expected provider a to win, got %+v", res)
	}
	if b.calls != 0 {
		t.Errorf("provider b must not be attempted after a success, got %d calls", b.calls)
	}
}

func TestSendSMS_FallbackTriesExactlyMPlusOne(t *testing.T) {
	a := &fakeSMS{name: "a", configured: true, succeed: false}
	b := &fakeSMS{name: "b", configured: true, succeed: false}
	c := &fakeSMS{name: "c", configured: true, succeed: true}
	d := &fakeSMS{name: "d", configured: true, succeed: true}
	svc, _ := newTestService(nil, a, b, c, d)

	res := svc.SendSMS(context.Background(), ngUser(), "hello", Options{})
	if !res.Success || res.Provider != "c" {
		t.Fatalf("expected provider c's result, got %+v", res)
	}
	for _, f := range []*fakeSMS{a, b, c} {
		if f.calls != 1 {
			t.Errorf("provider %s: expected exactly 1 attempt, got %d", f.name, f.calls)
		}
	}
	if d.calls != 0 {
		t.Errorf("provider d must never be attempted, got %d", d.calls)
	}
}

func TestSendSMS_ExhaustionAggregatesFailure(t *testing.T) {
	a := &fakeSMS{name: "a", configured: true, succeed: false}
	b := &fakeSMS{name: "b", configured: true, succeed: false}
	c := &fakeSMS{name: "c", configured: true, succeed: false}
	repo := &memRepo{}
	svc, tracker := newTestService(repo, a, b, c)

	res := svc.SendSMS(context.Background(), ngUser(), "hello", Options{})
	if res.Success {
		t.Fatal("expected aggregated failure")
	}
	if res.Provider != db.SentinelProvider {
		t.Errorf("exhausted chain must report the sentinel provider, got %q", res.Provider)
	}
	if !strings.Contains(res.ErrorMessage, "c went wrong") {
		t.Errorf("aggregated error must reference the last underlying error, got: %s", res.ErrorMessage)
	}

	// Exactly one health update per provider.
	if repo.upserts != 3 {
		t.Errorf("expected 3 health upserts, got %d", repo.upserts)
	}
	for _, name := range []string{"a", "b", "c"} {
		snap, ok := tracker.Snapshot(name, "NG")
		if !ok {
			t.Fatalf("missing health entry for %s", name)
		}
		if snap.TotalAttempts != 1 || snap.FailedAttempts != 1 {
			t.Errorf("provider %s: unexpected counters %+v", name, snap)
		}
	}

	// One audit row for the whole chain, tagged with the sentinel.
	if len(repo.logs) != 1 {
		t.Fatalf("expected 1 audit row, got %d", len(repo.logs))
	}
	if repo.logs[0].Provider != db.SentinelProvider || repo.logs[0].Success {
		t.Errorf("unexpected audit row: %+v", repo.logs[0])
	}
}

func TestSendSMS_MissingPhoneIsTerminal(t *testing.T) {
	a := &fakeSMS{name: "a", configured: true, succeed: true}
	repo := &memRepo{}
	svc, tracker := newTestService(repo, a)

	res := svc.SendSMS(context.Background(), Recipient{UserID: "u", CountryCode: "NG"}, "hello", Options{})
	if res.Success {
		t.Fatal("expected terminal failure for missing phone")
	}
	if a.calls != 0 {
		t.Errorf("no provider may be attempted without a destination, got %d calls", a.calls)
	}
	if len(tracker.All()) != 0 {
		t.Error("no health entries may exist without an attempt")
	}
	if len(repo.logs) != 1 {
		t.Fatalf("missing-destination failures still get an audit row, got %d", len(repo.logs))
	}
}

func TestSendSMS_UnconfiguredProviderNeverAttempted(t *testing.T) {
	// The NG scenario: A is present in the preference table but has no
	// credentials; B succeeds; C is the universal fallback.
	a := &fakeSMS{name: "a", configured: false, succeed: true}
	b := &fakeSMS{name: "b", configured: true, succeed: true}
	c := &fakeSMS{name: "c", configured: true, succeed: true}
	svc, tracker := newTestService(nil, a, b, c)

	res := svc.SendSMS(context.Background(), ngUser(), "hello", Options{})
	if !res.Success || res.Provider != "b" {
		t.Fatalf("expected provider b's result, got %+v", res)
	}
	if a.calls != 0 {
		t.Errorf("unconfigured provider was attempted %d times", a.calls)
	}
	if _, ok := tracker.Snapshot("a", "NG"); ok {
		t.Error("unconfigured provider must have no health entry")
	}
	if snap, ok := tracker.Snapshot("b", "NG"); !ok || snap.SuccessfulAttempts != 1 {
		t.Errorf("expected one successful entry for b, got %+v", snap)
	}
}

func TestMakeTextCall_DegradesToSMSWithPrefix(t *testing.T) {
	// Only SMS-capable providers in the chain: voice degrades to SMS.
	a := &fakeSMS{name: "a", configured: true, succeed: true}
	svc, _ := newTestService(nil, a)

	res := svc.MakeTextCall(context.Background(), ngUser(), "It is time for Fajr", Options{})
	if !res.Success {
		t.Fatalf("expected degraded SMS to succeed, got %+v", res)
	}
	if a.calls != 1 {
		t.Fatalf("expected 1 SMS attempt, got %d", a.calls)
	}
	if !strings.HasPrefix(a.lastMsg, voiceFallbackPrefix) {
		t.Errorf("degraded SMS must carry the voice prefix, got %q", a.lastMsg)
	}
}

func TestMakeCall_UsesVoiceCapableProvider(t *testing.T) {
	sms := &fakeSMS{name: "smsonly", configured: true, succeed: true}
	voice := &fakeVoice{fakeSMS: fakeSMS{name: "voicey", configured: true, succeed: true}}
	svc, _ := newTestService(nil, sms, voice)

	res := svc.MakeCall(context.Background(), ngUser(), "https://cdn.minbar.app/adhan.mp3", Options{})
	if !res.Success || res.Provider != "voicey" {
		t.Fatalf("expected the voice provider, got %+v", res)
	}
	if voice.voiceCalls != 1 {
		t.Errorf("expected 1 voice attempt, got %d", voice.voiceCalls)
	}
	if sms.calls != 0 {
		t.Errorf("sms-only provider must be skipped for voice, got %d calls", sms.calls)
	}
}

func TestSendWhatsApp_DegradesToPlainSMS(t *testing.T) {
	a := &fakeSMS{name: "a", configured: true, succeed: true}
	svc, _ := newTestService(nil, a)

	res := svc.SendWhatsApp(context.Background(), ngUser(), "salaam", Options{})
	if !res.Success {
		t.Fatalf("expected degraded SMS to succeed, got %+v", res)
	}
	if a.lastMsg != "salaam" {
		t.Errorf("whatsapp degrade must keep the message intact, got %q", a.lastMsg)
	}
}

func TestDeliver_SkipLog(t *testing.T) {
	a := &fakeSMS{name: "a", configured: true, succeed: true}
	repo := &memRepo{}
	svc, _ := newTestService(repo, a)

	svc.SendSMS(context.Background(), ngUser(), "test send", Options{SkipLog: true})
	if len(repo.logs) != 0 {
		t.Errorf("SkipLog must suppress the audit row, got %d rows", len(repo.logs))
	}
	// Health still updates: synthetic sends exercise real transports.
	if repo.upserts != 1 {
		t.Errorf("expected health upsert even with SkipLog, got %d", repo.upserts)
	}
}

func TestDeliver_AuditRowContents(t *testing.T) {
	a := &fakeSMS{name: "a", configured: true, succeed: true}
	repo := &memRepo{}
	svc, _ := newTestService(repo, a)

	svc.SendSMS(context.Background(), ngUser(), "Fajr at 05:12", Options{Context: "fajr"})

	if len(repo.logs) != 1 {
		t.Fatalf("expected 1 audit row, got %d", len(repo.logs))
	}
	entry := repo.logs[0]
	if entry.Provider != "a" || !entry.Success || entry.CommType != db.CommTypeSMS {
		t.Errorf("unexpected audit row: %+v", entry)
	}
	if entry.Context != "fajr" {
		t.Errorf("expected context tag fajr, got %q", entry.Context)
	}
	if strings.Contains(entry.Recipient, "08031234567") || strings.Contains(entry.Recipient, "+234") {
		t.Errorf("recipient must not be stored in the clear: %q", entry.Recipient)
	}
}

func TestSendSMS_LowercaseCountryNormalized(t *testing.T) {
	a := &fakeSMS{name: "a", configured: true, succeed: true}
	repo := &memRepo{}
	svc, tracker := newTestService(repo, a)

	rcpt := Recipient{UserID: "user-1", Phone: "08031234567", CountryCode: "ng"}
	res := svc.SendSMS(context.Background(), rcpt, "hello", Options{})
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}

	// Health lands under the canonical uppercase key, never a second "ng"
	// series.
	if _, ok := tracker.Snapshot("a", "ng"); ok {
		t.Error("health recorded under raw lowercase key")
	}
	snap, ok := tracker.Snapshot("a", "NG")
	if !ok || snap.SuccessfulAttempts != 1 {
		t.Fatalf("expected health under NG, got %+v (ok=%v)", snap, ok)
	}

	// Status lookups accept either case and see the same series.
	for _, code := range []string{"ng", "NG"} {
		status := svc.ProviderStatus(code)
		if len(status) != 1 {
			t.Fatalf("ProviderStatus(%q): expected 1 entry, got %d", code, len(status))
		}
		if status[0].Health == nil || status[0].Health.SuccessfulAttempts != 1 {
			t.Errorf("ProviderStatus(%q): attempted provider shows no health: %+v", code, status[0].Health)
		}
	}

	if len(repo.logs) != 1 || repo.logs[0].CountryCode != "NG" {
		t.Errorf("audit row must carry the canonical country code, got %+v", repo.logs)
	}
}

func TestProviderStatus_ReportsChainInOrder(t *testing.T) {
	a := &fakeSMS{name: "a", configured: true, succeed: true}
	b := &fakeSMS{name: "b", configured: true, succeed: true}
	svc, _ := newTestService(nil, a, b)

	svc.SendSMS(context.Background(), ngUser(), "hello", Options{})

	status := svc.ProviderStatus("NG")
	if len(status) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(status))
	}
	if status[0].Provider != "a" || status[1].Provider != "b" {
		t.Errorf("status must follow preference order: %+v", status)
	}
	if status[0].Health == nil || status[0].Health.SuccessfulAttempts != 1 {
		t.Errorf("attempted provider must carry health: %+v", status[0].Health)
	}
	if status[1].Health != nil {
		t.Error("unattempted provider must have nil health")
	}
	if status[0].CostPerMessage != 0.01 {
		t.Errorf("expected cost table value, got %v", status[0].CostPerMessage)
	}
}
