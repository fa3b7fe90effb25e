package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/minbarhq/minbar/internal/config"
)

const defaultTwilioBaseURL = "https://api.twilio.com"

var twilioSMSCosts = map[string]float64{
	"US": 0.0079,
	"CA": 0.0079,
	"GB": 0.040,
	"NG": 0.071,
	"KE": 0.080,
	"SA": 0.055,
	"AE": 0.060,
	"IN": 0.019,
}

var twilioVoiceCosts = map[string]float64{
	"US": 0.014,
	"CA": 0.014,
	"GB": 0.020,
	"NG": 0.120,
	"SA": 0.110,
}

const (
	twilioDefaultSMSCost   = 0.090
	twilioDefaultVoiceCost = 0.150
)

// Twilio covers all three channels and accepts any country, which makes it
// the universal fallback: it terminates every fallback chain. Voice calls
// pass a TwiML URL, so Twilio needs no callback session store.
type Twilio struct {
	cfg        config.TwilioConfig
	client     *http.Client
	baseURL    string
	configured bool
	logger     *zap.Logger
}

func NewTwilio(cfg config.TwilioConfig, timeout time.Duration, logger *zap.Logger) *Twilio {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Twilio{
		cfg:        cfg,
		client:     &http.Client{Timeout: timeout},
		baseURL:    defaultTwilioBaseURL,
		configured: cfg.AccountSID != "" && cfg.AuthToken != "" && cfg.FromNumber != "",
		logger:     logger,
	}
}

func (t *Twilio) Name() string { return "twilio" }

func (t *Twilio) IsConfigured() bool { return t.configured || t.cfg.Debug }

// SupportedCountries is the wildcard: Twilio terminates in any country.
func (t *Twilio) SupportedCountries() []string { return []string{CountryAny} }

func (t *Twilio) CostPerMessage(country string) float64 {
	return costFor(twilioSMSCosts, country, twilioDefaultSMSCost)
}

func (t *Twilio) CostPerMinute(country string) float64 {
	return costFor(twilioVoiceCosts, country, twilioDefaultVoiceCost)
}

func (t *Twilio) FormatAddress(raw, country string) string {
	return FormatPhone(raw, country)
}

type twilioResponse struct {
	SID          string `json:"sid"`
	Status       string `json:"status"`
	ErrorMessage string `json:"message"`
}

func (t *Twilio) SendSMS(ctx context.Context, to, message, country string) Result {
	return t.postForm(ctx, "Messages", url.Values{
		"To":   {t.FormatAddress(to, country)},
		"From": {t.cfg.FromNumber},
		"Body": {message},
	}, t.CostPerMessage(country), StatusQueued)
}

func (t *Twilio) SendWhatsApp(ctx context.Context, to, message, country string) Result {
	from := t.cfg.WhatsAppFrom
	if from == "" {
		from = t.cfg.FromNumber
	}
	return t.postForm(ctx, "Messages", url.Values{
		"To":   {"whatsapp:" + t.FormatAddress(to, country)},
		"From": {"whatsapp:" + from},
		"Body": {message},
	}, t.CostPerMessage(country), StatusQueued)
}

func (t *Twilio) MakeCall(ctx context.Context, to, audioURL, country string) Result {
	return t.postForm(ctx, "Calls", url.Values{
		"To":   {t.FormatAddress(to, country)},
		"From": {t.cfg.FromNumber},
		// TwiML document that plays the audio; Twilio fetches it itself,
		// so no session store round trip is needed.
		"Twiml": {fmt.Sprintf(`<Response><Play>%s</Play></Response>`, audioURL)},
	}, t.CostPerMinute(country), StatusInitiated)
}

func (t *Twilio) MakeTextCall(ctx context.Context, to, text, country string) Result {
	return t.postForm(ctx, "Calls", url.Values{
		"To":    {t.FormatAddress(to, country)},
		"From":  {t.cfg.FromNumber},
		"Twiml": {fmt.Sprintf(`<Response><Say>%s</Say></Response>`, text)},
	}, t.CostPerMinute(country), StatusInitiated)
}

func (t *Twilio) postForm(ctx context.Context, resource string, form url.Values, cost float64, okStatus DeliveryStatus) Result {
	if !t.configured && !t.cfg.Debug {
		return notConfiguredResult(t.Name())
	}
	if t.cfg.Debug {
		return debugResult(t.Name(), cost)
	}

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/%s.json", t.baseURL, t.cfg.AccountSID, resource)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return Failed(t.Name(), fmt.Sprintf("build request: %v", err), "")
	}
	req.SetBasicAuth(t.cfg.AccountSID, t.cfg.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return Failed(t.Name(), fmt.Sprintf("twilio request failed: %v", err), "")
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var parsed twilioResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Failed(t.Name(), fmt.Sprintf("twilio response malformed: %v", err), string(raw))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := parsed.ErrorMessage
		if msg == "" {
			msg = fmt.Sprintf("twilio returned status %d", resp.StatusCode)
		}
		return Failed(t.Name(), msg, string(raw))
	}

	t.logger.Info("delivery via twilio",
		zap.String("resource", resource),
		zap.String("sid", parsed.SID),
		zap.String("status", parsed.Status),
	)

	return Succeeded(t.Name(), parsed.SID, cost, okStatus, string(raw))
}
