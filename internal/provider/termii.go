package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/minbarhq/minbar/internal/config"
)

const defaultTermiiBaseURL = "https://api.termii.com"

// termiiCosts is the per-message USD cost table, agreed at contract time.
var termiiCosts = map[string]float64{
	"NG": 0.011,
	"GH": 0.024,
	"KE": 0.021,
	"UG": 0.029,
	"ZA": 0.018,
}

const termiiDefaultCost = 0.035

// Termii sends SMS and WhatsApp messages through the Termii API. It is the
// preferred transport for Nigeria and most of West Africa.
type Termii struct {
	cfg        config.TermiiConfig
	client     *http.Client
	baseURL    string
	configured bool
	logger     *zap.Logger
}

// NewTermii constructs the provider. Missing credentials do not fail
// construction; the provider is simply marked unconfigured.
func NewTermii(cfg config.TermiiConfig, timeout time.Duration, logger *zap.Logger) *Termii {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Termii{
		cfg:        cfg,
		client:     &http.Client{Timeout: timeout},
		baseURL:    defaultTermiiBaseURL,
		configured: cfg.APIKey != "" && cfg.SenderID != "",
		logger:     logger,
	}
}

func (t *Termii) Name() string { return "termii" }

func (t *Termii) IsConfigured() bool { return t.configured || t.cfg.Debug }

func (t *Termii) SupportedCountries() []string {
	return []string{"NG", "GH", "KE", "UG", "ZA"}
}

func (t *Termii) CostPerMessage(country string) float64 {
	return costFor(termiiCosts, country, termiiDefaultCost)
}

// CostPerMinute is zero: Termii has no voice product.
func (t *Termii) CostPerMinute(country string) float64 { return 0 }

func (t *Termii) FormatAddress(raw, country string) string {
	return FormatPhone(raw, country)
}

// SendSMS delivers a plain SMS via the "generic" channel.
func (t *Termii) SendSMS(ctx context.Context, to, message, country string) Result {
	return t.send(ctx, to, message, country, "generic")
}

// SendWhatsApp delivers the same payload over Termii's whatsapp channel.
func (t *Termii) SendWhatsApp(ctx context.Context, to, message, country string) Result {
	return t.send(ctx, to, message, country, "whatsapp")
}

type termiiRequest struct {
	To      string `json:"to"`
	From    string `json:"from"`
	SMS     string `json:"sms"`
	Type    string `json:"type"`
	Channel string `json:"channel"`
	APIKey  string `json:"api_key"`
}

type termiiResponse struct {
	MessageID string `json:"message_id"`
	Message   string `json:"message"`
	Code      string `json:"code"`
}

func (t *Termii) send(ctx context.Context, to, message, country, channel string) Result {
	if !t.configured && !t.cfg.Debug {
		return notConfiguredResult(t.Name())
	}
	if t.cfg.Debug {
		return debugResult(t.Name(), t.CostPerMessage(country))
	}

	body, err := json.Marshal(termiiRequest{
		To:      t.FormatAddress(to, country),
		From:    t.cfg.SenderID,
		SMS:     message,
		Type:    "plain",
		Channel: channel,
		APIKey:  t.cfg.APIKey,
	})
	if err != nil {
		return Failed(t.Name(), fmt.Sprintf("encode request: %v", err), "")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/api/sms/send", bytes.NewReader(body))
	if err != nil {
		return Failed(t.Name(), fmt.Sprintf("build request: %v", err), "")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return Failed(t.Name(), fmt.Sprintf("termii request failed: %v", err), "")
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Failed(t.Name(),
			fmt.Sprintf("termii returned status %d", resp.StatusCode),
			string(raw),
		)
	}

	var parsed termiiResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Failed(t.Name(), fmt.Sprintf("termii response malformed: %v", err), string(raw))
	}
	if parsed.MessageID == "" {
		return Failed(t.Name(), fmt.Sprintf("termii rejected message: %s", parsed.Message), string(raw))
	}

	t.logger.Info("message sent via termii",
		zap.String("channel", channel),
		zap.String("country", country),
		zap.String("message_id", parsed.MessageID),
	)

	return Succeeded(t.Name(), parsed.MessageID, t.CostPerMessage(country), StatusSent, string(raw))
}
