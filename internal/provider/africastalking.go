package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/minbarhq/minbar/internal/config"
)

const (
	defaultATMessagingURL = "https://api.africastalking.com/version1/messaging"
	defaultATVoiceURL     = "https://voice.africastalking.com/call"
)

var atSMSCosts = map[string]float64{
	"NG": 0.015,
	"KE": 0.008,
	"UG": 0.012,
	"TZ": 0.014,
	"RW": 0.013,
	"MW": 0.020,
	"ZM": 0.022,
}

var atVoiceCosts = map[string]float64{
	"NG": 0.065,
	"KE": 0.040,
	"UG": 0.055,
	"TZ": 0.058,
}

const (
	atDefaultSMSCost   = 0.030
	atDefaultVoiceCost = 0.080
)

// AfricasTalking sends SMS and places voice calls through the Africa's
// Talking API. Its voice status callback carries only the destination phone
// number, so the provider writes a VoiceSession before dialing and the
// webhook handler recovers the payload from the session store.
type AfricasTalking struct {
	cfg          config.AfricasTalkingConfig
	client       *resty.Client
	messagingURL string
	voiceURL     string
	sessions     VoiceSessionWriter
	configured   bool
	logger       *zap.Logger
}

func NewAfricasTalking(cfg config.AfricasTalkingConfig, timeout time.Duration, sessions VoiceSessionWriter, logger *zap.Logger) *AfricasTalking {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	client := resty.New()
	client.SetTimeout(timeout)
	client.SetRetryCount(0)

	return &AfricasTalking{
		cfg:          cfg,
		client:       client,
		messagingURL: defaultATMessagingURL,
		voiceURL:     defaultATVoiceURL,
		sessions:     sessions,
		configured:   cfg.Username != "" && cfg.APIKey != "",
		logger:       logger,
	}
}

func (a *AfricasTalking) Name() string { return "africastalking" }

func (a *AfricasTalking) IsConfigured() bool { return a.configured || a.cfg.Debug }

func (a *AfricasTalking) SupportedCountries() []string {
	return []string{"NG", "KE", "UG", "TZ", "RW", "MW", "ZM"}
}

func (a *AfricasTalking) CostPerMessage(country string) float64 {
	return costFor(atSMSCosts, country, atDefaultSMSCost)
}

func (a *AfricasTalking) CostPerMinute(country string) float64 {
	return costFor(atVoiceCosts, country, atDefaultVoiceCost)
}

func (a *AfricasTalking) FormatAddress(raw, country string) string {
	return FormatPhone(raw, country)
}

type atSMSResponse struct {
	SMSMessageData struct {
		Recipients []struct {
			Status    string `json:"status"`
			MessageID string `json:"messageId"`
		} `json:"Recipients"`
	} `json:"SMSMessageData"`
}

// SendSMS posts a form-encoded request to the messaging endpoint.
func (a *AfricasTalking) SendSMS(ctx context.Context, to, message, country string) Result {
	if !a.configured && !a.cfg.Debug {
		return notConfiguredResult(a.Name())
	}
	if a.cfg.Debug {
		return debugResult(a.Name(), a.CostPerMessage(country))
	}

	resp, err := a.client.R().
		SetContext(ctx).
		SetHeader("apiKey", a.cfg.APIKey).
		SetHeader("Accept", "application/json").
		SetFormData(map[string]string{
			"username": a.cfg.Username,
			"to":       a.FormatAddress(to, country),
			"message":  message,
		}).
		Post(a.messagingURL)
	if err != nil {
		return Failed(a.Name(), fmt.Sprintf("africastalking request failed: %v", err), "")
	}

	raw := resp.String()
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return Failed(a.Name(), fmt.Sprintf("africastalking returned status %d", resp.StatusCode()), raw)
	}

	var parsed atSMSResponse
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return Failed(a.Name(), fmt.Sprintf("africastalking response malformed: %v", err), raw)
	}
	recipients := parsed.SMSMessageData.Recipients
	if len(recipients) == 0 {
		return Failed(a.Name(), "africastalking accepted no recipients", raw)
	}
	if recipients[0].Status != "Success" {
		return Failed(a.Name(), fmt.Sprintf("africastalking recipient status: %s", recipients[0].Status), raw)
	}

	a.logger.Info("sms sent via africastalking",
		zap.String("country", country),
		zap.String("message_id", recipients[0].MessageID),
	)

	return Succeeded(a.Name(), recipients[0].MessageID, a.CostPerMessage(country), StatusSent, raw)
}

// MakeCall dials the recipient and plays a hosted audio file. The session is
// written first so the voice callback can find the audio URL by phone number.
func (a *AfricasTalking) MakeCall(ctx context.Context, to, audioURL, country string) Result {
	return a.call(ctx, to, country, VoiceSession{CallType: CallTypeAudio, AudioURL: audioURL})
}

// MakeTextCall dials the recipient and speaks the text via TTS.
func (a *AfricasTalking) MakeTextCall(ctx context.Context, to, text, country string) Result {
	return a.call(ctx, to, country, VoiceSession{CallType: CallTypeText, Text: text})
}

type atVoiceResponse struct {
	ErrorMessage string `json:"errorMessage"`
	Entries      []struct {
		Status    string `json:"status"`
		SessionID string `json:"sessionId"`
	} `json:"entries"`
}

func (a *AfricasTalking) call(ctx context.Context, to, country string, session VoiceSession) Result {
	if !a.configured && !a.cfg.Debug {
		return notConfiguredResult(a.Name())
	}

	phone := a.FormatAddress(to, country)

	// The callback cannot carry the payload, so correlate by phone number
	// before the carrier has any chance to call back.
	if a.sessions != nil {
		if err := a.sessions.PutSession(ctx, phone, session); err != nil {
			return Failed(a.Name(), fmt.Sprintf("store voice session: %v", err), "")
		}
	}

	if a.cfg.Debug {
		return debugResult(a.Name(), a.CostPerMinute(country))
	}

	resp, err := a.client.R().
		SetContext(ctx).
		SetHeader("apiKey", a.cfg.APIKey).
		SetHeader("Accept", "application/json").
		SetFormData(map[string]string{
			"username": a.cfg.Username,
			"from":     a.cfg.CallerID,
			"to":       phone,
		}).
		Post(a.voiceURL)
	if err != nil {
		return Failed(a.Name(), fmt.Sprintf("africastalking call failed: %v", err), "")
	}

	raw := resp.String()
	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusCreated {
		return Failed(a.Name(), fmt.Sprintf("africastalking voice returned status %d", resp.StatusCode()), raw)
	}

	var parsed atVoiceResponse
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return Failed(a.Name(), fmt.Sprintf("africastalking voice response malformed: %v", err), raw)
	}
	if parsed.ErrorMessage != "" && parsed.ErrorMessage != "None" {
		return Failed(a.Name(), fmt.Sprintf("africastalking voice error: %s", parsed.ErrorMessage), raw)
	}
	if len(parsed.Entries) == 0 || parsed.Entries[0].Status != "Queued" {
		return Failed(a.Name(), "africastalking did not queue the call", raw)
	}

	// Alias the carrier's session id to the phone key. The call is already
	// queued, so a failed link only loses the by-id lookup path.
	if a.sessions != nil && parsed.Entries[0].SessionID != "" {
		if err := a.sessions.LinkCallID(ctx, parsed.Entries[0].SessionID, phone); err != nil {
			a.logger.Warn("failed to link call id to voice session",
				zap.String("session_id", parsed.Entries[0].SessionID),
				zap.Error(err),
			)
		}
	}

	a.logger.Info("call initiated via africastalking",
		zap.String("country", country),
		zap.String("call_type", session.CallType),
		zap.String("session_id", parsed.Entries[0].SessionID),
	)

	return Succeeded(a.Name(), parsed.Entries[0].SessionID, a.CostPerMinute(country), StatusInitiated, raw)
}
