package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("PROVIDER_TIMEOUT", "")
	t.Setenv("VOICE_SESSION_TTL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Port)
	}
	if cfg.ProviderTimeout != 30*time.Second {
		t.Errorf("expected default provider timeout 30s, got %v", cfg.ProviderTimeout)
	}
	if cfg.VoiceSessionTTL != time.Hour {
		t.Errorf("expected default session ttl 1h, got %v", cfg.VoiceSessionTTL)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("VOICE_SESSION_TTL", "600")
	t.Setenv("TERMII_API_KEY", "tk")
	t.Setenv("TERMII_SENDER_ID", "Minbar")
	t.Setenv("TWILIO_DEBUG", "true")
	t.Setenv("SNS_ENABLED", "true")
	t.Setenv("SNS_REGION", "")
	t.Setenv("AWS_REGION", "eu-west-1")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Port)
	}
	if cfg.VoiceSessionTTL != 10*time.Minute {
		t.Errorf("expected 10m ttl, got %v", cfg.VoiceSessionTTL)
	}
	if cfg.Termii.APIKey != "tk" || cfg.Termii.SenderID != "Minbar" {
		t.Errorf("termii config not loaded: %+v", cfg.Termii)
	}
	if !cfg.Twilio.Debug {
		t.Error("expected twilio debug mode")
	}
	if cfg.SNS.Region != "eu-west-1" {
		t.Errorf("SNS region must fall back to AWS_REGION, got %q", cfg.SNS.Region)
	}
}

func TestLoad_InvalidPort(t *testing.T) {
	t.Setenv("PORT", "not-a-port")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid PORT")
	}
}

func TestEnvBool(t *testing.T) {
	t.Setenv("FLAG_A", "true")
	t.Setenv("FLAG_B", "0")
	t.Setenv("FLAG_C", "yes")

	if !envBool("FLAG_A") {
		t.Error("true must parse as enabled")
	}
	if envBool("FLAG_B") {
		t.Error("0 must parse as disabled")
	}
	if envBool("FLAG_C") {
		t.Error("unparseable values must read as disabled")
	}
}
