package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// TermiiConfig holds credentials for the Termii SMS/WhatsApp API.
type TermiiConfig struct {
	APIKey   string
	SenderID string
	Debug    bool
}

// AfricasTalkingConfig holds credentials for the Africa's Talking SMS/voice API.
type AfricasTalkingConfig struct {
	Username string
	APIKey   string
	CallerID string
	Debug    bool
}

// TwilioConfig holds credentials for Twilio (SMS, voice, WhatsApp).
// Twilio is the universal fallback transport: it accepts any country.
type TwilioConfig struct {
	AccountSID   string
	AuthToken    string
	FromNumber   string
	WhatsAppFrom string
	Debug        bool
}

// SNSConfig enables the AWS SNS SMS transport. Credentials come from the
// standard AWS chain (env, shared config, instance role), so only the
// enable flag and region are carried here.
type SNSConfig struct {
	Enabled  bool
	Region   string
	SenderID string
	Debug    bool
}

type Config struct {
	Port     int
	LogLevel string
	Env      string

	// Database
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Redis (voice call sessions + rate limiting)
	RedisHost     string
	RedisPort     int
	RedisPassword string
	RedisDB       int

	// Shared provider behavior
	ProviderTimeout time.Duration // per-call HTTP timeout
	VoiceSessionTTL time.Duration // how long voice callback sessions live

	Termii         TermiiConfig
	AfricasTalking AfricasTalkingConfig
	Twilio         TwilioConfig
	SNS            SNSConfig
}

// Load reads configuration from environment variables with sensible defaults
func Load() (*Config, error) {
	cfg := &Config{
		Port:     8080,
		LogLevel: "info",
		Env:      "development",

		// Local postgres defaults
		DBHost:     "localhost",
		DBPort:     5432,
		DBUser:     "minbar",
		DBPassword: "",
		DBName:     "minbar",
		DBSSLMode:  "disable",

		// Redis defaults
		RedisHost:     "localhost",
		RedisPort:     6379,
		RedisPassword: "",
		RedisDB:       0,

		ProviderTimeout: 30 * time.Second,
		VoiceSessionTTL: 1 * time.Hour,
	}

	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT: %w", err)
		}
		cfg.Port = p
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	if env := os.Getenv("ENV"); env != "" {
		cfg.Env = env
	}

	// Database config
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.DBHost = host
	}

	if port := os.Getenv("DB_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid DB_PORT: %w", err)
		}
		cfg.DBPort = p
	}

	if user := os.Getenv("DB_USER"); user != "" {
		cfg.DBUser = user
	}

	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.DBPassword = password
	}

	if dbname := os.Getenv("DB_NAME"); dbname != "" {
		cfg.DBName = dbname
	}

	if sslmode := os.Getenv("DB_SSLMODE"); sslmode != "" {
		cfg.DBSSLMode = sslmode
	}

	// Redis config
	if host := os.Getenv("REDIS_HOST"); host != "" {
		cfg.RedisHost = host
	}

	if port := os.Getenv("REDIS_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_PORT: %w", err)
		}
		cfg.RedisPort = p
	}

	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.RedisPassword = password
	}

	if db := os.Getenv("REDIS_DB"); db != "" {
		d, err := strconv.Atoi(db)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
		}
		cfg.RedisDB = d
	}

	// Provider behavior
	if timeout := os.Getenv("PROVIDER_TIMEOUT"); timeout != "" {
		t, err := strconv.Atoi(timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid PROVIDER_TIMEOUT: %w", err)
		}
		cfg.ProviderTimeout = time.Duration(t) * time.Second
	}

	if ttl := os.Getenv("VOICE_SESSION_TTL"); ttl != "" {
		t, err := strconv.Atoi(ttl)
		if err != nil {
			return nil, fmt.Errorf("invalid VOICE_SESSION_TTL: %w", err)
		}
		cfg.VoiceSessionTTL = time.Duration(t) * time.Second
	}

	// Termii
	cfg.Termii = TermiiConfig{
		APIKey:   os.Getenv("TERMII_API_KEY"),
		SenderID: os.Getenv("TERMII_SENDER_ID"),
		Debug:    envBool("TERMII_DEBUG"),
	}

	// Africa's Talking
	cfg.AfricasTalking = AfricasTalkingConfig{
		Username: os.Getenv("AT_USERNAME"),
		APIKey:   os.Getenv("AT_API_KEY"),
		CallerID: os.Getenv("AT_CALLER_ID"),
		Debug:    envBool("AT_DEBUG"),
	}

	// Twilio
	cfg.Twilio = TwilioConfig{
		AccountSID:   os.Getenv("TWILIO_ACCOUNT_SID"),
		AuthToken:    os.Getenv("TWILIO_AUTH_TOKEN"),
		FromNumber:   os.Getenv("TWILIO_FROM_NUMBER"),
		WhatsAppFrom: os.Getenv("TWILIO_WHATSAPP_FROM"),
		Debug:        envBool("TWILIO_DEBUG"),
	}

	// AWS SNS
	cfg.SNS = SNSConfig{
		Enabled:  envBool("SNS_ENABLED"),
		Region:   os.Getenv("SNS_REGION"),
		SenderID: os.Getenv("SNS_SENDER_ID"),
		Debug:    envBool("SNS_DEBUG"),
	}
	if cfg.SNS.Enabled && cfg.SNS.Region == "" {
		cfg.SNS.Region = os.Getenv("AWS_REGION")
	}

	return cfg, nil
}

func envBool(name string) bool {
	v, err := strconv.ParseBool(os.Getenv(name))
	return err == nil && v
}
