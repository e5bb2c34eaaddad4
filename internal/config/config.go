package config

import (
	"os"
	"time"
)

type Config struct {
	Port         string
	DatabaseURL  string
	RedisURL     string
	NatsURL      string
	KafkaBrokers string

	// Webhook handling must finish before the provider times out the callback.
	WebhookTimeout time.Duration

	// Phone normalization country code (digits only).
	CountryCode string

	// Default shortcode used when a simulated payment omits one.
	DefaultShortCode string

	// SMS gateway (best-effort notifier).
	SMSGatewayURL string
	SMSAPIKey     string

	// Daraja (provider verification, advisory only).
	DarajaBaseURL            string
	DarajaConsumerKey        string
	DarajaConsumerSecret     string
	DarajaInitiator          string
	DarajaSecurityCredential string
}

func Load() *Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	darajaBase := os.Getenv("DARAJA_BASE_URL")
	if darajaBase == "" {
		if os.Getenv("DARAJA_ENV") == "production" {
			darajaBase = "https://api.safaricom.co.ke"
		} else {
			darajaBase = "https://sandbox.safaricom.co.ke"
		}
	}

	return &Config{
		Port:         port,
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		RedisURL:     os.Getenv("REDIS_URL"),
		NatsURL:      os.Getenv("NATS_URL"),
		KafkaBrokers: os.Getenv("KAFKA_BROKERS"),

		WebhookTimeout: durationEnv("WEBHOOK_TIMEOUT", 8*time.Second),

		CountryCode:      stringEnv("COUNTRY_CODE", "254"),
		DefaultShortCode: stringEnv("DEFAULT_SHORTCODE", "600000"),

		SMSGatewayURL: os.Getenv("SMS_GATEWAY_URL"),
		SMSAPIKey:     os.Getenv("SMS_API_KEY"),

		DarajaBaseURL:            darajaBase,
		DarajaConsumerKey:        os.Getenv("DARAJA_CONSUMER_KEY"),
		DarajaConsumerSecret:     os.Getenv("DARAJA_CONSUMER_SECRET"),
		DarajaInitiator:          stringEnv("DARAJA_INITIATOR", "testapi"),
		DarajaSecurityCredential: os.Getenv("DARAJA_SECURITY_CREDENTIAL"),
	}
}

func stringEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
