package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr            string
	PostgresURL         string
	KafkaBrokers        []string
	RedisAddr           string
	StripeAPIKey        string
	StripeWebhookSecret string
	Currency            string
	EmailServiceURL     string
	LedgerTimeout       time.Duration
}

func Load() Config {
	return Config{
		HTTPAddr:            getenv("HTTP_ADDR", ":8080"),
		PostgresURL:         os.Getenv("POSTGRES_URL"),
		KafkaBrokers:        splitCSV(os.Getenv("KAFKA_BROKERS")),
		RedisAddr:           os.Getenv("REDIS_ADDR"),
		StripeAPIKey:        os.Getenv("STRIPE_API_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		Currency:            getenv("PAYMENT_CURRENCY", "inr"),
		EmailServiceURL:     os.Getenv("EMAIL_SERVICE_URL"),
		LedgerTimeout:       getenvDuration("LEDGER_TIMEOUT_MS", 2000),
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvDuration(key string, defMillis int) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return time.Duration(defMillis) * time.Millisecond
	}
	ms, err := strconv.Atoi(v)
	if err != nil || ms <= 0 {
		return time.Duration(defMillis) * time.Millisecond
	}
	return time.Duration(ms) * time.Millisecond
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
