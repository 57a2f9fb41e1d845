// Package config loads runtime configuration from environment
// variables.
package config

import (
	"log"
	"os"
	"strconv"
	"time"
)

// Config holds every runtime setting the server needs. Database
// fields are only populated (and only required) when the MySQL store
// backend is selected.
type Config struct {
	Env          string // application environment ("dev", "prod")
	Port         string // HTTP port to listen on
	StoreBackend string // group record store: "redis", "mysql" or "memory"

	DBUser string
	DBPass string
	DBHost string
	DBPort string
	DBName string

	CartServiceURL   string // base URL of the commerce backend, for the checkout poller
	ParticipantToken string // HMAC secret for optional signed participant tokens
	AMQPURL          string // RabbitMQ URL; empty disables the completion queue
}

// Load reads configuration from the environment. Only the MySQL
// settings are hard requirements, and only when that backend is
// chosen; everything else has a workable default for local runs.
func Load() Config {
	cfg := Config{
		Env:              envStr("APP_ENV", "dev"),
		Port:             envStr("APP_PORT", "8080"),
		StoreBackend:     envStr("STORE_BACKEND", "redis"),
		CartServiceURL:   os.Getenv("CART_SERVICE_URL"),
		ParticipantToken: os.Getenv("PARTICIPANT_TOKEN_SECRET"),
		AMQPURL:          os.Getenv("RABBITMQ_URL"),
	}
	if cfg.AMQPURL == "" {
		cfg.AMQPURL = os.Getenv("AMQP_URL")
	}
	if cfg.StoreBackend == "mysql" {
		cfg.DBUser = must("DB_USER")
		cfg.DBPass = os.Getenv("DB_PASS")
		cfg.DBHost = must("DB_HOST")
		cfg.DBPort = must("DB_PORT")
		cfg.DBName = must("DB_NAME")
	}
	return cfg
}

// must retrieves a required environment variable or exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

func envStr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envBool(k string, d bool) bool {
	switch os.Getenv(k) {
	case "":
		return d
	case "1", "true", "TRUE", "True", "yes", "YES", "on", "ON":
		return true
	case "0", "false", "FALSE", "False", "no", "NO", "off", "OFF":
		return false
	}
	return d
}

func envInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return d
}

func envDur(k string, d time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if dur, err := time.ParseDuration(v); err == nil {
		return dur
	}
	return d
}
