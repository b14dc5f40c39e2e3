package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	_ "github.com/joho/godotenv/autoload"
)

// Config is built once at startup and handed to components explicitly;
// nothing below the edge reads the environment.
type Config struct {
	Adyen  Adyen
	Notify Notify
	DB     DB

	// ListenAddr is the HTTP bind address for the ingress server.
	ListenAddr string

	// LockTimeout bounds how long a request waits for an order lock. It has
	// to cover normal gateway latency, since gateway calls happen inside the
	// critical section, but stay finite so a gateway outage cannot queue
	// requests without bound.
	LockTimeout time.Duration

	// ReprocessInterval is how often the worker sweeps stored notifications
	// that were never applied (e.g. after lock timeouts).
	ReprocessInterval time.Duration
}

// Adyen holds the merchant-side credentials for the gateway API and the
// hosted payment pages skin.
type Adyen struct {
	APIUsername  string
	APIPassword  string
	SharedSecret string
	SkinCode     string
	DaysToShip   int
}

// Notify is the static shared credential the provider uses on the
// notification endpoint.
type Notify struct {
	User     string
	Password string
}

type DB struct {
	Host     string
	Port     string
	Username string
	Password string
	Database string
	Schema   string
}

func (d DB) URL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable&search_path=%s",
		d.Username, d.Password, d.Host, d.Port, d.Database, d.Schema,
	)
}

// Load reads the environment (a .env file is picked up automatically) and
// validates it. Missing credentials are fatal here, at startup, never at
// request time.
func Load() (*Config, error) {
	cfg := &Config{
		Adyen: Adyen{
			APIUsername:  os.Getenv("ADYEN_API_USERNAME"),
			APIPassword:  os.Getenv("ADYEN_API_PASSWORD"),
			SharedSecret: os.Getenv("ADYEN_SHARED_SECRET"),
			SkinCode:     os.Getenv("ADYEN_SKIN_CODE"),
			DaysToShip:   1,
		},
		Notify: Notify{
			User:     os.Getenv("ADYEN_NOTIFY_USER"),
			Password: os.Getenv("ADYEN_NOTIFY_PASSWD"),
		},
		DB: DB{
			Host:     os.Getenv("DB_HOST"),
			Port:     os.Getenv("DB_PORT"),
			Username: os.Getenv("DB_USERNAME"),
			Password: os.Getenv("DB_PASSWORD"),
			Database: os.Getenv("DB_DATABASE"),
			Schema:   os.Getenv("DB_SCHEMA"),
		},
		ListenAddr:        ":8080",
		LockTimeout:       10 * time.Second,
		ReprocessInterval: 30 * time.Second,
	}

	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("ADYEN_DAYS_TO_SHIP"); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("config: bad ADYEN_DAYS_TO_SHIP %q: %w", v, err)
		}
		cfg.Adyen.DaysToShip = days
	}
	if v := os.Getenv("ORDER_LOCK_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("config: bad ORDER_LOCK_TIMEOUT %q: %w", v, err)
		}
		cfg.LockTimeout = d
	}
	if v := os.Getenv("REPROCESS_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("config: bad REPROCESS_INTERVAL %q: %w", v, err)
		}
		cfg.ReprocessInterval = d
	}

	if cfg.Notify.User == "" || cfg.Notify.Password == "" {
		return nil, errors.New("config: ADYEN_NOTIFY_USER and ADYEN_NOTIFY_PASSWD are required")
	}
	if cfg.Adyen.APIUsername == "" || cfg.Adyen.APIPassword == "" {
		return nil, errors.New("config: ADYEN_API_USERNAME and ADYEN_API_PASSWORD are required")
	}
	return cfg, nil
}
