package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	libconfig "chargeslot/backend/libs/config"
)

// Config defines booking service configuration.
type Config struct {
	HTTP        HTTPConfig        `yaml:"http"`
	Database    DatabaseConfig    `yaml:"database"`
	Redis       RedisConfig       `yaml:"redis"`
	RabbitMQ    RabbitMQConfig    `yaml:"rabbitmq"`
	JWT         JWTConfig         `yaml:"jwt"`
	Reservation ReservationConfig `yaml:"reservation"`
	CheckIn     CheckInConfig     `yaml:"checkin"`
	Session     SessionConfig     `yaml:"session"`
	Payment     PaymentConfig     `yaml:"payment"`
	Gateway     GatewayConfig     `yaml:"gateway"`
	Sweeper     SweeperConfig     `yaml:"sweeper"`
	RateLimit   RateLimitConfig   `yaml:"rateLimit"`
}

type HTTPConfig struct {
	Port string `yaml:"port" env:"BOOKING_HTTP_PORT"`
}

type DatabaseConfig struct {
	DSN          string `yaml:"dsn" env:"BOOKING_POSTGRES_DSN"`
	MaxOpenConns int    `yaml:"maxOpenConns" env:"BOOKING_POSTGRES_MAX_OPEN_CONNS"`
	Migrate      bool   `yaml:"migrate" env:"BOOKING_POSTGRES_MIGRATE"`
}

// RedisConfig is optional; an empty address disables the session cache and sweep lock.
type RedisConfig struct {
	Addr       string        `yaml:"addr" env:"BOOKING_REDIS_ADDR"`
	Password   string        `yaml:"password" env:"BOOKING_REDIS_PASSWORD"`
	DB         int           `yaml:"db" env:"BOOKING_REDIS_DB"`
	SessionTTL time.Duration `yaml:"sessionTtl" env:"BOOKING_REDIS_SESSION_TTL"`
}

// RabbitMQConfig is optional; an empty URL logs notifications instead.
type RabbitMQConfig struct {
	URL   string `yaml:"url" env:"BOOKING_RABBITMQ_URL"`
	Queue string `yaml:"queue" env:"BOOKING_RABBITMQ_QUEUE"`
}

type JWTConfig struct {
	Secret string `yaml:"secret" env:"BOOKING_JWT_SECRET"`
}

type ReservationConfig struct {
	UnitRate    int64         `yaml:"unitRate" env:"BOOKING_HOLD_UNIT_RATE"`
	GracePad    time.Duration `yaml:"gracePad" env:"BOOKING_HOLD_GRACE_PAD"`
	MaxAdvance  time.Duration `yaml:"maxAdvance" env:"BOOKING_HOLD_MAX_ADVANCE"`
	MinDuration time.Duration `yaml:"minDuration" env:"BOOKING_HOLD_MIN_DURATION"`
}

type CheckInConfig struct {
	TokenTTL time.Duration `yaml:"tokenTtl" env:"BOOKING_CHECKIN_TOKEN_TTL"`
	BaseURL  string        `yaml:"baseUrl" env:"BOOKING_CHECKIN_BASE_URL"`
}

// SessionConfig caps what a single meter reading may claim.
type SessionConfig struct {
	MaxEnergyKWh float64 `yaml:"maxEnergyKwh" env:"BOOKING_SESSION_MAX_ENERGY_KWH"`
}

type PaymentConfig struct {
	MaxAmount int64 `yaml:"maxAmount" env:"BOOKING_PAYMENT_MAX_AMOUNT"`
}

type GatewayConfig struct {
	PayURL    string        `yaml:"payUrl" env:"BOOKING_GATEWAY_PAY_URL"`
	Merchant  string        `yaml:"merchant" env:"BOOKING_GATEWAY_MERCHANT"`
	Secret    string        `yaml:"secret" env:"BOOKING_GATEWAY_SECRET"`
	ReturnURL string        `yaml:"returnUrl" env:"BOOKING_GATEWAY_RETURN_URL"`
	TTL       time.Duration `yaml:"ttl" env:"BOOKING_GATEWAY_TTL"`
}

type SweeperConfig struct {
	Interval    time.Duration `yaml:"interval" env:"BOOKING_SWEEPER_INTERVAL"`
	Concurrency int           `yaml:"concurrency" env:"BOOKING_SWEEPER_CONCURRENCY"`
	PendingTTL  time.Duration `yaml:"pendingTtl" env:"BOOKING_SWEEPER_PENDING_TTL"`
}

// RateLimitConfig applies per client IP to the public check-in and callback routes.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps" env:"BOOKING_RATE_LIMIT_RPS"`
	Burst int     `yaml:"burst" env:"BOOKING_RATE_LIMIT_BURST"`
}

// Defaults returns the configuration used when nothing overrides it.
func Defaults() *Config {
	return &Config{
		HTTP:     HTTPConfig{Port: "8085"},
		Database: DatabaseConfig{MaxOpenConns: 25, Migrate: true},
		Redis:    RedisConfig{SessionTTL: 24 * time.Hour},
		RabbitMQ: RabbitMQConfig{Queue: "notifications"},
		Reservation: ReservationConfig{
			UnitRate:    1000,
			GracePad:    15 * time.Minute,
			MaxAdvance:  7 * 24 * time.Hour,
			MinDuration: 15 * time.Minute,
		},
		CheckIn: CheckInConfig{
			TokenTTL: 5 * time.Minute,
			BaseURL:  "http://localhost:3000/checkin",
		},
		Session: SessionConfig{MaxEnergyKWh: 1000},
		Payment: PaymentConfig{MaxAmount: 100_000_000},
		Gateway: GatewayConfig{TTL: 15 * time.Minute},
		Sweeper: SweeperConfig{
			Interval:    60 * time.Second,
			Concurrency: 8,
			PendingTTL:  10 * time.Minute,
		},
		RateLimit: RateLimitConfig{RPS: 5, Burst: 10},
	}
}

// Load reads configuration via shared helper.
func Load() (*Config, error) {
	cfg := Defaults()
	if err := libconfig.LoadConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required settings.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Database.DSN) == "" {
		return errors.New("database dsn required")
	}
	if strings.TrimSpace(c.JWT.Secret) == "" {
		return errors.New("jwt secret required")
	}
	if strings.TrimSpace(c.Gateway.PayURL) == "" || c.Gateway.Secret == "" {
		return errors.New("gateway pay url and secret required")
	}
	if c.Reservation.UnitRate <= 0 {
		return errors.New("reservation unit rate must be positive")
	}
	return nil
}

// HTTPAddress returns :port style.
func (c *Config) HTTPAddress() string {
	port := strings.TrimSpace(c.HTTP.Port)
	if port == "" {
		port = "8085"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return fmt.Sprintf(":%s", port)
}
