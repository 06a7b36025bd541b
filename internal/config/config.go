package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the full application configuration surface.
type Config struct {
	Server    ServerConfig
	Log       LogConfig
	MongoDB   MongoDBConfig
	Redis     RedisConfig
	WhatsApp  WhatsAppConfig
	Sheets    SheetsConfig
	PriceSync PriceSyncConfig
	Outbox    OutboxConfig
}

// ServerConfig holds HTTP server related options.
type ServerConfig struct {
	Port string
}

// LogConfig selects the minimum log level.
type LogConfig struct {
	Level string
}

// MongoDBConfig holds settings for MongoDB.
type MongoDBConfig struct {
	URI       string
	DBName    string
	TxTimeout time.Duration
}

// RedisConfig enables the branch snapshot cache when Addr is set.
type RedisConfig struct {
	Addr        string
	Password    string
	SnapshotTTL time.Duration
}

// WhatsAppConfig contains credentials for delivery notifications. Notifications
// are disabled when AccessToken is empty.
type WhatsAppConfig struct {
	AccessToken   string
	PhoneNumberID string
	BaseURL       string
	APIVersion    string
	NotifyTo      string
}

// Enabled reports whether notifications can be sent.
func (c WhatsAppConfig) Enabled() bool {
	return c.AccessToken != ""
}

// SheetsConfig enables the spreadsheet audit mirror when SpreadsheetID is set.
type SheetsConfig struct {
	CredentialsPath string
	SpreadsheetID   string
	MovementRange   string
}

// Enabled reports whether the audit mirror is configured.
func (c SheetsConfig) Enabled() bool {
	return c.SpreadsheetID != ""
}

// PriceSyncConfig points at the service that recomputes dependent prices.
type PriceSyncConfig struct {
	WebhookURL string
	Timeout    time.Duration
}

// OutboxConfig controls re-driving of pending side effects.
type OutboxConfig struct {
	CronSchedule string
	BatchSize    int
	MaxAttempts  int
}

// Load reads environment variables (optionally from the provided file) and
// materializes a Config instance.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed loading env file %s: %w", envFile, err)
			}
		}
	} else {
		// missing .env is fine when configuration comes from the environment
		_ = godotenv.Load()
	}

	txTimeout, err := getDuration("MONGODB_TX_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	snapshotTTL, err := getDuration("REDIS_SNAPSHOT_TTL", 30*time.Second)
	if err != nil {
		return nil, err
	}
	priceTimeout, err := getDuration("PRICE_SYNC_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	batchSize, err := getInt("OUTBOX_BATCH_SIZE", 50)
	if err != nil {
		return nil, err
	}
	maxAttempts, err := getInt("OUTBOX_MAX_ATTEMPTS", 8)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: getenvWithDefault("APP_PORT", "8080"),
		},
		Log: LogConfig{
			Level: getenvWithDefault("LOG_LEVEL", "info"),
		},
		MongoDB: MongoDBConfig{
			URI:       os.Getenv("MONGODB_URI"),
			DBName:    getenvWithDefault("MONGODB_DB_NAME", "restock"),
			TxTimeout: txTimeout,
		},
		Redis: RedisConfig{
			Addr:        os.Getenv("REDIS_ADDR"),
			Password:    os.Getenv("REDIS_PASS"),
			SnapshotTTL: snapshotTTL,
		},
		WhatsApp: WhatsAppConfig{
			AccessToken:   os.Getenv("WHATSAPP_TOKEN"),
			PhoneNumberID: os.Getenv("WHATSAPP_PHONE_NUMBER_ID"),
			BaseURL:       getenvWithDefault("WHATSAPP_BASE_URL", "https://graph.facebook.com"),
			APIVersion:    getenvWithDefault("WHATSAPP_API_VERSION", "v20.0"),
			NotifyTo:      os.Getenv("WHATSAPP_NOTIFY_TO"),
		},
		Sheets: SheetsConfig{
			CredentialsPath: os.Getenv("GOOGLE_SHEETS_CREDENTIALS_PATH"),
			SpreadsheetID:   os.Getenv("GOOGLE_SHEET_AUDIT_ID"),
			MovementRange:   getenvWithDefault("GOOGLE_SHEET_MOVEMENT_RANGE", "Movements!A:I"),
		},
		PriceSync: PriceSyncConfig{
			WebhookURL: os.Getenv("PRICE_SYNC_WEBHOOK_URL"),
			Timeout:    priceTimeout,
		},
		Outbox: OutboxConfig{
			CronSchedule: getenvWithDefault("OUTBOX_CRON_SCHEDULE", "*/5 * * * *"),
			BatchSize:    batchSize,
			MaxAttempts:  maxAttempts,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures that required configuration fields are populated.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	if c.Server.Port == "" {
		return errors.New("APP_PORT must be provided")
	}

	switch {
	case c.MongoDB.URI == "":
		return errors.New("MONGODB_URI must be provided")
	case c.MongoDB.DBName == "":
		return errors.New("MONGODB_DB_NAME must not be empty")
	}

	if c.WhatsApp.Enabled() {
		switch {
		case c.WhatsApp.PhoneNumberID == "":
			return errors.New("WHATSAPP_PHONE_NUMBER_ID must be provided when WHATSAPP_TOKEN is set")
		case c.WhatsApp.NotifyTo == "":
			return errors.New("WHATSAPP_NOTIFY_TO must be provided when WHATSAPP_TOKEN is set")
		case c.WhatsApp.BaseURL == "":
			return errors.New("WHATSAPP_BASE_URL must not be empty")
		case c.WhatsApp.APIVersion == "":
			return errors.New("WHATSAPP_API_VERSION must not be empty")
		}
	}

	if c.Sheets.Enabled() && c.Sheets.CredentialsPath == "" {
		return errors.New("GOOGLE_SHEETS_CREDENTIALS_PATH must be provided when GOOGLE_SHEET_AUDIT_ID is set")
	}

	if c.Outbox.CronSchedule == "" {
		return errors.New("OUTBOX_CRON_SCHEDULE must be provided")
	}
	if c.Outbox.BatchSize <= 0 {
		return errors.New("OUTBOX_BATCH_SIZE must be positive")
	}
	if c.Outbox.MaxAttempts <= 0 {
		return errors.New("OUTBOX_MAX_ATTEMPTS must be positive")
	}

	return nil
}

func getenvWithDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return d, nil
}

func getInt(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return n, nil
}
