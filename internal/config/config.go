// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type ServerConfig struct {
	Port           int      `yaml:"port" env:"PORT"`
	Host           string   `yaml:"host" env:"HOST"`
	Env            string   `yaml:"env" env:"NODE_ENV"` // development|production
	APIBaseURL     string   `yaml:"api_base_url" env:"API_BASE_URL"`
	FrontendURL    string   `yaml:"frontend_url" env:"FRONTEND_URL"`
	AllowedOrigins []string `yaml:"allowed_origins" env:"ALLOWED_ORIGINS" envSeparator:","`
}

type LogConfig struct {
	Level    string `yaml:"level" env:"LOG_LEVEL"`   // trace|debug|info|warn|error
	Format   string `yaml:"format" env:"LOG_FORMAT"` // json|console
	Sampling bool   `yaml:"sampling" env:"LOG_SAMPLING"`
}

type DatabaseConfig struct {
	URL           string `yaml:"url" env:"DATABASE_URL"`
	MongoURI      string `yaml:"mongodb_uri" env:"MONGODB_URI"`
	MongoDatabase string `yaml:"mongodb_database" env:"MONGODB_DATABASE"`
}

type RedisConfig struct {
	URL      string        `yaml:"url" env:"REDIS_URL"`
	Password string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int           `yaml:"db" env:"REDIS_DB"`
	LockTTL  time.Duration `yaml:"lock_ttl" env:"REDIS_LOCK_TTL"`
}

type RazorpayConfig struct {
	KeyID         string        `yaml:"key_id" env:"RAZORPAY_KEY_ID"`
	KeySecret     string        `yaml:"key_secret" env:"RAZORPAY_KEY_SECRET"`
	PlanID        string        `yaml:"plan_id" env:"RAZORPAY_PLAN_ID"`
	WebhookSecret string        `yaml:"webhook_secret" env:"RAZORPAY_WEBHOOK_SECRET"`
	Timeout       time.Duration `yaml:"timeout" env:"PROVIDER_TIMEOUT"`
}

type MerchantConfig struct {
	UPIID string `yaml:"upi_id" env:"MERCHANT_UPI_ID"`
	Name  string `yaml:"name" env:"MERCHANT_NAME"`
	Code  string `yaml:"code" env:"MERCHANT_CODE"`
}

type SubscriptionConfig struct {
	Price      int64 `yaml:"price" env:"SUBSCRIPTION_PRICE"` // major units (rupees)
	TotalCount int   `yaml:"total_count" env:"SUBSCRIPTION_TOTAL_COUNT"`
	TrialDays  int   `yaml:"trial_days" env:"TRIAL_DAYS"`
}

type SchedulerConfig struct {
	ChargeTime        string        `yaml:"charge_time" env:"CHARGE_SCHEDULE_TIME"` // HH:MM local
	ChargeTimezone    string        `yaml:"charge_timezone" env:"CHARGE_SCHEDULE_TZ"`
	BatchSize         int           `yaml:"batch_size" env:"CHARGE_BATCH_SIZE"`
	TickTimeout       time.Duration `yaml:"tick_timeout" env:"CHARGE_TICK_TIMEOUT"`
	MaxFailedAttempts int           `yaml:"max_failed_attempts" env:"CHARGE_MAX_FAILED_ATTEMPTS"`
	SimulatedCharges  bool          `yaml:"simulated_charges" env:"SIMULATED_CHARGES"`
	ExpiryInterval    time.Duration `yaml:"expiry_interval" env:"EXPIRY_CHECK_INTERVAL"`
	ReconcileInterval time.Duration `yaml:"reconcile_interval" env:"RECONCILE_INTERVAL"`
	ReconcileMaxTries int           `yaml:"reconcile_max_tries" env:"RECONCILE_MAX_TRIES"`
}

type SecurityConfig struct {
	AdminJWTSecret string `yaml:"admin_jwt_secret" env:"ADMIN_JWT_SECRET"`
}

type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Log          LogConfig          `yaml:"log"`
	Database     DatabaseConfig     `yaml:"database"`
	Redis        RedisConfig        `yaml:"redis"`
	Razorpay     RazorpayConfig     `yaml:"razorpay"`
	Merchant     MerchantConfig     `yaml:"merchant"`
	Subscription SubscriptionConfig `yaml:"subscription"`
	Scheduler    SchedulerConfig    `yaml:"scheduler"`
	Security     SecurityConfig     `yaml:"security"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the optional YAML file at path, then overlays environment variables
// (a .env file in the working directory is honoured). A missing file is not an error.
func LoadConfig(path string, dev bool) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(b, &cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	applyDefaults(&cfg)
	cfg.Runtime.Dev = dev || strings.EqualFold(cfg.Server.Env, "development")

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 3000
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Env == "" {
		cfg.Server.Env = "production"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Database.MongoDatabase == "" {
		cfg.Database.MongoDatabase = "upi_autopay"
	}
	if cfg.Redis.LockTTL <= 0 {
		cfg.Redis.LockTTL = 30 * time.Second
	}
	if cfg.Razorpay.Timeout <= 0 {
		cfg.Razorpay.Timeout = 10 * time.Second
	}
	if cfg.Merchant.Name == "" {
		cfg.Merchant.Name = "Subscription"
	}
	if cfg.Subscription.Price <= 0 {
		cfg.Subscription.Price = 9
	}
	if cfg.Subscription.TotalCount <= 0 {
		cfg.Subscription.TotalCount = 60
	}
	if cfg.Subscription.TrialDays <= 0 {
		cfg.Subscription.TrialDays = 7
	}
	if cfg.Scheduler.ChargeTime == "" {
		cfg.Scheduler.ChargeTime = "02:00"
	}
	if cfg.Scheduler.ChargeTimezone == "" {
		cfg.Scheduler.ChargeTimezone = "Asia/Kolkata"
	}
	if cfg.Scheduler.BatchSize <= 0 {
		cfg.Scheduler.BatchSize = 100
	}
	if cfg.Scheduler.TickTimeout <= 0 {
		cfg.Scheduler.TickTimeout = 5 * time.Minute
	}
	if cfg.Scheduler.MaxFailedAttempts <= 0 {
		cfg.Scheduler.MaxFailedAttempts = 3
	}
	if cfg.Scheduler.ExpiryInterval <= 0 {
		cfg.Scheduler.ExpiryInterval = time.Hour
	}
	if cfg.Scheduler.ReconcileInterval <= 0 {
		cfg.Scheduler.ReconcileInterval = 5 * time.Minute
	}
	if cfg.Scheduler.ReconcileMaxTries <= 0 {
		cfg.Scheduler.ReconcileMaxTries = 10
	}
}

func (c *Config) validate() error {
	if c.StoreURL() == "" {
		return errors.New("database.url or database.mongodb_uri is required")
	}
	if _, err := time.LoadLocation(c.Scheduler.ChargeTimezone); err != nil {
		return fmt.Errorf("scheduler.charge_timezone: %w", err)
	}
	if _, err := time.Parse("15:04", c.Scheduler.ChargeTime); err != nil {
		return fmt.Errorf("scheduler.charge_time must be HH:MM: %w", err)
	}
	if c.Runtime.Dev {
		return nil
	}
	if c.Razorpay.WebhookSecret == "" {
		return errors.New("razorpay.webhook_secret is required")
	}
	if c.Security.AdminJWTSecret == "" {
		return errors.New("security.admin_jwt_secret is required")
	}
	if c.Merchant.UPIID == "" {
		return errors.New("merchant.upi_id is required")
	}
	return nil
}

// StoreURL prefers MongoDB when configured and falls back to Postgres.
func (c *Config) StoreURL() string {
	if c.Database.MongoURI != "" {
		return c.Database.MongoURI
	}
	return c.Database.URL
}

// UsesMongo reports whether the store URL selects the MongoDB backend.
func (c *Config) UsesMongo() bool {
	u := c.StoreURL()
	return strings.HasPrefix(u, "mongodb://") || strings.HasPrefix(u, "mongodb+srv://")
}

// SubscriptionAmount is the configured price in minor units (paise).
func (c *Config) SubscriptionAmount() int64 {
	return c.Subscription.Price * 100
}

// ChargeLocation returns the scheduler timezone; validate guarantees it loads.
func (c *Config) ChargeLocation() *time.Location {
	loc, err := time.LoadLocation(c.Scheduler.ChargeTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
