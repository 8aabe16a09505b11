/**
 * @description
 * This package handles configuration management for the billing service. It uses
 * Viper to read settings from environment variables and an optional .env file.
 *
 * @dependencies
 * - github.com/spf13/viper: application configuration.
 */
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"
	_ "time/tzdata" // BUSINESS_TIMEZONE must resolve in minimal containers.

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the billing service.
type Config struct {
	ServerPort     string `mapstructure:"SERVER_PORT"`
	DatabaseURL    string `mapstructure:"DATABASE_URL"`
	RabbitMQURL    string `mapstructure:"RABBITMQ_URL"`
	RedisURL       string `mapstructure:"REDIS_URL"`
	RedisKeyPrefix string `mapstructure:"REDIS_KEY_PREFIX"`
	InternalAPIKey string `mapstructure:"INTERNAL_API_KEY"`

	JWTSecret     string `mapstructure:"JWT_SECRET"`
	JWTIssuer     string `mapstructure:"JWT_ISSUER"`
	TokenTTLHours int    `mapstructure:"TOKEN_TTL_HOURS"`

	FlutterwaveBaseURL     string `mapstructure:"FLUTTERWAVE_BASE_URL"`
	FlutterwaveSecretKey   string `mapstructure:"FLUTTERWAVE_SECRET_KEY"`
	FlutterwaveWebhookHash string `mapstructure:"FLUTTERWAVE_WEBHOOK_HASH"`
	PaymentRedirectURL     string `mapstructure:"PAYMENT_REDIRECT_URL"`

	DefaultCurrency          string `mapstructure:"DEFAULT_CURRENCY"`
	BusinessTimezone         string `mapstructure:"BUSINESS_TIMEZONE"`
	GatewayTimeoutSeconds    int    `mapstructure:"GATEWAY_TIMEOUT_SECONDS"`
	GenerationConcurrency    int    `mapstructure:"GENERATION_CONCURRENCY"`
	InitiationLockTTLSeconds int    `mapstructure:"INITIATION_LOCK_TTL_SECONDS"`

	InitiateRateLimitPerMinute int `mapstructure:"INITIATE_RATE_LIMIT_PER_MINUTE"`
	WebhookRateLimitPerMinute  int `mapstructure:"WEBHOOK_RATE_LIMIT_PER_MINUTE"`

	MonthlyJobSchedule string `mapstructure:"MONTHLY_JOB_SCHEDULE"`
	AnnualJobSchedule  string `mapstructure:"ANNUAL_JOB_SCHEDULE"`
}

// TokenTTL returns the session token lifetime.
func (c Config) TokenTTL() time.Duration {
	return time.Duration(c.TokenTTLHours) * time.Hour
}

// GatewayTimeout returns the deadline of a single payment link request.
func (c Config) GatewayTimeout() time.Duration {
	return time.Duration(c.GatewayTimeoutSeconds) * time.Second
}

// InitiationLockTTL returns how long an initiation lock is held at most.
func (c Config) InitiationLockTTL() time.Duration {
	return time.Duration(c.InitiationLockTTLSeconds) * time.Second
}

// LoadConfig reads configuration from environment variables and an optional .env
// file in path. Missing required keys are reported together.
func LoadConfig(path string) (*Config, error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("REDIS_KEY_PREFIX", "estate-billing")
	viper.SetDefault("JWT_ISSUER", "estate-billing")
	viper.SetDefault("TOKEN_TTL_HOURS", 24)
	viper.SetDefault("FLUTTERWAVE_BASE_URL", "https://api.flutterwave.com")
	viper.SetDefault("DEFAULT_CURRENCY", "NGN")
	viper.SetDefault("BUSINESS_TIMEZONE", "Africa/Lagos")
	viper.SetDefault("GATEWAY_TIMEOUT_SECONDS", 15)
	viper.SetDefault("GENERATION_CONCURRENCY", 8)
	viper.SetDefault("INITIATION_LOCK_TTL_SECONDS", 30)
	viper.SetDefault("INITIATE_RATE_LIMIT_PER_MINUTE", 10)
	viper.SetDefault("WEBHOOK_RATE_LIMIT_PER_MINUTE", 300)
	viper.SetDefault("MONTHLY_JOB_SCHEDULE", "0 0 1 * *") // 00:00 on day-of-month 1.
	viper.SetDefault("ANNUAL_JOB_SCHEDULE", "0 0 * * *")  // Daily at 00:00.

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	for _, key := range []string{
		"SERVER_PORT",
		"DATABASE_URL",
		"RABBITMQ_URL",
		"REDIS_URL",
		"REDIS_KEY_PREFIX",
		"INTERNAL_API_KEY",
		"JWT_SECRET",
		"JWT_ISSUER",
		"TOKEN_TTL_HOURS",
		"FLUTTERWAVE_BASE_URL",
		"FLUTTERWAVE_SECRET_KEY",
		"FLUTTERWAVE_WEBHOOK_HASH",
		"PAYMENT_REDIRECT_URL",
		"DEFAULT_CURRENCY",
		"BUSINESS_TIMEZONE",
		"GATEWAY_TIMEOUT_SECONDS",
		"GENERATION_CONCURRENCY",
		"INITIATION_LOCK_TTL_SECONDS",
		"INITIATE_RATE_LIMIT_PER_MINUTE",
		"WEBHOOK_RATE_LIMIT_PER_MINUTE",
		"MONTHLY_JOB_SCHEDULE",
		"ANNUAL_JOB_SCHEDULE",
	} {
		_ = viper.BindEnv(key)
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.DefaultCurrency = strings.ToUpper(strings.TrimSpace(config.DefaultCurrency))

	if _, err := time.LoadLocation(config.BusinessTimezone); err != nil {
		log.Printf("level=warn component=config msg=\"invalid BUSINESS_TIMEZONE; using UTC\" value=%q err=%v", config.BusinessTimezone, err)
		config.BusinessTimezone = "UTC"
	}
	if config.TokenTTLHours <= 0 {
		config.TokenTTLHours = 24
	}
	if config.GatewayTimeoutSeconds <= 0 {
		config.GatewayTimeoutSeconds = 15
	}
	if config.GenerationConcurrency <= 0 {
		config.GenerationConcurrency = 8
	}
	if config.InitiationLockTTLSeconds <= 0 {
		config.InitiationLockTTLSeconds = 30
	}

	if err := config.validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c Config) validate() error {
	var missing []string
	if strings.TrimSpace(c.DatabaseURL) == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if strings.TrimSpace(c.JWTSecret) == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if strings.TrimSpace(c.InternalAPIKey) == "" {
		missing = append(missing, "INTERNAL_API_KEY")
	}
	if strings.TrimSpace(c.FlutterwaveSecretKey) == "" {
		missing = append(missing, "FLUTTERWAVE_SECRET_KEY")
	}
	if strings.TrimSpace(c.FlutterwaveWebhookHash) == "" {
		missing = append(missing, "FLUTTERWAVE_WEBHOOK_HASH")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	if len(c.JWTSecret) < 32 {
		return errors.New("JWT_SECRET must be at least 32 characters")
	}
	return nil
}
