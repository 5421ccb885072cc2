/**
 * @description
 * Configuration management for the credits service.
 */
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	ServerPort string `mapstructure:"SERVER_PORT"`

	StoreDriver       string `mapstructure:"STORE_DRIVER"`
	DatabaseURL       string `mapstructure:"DATABASE_URL"`
	BoltPath          string `mapstructure:"BOLT_PATH"`
	AutoMigrate       bool   `mapstructure:"AUTO_MIGRATE"`
	DBConnectAttempts uint   `mapstructure:"DB_CONNECT_ATTEMPTS"`

	StripeSecretKey string `mapstructure:"STRIPE_SECRET_KEY"`
	StripeAPIURL    string `mapstructure:"STRIPE_API_URL"`
	AppBaseURL      string `mapstructure:"APP_BASE_URL"`
	CatalogPath     string `mapstructure:"CATALOG_PATH"`

	SupabaseURL       string `mapstructure:"SUPABASE_URL"`
	SupabaseJWTSecret string `mapstructure:"SUPABASE_JWT_SECRET"`
	SupabaseJWKSURL   string `mapstructure:"SUPABASE_JWKS_URL"`
	JWTAudience       string `mapstructure:"JWT_AUDIENCE"`
	JWTIssuer         string `mapstructure:"JWT_ISSUER"`

	RedisURL                   string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix       string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	CheckoutRateLimitPerMinute int    `mapstructure:"CHECKOUT_RATE_LIMIT_PER_MINUTE"`
	VerifyRateLimitPerMinute   int    `mapstructure:"VERIFY_RATE_LIMIT_PER_MINUTE"`

	RabbitMQURL    string `mapstructure:"RABBITMQ_URL"`
	EventsExchange string `mapstructure:"EVENTS_EXCHANGE"`

	LedgerReconcileSchedule string `mapstructure:"LEDGER_RECONCILE_SCHEDULE"`
	InternalAPIKey          string `mapstructure:"INTERNAL_API_KEY"`
	CORSAllowedOrigins      string `mapstructure:"CORS_ALLOWED_ORIGINS"`
}

// LoadConfig reads configuration from environment variables and an optional
// .env file in path.
func LoadConfig(path string) (Config, error) {
	config, err := load(path)
	if err != nil {
		return config, err
	}
	return config, config.Validate()
}

// LoadStoreConfig loads the same sources as LoadConfig but only requires the
// storage settings. Offline tooling uses it.
func LoadStoreConfig(path string) (Config, error) {
	config, err := load(path)
	if err != nil {
		return config, err
	}
	if problems := config.storeProblems(); len(problems) > 0 {
		return config, errors.New("invalid configuration: " + strings.Join(problems, "; "))
	}
	return config, nil
}

func load(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("STORE_DRIVER", "postgres")
	viper.SetDefault("BOLT_PATH", "confito-ledger.db")
	viper.SetDefault("AUTO_MIGRATE", false)
	viper.SetDefault("DB_CONNECT_ATTEMPTS", 5)
	viper.SetDefault("APP_BASE_URL", "http://localhost:3000")
	viper.SetDefault("JWT_AUDIENCE", "authenticated")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "confito:rate_limit")
	viper.SetDefault("CHECKOUT_RATE_LIMIT_PER_MINUTE", 10)
	viper.SetDefault("VERIFY_RATE_LIMIT_PER_MINUTE", 30)
	viper.SetDefault("EVENTS_EXCHANGE", "confito.events")
	viper.SetDefault("LEDGER_RECONCILE_SCHEDULE", "@every 15m")
	viper.SetDefault("CORS_ALLOWED_ORIGINS", "*")

	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("STORE_DRIVER")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("BOLT_PATH")
	_ = viper.BindEnv("AUTO_MIGRATE")
	_ = viper.BindEnv("DB_CONNECT_ATTEMPTS")
	_ = viper.BindEnv("STRIPE_SECRET_KEY")
	_ = viper.BindEnv("STRIPE_API_URL")
	_ = viper.BindEnv("APP_BASE_URL")
	_ = viper.BindEnv("CATALOG_PATH")
	_ = viper.BindEnv("SUPABASE_URL")
	_ = viper.BindEnv("SUPABASE_JWT_SECRET")
	_ = viper.BindEnv("SUPABASE_JWKS_URL")
	_ = viper.BindEnv("JWT_AUDIENCE")
	_ = viper.BindEnv("JWT_ISSUER")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("CHECKOUT_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("VERIFY_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("EVENTS_EXCHANGE")
	_ = viper.BindEnv("LEDGER_RECONCILE_SCHEDULE")
	_ = viper.BindEnv("INTERNAL_API_KEY")
	_ = viper.BindEnv("CORS_ALLOWED_ORIGINS")

	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.normalize()
	return
}

func (c *Config) normalize() {
	c.StoreDriver = strings.ToLower(strings.TrimSpace(c.StoreDriver))
	c.DatabaseURL = strings.TrimSpace(c.DatabaseURL)
	c.StripeSecretKey = strings.TrimSpace(c.StripeSecretKey)
	c.AppBaseURL = strings.TrimSuffix(strings.TrimSpace(c.AppBaseURL), "/")
	c.SupabaseURL = strings.TrimSuffix(strings.TrimSpace(c.SupabaseURL), "/")
	c.SupabaseJWTSecret = strings.TrimSpace(c.SupabaseJWTSecret)
	c.SupabaseJWKSURL = strings.TrimSpace(c.SupabaseJWKSURL)
	c.JWTAudience = strings.TrimSpace(c.JWTAudience)
	c.JWTIssuer = strings.TrimSpace(c.JWTIssuer)
	c.RedisURL = strings.TrimSpace(c.RedisURL)
	c.RedisRateLimitPrefix = strings.TrimSpace(c.RedisRateLimitPrefix)
	c.InternalAPIKey = strings.TrimSpace(c.InternalAPIKey)

	if c.SupabaseURL != "" {
		if c.SupabaseJWKSURL == "" {
			c.SupabaseJWKSURL = c.SupabaseURL + "/auth/v1/.well-known/jwks.json"
		}
		if c.JWTIssuer == "" {
			c.JWTIssuer = c.SupabaseURL + "/auth/v1"
		}
	}
	if c.RedisRateLimitPrefix == "" {
		c.RedisRateLimitPrefix = "confito:rate_limit"
	}
	if c.CheckoutRateLimitPerMinute < 0 {
		c.CheckoutRateLimitPerMinute = 0
	}
	if c.VerifyRateLimitPerMinute < 0 {
		c.VerifyRateLimitPerMinute = 0
	}
}

// Validate reports settings the service cannot start without.
func (c Config) Validate() error {
	var problems []string

	if c.StripeSecretKey == "" {
		problems = append(problems, "STRIPE_SECRET_KEY is required")
	}
	if c.SupabaseJWTSecret == "" && c.SupabaseJWKSURL == "" {
		problems = append(problems, "one of SUPABASE_JWT_SECRET, SUPABASE_JWKS_URL or SUPABASE_URL is required")
	}
	problems = append(problems, c.storeProblems()...)

	if len(problems) > 0 {
		return errors.New("invalid configuration: " + strings.Join(problems, "; "))
	}
	return nil
}

func (c Config) storeProblems() []string {
	var problems []string
	switch c.StoreDriver {
	case "postgres":
		if c.DatabaseURL == "" {
			problems = append(problems, "DATABASE_URL is required when STORE_DRIVER=postgres")
		}
	case "bolt":
		if strings.TrimSpace(c.BoltPath) == "" {
			problems = append(problems, "BOLT_PATH is required when STORE_DRIVER=bolt")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown STORE_DRIVER %q", c.StoreDriver))
	}
	return problems
}

// AllowedOrigins splits CORS_ALLOWED_ORIGINS on commas.
func (c Config) AllowedOrigins() []string {
	var origins []string
	for _, origin := range strings.Split(c.CORSAllowedOrigins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
