// internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Provider names recognised across the module.
const (
	ProviderOpenAI     = "openai"
	ProviderAnthropic  = "anthropic"
	ProviderGoogle     = "google"
	ProviderPerplexity = "perplexity"
	SurfaceSERP        = "serp"
)

// LLMProviders lists the chat surfaces in their canonical order.
var LLMProviders = []string{ProviderOpenAI, ProviderAnthropic, ProviderGoogle, ProviderPerplexity}

var defaultConcurrency = map[string]int{
	ProviderOpenAI:     2,
	ProviderAnthropic:  3,
	ProviderGoogle:     5,
	ProviderPerplexity: 4,
}

type Config struct {
	Port              string
	Environment       string
	LogLevel          string
	AppTZ             string
	InngestEventKey   string
	InngestSigningKey string
	DailyCron         string
	SlackWebhookURL   string

	OpenAIAPIKey     string
	AnthropicAPIKey  string
	GoogleAPIKey     string
	PerplexityAPIKey string
	SerpAPIKey       string

	Probe    ProbeConfig
	Serp     SerpConfig
	Redis    RedisConfig
	Database DatabaseConfig

	EnforceQuotas bool
}

// ProbeConfig controls the multi-LLM fan-out.
type ProbeConfig struct {
	MaxWorkers      int
	MaxRetries      int
	ProviderTimeout time.Duration
	ProviderRPS     float64
	Concurrency     map[string]int
}

type SerpConfig struct {
	BaseURL  string
	CacheTTL time.Duration
}

type RedisConfig struct {
	URL string
}

// DatabaseConfig mirrors the pool settings passed to sqlx.
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int
	AutoMigrate     bool
}

func Load() *Config {
	config := &Config{
		Port:              getEnv("PORT", "8080"),
		Environment:       getEnv("ENVIRONMENT", "development"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		AppTZ:             getEnv("APP_TZ", "Europe/Madrid"),
		InngestEventKey:   os.Getenv("INNGEST_EVENT_KEY"),
		InngestSigningKey: os.Getenv("INNGEST_SIGNING_KEY"),
		DailyCron:         getEnv("DAILY_CRON", "0 3 * * *"),
		SlackWebhookURL:   os.Getenv("SLACK_WEBHOOK_URL"),
		OpenAIAPIKey:      os.Getenv("OPENAI_API_KEY"),
		AnthropicAPIKey:   os.Getenv("ANTHROPIC_API_KEY"),
		GoogleAPIKey:      os.Getenv("GOOGLE_API_KEY"),
		PerplexityAPIKey:  os.Getenv("PERPLEXITY_API_KEY"),
		SerpAPIKey:        os.Getenv("SERPAPI_KEY"),
		EnforceQuotas:     getEnvBool("ENFORCE_QUOTAS", true),
	}

	config.Probe = ProbeConfig{
		MaxWorkers:      getEnvInt("PROBE_MAX_WORKERS", 8),
		MaxRetries:      getEnvInt("PROBE_MAX_RETRIES", 4),
		ProviderTimeout: time.Duration(getEnvInt("PROVIDER_TIMEOUT_SECONDS", 120)) * time.Second,
		ProviderRPS:     getEnvFloat("PROVIDER_RPS", 0),
		Concurrency: map[string]int{
			ProviderOpenAI:     getEnvInt("OPENAI_CONCURRENCY", defaultConcurrency[ProviderOpenAI]),
			ProviderAnthropic:  getEnvInt("ANTHROPIC_CONCURRENCY", defaultConcurrency[ProviderAnthropic]),
			ProviderGoogle:     getEnvInt("GOOGLE_CONCURRENCY", defaultConcurrency[ProviderGoogle]),
			ProviderPerplexity: getEnvInt("PERPLEXITY_CONCURRENCY", defaultConcurrency[ProviderPerplexity]),
		},
	}

	config.Serp = SerpConfig{
		BaseURL:  getEnv("SERPAPI_BASE_URL", "https://serpapi.com"),
		CacheTTL: time.Duration(getEnvInt("SERP_CACHE_TTL_HOURS", 24)) * time.Hour,
	}
	config.Redis = RedisConfig{URL: os.Getenv("REDIS_URL")}

	dbConfig, err := parseDatabaseConfig()
	if err != nil {
		// DATABASE_URL missing or malformed, fall back to discrete vars
		dbConfig = DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", ""),
			Name:            getEnv("DB_NAME", "visibility"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvInt("DB_CONN_MAX_LIFETIME", 300),
		}
	}
	dbConfig.AutoMigrate = getEnvBool("DB_AUTO_MIGRATE", false)
	config.Database = dbConfig

	return config
}

// Location resolves APP_TZ, falling back to UTC when the zone is unknown.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.AppTZ)
	if err != nil {
		log.Warn().Str("app_tz", c.AppTZ).Err(err).Msg("[Config] unknown timezone, using UTC")
		return time.UTC
	}
	return loc
}

// Today returns midnight of the current date in APP_TZ.
func (c *Config) Today() time.Time {
	return DateOf(time.Now(), c.Location())
}

// DateOf truncates t to the calendar date observed in loc.
func DateOf(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// ConcurrencyCap returns the semaphore capacity for a provider, never less than 1.
func (c *Config) ConcurrencyCap(provider string) int {
	if n, ok := c.Probe.Concurrency[provider]; ok && n > 0 {
		return n
	}
	if n, ok := defaultConcurrency[provider]; ok {
		return n
	}
	return 1
}

// APIKey returns the credential configured for a provider surface.
func (c *Config) APIKey(provider string) string {
	switch provider {
	case ProviderOpenAI:
		return c.OpenAIAPIKey
	case ProviderAnthropic:
		return c.AnthropicAPIKey
	case ProviderGoogle:
		return c.GoogleAPIKey
	case ProviderPerplexity:
		return c.PerplexityAPIKey
	case SurfaceSERP:
		return c.SerpAPIKey
	}
	return ""
}

// DSN renders the lib/pq connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

// URL renders the database config as a postgres:// URL for golang-migrate.
func (d DatabaseConfig) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:     "/" + d.Name,
		RawQuery: "sslmode=" + d.SSLMode,
	}
	return u.String()
}

func parseDatabaseConfig() (DatabaseConfig, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return DatabaseConfig{}, fmt.Errorf("DATABASE_URL not set")
	}

	parsedURL, err := url.Parse(dbURL)
	if err != nil {
		return DatabaseConfig{}, fmt.Errorf("invalid DATABASE_URL: %w", err)
	}
	if len(parsedURL.Path) < 2 {
		return DatabaseConfig{}, fmt.Errorf("DATABASE_URL has no database name")
	}

	sslMode := parsedURL.Query().Get("sslmode")
	if sslMode == "" {
		sslMode = getEnv("DB_SSLMODE", "require")
	}

	config := DatabaseConfig{
		Host:            parsedURL.Hostname(),
		Port:            5432,
		User:            parsedURL.User.Username(),
		Name:            parsedURL.Path[1:],
		SSLMode:         sslMode,
		MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvInt("DB_CONN_MAX_LIFETIME", 300),
	}

	if password, ok := parsedURL.User.Password(); ok {
		config.Password = password
	}

	if parsedURL.Port() != "" {
		if port, err := strconv.Atoi(parsedURL.Port()); err == nil {
			config.Port = port
		}
	}

	return config, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return defaultValue
}
