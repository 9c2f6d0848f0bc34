package config

import (
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Server    ServerConfig
	Scrape    ScrapeConfig
	Storage   StorageConfig
	Redis     RedisConfig
	Vapi      VapiConfig
	Telephony TelephonyConfig
	Anthropic AnthropicConfig
	Log       LogConfig
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Port           int
	AllowedOrigins []string
}

// ScrapeConfig configures the map-search scraper.
type ScrapeConfig struct {
	StartURL      string
	ChromeBin     string
	Headless      bool
	Total         int
	MaxScrolls    int
	FieldTimeout  time.Duration
	VisitInterval time.Duration
	MaxRetries    int
}

// StorageConfig configures where datasets are persisted.
type StorageConfig struct {
	CSVOutputPath  string
	XLSXOutputPath string

	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string
}

// RedisConfig configures the optional Redis-backed session and snapshot stores.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// VapiConfig holds voice-agent platform settings.
type VapiConfig struct {
	BaseURL             string
	BearerToken         string
	AssistantID         string
	AssistantName       string
	TranscriberProvider string
	ModelProvider       string
	ModelName           string
	SystemPrompt        string
}

// TelephonyConfig holds the outbound-number credentials passed through to
// the voice platform.
type TelephonyConfig struct {
	AccountSID     string
	AuthToken      string
	PhoneNumber    string
	CustomerNumber string
}

// Complete reports whether the outbound credentials are all present.
func (t TelephonyConfig) Complete() bool {
	return t.AccountSID != "" && t.AuthToken != "" && t.PhoneNumber != ""
}

// AnthropicConfig holds judgment-model settings.
type AnthropicConfig struct {
	APIKey    string
	Model     string
	MaxTokens int64
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string
	Format string
}

// Load reads the .env file and returns a populated Config struct.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	return &Config{
		Server: ServerConfig{
			Port:           v.GetInt("PORT"),
			AllowedOrigins: splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
		},
		Scrape: ScrapeConfig{
			StartURL:      v.GetString("SCRAPE_START_URL"),
			ChromeBin:     v.GetString("CHROME_BIN"),
			Headless:      v.GetBool("SCRAPE_HEADLESS"),
			Total:         v.GetInt("SCRAPE_TOTAL"),
			MaxScrolls:    v.GetInt("SCRAPE_MAX_SCROLLS"),
			FieldTimeout:  time.Duration(v.GetInt("SCRAPE_FIELD_TIMEOUT_MS")) * time.Millisecond,
			VisitInterval: time.Duration(v.GetInt("SCRAPE_VISIT_INTERVAL_MS")) * time.Millisecond,
			MaxRetries:    v.GetInt("MAX_RETRIES"),
		},
		Storage: StorageConfig{
			CSVOutputPath:    v.GetString("CSV_OUTPUT_PATH"),
			XLSXOutputPath:   v.GetString("XLSX_OUTPUT_PATH"),
			PostgresHost:     v.GetString("POSTGRES_HOST"),
			PostgresPort:     v.GetString("POSTGRES_PORT"),
			PostgresUser:     v.GetString("POSTGRES_USER"),
			PostgresPassword: v.GetString("POSTGRES_PASSWORD"),
			PostgresDB:       v.GetString("POSTGRES_DB"),
			PostgresSSLMode:  v.GetString("POSTGRES_SSLMODE"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		Vapi: VapiConfig{
			BaseURL:             v.GetString("VAPI_BASE_URL"),
			BearerToken:         v.GetString("VAPI_BEARER_TOKEN"),
			AssistantID:         v.GetString("VAPI_ASSISTANT_ID"),
			AssistantName:       v.GetString("VAPI_ASSISTANT_NAME"),
			TranscriberProvider: v.GetString("VAPI_TRANSCRIBER_PROVIDER"),
			ModelProvider:       v.GetString("VAPI_MODEL_PROVIDER"),
			ModelName:           v.GetString("VAPI_MODEL_NAME"),
			SystemPrompt:        v.GetString("VAPI_SYSTEM_PROMPT"),
		},
		Telephony: TelephonyConfig{
			AccountSID:     v.GetString("TWILIO_ACCOUNT_SID"),
			AuthToken:      v.GetString("TWILIO_AUTH_TOKEN"),
			PhoneNumber:    v.GetString("TWILIO_PHONE_NUMBER"),
			CustomerNumber: v.GetString("CUSTOMER_PHONE_NUMBER"),
		},
		Anthropic: AnthropicConfig{
			APIKey:    v.GetString("ANTHROPIC_API_KEY"),
			Model:     v.GetString("ANTHROPIC_MODEL"),
			MaxTokens: v.GetInt64("ANTHROPIC_MAX_TOKENS"),
		},
		Log: LogConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", 5000)
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")

	v.SetDefault("SCRAPE_START_URL", "https://www.google.com/maps")
	v.SetDefault("SCRAPE_HEADLESS", true)
	v.SetDefault("SCRAPE_TOTAL", 10)
	v.SetDefault("SCRAPE_MAX_SCROLLS", 50)
	v.SetDefault("SCRAPE_FIELD_TIMEOUT_MS", 5000)
	v.SetDefault("SCRAPE_VISIT_INTERVAL_MS", 500)
	v.SetDefault("MAX_RETRIES", 3)

	v.SetDefault("CSV_OUTPUT_PATH", "./output/result.csv")
	v.SetDefault("POSTGRES_PORT", "5432")
	v.SetDefault("POSTGRES_SSLMODE", "disable")

	v.SetDefault("VAPI_BASE_URL", "https://api.vapi.ai")

	v.SetDefault("ANTHROPIC_MODEL", "claude-haiku-4-5-20251001")
	v.SetDefault("ANTHROPIC_MAX_TOKENS", 64)

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
}

// PostgresEnabled reports whether a Postgres mirror has been configured.
func (c *Config) PostgresEnabled() bool {
	return c.Storage.PostgresHost != ""
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	s := c.Storage
	return "host=" + s.PostgresHost +
		" port=" + s.PostgresPort +
		" user=" + s.PostgresUser +
		" password=" + s.PostgresPassword +
		" dbname=" + s.PostgresDB +
		" sslmode=" + s.PostgresSSLMode
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
