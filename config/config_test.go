package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SCRAPE_TOTAL", "")
	cfg := Load()

	assert.Equal(t, 5000, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "https://www.google.com/maps", cfg.Scrape.StartURL)
	assert.Equal(t, 10, cfg.Scrape.Total)
	assert.Equal(t, 50, cfg.Scrape.MaxScrolls)
	assert.Equal(t, 5*time.Second, cfg.Scrape.FieldTimeout)
	assert.Equal(t, "https://api.vapi.ai", cfg.Vapi.BaseURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.PostgresEnabled())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "8088")
	t.Setenv("SCRAPE_TOTAL", "25")
	t.Setenv("SCRAPE_FIELD_TIMEOUT_MS", "1500")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("TWILIO_ACCOUNT_SID", "AC123")
	t.Setenv("TWILIO_AUTH_TOKEN", "tok")
	t.Setenv("TWILIO_PHONE_NUMBER", "+15550001")
	t.Setenv("POSTGRES_HOST", "db")

	cfg := Load()

	assert.Equal(t, 8088, cfg.Server.Port)
	assert.Equal(t, 25, cfg.Scrape.Total)
	assert.Equal(t, 1500*time.Millisecond, cfg.Scrape.FieldTimeout)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
	assert.True(t, cfg.Telephony.Complete())
	assert.True(t, cfg.PostgresEnabled())
	assert.Contains(t, cfg.DSN(), "host=db")
	assert.Contains(t, cfg.DSN(), "port=5432")
}

func TestTelephonyComplete(t *testing.T) {
	assert.False(t, TelephonyConfig{AccountSID: "AC1", AuthToken: "t"}.Complete())
	assert.True(t, TelephonyConfig{AccountSID: "AC1", AuthToken: "t", PhoneNumber: "+1"}.Complete())
}
