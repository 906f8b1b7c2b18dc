package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfigDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	cfg, err := ParseConfig(v)
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 30*time.Minute, cfg.Restrictions.WarningLead)
	assert.Equal(t, 15*time.Minute, cfg.Restrictions.MinGap)
	assert.Equal(t, 10*time.Minute, cfg.Session.PendingGrace)
	assert.Equal(t, "0.08", cfg.Pricing.TaxRate)
	assert.Equal(t, "usd", cfg.Stripe.Currency)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Events.Kafka.Brokers)
	assert.Equal(t, "none", cfg.Events.Driver)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("PARKING_SESSION_PENDING_GRACE", "20m")
	t.Setenv("PARKING_EVENTS_DRIVER", "kafka")

	v, err := LoadConfig()
	require.NoError(t, err)

	cfg, err := ParseConfig(v)
	require.NoError(t, err)

	assert.Equal(t, 20*time.Minute, cfg.Session.PendingGrace)
	assert.Equal(t, "kafka", cfg.Events.Driver)
}

func TestGetServerAddress(t *testing.T) {
	cfg := &Config{Server: ServerConfig{Host: "0.0.0.0", Port: "9000"}}
	assert.Equal(t, "0.0.0.0:9000", cfg.GetServerAddress())
	assert.False(t, cfg.IsProduction())
}
