package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("BOOKING_POSTGRES_DSN", "postgres://localhost/booking")
	t.Setenv("BOOKING_JWT_SECRET", "jwt")
	t.Setenv("BOOKING_GATEWAY_PAY_URL", "https://pay.example.com")
	t.Setenv("BOOKING_GATEWAY_SECRET", "gw")
}

func TestLoadAppliesDefaultsAndOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("BOOKING_SWEEPER_INTERVAL", "30s")
	t.Setenv("BOOKING_HOLD_UNIT_RATE", "500")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.Sweeper.Interval)
	assert.Equal(t, int64(500), cfg.Reservation.UnitRate)
	assert.Equal(t, 5*time.Minute, cfg.CheckIn.TokenTTL)
	assert.Equal(t, 15*time.Minute, cfg.Reservation.GracePad)
	assert.Equal(t, ":8085", cfg.HTTPAddress())
	assert.Equal(t, 1000.0, cfg.Session.MaxEnergyKWh)
}

func TestLoadRequiresSecrets(t *testing.T) {
	setRequired(t)
	t.Setenv("BOOKING_JWT_SECRET", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt secret")
}

func TestHTTPAddressKeepsColon(t *testing.T) {
	cfg := Defaults()
	cfg.HTTP.Port = ":9000"
	assert.Equal(t, ":9000", cfg.HTTPAddress())
}

func TestLoadSessionEnergyCap(t *testing.T) {
	setRequired(t)
	t.Setenv("BOOKING_SESSION_MAX_ENERGY_KWH", "250.5")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 250.5, cfg.Session.MaxEnergyKWh)
}
