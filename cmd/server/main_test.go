package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/routeproxy/internal/infrastructure/config"
)

func TestApplyFlags(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, applyFlags(cfg, "9100", "127.0.0.1", true))
	assert.Equal(t, "9100", cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.True(t, cfg.Logging.Development)
	assert.Equal(t, "debug", cfg.Logging.Level)

	cfg = config.Default()
	require.NoError(t, applyFlags(cfg, "", "", false))
	assert.Equal(t, config.Default(), cfg, "empty flags keep the loaded values")
}

func TestApplyFlagsRevalidates(t *testing.T) {
	for _, port := range []string{"http", "65536", "-1"} {
		err := applyFlags(config.Default(), port, "", false)
		assert.ErrorIs(t, err, config.ErrInvalid, port)
	}
}
