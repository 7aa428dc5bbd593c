package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 250*time.Millisecond, cfg.Geocoding.Debounce)
	assert.Equal(t, 8, cfg.Geocoding.ResultLimit)
	assert.Equal(t, 80.0, cfg.Navigation.OffRouteMeters)
	assert.Equal(t, 20*time.Second, cfg.Navigation.RerouteMinInterval)
	assert.Equal(t, 100.0, cfg.Navigation.JumpMeters)
	assert.Equal(t, 60*time.Second, cfg.Navigation.EtaRefreshInterval)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
server:
  port: 9090
navigation:
  off_route_meters: 120
geocoding:
  result_limit: 4
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 120.0, cfg.Navigation.OffRouteMeters)
	assert.Equal(t, 4, cfg.Geocoding.ResultLimit)
	// Untouched keys keep defaults.
	assert.Equal(t, 20*time.Second, cfg.Navigation.RerouteMinInterval)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("NAV__SERVER__PORT", "7070")
	t.Setenv("NAV__CUSTOM__BASE_URL", "http://localhost:5000")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "http://localhost:5000", cfg.Custom.BaseURL)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	cfg.Server.Port = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Navigation.OffRouteMeters = -1
	assert.Error(t, cfg.Validate())
}
