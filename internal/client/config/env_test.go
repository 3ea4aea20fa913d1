package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEnv_OverlaysOnlySetVariables(t *testing.T) {
	t.Setenv("GEOSNAP_BACKEND_URL", "https://env.example")
	t.Setenv("GEOSNAP_SCOPES", "openid photos")
	t.Setenv("GEOSNAP_REFRESH_LEAD_WINDOW", "2m")
	t.Setenv("GEOSNAP_DISCARD_ORPHANS", "true")
	t.Setenv("GEOSNAP_COMPRESSION_QUALITY_FLOOR", "0.5")

	var cfg Config
	cfg.LoadDefaults()
	parseEnv(&cfg)

	assert.Equal(t, "https://env.example", cfg.BackendURL)
	assert.Equal(t, []string{"openid", "photos"}, cfg.Scopes)
	assert.Equal(t, 2*time.Minute, cfg.RefreshLeadWindow)
	assert.True(t, cfg.DiscardOrphans)
	assert.InDelta(t, 0.5, cfg.Compression.QualityFloor, 1e-9)

	assert.Equal(t, "geosnap-cli", cfg.ClientID)
	assert.Equal(t, 3, cfg.MaxUploadWorkers)
	assert.Equal(t, 0.9, cfg.Compression.QualityStart)
}

func TestParseEnv_MalformedPanics(t *testing.T) {
	t.Setenv("GEOSNAP_MAX_UPLOAD_WORKERS", "many")

	var cfg Config
	require.Panics(t, func() { parseEnv(&cfg) })
}
