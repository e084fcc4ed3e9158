package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	raw := `
server:
  port: 8080
  rate_limit_per_sec: 20
database:
  dsn: "host=localhost user=parking dbname=parking"
search:
  max_radius_meters: 3000
  default_radius_meters: 250
occupancy:
  step: 0.2
ingest:
  enabled: true
  url: "https://data.example.org/parking.json"
  interval_seconds: 600
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 20.0, cfg.Server.RateLimitPerSec)
	assert.Equal(t, 3000.0, cfg.Search.MaxRadiusMeters)
	assert.Equal(t, 250.0, cfg.Search.DefaultRadius)
	assert.Equal(t, 0.2, cfg.Occupancy.Step)
	assert.True(t, cfg.Ingest.Enabled)
	assert.Equal(t, 10*time.Minute, cfg.Ingest.Interval)

	// Unset fields pick up defaults.
	assert.Equal(t, 5, cfg.Server.RateLimitBurst)
	assert.Equal(t, 50, cfg.Search.MaxResults)
	assert.Equal(t, 120, cfg.Cache.TTLSeconds)
	assert.Equal(t, 600, cfg.Cache.PredictionTTLSeconds)
	assert.Equal(t, 1, cfg.WorkerPool.Size)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()

	assert.Equal(t, 10.0, cfg.Server.RateLimitPerSec)
	assert.Equal(t, 5000.0, cfg.Search.MaxRadiusMeters)
	assert.Equal(t, 500.0, cfg.Search.DefaultRadius)
	assert.Equal(t, 80.0, cfg.Search.WalkPaceMetersMin)
	assert.Equal(t, 0.1, cfg.Occupancy.Step)
	assert.Equal(t, 3600, cfg.Push.TTL)
	assert.Equal(t, 15*time.Minute, cfg.Ingest.Interval)
	assert.False(t, cfg.Ingest.Enabled)
}
