package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, "https://utahrealestate.com", cfg.Market.BaseURL)
	require.Equal(t, "America/Denver", cfg.Market.Timezone)
	require.Equal(t, []string{"ID"}, cfg.Market.DisallowedStates)
	require.Equal(t, 20, cfg.Ingest.Parallelism)
	require.Equal(t, "colly", cfg.Fetch.Provider)
	require.Equal(t, 5, cfg.Classifier.BatchSize)
	require.Equal(t, 500, cfg.Match.PageSize)
	require.Equal(t, "memory", cfg.LogSink.Provider)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9090
market:
  base_url: https://listings.example.com
ingest:
  parallelism: 8
log_sink:
  provider: local
  base_dir: /tmp/listingradar
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "https://listings.example.com", cfg.Market.BaseURL)
	require.Equal(t, 8, cfg.Ingest.Parallelism)
	require.Equal(t, "local", cfg.LogSink.Provider)
	require.Equal(t, "/tmp/listingradar", cfg.LogSink.BaseDir)
}

func TestValidateRejectsBadProvider(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	cfg.Fetch.Provider = "carrier-pigeon"
	require.ErrorContains(t, cfg.Validate(), "fetch.provider")

	cfg, err = Load("")
	require.NoError(t, err)
	cfg.LogSink.Provider = "gcs"
	require.ErrorContains(t, cfg.Validate(), "log_sink.bucket")

	cfg, err = Load("")
	require.NoError(t, err)
	cfg.Market.BaseURL = ""
	require.ErrorContains(t, cfg.Validate(), "market.base_url")
}
