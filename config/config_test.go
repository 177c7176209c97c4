package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	dir := t.TempDir()
	wd, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "async", cfg.Fanout.Mode)
	assert.Equal(t, 500, cfg.Fanout.BatchSize)
	assert.Equal(t, 50*time.Millisecond, cfg.Fanout.PollInterval)
	assert.False(t, cfg.Notification.SelfComment)
	assert.False(t, cfg.FanoutSync())
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte("fanout:\n  mode: sync\n  batch_size: 50\nnotification:\n  self_comment: true\n"), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PHOTOFEED_SERVER_PORT", "9090")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.FanoutSync())
	assert.Equal(t, 50, cfg.Fanout.BatchSize)
	assert.True(t, cfg.Notification.SelfComment)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestValidateRejectsUnknownDrivers(t *testing.T) {
	cfg := &Config{
		Database: DatabaseConfig{Driver: "mysql"},
		Fanout:   FanoutConfig{Mode: "sync"},
		Blob:     BlobConfig{Driver: "local"},
		JWT:      JWTConfig{Secret: "s"},
	}
	assert.Error(t, cfg.Validate())

	cfg.Database.Driver = "sqlite"
	cfg.Blob.Driver = "supabase"
	assert.Error(t, cfg.Validate())

	cfg.Blob.SupabaseURL = "https://x.supabase.co/storage/v1"
	cfg.Blob.SupabaseKey = "k"
	assert.NoError(t, cfg.Validate())
}
