package internal

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinyland-inc/gsbridge/pkg/config"
)

func TestGetConfigPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	t.Setenv("GSBRIDGE_CONFIG", "")

	assert.Equal(t, filepath.Join(home, ".gsbridge", "config.json"), GetConfigPath())

	t.Setenv("GSBRIDGE_CONFIG", "/etc/gsbridge.json")
	assert.Equal(t, "/etc/gsbridge.json", GetConfigPath())

	SetConfigPath("/tmp/override.json")
	t.Cleanup(func() { SetConfigPath("") })
	assert.Equal(t, "/tmp/override.json", GetConfigPath())
}

func TestOpenAuthority_LayersStaticUsers(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Authority.DBPath = filepath.Join(t.TempDir(), "authority.db")
	cfg.Authority.Users = map[string]int{"discord:u1": 5}

	store, closeStore := OpenAuthority(cfg)
	defer closeStore()

	level, ok, err := store.Authority(context.Background(), "discord", "u1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 5, level)

	_, ok, err = store.Authority(context.Background(), "discord", "nobody")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFormatBuildInfo(t *testing.T) {
	_, goVer := FormatBuildInfo()
	assert.NotEmpty(t, goVer)
	assert.Equal(t, "dev", GetVersion())
	assert.Equal(t, "dev", FormatVersion())
}
