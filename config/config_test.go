package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDirHonorsEnvOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvDirOverride, dir)
	got, err := Dir()
	require.NoError(t, err)
	require.Equal(t, dir, got)
}

func TestLoadReturnsDefaultsWhenMissing(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvDirOverride, dir)
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvDirOverride, dir)

	cfg := Default()
	cfg.Port = "/dev/ttyUSB0"
	cfg.StopMode = StopStreamThenReset
	require.NoError(t, Save(cfg))

	require.FileExists(t, filepath.Join(dir, fileName))

	loaded, err := Load()
	require.NoError(t, err)
	require.Equal(t, cfg, loaded)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvDirOverride, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, fileName), []byte("port: [unterminated\n"), 0o644))

	_, err := Load()
	require.Error(t, err)
}
