package config_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/akonadid/pkg/config"
)

func TestServerConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "akonadiserverrc")
	cfg := &config.ServerConfig{
		DisablePreprocessing: true,
		EnableCleaner:        false,
		SearchManagers:       []string{"Xesam", "Nepomuk"},
	}
	require.NoError(t, config.SaveServerConfig(path, cfg))

	got, err := config.LoadServerConfig(path)
	require.NoError(t, err)
	require.Equal(t, cfg.DisablePreprocessing, got.DisablePreprocessing)
	require.Equal(t, cfg.EnableCleaner, got.EnableCleaner)
	require.Equal(t, cfg.SearchManagers, got.SearchManagers)
}

func TestServerConfigMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := config.LoadServerConfig(filepath.Join(t.TempDir(), "missing"))
	require.NoError(t, err)
	require.True(t, cfg.EnableCleaner)
}

func TestConnectionConfigWriteAndRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "akonadiconnectionrc")
	require.NoError(t, config.WriteConnectionConfig(path, &config.ConnectionConfig{
		Method:   "UnixPath",
		UnixPath: "/tmp/akonadiserver.socket",
	}))
	require.FileExists(t, path)
	require.NoError(t, config.RemoveConnectionConfig(path))
	require.NoFileExists(t, path)
}

func TestDataLayout(t *testing.T) {
	root := t.TempDir()
	layout := config.NewDataLayout(root)
	require.NoError(t, layout.EnsureDirs())
	require.DirExists(t, layout.FileDBDataDir())
}
