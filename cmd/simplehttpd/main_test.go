package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigAppliesFlagOverrides(t *testing.T) {
	dir := t.TempDir()
	cfg, err := loadConfig(options{root: dir, addr: "127.0.0.1:9999"})
	require.NoError(t, err)
	require.Equal(t, dir, cfg.Root)
	require.Equal(t, "127.0.0.1:9999", cfg.Addr)
}

func TestLoadConfigFromFileThenFlagOverride(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("addr: 0.0.0.0:8000\nroot: "+dir+"\n"), 0o644))

	cfg, err := loadConfig(options{configPath: cfgPath, addr: "127.0.0.1:7000"})
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:7000", cfg.Addr, "flag should override config file value")
	require.Equal(t, dir, cfg.Root)
}

func TestLoadConfigEmptyAddrFlagKeepsDefault(t *testing.T) {
	_, err := loadConfig(options{addr: ""})
	require.NoError(t, err, "empty addr flag means 'keep default', not 'reject'")
}

func TestNewRootCmdHasExpectedFlags(t *testing.T) {
	cmd := NewRootCmd()
	for _, name := range []string{"root", "addr", "config", "log-format", "metrics-addr"} {
		require.NotNil(t, cmd.Flags().Lookup(name), "missing --%s flag", name)
	}
}
