package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateFlags_RejectsMissingConfigFile(t *testing.T) {
	cfg := &cliConfig{
		ConfigPath: filepath.Join(t.TempDir(), "does-not-exist.json"),
		LogLevel:   "info",
		LogFormat:  "json",
	}
	assert.Error(t, validateFlags(cfg))
}

func TestValidateFlags_RejectsUnknownLogLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o600))

	cfg := &cliConfig{ConfigPath: path, LogLevel: "verbose", LogFormat: "json"}
	assert.Error(t, validateFlags(cfg))
}

func TestValidateFlags_RejectsUnknownLogFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o600))

	cfg := &cliConfig{ConfigPath: path, LogLevel: "info", LogFormat: "xml"}
	assert.Error(t, validateFlags(cfg))
}

func TestValidateFlags_AcceptsValidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o600))

	cfg := &cliConfig{ConfigPath: path, LogLevel: "debug", LogFormat: "text"}
	assert.NoError(t, validateFlags(cfg))
}

func TestValidateFlags_SkipsChecksForVersionAndHelp(t *testing.T) {
	assert.NoError(t, validateFlags(&cliConfig{ShowVersion: true}))
	assert.NoError(t, validateFlags(&cliConfig{ShowHelp: true}))
}

func TestContains(t *testing.T) {
	assert.True(t, contains([]string{"a", "b"}, "b"))
	assert.False(t, contains([]string{"a", "b"}, "c"))
}
