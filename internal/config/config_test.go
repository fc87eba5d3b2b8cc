package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mapLookup(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefaults(t *testing.T) {
	c, err := FromEnv(mapLookup(nil))
	require.NoError(t, err)
	assert.Equal(t, Defaults(), c)
	assert.Equal(t, "oskrba.state", c.Channel)
	assert.Equal(t, 10*time.Second, c.Timeout)
}

func TestFromEnv(t *testing.T) {
	c, err := FromEnv(mapLookup(map[string]string{
		"OSKRBA_ADDR":       "127.0.0.1:9000",
		"OSKRBA_AUTH":       "true",
		"OSKRBA_REMOTE_URL": "",
		"OSKRBA_REDIS_ADDR": "localhost:6379",
		"OSKRBA_REDIS_DB":   "2",
		"OSKRBA_TIMEOUT":    "3s",
	}))
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", c.Addr)
	assert.True(t, c.Auth)
	assert.Empty(t, c.RemoteURL, "an explicitly empty remote selects local-only mode")
	assert.Equal(t, "localhost:6379", c.RedisAddr)
	assert.Equal(t, 2, c.RedisDB)
	assert.Equal(t, 3*time.Second, c.Timeout)
}

func TestFromEnvInvalid(t *testing.T) {
	_, err := FromEnv(mapLookup(map[string]string{
		"OSKRBA_AUTH":     "maybe",
		"OSKRBA_REDIS_DB": "-1",
		"OSKRBA_TIMEOUT":  "soon",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OSKRBA_AUTH")
	assert.Contains(t, err.Error(), "OSKRBA_REDIS_DB")
	assert.Contains(t, err.Error(), "OSKRBA_TIMEOUT")
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("OSKRBA_CHANNEL=from-file\nOSKRBA_ADDR=:1111\n"), 0o600))

	t.Setenv("OSKRBA_ADDR", ":2222")
	// godotenv sets variables missing from the environment; restore afterwards.
	t.Setenv("OSKRBA_CHANNEL", "")
	os.Unsetenv("OSKRBA_CHANNEL")

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-file", c.Channel)
	assert.Equal(t, ":2222", c.Addr, "the environment wins over the file")
}

func TestLoadMissingEnvFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.NoError(t, err)
}
