package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, Init(path))

	assert.Equal(t, "http://localhost:8787", GetString("api.base_url"))
	assert.Equal(t, 30, GetInt("api.timeout"))
	assert.Equal(t, 2000.0, GetFloat("feed.radius"))
	assert.Equal(t, path, Path())
}

func TestInitReadsFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[api]\nbase_url = \"http://feed.test\"\ntimeout = 5\n"), 0600))
	t.Setenv("SPHERES_API_TIMEOUT", "9")

	require.NoError(t, Init(path))
	assert.Equal(t, "http://feed.test", GetString("api.base_url"))
	assert.Equal(t, 9, GetInt("api.timeout"))
}

func TestSetWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	require.NoError(t, Init(path))
	require.NoError(t, Set("session.id", "abc"))

	require.NoError(t, Init(path))
	assert.Equal(t, "abc", GetString("session.id"))
}
