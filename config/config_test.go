package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestFromFileAppliesDefaults(t *testing.T) {
	p := writeConfig(t, "api:\n  token: secret\n")
	require.NoError(t, FromFile(p))

	c := Get()
	assert.Equal(t, p, c.Path())
	assert.Equal(t, "secret", c.Api.Token)
	assert.Equal(t, 25565, c.World.PortRange.Start)
	assert.Equal(t, 25575, c.World.PortRange.End)
	assert.Equal(t, "stop", c.World.StopCommand)
	assert.Equal(t, ProxyInfrarust, c.Proxy.Type)
	assert.Equal(t, 1, c.System.WatchdogInterval)
}

func TestFromFileExpandsEnvironment(t *testing.T) {
	t.Setenv("MINIMANAGER_TEST_TOKEN", "from-env")
	p := writeConfig(t, "remote:\n  token: ${MINIMANAGER_TEST_TOKEN}\n")
	require.NoError(t, FromFile(p))

	assert.Equal(t, "from-env", Get().Remote.Token)
}

func TestFromFileRejectsInvalidValues(t *testing.T) {
	p := writeConfig(t, "world:\n  port_range:\n    start: 30000\n    end: 20000\n")
	assert.Error(t, FromFile(p))

	p = writeConfig(t, "proxy:\n  type: haproxy\n")
	assert.Error(t, FromFile(p))
}

func TestGetReturnsCopy(t *testing.T) {
	c, err := NewAtPath("")
	require.NoError(t, err)
	Set(c)

	Get().World.StopCommand = "halt"
	assert.Equal(t, "stop", Get().World.StopCommand)

	Update(func(c *Configuration) {
		c.World.StopCommand = "halt"
	})
	assert.Equal(t, "halt", Get().World.StopCommand)
}

func TestWriteToDisk(t *testing.T) {
	p := filepath.Join(t.TempDir(), "nested", "config.yml")
	c, err := NewAtPath(p)
	require.NoError(t, err)
	c.Api.Token = "abc"
	require.NoError(t, WriteToDisk(c))

	require.NoError(t, FromFile(p))
	assert.Equal(t, "abc", Get().Api.Token)
}
