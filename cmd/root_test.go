package cmd

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCommand(t *testing.T) {
	path := tempConfig(t)

	out, err := executeCommand(rootCmd, "--config", path, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "onekm "+Version)
	assert.Contains(t, out, "commit:")
}

func TestStatusWhenNotRunning(t *testing.T) {
	path := tempConfig(t)
	t.Setenv("SUDO_USER", "onekm-test-nobody")

	out, err := executeCommand(rootCmd, "--config", path, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "not running")
}

func TestSwitchWhenNotRunning(t *testing.T) {
	path := tempConfig(t)
	t.Setenv("SUDO_USER", "onekm-test-nobody")

	_, err := executeCommand(rootCmd, "--config", path, "switch")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not running")
}

func TestCommandsNeedRoot(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("Test requires non-root user")
	}

	for _, name := range []string{"server", "client"} {
		t.Run(name, func(t *testing.T) {
			path := tempConfig(t)
			_, err := executeCommand(rootCmd, "--config", path, name)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "root privileges")
		})
	}
}

func TestClientNeedsAddress(t *testing.T) {
	if os.Geteuid() != 0 {
		t.Skip("Test requires root privileges")
	}
	path := tempConfig(t)

	_, err := executeCommand(rootCmd, "--config", path, "client")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no controller address")
}
