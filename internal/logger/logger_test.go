package logger

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetLevel(t *testing.T) {
	defer SetLevel("")

	SetLevel("debug")
	assert.Equal(t, log.DebugLevel, Logger.GetLevel())
	SetLevel("WARNING")
	assert.Equal(t, log.WarnLevel, Logger.GetLevel())
	SetLevel("bogus")
	assert.Equal(t, log.InfoLevel, Logger.GetLevel())
}

func TestUINotifier(t *testing.T) {
	Logger.SetOutput(os.Stderr)
	defer SetUINotifier(nil)
	defer SetLevel("")
	SetLevel("info")

	var mu sync.Mutex
	var got []string
	SetUINotifier(func(level, message string) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, level+":"+message)
	})

	Infof("hello %d", 1)
	Debug("hidden")
	Warn("careful")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"INFO:hello 1", "WARN:careful"}, got)
}

func TestSetupFileLogging(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("root logs to /var/log")
	}
	t.Setenv("XDG_STATE_HOME", t.TempDir())
	defer Logger.SetOutput(os.Stderr)
	defer Logger.SetPrefix("")

	f, err := SetupFileLogging("TEST")
	require.NoError(t, err)
	Info("written to file")
	require.NoError(t, f.Close())

	data, err := os.ReadFile(filepath.Join(os.Getenv("XDG_STATE_HOME"), "onekm", "onekm.log"))
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "written to file"))
	assert.True(t, strings.Contains(string(data), "TEST"))
}
