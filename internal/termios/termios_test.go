package termios

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestQuiet(t *testing.T) {
	tests := []struct {
		name string
		in   uint32
	}{
		{name: "cooked", in: unix.ECHO | unix.ICANON | unix.ISIG | unix.IEXTEN},
		{name: "already raw", in: 0},
		{name: "echo newline", in: unix.ECHO | unix.ECHONL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Quiet(tt.in)
			assert.Zero(t, got&unix.ECHO)
			assert.Zero(t, got&unix.ECHONL)
			assert.Zero(t, got&unix.ICANON)
			assert.NotZero(t, got&unix.ISIG)
			assert.Equal(t, tt.in&unix.IEXTEN, got&unix.IEXTEN, "unrelated flags are kept")
		})
	}
}

func TestDisableEchoNotTerminal(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "notatty")
	require.NoError(t, err)
	defer f.Close()

	assert.False(t, IsTerminal(f))
	_, err = DisableEcho(f)
	assert.ErrorIs(t, err, ErrNotTerminal)
}

func TestRestoreNil(t *testing.T) {
	var st *State
	assert.NoError(t, st.Restore())
}
