package ui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/bnema/onekm/internal/ipc"
)

func TestStatusModel(t *testing.T) {
	t.Run("renders waiting view", func(t *testing.T) {
		model := NewStatusModel("F12", "0.0.0.0:24800", nil)
		view := model.View()

		if !strings.Contains(view, "ONEKM") {
			t.Error("Should contain 'ONEKM'")
		}
		if !strings.Contains(view, "LOCAL") {
			t.Error("Should start in LOCAL")
		}
		if !strings.Contains(view, "Waiting for target on 0.0.0.0:24800") {
			t.Error("Should show the listen address while waiting")
		}
		if !strings.Contains(view, "[F12] switch") {
			t.Error("Should show the hotkey hint")
		}
		if !strings.Contains(view, "No logs yet") {
			t.Error("Should show empty log placeholder")
		}
	})

	t.Run("handles status message", func(t *testing.T) {
		model := NewStatusModel("F12", "0.0.0.0:24800", nil)

		updated, _ := model.Update(StatusMsg{Status: ipc.Status{
			Remote:    true,
			Connected: true,
			Peer:      "10.0.0.2:4000",
			Sent:      1500,
			Dropped:   3,
		}})
		view := updated.View()

		for _, want := range []string{"REMOTE", "10.0.0.2:4000", "1.5k sent", "3 dropped"} {
			if !strings.Contains(view, want) {
				t.Errorf("View should contain %q", want)
			}
		}
	})

	t.Run("quit key calls onQuit once", func(t *testing.T) {
		calls := 0
		model := NewStatusModel("F12", "", func() { calls++ })

		_, cmd := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
		if cmd == nil {
			t.Fatal("Expected quit command")
		}
		model.Update(tea.KeyMsg{Type: tea.KeyCtrlC})

		if calls != 1 {
			t.Errorf("Expected onQuit once, got %d", calls)
		}
		if model.View() != "" {
			t.Error("View should be empty after quitting")
		}
	})

	t.Run("window size", func(t *testing.T) {
		model := NewStatusModel("F12", "", nil)
		model.Update(tea.WindowSizeMsg{Width: 120, Height: 40})

		if model.windowWidth != 120 || model.windowHeight != 40 {
			t.Errorf("Expected 120x40, got %dx%d", model.windowWidth, model.windowHeight)
		}
	})
}

func TestStatusModelLogs(t *testing.T) {
	model := NewStatusModel("F12", "", nil)
	model.windowHeight = 5

	for i := 0; i < 60; i++ {
		model.Update(LogMsg{Entry: LogEntry{
			Timestamp: time.Date(2024, 1, 1, 12, 0, i%60, 0, time.UTC),
			Level:     "info",
			Message:   "line",
		}})
	}

	if len(model.logBuffer) != 50 {
		t.Errorf("Expected buffer capped at 50, got %d", len(model.logBuffer))
	}

	view := model.View()
	// status bar plus windowHeight-2 log lines
	if got := strings.Count(view, "\n"); got != 3 {
		t.Errorf("Expected 4 lines, got %d newlines", got)
	}
	if !strings.Contains(view, "INFO") {
		t.Error("Level should be upper-cased")
	}
}

func TestRenderStatus(t *testing.T) {
	tests := []struct {
		name string
		st   ipc.Status
		want []string
	}{
		{
			name: "idle",
			st:   ipc.Status{},
			want: []string{"LOCAL", "disconnected", "0 sent, 0 dropped"},
		},
		{
			name: "remote",
			st:   ipc.Status{Remote: true, Connected: true, Peer: "target:1", Sent: 42},
			want: []string{"REMOTE", "connected to target:1", "42 sent"},
		},
		{
			name: "exiting",
			st:   ipc.Status{ExitRequested: true, ExitReason: "hotkey"},
			want: []string{"Exit:", "hotkey"},
		},
		{
			name: "error",
			st:   ipc.Status{Error: "no target connected"},
			want: []string{"Error:", "no target connected"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RenderStatus(tt.st)
			for _, want := range tt.want {
				if !strings.Contains(got, want) {
					t.Errorf("RenderStatus() missing %q in:\n%s", want, got)
				}
			}
		})
	}
}
