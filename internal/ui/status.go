package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/bnema/onekm/internal/ipc"
)

// LogEntry represents a single log entry with timestamp and content
type LogEntry struct {
	Timestamp time.Time
	Level     string
	Message   string
}

// LogMsg carries a log line into the model
type LogMsg struct {
	Entry LogEntry
}

// StatusMsg carries a controller status update
type StatusMsg struct {
	Status ipc.Status
}

// QuitRequestedMsg is sent when the user asks the UI to quit
type QuitRequestedMsg struct{}

// StatusModel is the inline status bar shown while the controller runs
type StatusModel struct {
	hotkey   string
	listen   string
	status   ipc.Status
	spinner  spinner.Model
	onQuit   func()
	quitting bool

	logBuffer    []LogEntry
	maxLogLines  int
	windowHeight int
	windowWidth  int
}

// NewStatusModel creates the controller status bar. onQuit runs when the user presses q.
func NewStatusModel(hotkey, listen string, onQuit func()) *StatusModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	return &StatusModel{
		hotkey:       hotkey,
		listen:       listen,
		spinner:      s,
		onQuit:       onQuit,
		maxLogLines:  50,
		windowHeight: 24,
		windowWidth:  80,
	}
}

// AddLogEntry adds a new log entry to the buffer
func (m *StatusModel) AddLogEntry(entry LogEntry) {
	m.logBuffer = append(m.logBuffer, entry)

	// Keep only the last maxLogLines entries
	if len(m.logBuffer) > m.maxLogLines {
		m.logBuffer = m.logBuffer[len(m.logBuffer)-m.maxLogLines:]
	}
}

// Status returns the last status the model received
func (m *StatusModel) Status() ipc.Status {
	return m.status
}

// Init starts the spinner
func (m *StatusModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles messages for the status model
func (m *StatusModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if !m.quitting {
				m.quitting = true
				if m.onQuit != nil {
					m.onQuit()
				}
			}
			return m, tea.Quit
		}

	case QuitRequestedMsg:
		m.quitting = true
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case StatusMsg:
		m.status = msg.Status

	case tea.WindowSizeMsg:
		m.windowHeight = msg.Height
		m.windowWidth = msg.Width

	case LogMsg:
		m.AddLogEntry(msg.Entry)
	}

	return m, tea.Batch(cmds...)
}

// View renders the status bar followed by the most recent logs
func (m *StatusModel) View() string {
	if m.quitting {
		return ""
	}

	var output strings.Builder
	output.WriteString(m.renderStatusBar())
	output.WriteString("\n")

	available := m.windowHeight - 2
	if available < 1 {
		available = 10
	}
	output.WriteString(m.renderLogs(available))
	return output.String()
}

func (m *StatusModel) renderStatusBar() string {
	parts := []string{
		HeaderStyle.Render("ONEKM"),
		FormatMode(m.status.Remote),
	}

	if m.status.Connected {
		peer := m.status.Peer
		if peer == "" {
			peer = "linked"
		}
		parts = append(parts, FormatStatus(true, peer))
	} else {
		parts = append(parts, ErrorStyle.Render(m.spinner.View()+" Waiting for target on "+m.listen))
	}

	counters := FormatCount(m.status.Sent, "sent")
	if m.status.Dropped > 0 {
		counters += " " + WarningStyle.Render(FormatCount(m.status.Dropped, "dropped"))
	}
	parts = append(parts, SubtleStyle.Render(counters))

	parts = append(parts, SubtleStyle.Render(fmt.Sprintf("[%s] switch • [q] quit", m.hotkey)))

	separator := lipgloss.NewStyle().Foreground(ColorMuted).Render(" │ ")
	return strings.Join(parts, separator)
}

func (m *StatusModel) renderLogs(maxLines int) string {
	if len(m.logBuffer) == 0 {
		return SubtleStyle.Render("No logs yet...")
	}

	start := 0
	if len(m.logBuffer) > maxLines {
		start = len(m.logBuffer) - maxLines
	}

	lines := make([]string, 0, len(m.logBuffer)-start)
	for _, entry := range m.logBuffer[start:] {
		lines = append(lines, formatLogEntry(entry))
	}
	return strings.Join(lines, "\n")
}

func formatLogEntry(entry LogEntry) string {
	timeStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("244"))

	var levelStyle lipgloss.Style
	switch strings.ToUpper(entry.Level) {
	case "ERROR":
		levelStyle = ErrorStyle.Bold(true)
	case "WARN", "WARNING":
		levelStyle = WarningStyle.Bold(true)
	case "INFO":
		levelStyle = SuccessStyle
	case "DEBUG":
		levelStyle = SubtleStyle
	default:
		levelStyle = TextStyle
	}

	return fmt.Sprintf("%s %s %s",
		timeStyle.Render(entry.Timestamp.Format("15:04:05")),
		levelStyle.Render(fmt.Sprintf("%-5s", strings.ToUpper(entry.Level))),
		TextStyle.Render(entry.Message))
}

// RenderStatus formats a one-shot status report for the status command
func RenderStatus(st ipc.Status) string {
	var b strings.Builder

	b.WriteString(HeaderStyle.Render("onekm controller"))
	b.WriteString("\n")
	b.WriteString(CreateSeparator(40, "─"))
	b.WriteString("\n")

	fmt.Fprintf(&b, "  Mode:    %s\n", FormatMode(st.Remote))

	link := "disconnected"
	if st.Connected {
		link = "connected"
		if st.Peer != "" {
			link += " to " + st.Peer
		}
	}
	fmt.Fprintf(&b, "  Link:    %s\n", FormatStatus(st.Connected, link))
	fmt.Fprintf(&b, "  Frames:  %d sent, %d dropped\n", st.Sent, st.Dropped)

	if st.ExitRequested {
		reason := st.ExitReason
		if reason == "" {
			reason = "requested"
		}
		fmt.Fprintf(&b, "  Exit:    %s\n", WarningStyle.Render(IconWarning+" "+reason))
	}
	if st.Error != "" {
		fmt.Fprintf(&b, "  Error:   %s\n", ErrorStyle.Render(IconError+" "+st.Error))
	}
	return b.String()
}
