package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ShayCichocki/duet/internal/duo"
	"github.com/ShayCichocki/duet/pkg/models"
)

// SessionEventMsg wraps an orchestration event for the TUI.
type SessionEventMsg struct {
	Event duo.Event
}

// SessionDoneMsg signals that the session has completed.
type SessionDoneMsg struct {
	Outcome string
	Result  string
	Err     error
}

// LogEntry represents one line in the activity log.
type LogEntry struct {
	Timestamp time.Time
	Level     string
	Message   string
}

// maxLogEntries bounds the activity log ring.
const maxLogEntries = 200

// App is the main bubbletea model for the Duet session view.
type App struct {
	header *Header

	// task is the session's root task.
	task string
	// sessionID identifies the running session.
	sessionID string
	// iteration is the latest iteration number seen.
	iteration int
	// maxIterations is the configured iteration budget.
	maxIterations int
	// active is the agent currently holding control.
	active models.Role
	// mode describes the loop mode (dual or single-agent).
	mode string
	// handoffs counts control transfers.
	handoffs int
	// recoveries counts recovery decisions applied.
	recoveries int
	// cost is the cumulative session cost.
	cost float64
	// logs is the activity log.
	logs []LogEntry
	// width and height track the terminal size.
	width  int
	height int
	// quitting indicates the app is shutting down.
	quitting bool
	// done indicates the session has finished.
	done bool
	// outcome and result hold the final session state.
	outcome string
	result  string
	err     error

	styles appStyles
}

type appStyles struct {
	label   lipgloss.Style
	value   lipgloss.Style
	agent   lipgloss.Style
	warn    lipgloss.Style
	fail    lipgloss.Style
	ok      lipgloss.Style
	dim     lipgloss.Style
	section lipgloss.Style
}

func newAppStyles() appStyles {
	return appStyles{
		label: lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Width(12),
		value: lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")).
			Bold(true),
		agent: lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true),
		warn: lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")),
		fail: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")),
		ok: lipgloss.NewStyle().
			Foreground(lipgloss.Color("34")),
		dim: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),
		section: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(lipgloss.Color("238")),
	}
}

// New creates a new App for the given task.
func New(task string, maxIterations int) *App {
	return &App{
		header:        NewHeader(),
		task:          task,
		maxIterations: maxIterations,
		mode:          "dual-agent",
		styles:        newAppStyles(),
	}
}

// Init implements tea.Model.
func (a *App) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			a.quitting = true
			return a, tea.Quit
		}

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.header.SetWidth(msg.Width)

	case SessionEventMsg:
		a.apply(msg.Event)

	case SessionDoneMsg:
		a.done = true
		a.outcome = msg.Outcome
		a.result = msg.Result
		a.err = msg.Err
	}

	return a, nil
}

// apply folds an orchestration event into the display state.
func (a *App) apply(ev duo.Event) {
	if ev.SessionID != "" {
		a.sessionID = ev.SessionID
	}
	if ev.Iteration > 0 {
		a.iteration = ev.Iteration
	}
	if ev.Agent != "" {
		a.active = ev.Agent
	}
	if ev.Cost > 0 {
		a.cost = ev.Cost
	}

	level := "info"
	switch ev.Type {
	case duo.EventHandoff:
		a.handoffs++
	case duo.EventRecovery:
		a.recoveries++
		level = "warn"
	case duo.EventLoopDetected:
		level = "error"
	case duo.EventFallback:
		a.mode = "single-agent fallback"
		level = "warn"
	}
	if ev.Err != nil {
		level = "error"
	}

	message := ev.Message
	if message == "" {
		message = string(ev.Type)
	}
	a.appendLog(LogEntry{Timestamp: ev.Timestamp, Level: level, Message: message})
}

func (a *App) appendLog(entry LogEntry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	a.logs = append(a.logs, entry)
	if len(a.logs) > maxLogEntries {
		a.logs = a.logs[len(a.logs)-maxLogEntries:]
	}
}

// View implements tea.Model.
func (a *App) View() string {
	if a.quitting {
		return "Goodbye!\n"
	}

	var b strings.Builder
	b.WriteString(a.header.View())
	b.WriteString("\n")
	b.WriteString(a.statusView())
	b.WriteString("\n")
	b.WriteString(a.logView())
	b.WriteString("\n")
	b.WriteString(a.footerView())
	return b.String()
}

func (a *App) statusView() string {
	s := a.styles

	iteration := fmt.Sprintf("%d", a.iteration)
	if a.maxIterations > 0 {
		iteration = fmt.Sprintf("%d/%d", a.iteration, a.maxIterations)
	}

	rows := []string{
		s.label.Render("Task") + s.value.Render(truncateLine(a.task, a.lineWidth())),
		s.label.Render("Session") + s.dim.Render(shortID(a.sessionID)),
		s.label.Render("Iteration") + s.value.Render(iteration),
		s.label.Render("Agent") + s.agent.Render(string(a.active)),
		s.label.Render("Mode") + s.value.Render(a.mode),
		s.label.Render("Handoffs") + s.value.Render(fmt.Sprintf("%d", a.handoffs)),
		s.label.Render("Recoveries") + s.value.Render(fmt.Sprintf("%d", a.recoveries)),
		s.label.Render("Cost") + s.value.Render(fmt.Sprintf("$%.4f", a.cost)),
	}

	if a.done {
		outcome := s.ok.Render(a.outcome)
		if a.err != nil {
			outcome = s.fail.Render(fmt.Sprintf("%s (%v)", a.outcome, a.err))
		}
		rows = append(rows, s.label.Render("Outcome")+outcome)
		if a.result != "" {
			rows = append(rows, s.label.Render("Result")+s.value.Render(truncateLine(a.result, a.lineWidth())))
		}
	}

	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func (a *App) logView() string {
	s := a.styles

	visible := a.visibleLogLines()
	start := len(a.logs) - visible
	if start < 0 {
		start = 0
	}

	lines := []string{s.section.Render("Activity")}
	for _, entry := range a.logs[start:] {
		ts := s.dim.Render(entry.Timestamp.Format("15:04:05"))
		msg := truncateLine(entry.Message, a.lineWidth())
		switch entry.Level {
		case "error":
			msg = s.fail.Render(msg)
		case "warn":
			msg = s.warn.Render(msg)
		}
		lines = append(lines, ts+" "+msg)
	}
	if len(a.logs) == 0 {
		lines = append(lines, s.dim.Render("waiting for events..."))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (a *App) footerView() string {
	if a.done {
		return a.styles.dim.Render("session finished · press q to quit")
	}
	return a.styles.dim.Render("q quit")
}

// visibleLogLines computes how many log entries fit under the status block.
func (a *App) visibleLogLines() int {
	if a.height == 0 {
		return 10
	}
	used := a.header.Height() + 12
	visible := a.height - used
	if visible < 3 {
		visible = 3
	}
	return visible
}

func (a *App) lineWidth() int {
	if a.width == 0 {
		return 68
	}
	w := a.width - 14
	if w < 20 {
		w = 20
	}
	return w
}

// Done reports whether the session-done message has arrived.
func (a *App) Done() bool {
	return a.done
}

func truncateLine(s string, limit int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if limit <= 3 || len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	if id == "" {
		return "-"
	}
	return id
}

// NewSessionProgram creates a bubbletea program for the session view.
func NewSessionProgram(task string, maxIterations int) (*tea.Program, *App) {
	app := New(task, maxIterations)
	p := tea.NewProgram(app, tea.WithAltScreen())
	return p, app
}

// Forward pumps orchestration events into the program until the channel
// closes. Run it in its own goroutine.
func Forward(p *tea.Program, events <-chan duo.Event) {
	for ev := range events {
		p.Send(SessionEventMsg{Event: ev})
	}
}
