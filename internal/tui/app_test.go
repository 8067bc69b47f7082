package tui

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ShayCichocki/duet/internal/duo"
	"github.com/ShayCichocki/duet/pkg/models"
)

func TestAppAppliesEvents(t *testing.T) {
	app := New("build a widget", 10)

	app.Update(SessionEventMsg{Event: duo.Event{
		Type:      duo.EventIterationStarted,
		SessionID: "abcd1234efgh",
		Iteration: 1,
		Agent:     models.RoleManager,
		Message:   "dispatching manager",
		Timestamp: time.Now(),
	}})
	app.Update(SessionEventMsg{Event: duo.Event{
		Type:      duo.EventIterationDone,
		Iteration: 1,
		Agent:     models.RoleManager,
		Cost:      0.25,
		Timestamp: time.Now(),
	}})
	app.Update(SessionEventMsg{Event: duo.Event{
		Type:      duo.EventHandoff,
		Iteration: 1,
		Agent:     models.RoleWorker,
		Message:   "manager -> worker",
		Timestamp: time.Now(),
	}})

	if app.iteration != 1 {
		t.Errorf("expected iteration 1, got %d", app.iteration)
	}
	if app.active != models.RoleWorker {
		t.Errorf("expected active worker, got %q", app.active)
	}
	if app.handoffs != 1 {
		t.Errorf("expected 1 handoff, got %d", app.handoffs)
	}
	if app.cost != 0.25 {
		t.Errorf("expected cost 0.25, got %f", app.cost)
	}
	if app.sessionID != "abcd1234efgh" {
		t.Errorf("expected session id recorded, got %q", app.sessionID)
	}
	if len(app.logs) != 3 {
		t.Errorf("expected 3 log entries, got %d", len(app.logs))
	}
}

func TestAppRecoveryAndFallback(t *testing.T) {
	app := New("task", 10)

	app.Update(SessionEventMsg{Event: duo.Event{
		Type:    duo.EventRecovery,
		Message: "retrying after transient failure",
	}})
	app.Update(SessionEventMsg{Event: duo.Event{
		Type:    duo.EventFallback,
		Message: "switching to single-agent continuation",
	}})

	if app.recoveries != 1 {
		t.Errorf("expected 1 recovery, got %d", app.recoveries)
	}
	if app.mode != "single-agent fallback" {
		t.Errorf("expected fallback mode, got %q", app.mode)
	}
}

func TestAppViewShowsStatus(t *testing.T) {
	app := New("build a widget", 10)

	app.Update(SessionEventMsg{Event: duo.Event{
		Type:      duo.EventIterationStarted,
		Iteration: 3,
		Agent:     models.RoleManager,
		Message:   "dispatching manager",
	}})

	view := app.View()

	if !strings.Contains(view, "build a widget") {
		t.Error("expected view to contain the task")
	}
	if !strings.Contains(view, "3/10") {
		t.Error("expected view to contain iteration progress")
	}
	if !strings.Contains(view, "manager") {
		t.Error("expected view to contain the active agent")
	}
	if !strings.Contains(view, "dispatching manager") {
		t.Error("expected view to contain the activity log entry")
	}
}

func TestAppSessionDone(t *testing.T) {
	app := New("task", 10)

	app.Update(SessionDoneMsg{Outcome: "completed", Result: "all good"})

	if !app.Done() {
		t.Error("expected Done() true after SessionDoneMsg")
	}

	view := app.View()
	if !strings.Contains(view, "completed") {
		t.Error("expected view to show the outcome")
	}
	if !strings.Contains(view, "all good") {
		t.Error("expected view to show the result")
	}
	if !strings.Contains(view, "press q to quit") {
		t.Error("expected finished footer")
	}
}

func TestAppSessionDoneWithError(t *testing.T) {
	app := New("task", 10)

	app.Update(SessionDoneMsg{Outcome: "aborted", Err: errors.New("too many failures")})

	view := app.View()
	if !strings.Contains(view, "aborted") {
		t.Error("expected view to show the outcome")
	}
	if !strings.Contains(view, "too many failures") {
		t.Error("expected view to show the error")
	}
}

func TestAppQuitKeys(t *testing.T) {
	app := New("task", 10)

	_, cmd := app.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatal("expected quit command for 'q'")
	}
	if msg := cmd(); msg != tea.Quit() {
		t.Errorf("expected tea.Quit, got %v", msg)
	}
}

func TestAppLogRingBounded(t *testing.T) {
	app := New("task", 10)

	for i := 0; i < maxLogEntries+50; i++ {
		app.appendLog(LogEntry{Message: "entry"})
	}

	if len(app.logs) != maxLogEntries {
		t.Errorf("expected log ring capped at %d, got %d", maxLogEntries, len(app.logs))
	}
}

func TestTruncateLine(t *testing.T) {
	tests := []struct {
		in    string
		limit int
		want  string
	}{
		{"short", 20, "short"},
		{"multi\nline\ntext", 20, "multi line text"},
		{"this line is definitely far too long", 10, "this li..."},
	}

	for _, tt := range tests {
		if got := truncateLine(tt.in, tt.limit); got != tt.want {
			t.Errorf("truncateLine(%q, %d) = %q, want %q", tt.in, tt.limit, got, tt.want)
		}
	}
}
