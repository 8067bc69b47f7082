package tui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// InteractiveApp wraps the session view with a text input so the user can
// type the task before the session starts.
type InteractiveApp struct {
	session    *App
	inputField *InputField
	width      int
	height     int
	quitting   bool

	// started tracks whether a task has been submitted.
	started bool

	// Callback for when a task is submitted
	onTaskSubmit func(task string)
}

// NewInteractiveApp creates a new InteractiveApp.
func NewInteractiveApp(maxIterations int) *InteractiveApp {
	return &InteractiveApp{
		session:    New("", maxIterations),
		inputField: NewInputField(),
	}
}

// SetTaskSubmitHandler sets the callback for task submissions.
func (a *InteractiveApp) SetTaskSubmitHandler(handler func(task string)) {
	a.onTaskSubmit = handler
}

// Init implements tea.Model.
func (a *InteractiveApp) Init() tea.Cmd {
	return a.inputField.Focus()
}

// Update implements tea.Model.
func (a *InteractiveApp) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			a.quitting = true
			return a, tea.Quit
		case "q":
			// Before a task is submitted, 'q' is just input text.
			if a.started {
				a.quitting = true
				return a, tea.Quit
			}
		}
		if !a.started {
			var cmd tea.Cmd
			a.inputField, cmd = a.inputField.Update(msg)
			return a, cmd
		}
		var cmd tea.Cmd
		_, cmd = a.session.Update(msg)
		return a, cmd

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.inputField.SetWidth(msg.Width)
		var cmd tea.Cmd
		_, cmd = a.session.Update(msg)
		return a, cmd

	case TaskSubmittedMsg:
		a.started = true
		a.session.task = msg.Task
		a.inputField.Blur()
		if a.onTaskSubmit != nil {
			a.onTaskSubmit(msg.Task)
		}
		return a, nil

	case SessionEventMsg, SessionDoneMsg:
		var cmd tea.Cmd
		_, cmd = a.session.Update(msg)
		return a, cmd
	}

	return a, nil
}

// View implements tea.Model.
func (a *InteractiveApp) View() string {
	if a.quitting {
		return "Goodbye!\n"
	}

	if !a.started {
		header := a.session.header.View()
		hint := lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Render("ctrl+c quit")
		return lipgloss.JoinVertical(lipgloss.Left, header, a.inputField.View(), hint)
	}

	return a.session.View()
}

// Session returns the underlying session view.
func (a *InteractiveApp) Session() *App {
	return a.session
}

// NewInteractiveProgram creates a bubbletea program for interactive mode.
func NewInteractiveProgram(maxIterations int) (*tea.Program, *InteractiveApp) {
	app := NewInteractiveApp(maxIterations)
	p := tea.NewProgram(app, tea.WithAltScreen())
	return p, app
}
