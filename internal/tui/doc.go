// Package tui provides the terminal user interface for Duet.
//
// The TUI is a read-only session view that displays dual-agent progress
// in real-time:
//   - Current iteration and which agent holds control
//   - Handoff, recovery, and failure counts
//   - Cumulative cost
//   - Activity log with recent orchestration events
//
// Usage:
//
//	program, app := tui.NewSessionProgram()
//	go program.Run()
//
//	// Forward orchestration events
//	go tui.Forward(program, emitter.Events())
//
//	// Signal completion
//	program.Send(tui.SessionDoneMsg{Outcome: string(outcome), Result: result})
//
// Interactive mode wraps the session view with a text input so the user
// can type a task before the session starts. Users quit with 'q' or
// Ctrl+C once the session is done.
package tui
