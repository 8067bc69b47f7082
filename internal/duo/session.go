package duo

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/duet/pkg/models"
)

// Outcome describes how a session ended.
type Outcome string

const (
	// OutcomeCompleted means an agent signaled task completion.
	OutcomeCompleted Outcome = "completed"
	// OutcomeIterationLimit means the configured iteration budget ran out.
	OutcomeIterationLimit Outcome = "iteration_limit"
	// OutcomeLoopDetected means the repetition detector halted the session.
	OutcomeLoopDetected Outcome = "loop_detected"
	// OutcomeAborted means recovery was exhausted and the session stopped
	// with an error.
	OutcomeAborted Outcome = "aborted"
	// OutcomeFallback means the dual-agent loop gave up and the
	// single-agent continuation finished the session.
	OutcomeFallback Outcome = "fallback"
	// OutcomeCanceled means the caller's context was canceled.
	OutcomeCanceled Outcome = "canceled"
)

// MessageContext carries the structured context attached to a cross-agent
// message.
type MessageContext struct {
	Files    []string `json:"files,omitempty"`
	Commands []string `json:"commands,omitempty"`
	Errors   []string `json:"errors,omitempty"`
}

// AgentMessage is one entry in the cross-agent conversation. Append-only;
// messages form the audit trail of the session.
type AgentMessage struct {
	ID        string          `json:"id"`
	From      models.Role     `json:"from"`
	To        models.Role     `json:"to"`
	Content   string          `json:"content"`
	Timestamp time.Time       `json:"timestamp"`
	Context   *MessageContext `json:"context,omitempty"`
}

// Handoff records one transfer of control between the agents.
type Handoff struct {
	From      models.Role `json:"from"`
	To        models.Role `json:"to"`
	Task      string      `json:"task"`
	Context   string      `json:"context,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// IterationRecord captures one iteration of the orchestration loop.
type IterationRecord struct {
	Number        int                 `json:"number"`
	Agent         models.Role         `json:"agent"`
	PromptSummary string              `json:"prompt_summary"`
	Output        models.ParsedOutput `json:"output"`
	ExitCode      int                 `json:"exit_code"`
	Duration      time.Duration       `json:"duration"`
}

// Session is the aggregate root for one dual-agent run. It owns both agent
// states, the handoff/message/iteration lists, the per-role failure counts,
// and the original task text. All counters live here rather than in package
// globals so sessions can run concurrently and tests stay deterministic.
type Session struct {
	ID        string
	Task      string
	WorkDir   string
	StartedAt time.Time

	Registry   *Registry
	Handoffs   []Handoff
	Messages   []*AgentMessage
	Iterations []IterationRecord

	// failures maps role to cumulative failure count; monotonically
	// non-decreasing for the session lifetime.
	failures map[models.Role]int

	Outcome    Outcome
	Result     string
	FinishedAt time.Time
}

// NewSession creates the session aggregate for the given task.
func NewSession(task, workDir string, reg *Registry) *Session {
	return &Session{
		ID:        uuid.NewString(),
		Task:      task,
		WorkDir:   workDir,
		StartedAt: time.Now(),
		Registry:  reg,
		failures:  make(map[models.Role]int),
	}
}

// RecordIteration appends an iteration record, enforcing consecutive
// numbering from 1.
func (s *Session) RecordIteration(rec IterationRecord) error {
	want := len(s.Iterations) + 1
	if rec.Number != want {
		return fmt.Errorf("iteration %d out of order, want %d", rec.Number, want)
	}
	s.Iterations = append(s.Iterations, rec)
	return nil
}

// RecordHandoff atomically transfers control from the sender to the
// receiver: it flips the active flags, clears the outgoing agent's
// resumption handle when requested, appends the handoff record, and
// appends a message to both agents' conversation logs.
func (s *Session) RecordHandoff(from, to models.Role, task, context string, msgCtx *MessageContext, dropHandle bool) *AgentMessage {
	if dropHandle {
		s.Registry.Get(from).SessionHandle = ""
	}
	s.Registry.Activate(to)

	now := time.Now()
	s.Handoffs = append(s.Handoffs, Handoff{
		From:      from,
		To:        to,
		Task:      task,
		Context:   context,
		Timestamp: now,
	})

	msg := &AgentMessage{
		ID:        uuid.NewString(),
		From:      from,
		To:        to,
		Content:   task,
		Timestamp: now,
		Context:   msgCtx,
	}
	s.Messages = append(s.Messages, msg)
	s.Registry.Get(from).Log = append(s.Registry.Get(from).Log, msg)
	s.Registry.Get(to).Log = append(s.Registry.Get(to).Log, msg)
	return msg
}

// NoteFailure increments and returns the cumulative failure count for the
// role.
func (s *Session) NoteFailure(role models.Role) int {
	s.failures[role]++
	return s.failures[role]
}

// Failures returns the cumulative failure count for the role.
func (s *Session) Failures(role models.Role) int {
	return s.failures[role]
}

// TotalFailures returns the session-wide failure count across both roles.
// This is the session's retry count: every classified failure consumes one
// unit of the retry budget.
func (s *Session) TotalFailures() int {
	return s.failures[models.RoleManager] + s.failures[models.RoleWorker]
}

// RecentMessages returns up to n of the most recent cross-agent messages,
// oldest first.
func (s *Session) RecentMessages(n int) []*AgentMessage {
	if n <= 0 || len(s.Messages) == 0 {
		return nil
	}
	if len(s.Messages) <= n {
		return s.Messages
	}
	return s.Messages[len(s.Messages)-n:]
}

// Finish stamps the session with its outcome and final result text.
func (s *Session) Finish(outcome Outcome, result string) {
	s.Outcome = outcome
	s.Result = result
	s.FinishedAt = time.Now()
}

// TotalCost sums the reported cost across all iterations.
func (s *Session) TotalCost() float64 {
	var cost float64
	for _, rec := range s.Iterations {
		cost += rec.Output.Cost
	}
	return cost
}

// Report builds the user-facing report for the session. A report is always
// produced regardless of outcome so partial progress is never silently
// lost.
func (s *Session) Report() *SessionReport {
	end := s.FinishedAt
	if end.IsZero() {
		end = time.Now()
	}
	return &SessionReport{
		SessionID:  s.ID,
		Task:       s.Task,
		Outcome:    s.Outcome,
		Result:     s.Result,
		Iterations: len(s.Iterations),
		Handoffs:   len(s.Handoffs),
		Messages:   len(s.Messages),
		Duration:   end.Sub(s.StartedAt),
		Cost:       s.TotalCost(),
		Recent:     recentHandoffs(s.Handoffs, 3),
	}
}

func recentHandoffs(hs []Handoff, n int) []Handoff {
	if len(hs) <= n {
		return hs
	}
	return hs[len(hs)-n:]
}

// SessionReport is the human-readable session summary.
type SessionReport struct {
	SessionID  string
	Task       string
	Outcome    Outcome
	Result     string
	Iterations int
	Handoffs   int
	Messages   int
	Duration   time.Duration
	Cost       float64
	Recent     []Handoff
}

// Summary renders the report as text.
func (r *SessionReport) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Session %s finished: %s\n", r.SessionID, r.Outcome)
	fmt.Fprintf(&b, "  iterations: %d, handoffs: %d, messages: %d\n", r.Iterations, r.Handoffs, r.Messages)
	fmt.Fprintf(&b, "  duration: %s", r.Duration.Round(time.Second))
	if r.Cost > 0 {
		fmt.Fprintf(&b, ", cost: $%.4f", r.Cost)
	}
	b.WriteString("\n")
	for _, h := range r.Recent {
		fmt.Fprintf(&b, "  handoff %s -> %s: %s\n", h.From, h.To, truncate(h.Task, 80))
	}
	if r.Result != "" {
		fmt.Fprintf(&b, "  result: %s\n", truncate(r.Result, 200))
	}
	return b.String()
}

// truncate shortens s to at most n runes, appending an ellipsis when
// trimmed. Cuts land on rune boundaries so the result stays valid UTF-8.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	if n <= 3 {
		return string(runes[:n])
	}
	return string(runes[:n-3]) + "..."
}
