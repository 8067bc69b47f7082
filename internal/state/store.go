package state

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ShayCichocki/duet/internal/duo"
)

var _ duo.SessionStore = (*DB)(nil)

// CreateSession persists a newly started session.
func (db *DB) CreateSession(s *duo.Session) error {
	_, err := db.Exec(
		`INSERT INTO sessions (id, task, work_dir, started_at, outcome) VALUES (?, ?, ?, ?, 'running')`,
		s.ID, s.Task, s.WorkDir, s.StartedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// AddIteration persists one iteration record.
func (db *DB) AddIteration(sessionID string, rec duo.IterationRecord) error {
	files, _ := json.Marshal(rec.Output.Files)
	commands, _ := json.Marshal(rec.Output.Commands)

	_, err := db.Exec(
		`INSERT INTO iterations
			(session_id, number, agent, prompt_summary, result, error_text, exit_code, duration_ms, tokens_used, cost, files, commands)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, rec.Number, string(rec.Agent), rec.PromptSummary,
		rec.Output.Result, rec.Output.ErrorText, rec.ExitCode,
		rec.Duration.Milliseconds(), rec.Output.TokensUsed, rec.Output.Cost,
		string(files), string(commands),
	)
	if err != nil {
		return fmt.Errorf("insert iteration %d: %w", rec.Number, err)
	}
	return nil
}

// AddHandoff persists one control transfer. The sequence number is derived
// from the rows already stored for the session.
func (db *DB) AddHandoff(sessionID string, h duo.Handoff) error {
	_, err := db.Exec(
		`INSERT INTO handoffs (session_id, seq, from_agent, to_agent, task, context, created_at)
		 VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM handoffs WHERE session_id = ?), ?, ?, ?, ?, ?)`,
		sessionID, sessionID, string(h.From), string(h.To), h.Task, h.Context, h.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert handoff: %w", err)
	}
	return nil
}

// AddMessage persists one cross-agent message.
func (db *DB) AddMessage(sessionID string, m *duo.AgentMessage) error {
	var msgCtx string
	if m.Context != nil {
		data, _ := json.Marshal(m.Context)
		msgCtx = string(data)
	}

	_, err := db.Exec(
		`INSERT INTO messages (id, session_id, from_agent, to_agent, content, context, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ID, sessionID, string(m.From), string(m.To), m.Content, msgCtx, m.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// FinishSession stamps a session with its outcome and result.
func (db *DB) FinishSession(sessionID string, outcome duo.Outcome, result string) error {
	_, err := db.Exec(
		`UPDATE sessions SET outcome = ?, result = ?, finished_at = ? WHERE id = ?`,
		string(outcome), result, time.Now().UTC(), sessionID,
	)
	if err != nil {
		return fmt.Errorf("finish session: %w", err)
	}
	return nil
}

// Summary returns aggregate statistics for a session.
func (db *DB) Summary(sessionID string) (*duo.StoreSummary, error) {
	s := &duo.StoreSummary{SessionID: sessionID}

	var outcome string
	var startedAt time.Time
	var finishedAt sql.NullTime
	err := db.QueryRow(
		`SELECT outcome, started_at, finished_at FROM sessions WHERE id = ?`, sessionID,
	).Scan(&outcome, &startedAt, &finishedAt)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	s.Outcome = duo.Outcome(outcome)
	if finishedAt.Valid {
		s.TotalDuration = finishedAt.Time.Sub(startedAt)
	}

	var failed int
	err = db.QueryRow(
		`SELECT COUNT(*), COALESCE(SUM(cost), 0),
		        COALESCE(SUM(CASE WHEN exit_code != 0 OR error_text != '' THEN 1 ELSE 0 END), 0)
		 FROM iterations WHERE session_id = ?`, sessionID,
	).Scan(&s.TotalIterations, &s.TotalCost, &failed)
	if err != nil {
		return nil, fmt.Errorf("aggregate iterations: %w", err)
	}
	if s.TotalIterations > 0 {
		s.SuccessRate = float64(s.TotalIterations-failed) / float64(s.TotalIterations)
	}

	if err := db.QueryRow(
		`SELECT COUNT(*) FROM handoffs WHERE session_id = ?`, sessionID,
	).Scan(&s.TotalHandoffs); err != nil {
		return nil, fmt.Errorf("count handoffs: %w", err)
	}
	if err := db.QueryRow(
		`SELECT COUNT(*) FROM messages WHERE session_id = ?`, sessionID,
	).Scan(&s.TotalMessages); err != nil {
		return nil, fmt.Errorf("count messages: %w", err)
	}

	return s, nil
}

// SessionRow is one row of the session listing.
type SessionRow struct {
	ID         string
	Task       string
	Outcome    string
	StartedAt  time.Time
	FinishedAt time.Time
	Iterations int
	Cost       float64
}

// ListSessions returns the most recent sessions, newest first.
func (db *DB) ListSessions(limit int) ([]SessionRow, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := db.Query(
		`SELECT s.id, s.task, s.outcome, s.started_at, s.finished_at,
		        (SELECT COUNT(*) FROM iterations i WHERE i.session_id = s.id),
		        (SELECT COALESCE(SUM(cost), 0) FROM iterations i WHERE i.session_id = s.id)
		 FROM sessions s ORDER BY s.started_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionRow
	for rows.Next() {
		var r SessionRow
		var finished sql.NullTime
		if err := rows.Scan(&r.ID, &r.Task, &r.Outcome, &r.StartedAt, &finished, &r.Iterations, &r.Cost); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if finished.Valid {
			r.FinishedAt = finished.Time
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// IterationRow is one row of the iteration listing for a session.
type IterationRow struct {
	Number    int
	Agent     string
	Summary   string
	ErrorText string
	Duration  time.Duration
}

// SessionIterations returns the iterations of a session in order.
func (db *DB) SessionIterations(sessionID string) ([]IterationRow, error) {
	rows, err := db.Query(
		`SELECT number, agent, prompt_summary, error_text, duration_ms
		 FROM iterations WHERE session_id = ? ORDER BY number`, sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list iterations: %w", err)
	}
	defer rows.Close()

	var out []IterationRow
	for rows.Next() {
		var r IterationRow
		var ms int64
		if err := rows.Scan(&r.Number, &r.Agent, &r.Summary, &r.ErrorText, &ms); err != nil {
			return nil, fmt.Errorf("scan iteration: %w", err)
		}
		r.Duration = time.Duration(ms) * time.Millisecond
		out = append(out, r)
	}
	return out, rows.Err()
}

// FindSession resolves a session by ID prefix. Returns an error when the
// prefix is ambiguous or matches nothing.
func (db *DB) FindSession(prefix string) (string, error) {
	rows, err := db.Query(`SELECT id FROM sessions WHERE id LIKE ?`, prefix+"%")
	if err != nil {
		return "", fmt.Errorf("find session: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}

	switch len(ids) {
	case 0:
		return "", fmt.Errorf("no session matches %q", prefix)
	case 1:
		return ids[0], nil
	default:
		return "", fmt.Errorf("session prefix %q is ambiguous: %s", prefix, strings.Join(ids, ", "))
	}
}
