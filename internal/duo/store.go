package duo

import "time"

// SessionStore is the persistence collaborator for orchestration runs.
// The orchestrator calls it but does not define the storage format.
type SessionStore interface {
	// CreateSession persists a newly started session.
	CreateSession(s *Session) error
	// AddIteration persists one iteration record.
	AddIteration(sessionID string, rec IterationRecord) error
	// AddHandoff persists one control transfer.
	AddHandoff(sessionID string, h Handoff) error
	// AddMessage persists one cross-agent message.
	AddMessage(sessionID string, m *AgentMessage) error
	// FinishSession stamps a session with its outcome and result.
	FinishSession(sessionID string, outcome Outcome, result string) error
	// Summary returns aggregate statistics for a session.
	Summary(sessionID string) (*StoreSummary, error)
}

// StoreSummary is the persisted aggregate view of a session.
type StoreSummary struct {
	SessionID       string
	Outcome         Outcome
	TotalIterations int
	TotalHandoffs   int
	TotalMessages   int
	TotalDuration   time.Duration
	SuccessRate     float64
	TotalCost       float64
}

// NopStore is a SessionStore that discards everything. Used when
// persistence is disabled and in tests.
type NopStore struct{}

func (NopStore) CreateSession(*Session) error                  { return nil }
func (NopStore) AddIteration(string, IterationRecord) error    { return nil }
func (NopStore) AddHandoff(string, Handoff) error              { return nil }
func (NopStore) AddMessage(string, *AgentMessage) error        { return nil }
func (NopStore) FinishSession(string, Outcome, string) error   { return nil }
func (NopStore) Summary(string) (*StoreSummary, error)         { return &StoreSummary{}, nil }

var _ SessionStore = NopStore{}
