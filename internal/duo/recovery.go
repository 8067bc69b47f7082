package duo

import (
	"strings"
	"time"

	"github.com/ShayCichocki/duet/pkg/models"
)

// Default recovery thresholds.
const (
	// DefaultMaxRetries is the session-wide retry budget.
	DefaultMaxRetries = 3
	// DefaultEscalationThreshold is the per-agent failure count that
	// aborts the session.
	DefaultEscalationThreshold = 5
)

// RecoveryDecision is the plan computed for one failure. Ephemeral:
// computed fresh per failure, applied by the orchestration loop.
type RecoveryDecision struct {
	// Action is the recovery action to take.
	Action models.RecoveryAction
	// Delay is how long to back off before acting.
	Delay time.Duration
	// Rationale explains the decision for logs and reports.
	Rationale string
	// DropHandle tells the loop to discard the failed agent's resumption
	// handle so the next attempt starts a fresh underlying session.
	DropHandle bool
	// Fallback tells the loop to leave the dual-agent state machine and
	// continue with the single-agent safety net.
	Fallback bool
}

// ClassifierOptions configures failure classification.
type ClassifierOptions struct {
	// MaxRetries is the session-wide retry budget. Default 3.
	MaxRetries int
	// EscalationThreshold is the per-agent failure count that is fatal.
	// Default 5.
	EscalationThreshold int
	// FallbackEnabled allows switching to the single-agent loop when the
	// retry budget runs out.
	FallbackEnabled bool
}

func (o ClassifierOptions) withDefaults() ClassifierOptions {
	if o.MaxRetries <= 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.EscalationThreshold <= 0 {
		o.EscalationThreshold = DefaultEscalationThreshold
	}
	return o
}

// errorClass ties an error-text predicate to a recovery outcome. Modeling
// the keyword heuristics as an enumerable rule list keeps the priority
// order explicit and lets tests exercise each rule independently.
type errorClass struct {
	name   string
	match  func(text string) bool
	decide func(failCount int) RecoveryDecision
}

func containsAny(text string, keywords ...string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}

// errorClasses is the prioritized keyword rule table; first match wins.
var errorClasses = []errorClass{
	{
		name: "transient-infrastructure",
		match: func(t string) bool {
			return containsAny(t, "network", "timeout", "connection", "econnreset", "etimedout")
		},
		decide: func(failCount int) RecoveryDecision {
			delay := time.Duration(failCount) * 2 * time.Second
			if delay > 10*time.Second {
				delay = 10 * time.Second
			}
			return RecoveryDecision{
				Action:    models.RecoverRetrySame,
				Delay:     delay,
				Rationale: "transient network failure, retrying with backoff",
			}
		},
	},
	{
		name: "capacity",
		match: func(t string) bool {
			return containsAny(t, "model", "quota", "rate limit", "rate-limit", "overloaded")
		},
		decide: func(int) RecoveryDecision {
			// The other agent runs a different model tier, which the
			// capacity limit is unlikely to affect.
			return RecoveryDecision{
				Action:    models.RecoverSwitchAgent,
				Delay:     5 * time.Second,
				Rationale: "model capacity limit, switching agent",
			}
		},
	},
	{
		name: "spawn",
		match: func(t string) bool {
			return containsAny(t, "not found", "enoent", "spawn", "no such file")
		},
		decide: func(int) RecoveryDecision {
			return RecoveryDecision{
				Action:     models.RecoverRetrySame,
				Delay:      3 * time.Second,
				Rationale:  "tool invocation failure, retrying with a fresh underlying session",
				DropHandle: true,
			}
		},
	},
	{
		name: "environment",
		match: func(t string) bool {
			return containsAny(t, "permission", "eacces", "access denied", "read-only file system")
		},
		decide: func(int) RecoveryDecision {
			return RecoveryDecision{
				Action:    models.RecoverRetrySame,
				Delay:     time.Second,
				Rationale: "filesystem access failure, retrying",
			}
		},
	},
}

// Classify inspects a failure and plans its recovery. Ordered, first match
// wins:
//
//  1. The agent's cumulative failure count is incremented; at the
//     escalation threshold the session aborts rather than silently
//     retrying.
//  2. When the session-wide retry budget is spent, control switches to the
//     single-agent fallback if enabled, otherwise aborts.
//  3. Otherwise the error text is matched against the keyword rule table,
//     with a switch-agent heuristic for agents that keep failing without a
//     recognizable cause, and a plain retry as the default.
//
// Classification is deterministic given the error text, the session's
// counters, and the options; the only side effect is the failure counter
// increment. Applying the decision is the orchestration loop's job.
func Classify(sess *Session, role models.Role, errText string, opts ClassifierOptions) RecoveryDecision {
	opts = opts.withDefaults()
	failCount := sess.NoteFailure(role)

	if failCount >= opts.EscalationThreshold {
		return RecoveryDecision{
			Action:    models.RecoverAbort,
			Rationale: "agent exceeded failure threshold",
		}
	}

	if sess.TotalFailures() >= opts.MaxRetries {
		if opts.FallbackEnabled {
			return RecoveryDecision{
				Action:    models.RecoverSwitchAgent,
				Rationale: "retry budget exhausted, continuing with single agent",
				Fallback:  true,
			}
		}
		return RecoveryDecision{
			Action:    models.RecoverAbort,
			Rationale: "retry budget exhausted",
		}
	}

	text := strings.ToLower(errText)
	for _, class := range errorClasses {
		if class.match(text) {
			return class.decide(failCount)
		}
	}

	if failCount >= 2 {
		// Persistent unclassified failure on one role is more likely
		// resolved by a different reasoning style than by repetition.
		return RecoveryDecision{
			Action:    models.RecoverSwitchAgent,
			Delay:     4 * time.Second,
			Rationale: "repeated unclassified failure, switching agent",
		}
	}

	return RecoveryDecision{
		Action:    models.RecoverRetrySame,
		Delay:     2 * time.Second,
		Rationale: "unclassified failure, retrying",
	}
}
