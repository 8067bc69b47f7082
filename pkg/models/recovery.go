package models

// RecoveryAction represents the action chosen after classifying a failure.
type RecoveryAction string

const (
	// RecoverRetrySame retries the failed agent with an error-annotated task.
	RecoverRetrySame RecoveryAction = "retry-same"
	// RecoverSwitchAgent hands the task to the other agent.
	RecoverSwitchAgent RecoveryAction = "switch-agent"
	// RecoverEscalate surfaces the failure for human intervention.
	RecoverEscalate RecoveryAction = "escalate"
	// RecoverAbort stops the session.
	RecoverAbort RecoveryAction = "abort"
)

// Valid returns true if the action is a known value.
func (a RecoveryAction) Valid() bool {
	switch a {
	case RecoverRetrySame, RecoverSwitchAgent, RecoverEscalate, RecoverAbort:
		return true
	default:
		return false
	}
}
