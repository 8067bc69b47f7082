package duo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ShayCichocki/duet/pkg/models"
)

// ErrSessionAborted is returned when recovery is exhausted and the session
// stops with partial progress.
var ErrSessionAborted = errors.New("session aborted")

// Executor runs one external agent invocation. Implementations must
// support resuming a prior session handle and must enforce the timeout by
// terminating the underlying process.
type Executor interface {
	Execute(ctx context.Context, prompt string, opts models.ExecuteOptions) (*models.ExecResult, error)
}

// defaultModels maps tiers to model names when configuration provides no
// mapping.
var defaultModels = map[models.Tier]string{
	models.TierReliable: "claude-3-5-haiku-20241022",
	models.TierStandard: "claude-sonnet-4-20250514",
	models.TierAdvanced: "claude-opus-4-1-20250805",
}

// Orchestrator drives the dual-agent iteration state machine. The loop is
// single-flight: exactly one agent invocation is in flight at any time,
// and all session state is mutated only by the loop itself.
type Orchestrator struct {
	registry *Registry
	executor Executor
	opts     *orchestratorOptions
}

// New creates an Orchestrator for the given agent pair and executor.
func New(registry *Registry, executor Executor, opts ...Option) *Orchestrator {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return &Orchestrator{
		registry: registry,
		executor: executor,
		opts:     o,
	}
}

// Run executes the dual-agent session for the given task. It returns
// normally on completion, iteration limit, or loop detection; it returns
// an error on abort, cancellation, or fallback failure. A session report
// is returned in every case so partial progress is never lost.
func (o *Orchestrator) Run(ctx context.Context, task string) (*SessionReport, error) {
	sess := NewSession(task, o.opts.workDir, o.registry)
	if err := o.opts.store.CreateSession(sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	o.opts.logger.Log(0, "session %s started: %s", sess.ID, truncate(task, 120))

	detector := NewLoopDetector(o.opts.loopThreshold)
	copts := ClassifierOptions{
		MaxRetries:          o.opts.maxRetries,
		EscalationThreshold: o.opts.escalationThreshold,
		FallbackEnabled:     o.opts.fallbackEnabled,
	}

	currentTask := task
	for iter := 1; iter <= o.opts.maxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return o.finish(sess, OutcomeCanceled, ""), err
		}

		if detector.Observe(currentTask) {
			// Detection exists precisely to stop automated looping, so
			// no automatic recovery is attempted here.
			o.opts.logger.Log(iter, "loop detected, halting session for human attention")
			o.emit(Event{Type: EventLoopDetected, SessionID: sess.ID, Iteration: iter,
				Message: "repeated task detected, session halted", Timestamp: time.Now()})
			return o.finish(sess, OutcomeLoopDetected,
				"session halted by loop detection; last task: "+truncate(currentTask, 200)), nil
		}

		active := o.registry.Active()
		role := active.Config.Role
		prompt := BuildPrompt(role, sess.RecentMessages(contextMessageLimit), currentTask)

		o.emit(Event{Type: EventIterationStarted, SessionID: sess.ID, Iteration: iter,
			Agent: role, Message: PromptSummary(currentTask), Timestamp: time.Now()})
		o.opts.logger.Log(iter, "dispatching %s: %s", role, PromptSummary(currentTask))

		res := o.dispatch(ctx, active, prompt)

		active.LastActivity = time.Now()
		if res.Output.SessionHandle != "" {
			active.SessionHandle = res.Output.SessionHandle
		}

		rec := IterationRecord{
			Number:        iter,
			Agent:         role,
			PromptSummary: PromptSummary(prompt),
			Output:        res.Output,
			ExitCode:      res.ExitCode,
			Duration:      res.Duration,
		}
		if err := sess.RecordIteration(rec); err != nil {
			return o.finish(sess, OutcomeAborted, ""), err
		}
		if err := o.opts.store.AddIteration(sess.ID, rec); err != nil {
			o.opts.logger.Log(iter, "persist iteration: %v", err)
		}
		o.emit(Event{Type: EventIterationDone, SessionID: sess.ID, Iteration: iter, Agent: role,
			Message: truncate(res.Output.Result, 120), Timestamp: time.Now(),
			Duration: res.Duration, Cost: sess.TotalCost()})

		verdict := Negotiate(role, res.Output, res.ExitCode)

		if verdict.Complete {
			o.opts.logger.Log(iter, "%s signaled completion", role)
			return o.finish(sess, OutcomeCompleted, res.Output.Result), nil
		}

		if verdict.Errored && !o.opts.continueOnError {
			errText := res.Output.ErrorText
			if errText == "" {
				errText = fmt.Sprintf("exit status %d", res.ExitCode)
			}

			dec := Classify(sess, role, errText, copts)
			o.opts.logger.Log(iter, "%s failed (%s); recovery: %s after %v",
				role, truncate(errText, 120), dec.Action, dec.Delay)
			o.emit(Event{Type: EventRecovery, SessionID: sess.ID, Iteration: iter, Agent: role,
				Message: dec.Rationale, Err: errors.New(truncate(errText, 200)), Timestamp: time.Now()})

			if err := o.backoff(ctx, dec.Delay); err != nil {
				return o.finish(sess, OutcomeCanceled, ""), err
			}

			switch dec.Action {
			case models.RecoverAbort, models.RecoverEscalate:
				report := o.finish(sess, OutcomeAborted, errText)
				return report, fmt.Errorf("%w: %s", ErrSessionAborted, dec.Rationale)

			case models.RecoverSwitchAgent:
				if dec.Fallback {
					remaining := o.opts.maxIterations - iter
					if remaining < fallbackMinIterations {
						remaining = fallbackMinIterations
					}
					o.emit(Event{Type: EventFallback, SessionID: sess.ID, Iteration: iter,
						Message: dec.Rationale, Timestamp: time.Now()})
					o.opts.logger.Log(iter, "falling back to single agent with %d iterations", remaining)
					return o.runFallback(ctx, sess, currentTask, iter, remaining)
				}

				next := role.Other()
				handoffTask := SwitchAnnotatedTask(currentTask, role, errText)
				o.recordHandoff(sess, role, next, handoffTask,
					"recovery: "+dec.Rationale,
					&MessageContext{Errors: []string{truncate(errText, 300)}}, true)
				o.emit(Event{Type: EventHandoff, SessionID: sess.ID, Iteration: iter, Agent: next,
					Message: dec.Rationale, Timestamp: time.Now()})
				currentTask = handoffTask

			case models.RecoverRetrySame:
				if dec.DropHandle {
					active.SessionHandle = ""
				}
				currentTask = ErrorFollowupTask(currentTask, errText)
			}
			continue
		}

		if verdict.Handoff {
			o.recordHandoff(sess, role, verdict.NextAgent, verdict.HandoffTask, "",
				&MessageContext{Files: res.Output.Files, Commands: res.Output.Commands}, false)
			o.emit(Event{Type: EventHandoff, SessionID: sess.ID, Iteration: iter,
				Agent: verdict.NextAgent, Message: PromptSummary(verdict.HandoffTask), Timestamp: time.Now()})
			o.opts.logger.Log(iter, "handoff %s -> %s", role, verdict.NextAgent)
			currentTask = verdict.HandoffTask
			continue
		}

		if verdict.NextTask != "" {
			currentTask = verdict.NextTask
		} else {
			currentTask = ContinuationTask(res.Output)
		}
	}

	o.opts.logger.Log(o.opts.maxIterations, "iteration limit reached")
	return o.finish(sess, OutcomeIterationLimit,
		"iteration limit reached without completion"), nil
}

// dispatch runs one invocation of the given agent, converting executor
// errors into failed results so they route through the classifier like any
// other failure.
func (o *Orchestrator) dispatch(ctx context.Context, agent *AgentState, prompt string) *models.ExecResult {
	start := time.Now()
	res, err := o.executor.Execute(ctx, prompt, models.ExecuteOptions{
		Model:         o.modelFor(agent.Config.Tier),
		SessionHandle: agent.SessionHandle,
		WorkDir:       o.opts.workDir,
		AllowedTools:  o.opts.allowedTools,
		Timeout:       agent.Config.CallTimeout,
	})
	if err != nil {
		return &models.ExecResult{
			Output:   models.ParsedOutput{ErrorText: err.Error()},
			ExitCode: 1,
			Duration: time.Since(start),
		}
	}
	return res
}

// modelFor resolves a tier to a concrete model name.
func (o *Orchestrator) modelFor(tier models.Tier) string {
	if m, ok := o.opts.modelByTier[tier]; ok && m != "" {
		return m
	}
	return defaultModels[tier]
}

// recordHandoff applies a handoff to the session and persists it.
func (o *Orchestrator) recordHandoff(sess *Session, from, to models.Role, task, context string, msgCtx *MessageContext, dropHandle bool) {
	msg := sess.RecordHandoff(from, to, task, context, msgCtx, dropHandle)
	if err := o.opts.store.AddHandoff(sess.ID, sess.Handoffs[len(sess.Handoffs)-1]); err != nil {
		o.opts.logger.Log(0, "persist handoff: %v", err)
	}
	if err := o.opts.store.AddMessage(sess.ID, msg); err != nil {
		o.opts.logger.Log(0, "persist message: %v", err)
	}
}

// backoff waits out a recovery delay, aborting early on cancellation.
func (o *Orchestrator) backoff(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-o.opts.sleep(d):
		return nil
	}
}

// finish stamps the session, persists the outcome, emits the final event,
// and builds the report.
func (o *Orchestrator) finish(sess *Session, outcome Outcome, result string) *SessionReport {
	sess.Finish(outcome, result)
	if err := o.opts.store.FinishSession(sess.ID, outcome, result); err != nil {
		o.opts.logger.Log(0, "persist session outcome: %v", err)
	}
	report := sess.Report()
	o.opts.logger.Log(0, "session %s finished: %s (%d iterations, %d handoffs)",
		sess.ID, outcome, report.Iterations, report.Handoffs)
	o.emit(Event{Type: EventSessionDone, SessionID: sess.ID, Iteration: report.Iterations,
		Message: string(outcome), Timestamp: time.Now(), Duration: report.Duration, Cost: report.Cost})
	return report
}

func (o *Orchestrator) emit(e Event) {
	if o.opts.emitter != nil {
		o.opts.emitter.Emit(e)
	}
}
