package duo

import (
	"context"
	"fmt"
	"time"

	"github.com/ShayCichocki/duet/pkg/models"
)

// runFallback continues an exhausted dual-agent session with a single
// agent: the reliable tier, a fresh underlying session, and a relaxed
// failure policy. It is a distinct, simpler state machine used as a safety
// net, not a second copy of the dual-agent loop.
func (o *Orchestrator) runFallback(ctx context.Context, sess *Session, task string, lastIter, budget int) (*SessionReport, error) {
	_, result, err := o.singleLoop(ctx, sess, task, lastIter+1, budget)
	if err != nil {
		report := o.finish(sess, failureOutcome(ctx), result)
		return report, fmt.Errorf("single-agent fallback: %w", err)
	}
	return o.finish(sess, OutcomeFallback, result), nil
}

// RunSingleAgent executes a task with a single agent and no dual-agent
// negotiation. The same executor and iteration budget apply; errors are
// folded into follow-up tasks instead of routed through recovery.
func (o *Orchestrator) RunSingleAgent(ctx context.Context, task string) (*SessionReport, error) {
	sess := NewSession(task, o.opts.workDir, o.registry)
	if err := o.opts.store.CreateSession(sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	o.opts.logger.Log(0, "single-agent session %s started: %s", sess.ID, truncate(task, 120))

	completed, result, err := o.singleLoop(ctx, sess, task, 1, o.opts.maxIterations)
	switch {
	case err != nil:
		return o.finish(sess, failureOutcome(ctx), result), err
	case completed:
		return o.finish(sess, OutcomeCompleted, result), nil
	default:
		return o.finish(sess, OutcomeIterationLimit, result), nil
	}
}

// failureOutcome distinguishes caller cancellation from an internal
// failure when a loop ends in error.
func failureOutcome(ctx context.Context) Outcome {
	if ctx.Err() != nil {
		return OutcomeCanceled
	}
	return OutcomeAborted
}

// singleLoop is the shared single-agent iteration body. It dispatches the
// reliable tier with a fresh session handle, checks only for completion,
// and folds failures into error-fix follow-ups.
func (o *Orchestrator) singleLoop(ctx context.Context, sess *Session, task string, startIter, budget int) (completed bool, lastResult string, err error) {
	currentTask := task
	handle := ""

	for i := 0; i < budget; i++ {
		iter := startIter + i
		if err := ctx.Err(); err != nil {
			return false, lastResult, err
		}

		prompt := BuildSinglePrompt(currentTask)
		o.emit(Event{Type: EventIterationStarted, SessionID: sess.ID, Iteration: iter,
			Agent: models.RoleWorker, Message: PromptSummary(currentTask), Timestamp: time.Now()})

		start := time.Now()
		res, execErr := o.executor.Execute(ctx, prompt, models.ExecuteOptions{
			Model:         o.modelFor(models.TierReliable),
			SessionHandle: handle,
			WorkDir:       o.opts.workDir,
			AllowedTools:  o.opts.allowedTools,
			Timeout:       o.registry.Worker.Config.CallTimeout,
		})
		if execErr != nil {
			res = &models.ExecResult{
				Output:   models.ParsedOutput{ErrorText: execErr.Error()},
				ExitCode: 1,
				Duration: time.Since(start),
			}
		}
		if res.Output.SessionHandle != "" {
			handle = res.Output.SessionHandle
		}

		rec := IterationRecord{
			Number:        len(sess.Iterations) + 1,
			Agent:         models.RoleWorker,
			PromptSummary: PromptSummary(prompt),
			Output:        res.Output,
			ExitCode:      res.ExitCode,
			Duration:      res.Duration,
		}
		if recErr := sess.RecordIteration(rec); recErr != nil {
			return false, lastResult, recErr
		}
		if storeErr := o.opts.store.AddIteration(sess.ID, rec); storeErr != nil {
			o.opts.logger.Log(iter, "persist iteration: %v", storeErr)
		}
		o.emit(Event{Type: EventIterationDone, SessionID: sess.ID, Iteration: iter,
			Agent: models.RoleWorker, Message: truncate(res.Output.Result, 120),
			Timestamp: time.Now(), Duration: res.Duration, Cost: sess.TotalCost()})

		lastResult = res.Output.Result

		if isComplete(res.Output.Result) {
			o.opts.logger.Log(iter, "single agent signaled completion")
			return true, res.Output.Result, nil
		}

		// Relaxed policy: failures become follow-up tasks instead of
		// going through the classifier.
		if res.Failed() {
			errText := res.Output.ErrorText
			if errText == "" {
				errText = fmt.Sprintf("exit status %d", res.ExitCode)
			}
			currentTask = ErrorFollowupTask(currentTask, errText)
			continue
		}

		currentTask = ContinuationTask(res.Output)
	}

	return false, lastResult, nil
}
