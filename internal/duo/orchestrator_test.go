package duo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/ShayCichocki/duet/pkg/models"
)

// scriptedExecutor replays a scripted response per call and records every
// invocation for assertions.
type scriptedExecutor struct {
	calls   int
	prompts []string
	opts    []models.ExecuteOptions
	fn      func(call int, prompt string, opts models.ExecuteOptions) (*models.ExecResult, error)
}

func (e *scriptedExecutor) Execute(_ context.Context, prompt string, opts models.ExecuteOptions) (*models.ExecResult, error) {
	e.calls++
	e.prompts = append(e.prompts, prompt)
	e.opts = append(e.opts, opts)
	return e.fn(e.calls, prompt, opts)
}

func okResult(text, handle string) *models.ExecResult {
	return &models.ExecResult{
		Output:   models.ParsedOutput{Result: text, SessionHandle: handle},
		Duration: 10 * time.Millisecond,
	}
}

func errResult(errText string) *models.ExecResult {
	return &models.ExecResult{
		Output:   models.ParsedOutput{ErrorText: errText},
		ExitCode: 1,
		Duration: 10 * time.Millisecond,
	}
}

// instantSleep records requested backoff delays and fires immediately.
func instantSleep(delays *[]time.Duration) Option {
	return withSleep(func(d time.Duration) <-chan time.Time {
		*delays = append(*delays, d)
		ch := make(chan time.Time, 1)
		ch <- time.Time{}
		return ch
	})
}

func newTestOrchestrator(t *testing.T, exec Executor, opts ...Option) *Orchestrator {
	t.Helper()
	reg, err := NewRegistry(RegistryOptions{})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return New(reg, exec, opts...)
}

func TestRun_CompletesOnCompletionPhrase(t *testing.T) {
	exec := &scriptedExecutor{fn: func(call int, _ string, _ models.ExecuteOptions) (*models.ExecResult, error) {
		return okResult("Task completed. The module is ready.", ""), nil
	}}
	o := newTestOrchestrator(t, exec)

	rep, err := o.Run(context.Background(), "ship the module")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Outcome != OutcomeCompleted {
		t.Errorf("outcome = %s, want completed", rep.Outcome)
	}
	if rep.Iterations != 1 {
		t.Errorf("iterations = %d, want 1", rep.Iterations)
	}
	if !strings.Contains(exec.prompts[0], "MANAGER agent") {
		t.Error("first call should carry the manager framing")
	}
	if got := exec.opts[0].Model; got != defaultModels[models.TierAdvanced] {
		t.Errorf("manager model = %q, want advanced default", got)
	}
}

func TestRun_ManagerDelegatesThenWorkerCompletes(t *testing.T) {
	exec := &scriptedExecutor{fn: func(call int, _ string, _ models.ExecuteOptions) (*models.ExecResult, error) {
		switch call {
		case 1:
			return okResult("Plan:\n1. Implement the caching layer", ""), nil
		default:
			return okResult("Task completed. Cache is in place.", ""), nil
		}
	}}
	o := newTestOrchestrator(t, exec)

	rep, err := o.Run(context.Background(), "add a cache")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Outcome != OutcomeCompleted {
		t.Errorf("outcome = %s, want completed", rep.Outcome)
	}
	if rep.Iterations != 2 || rep.Handoffs != 1 {
		t.Errorf("iterations/handoffs = %d/%d, want 2/1", rep.Iterations, rep.Handoffs)
	}
	if !strings.Contains(exec.prompts[1], "WORKER agent") {
		t.Error("second call should carry the worker framing")
	}
	if !strings.Contains(exec.prompts[1], "1. Implement the caching layer") {
		t.Errorf("worker prompt missing the delegated step:\n%s", exec.prompts[1])
	}
	if got := exec.opts[1].Model; got != defaultModels[models.TierStandard] {
		t.Errorf("worker model = %q, want standard default", got)
	}
}

func TestRun_StopsAtIterationLimit(t *testing.T) {
	exec := &scriptedExecutor{fn: func(call int, _ string, _ models.ExecuteOptions) (*models.ExecResult, error) {
		return okResult(fmt.Sprintf("analysis note %d", call), fmt.Sprintf("h%d", call)), nil
	}}
	o := newTestOrchestrator(t, exec, WithMaxIterations(10))

	rep, err := o.Run(context.Background(), "investigate the slow query")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Outcome != OutcomeIterationLimit {
		t.Errorf("outcome = %s, want iteration_limit", rep.Outcome)
	}
	if rep.Iterations != 10 || exec.calls != 10 {
		t.Errorf("iterations = %d, calls = %d, want 10/10", rep.Iterations, exec.calls)
	}
	// The resumption handle from one turn is passed to the next.
	if got := exec.opts[1].SessionHandle; got != "h1" {
		t.Errorf("second call handle = %q, want h1", got)
	}
	if got := exec.opts[9].SessionHandle; got != "h9" {
		t.Errorf("tenth call handle = %q, want h9", got)
	}
}

func TestRun_HaltsOnRepeatedTask(t *testing.T) {
	exec := &scriptedExecutor{fn: func(call int, _ string, _ models.ExecuteOptions) (*models.ExecResult, error) {
		return okResult("Repeating the same analysis.", ""), nil
	}}
	o := newTestOrchestrator(t, exec, WithMaxIterations(10))

	rep, err := o.Run(context.Background(), "investigate the slow query")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Outcome != OutcomeLoopDetected {
		t.Errorf("outcome = %s, want loop_detected", rep.Outcome)
	}
	// With the default threshold of 3 the identical continuation task is
	// flagged on the third observation, before a third dispatch.
	if exec.calls != 2 {
		t.Errorf("calls = %d, want 2", exec.calls)
	}
	if !strings.Contains(rep.Result, "loop detection") {
		t.Errorf("result should mention loop detection: %q", rep.Result)
	}
}

func TestRun_RetriesTransientFailure(t *testing.T) {
	exec := &scriptedExecutor{fn: func(call int, _ string, _ models.ExecuteOptions) (*models.ExecResult, error) {
		if call == 1 {
			return errResult("connection reset by peer"), nil
		}
		return okResult("Task completed after retry.", ""), nil
	}}
	var delays []time.Duration
	o := newTestOrchestrator(t, exec, instantSleep(&delays))

	rep, err := o.Run(context.Background(), "fix the test")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Outcome != OutcomeCompleted {
		t.Errorf("outcome = %s, want completed", rep.Outcome)
	}
	if rep.Iterations != 2 {
		t.Errorf("iterations = %d, want 2", rep.Iterations)
	}
	if len(delays) != 1 || delays[0] != 2*time.Second {
		t.Errorf("delays = %v, want [2s]", delays)
	}
	if !strings.Contains(exec.prompts[1], "connection reset by peer") {
		t.Error("retry prompt should carry the failure text")
	}
}

func TestRun_FallsBackToSingleAgent(t *testing.T) {
	// Three transient failures exhaust the retry budget; the session then
	// continues with a single reliable-tier agent instead of aborting.
	failures := []string{"connection reset", "request timeout", "network down"}
	exec := &scriptedExecutor{fn: func(call int, _ string, _ models.ExecuteOptions) (*models.ExecResult, error) {
		if call <= len(failures) {
			return errResult(failures[call-1]), nil
		}
		return okResult("Task completed by the fallback agent.", ""), nil
	}}
	var delays []time.Duration
	o := newTestOrchestrator(t, exec, instantSleep(&delays))

	rep, err := o.Run(context.Background(), "fix the test")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Outcome != OutcomeFallback {
		t.Errorf("outcome = %s, want fallback", rep.Outcome)
	}
	if rep.Iterations != 4 || exec.calls != 4 {
		t.Errorf("iterations = %d, calls = %d, want 4/4", rep.Iterations, exec.calls)
	}
	if !strings.Contains(exec.prompts[3], "working alone") {
		t.Error("fallback call should carry the single-agent framing")
	}
	if got := exec.opts[3].Model; got != defaultModels[models.TierReliable] {
		t.Errorf("fallback model = %q, want reliable default", got)
	}
	if got := exec.opts[3].SessionHandle; got != "" {
		t.Errorf("fallback should start a fresh underlying session, got handle %q", got)
	}
	// Backoff grows per failure; the fallback decision itself waits no
	// further.
	if len(delays) != 2 || delays[0] != 2*time.Second || delays[1] != 4*time.Second {
		t.Errorf("delays = %v, want [2s 4s]", delays)
	}
}

func TestRun_AbortsWhenFallbackDisabled(t *testing.T) {
	failures := []string{"connection reset", "request timeout", "network down"}
	exec := &scriptedExecutor{fn: func(call int, _ string, _ models.ExecuteOptions) (*models.ExecResult, error) {
		if call <= len(failures) {
			return errResult(failures[call-1]), nil
		}
		t.Fatalf("unexpected call %d", call)
		return nil, nil
	}}
	var delays []time.Duration
	o := newTestOrchestrator(t, exec, WithFallback(false), instantSleep(&delays))

	rep, err := o.Run(context.Background(), "fix the test")
	if !errors.Is(err, ErrSessionAborted) {
		t.Fatalf("err = %v, want ErrSessionAborted", err)
	}
	if rep == nil || rep.Outcome != OutcomeAborted {
		t.Errorf("report = %+v, want aborted outcome", rep)
	}
	if exec.calls != 3 {
		t.Errorf("calls = %d, want 3", exec.calls)
	}
}

func TestRun_ContinueOnErrorSkipsRecovery(t *testing.T) {
	exec := &scriptedExecutor{fn: func(call int, _ string, _ models.ExecuteOptions) (*models.ExecResult, error) {
		return errResult(fmt.Sprintf("problem %d", call)), nil
	}}
	var delays []time.Duration
	o := newTestOrchestrator(t, exec, WithContinueOnError(true), WithMaxIterations(3), instantSleep(&delays))

	rep, err := o.Run(context.Background(), "keep going regardless")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Outcome != OutcomeIterationLimit {
		t.Errorf("outcome = %s, want iteration_limit", rep.Outcome)
	}
	if rep.Iterations != 3 {
		t.Errorf("iterations = %d, want 3", rep.Iterations)
	}
	if len(delays) != 0 {
		t.Errorf("no recovery backoff expected, got %v", delays)
	}
}

func TestRun_CanceledContext(t *testing.T) {
	exec := &scriptedExecutor{fn: func(call int, _ string, _ models.ExecuteOptions) (*models.ExecResult, error) {
		t.Fatal("executor should not run with a canceled context")
		return nil, nil
	}}
	o := newTestOrchestrator(t, exec)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rep, err := o.Run(ctx, "never starts")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if rep.Outcome != OutcomeCanceled {
		t.Errorf("outcome = %s, want canceled", rep.Outcome)
	}
	if rep.Iterations != 0 {
		t.Errorf("iterations = %d, want 0", rep.Iterations)
	}
}

func TestRun_ExecutorErrorRoutesThroughRecovery(t *testing.T) {
	exec := &scriptedExecutor{fn: func(call int, _ string, _ models.ExecuteOptions) (*models.ExecResult, error) {
		if call == 1 {
			return nil, errors.New("spawn claude: executable not found")
		}
		return okResult("Task completed.", ""), nil
	}}
	var delays []time.Duration
	o := newTestOrchestrator(t, exec, instantSleep(&delays))

	rep, err := o.Run(context.Background(), "add a flag")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Outcome != OutcomeCompleted {
		t.Errorf("outcome = %s, want completed", rep.Outcome)
	}
	if len(delays) != 1 || delays[0] != 3*time.Second {
		t.Errorf("delays = %v, want the spawn-failure backoff [3s]", delays)
	}
}

func TestRunSingleAgent(t *testing.T) {
	t.Run("completes", func(t *testing.T) {
		exec := &scriptedExecutor{fn: func(call int, _ string, _ models.ExecuteOptions) (*models.ExecResult, error) {
			return okResult("Implementation complete.", ""), nil
		}}
		o := newTestOrchestrator(t, exec)

		rep, err := o.RunSingleAgent(context.Background(), "one-shot task")
		if err != nil {
			t.Fatalf("RunSingleAgent: %v", err)
		}
		if rep.Outcome != OutcomeCompleted {
			t.Errorf("outcome = %s, want completed", rep.Outcome)
		}
		if !strings.Contains(exec.prompts[0], "working alone") {
			t.Error("prompt should carry the single-agent framing")
		}
	})

	t.Run("exhausts budget", func(t *testing.T) {
		exec := &scriptedExecutor{fn: func(call int, _ string, _ models.ExecuteOptions) (*models.ExecResult, error) {
			return okResult("still going", fmt.Sprintf("s%d", call)), nil
		}}
		o := newTestOrchestrator(t, exec, WithMaxIterations(2))

		rep, err := o.RunSingleAgent(context.Background(), "long task")
		if err != nil {
			t.Fatalf("RunSingleAgent: %v", err)
		}
		if rep.Outcome != OutcomeIterationLimit {
			t.Errorf("outcome = %s, want iteration_limit", rep.Outcome)
		}
		if rep.Iterations != 2 {
			t.Errorf("iterations = %d, want 2", rep.Iterations)
		}
		if got := exec.opts[1].SessionHandle; got != "s1" {
			t.Errorf("second call handle = %q, want s1", got)
		}
	})

	t.Run("uses configured timeout", func(t *testing.T) {
		exec := &scriptedExecutor{fn: func(call int, _ string, _ models.ExecuteOptions) (*models.ExecResult, error) {
			return okResult("Implementation complete.", ""), nil
		}}
		reg, err := NewRegistry(RegistryOptions{CallTimeout: 3 * time.Minute})
		if err != nil {
			t.Fatalf("NewRegistry: %v", err)
		}
		o := New(reg, exec)

		if _, err := o.RunSingleAgent(context.Background(), "one-shot task"); err != nil {
			t.Fatalf("RunSingleAgent: %v", err)
		}
		if got := exec.opts[0].Timeout; got != 3*time.Minute {
			t.Errorf("timeout = %v, want the registry's 3m", got)
		}
	})

	t.Run("canceled mid-run", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		exec := &scriptedExecutor{fn: func(call int, _ string, _ models.ExecuteOptions) (*models.ExecResult, error) {
			cancel()
			return okResult("still going", ""), nil
		}}
		o := newTestOrchestrator(t, exec)

		rep, err := o.RunSingleAgent(ctx, "task")
		if err == nil {
			t.Fatal("want a cancellation error")
		}
		if rep.Outcome != OutcomeCanceled {
			t.Errorf("outcome = %s, want canceled", rep.Outcome)
		}
	})
}

func TestFailureOutcome(t *testing.T) {
	if got := failureOutcome(context.Background()); got != OutcomeAborted {
		t.Errorf("live context: outcome = %s, want aborted", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if got := failureOutcome(ctx); got != OutcomeCanceled {
		t.Errorf("canceled context: outcome = %s, want canceled", got)
	}
}

func TestRun_CapacityFailureSwitchesAgent(t *testing.T) {
	exec := &scriptedExecutor{fn: func(call int, _ string, _ models.ExecuteOptions) (*models.ExecResult, error) {
		if call == 1 {
			return errResult("model is overloaded"), nil
		}
		return okResult("Task completed.", ""), nil
	}}
	var delays []time.Duration
	o := newTestOrchestrator(t, exec, instantSleep(&delays))

	rep, err := o.Run(context.Background(), "summarize the logs")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Outcome != OutcomeCompleted {
		t.Errorf("outcome = %s, want completed", rep.Outcome)
	}
	if rep.Handoffs != 1 {
		t.Errorf("handoffs = %d, want 1 from the agent switch", rep.Handoffs)
	}
	// After the switch the worker runs the annotated takeover task.
	if !strings.Contains(exec.prompts[1], "WORKER agent") {
		t.Error("second call should go to the worker")
	}
	if !strings.Contains(exec.prompts[1], "manager agent failed") {
		t.Errorf("takeover prompt missing the failure annotation:\n%s", exec.prompts[1])
	}
	if len(delays) != 1 || delays[0] != 5*time.Second {
		t.Errorf("delays = %v, want the capacity backoff [5s]", delays)
	}
}
