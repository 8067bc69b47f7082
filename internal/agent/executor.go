package agent

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/ShayCichocki/duet/internal/duo"
	"github.com/ShayCichocki/duet/pkg/models"
)

var _ duo.Executor = (*CLIExecutor)(nil)

// CLIExecutor runs agent invocations through the claude CLI. Safe for
// sequential use by one orchestration loop; each Execute call spawns its
// own subprocess.
type CLIExecutor struct {
	// WatchWorkspace enables the fsnotify supplement that records files
	// touched on disk during the invocation, in addition to the files the
	// event stream reports.
	WatchWorkspace bool
}

// NewCLIExecutor creates a CLI-backed executor.
func NewCLIExecutor() *CLIExecutor {
	return &CLIExecutor{}
}

// CheckCLI verifies that the claude CLI is available in PATH.
func CheckCLI() error {
	if _, err := exec.LookPath("claude"); err != nil {
		return fmt.Errorf("claude CLI not found in PATH; install it from https://claude.ai/code")
	}
	return nil
}

// Execute runs one invocation: spawn, stream, fold, wait. The timeout in
// opts bounds the subprocess; on expiry the process is killed and the
// partial output is returned as a failed result.
func (e *CLIExecutor) Execute(ctx context.Context, prompt string, opts models.ExecuteOptions) (*models.ExecResult, error) {
	start := time.Now()

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	var watcher *WorkspaceWatcher
	if e.WatchWorkspace && opts.WorkDir != "" {
		w, err := NewWorkspaceWatcher(opts.WorkDir)
		if err == nil {
			watcher = w
			defer watcher.Close()
		}
		// Watching is a supplement; a watch failure never fails the run.
	}

	proc := NewClaudeProcess(ctx)
	if err := proc.Start(prompt, opts); err != nil {
		return nil, fmt.Errorf("start agent: %w", err)
	}

	analyzer := NewAnalyzer()
	var raw strings.Builder
	for ev := range proc.Output() {
		analyzer.Feed(ev)
		if len(ev.Raw) > 0 {
			raw.Write(ev.Raw)
			raw.WriteByte('\n')
		}
	}

	waitErr := proc.Wait()
	out := analyzer.Result()
	if watcher != nil {
		out.Files = mergeFiles(out.Files, watcher.Touched())
	}

	res := &models.ExecResult{
		Output:    out,
		RawOutput: raw.String(),
		ExitCode:  0,
		Duration:  time.Since(start),
	}

	if waitErr != nil {
		res.ExitCode = proc.ExitCode()
		if res.ExitCode <= 0 {
			res.ExitCode = 1
		}
		if res.Output.ErrorText == "" {
			res.Output.ErrorText = waitErr.Error()
		}
		if ctx.Err() != nil {
			res.Output.ErrorText = fmt.Sprintf("invocation timeout: %v", res.Output.ErrorText)
		}
	}

	return res, nil
}

// mergeFiles unions the stream-reported and watcher-observed file lists,
// preserving the stream order first.
func mergeFiles(fromStream, fromWatcher []string) []string {
	seen := make(map[string]struct{}, len(fromStream))
	out := make([]string, 0, len(fromStream)+len(fromWatcher))
	for _, f := range fromStream {
		if _, ok := seen[f]; !ok {
			seen[f] = struct{}{}
			out = append(out, f)
		}
	}
	for _, f := range fromWatcher {
		if _, ok := seen[f]; !ok {
			seen[f] = struct{}{}
			out = append(out, f)
		}
	}
	return out
}
