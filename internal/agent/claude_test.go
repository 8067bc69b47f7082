package agent

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/ShayCichocki/duet/pkg/models"
)

func TestBuildArgs(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		args := buildArgs("do the task", models.ExecuteOptions{})
		joined := strings.Join(args, " ")

		for _, want := range []string{
			"--output-format stream-json",
			"--print",
			"--verbose",
			"--allowedTools Read,Write,Edit,Bash,Glob,Grep,WebFetch",
		} {
			if !strings.Contains(joined, want) {
				t.Errorf("args missing %q: %v", want, args)
			}
		}
		if args[len(args)-2] != "-p" || args[len(args)-1] != "do the task" {
			t.Errorf("prompt must come last: %v", args)
		}
		if strings.Contains(joined, "--model") || strings.Contains(joined, "--resume") {
			t.Errorf("unexpected optional flags: %v", args)
		}
	})

	t.Run("model and resume", func(t *testing.T) {
		args := buildArgs("go", models.ExecuteOptions{
			Model:         "claude-sonnet-4-20250514",
			SessionHandle: "sess-123",
			AllowedTools:  []string{"Read", "Edit"},
		})
		joined := strings.Join(args, " ")

		if !strings.Contains(joined, "--model claude-sonnet-4-20250514") {
			t.Errorf("missing model flag: %v", args)
		}
		if !strings.Contains(joined, "--resume sess-123") {
			t.Errorf("missing resume flag: %v", args)
		}
		if !strings.Contains(joined, "--allowedTools Read,Edit") {
			t.Errorf("allowed tools not restricted: %v", args)
		}
	})
}

func TestParseStreamEvent(t *testing.T) {
	tests := []struct {
		name string
		line string
		want StreamEvent
	}{
		{
			name: "system with session id",
			line: `{"type":"system","session_id":"abc-123","message":"init"}`,
			want: StreamEvent{Type: StreamEventSystem, SessionID: "abc-123", Message: "init"},
		},
		{
			name: "result with cost and usage",
			line: `{"type":"result","result":"done","total_cost_usd":0.25,"usage":{"input_tokens":100,"output_tokens":50}}`,
			want: StreamEvent{Type: StreamEventResult, Message: "done", CostUSD: 0.25, Tokens: 150},
		},
		{
			name: "result flagged as error",
			line: `{"type":"result","result":"rate limit exceeded","is_error":true}`,
			want: StreamEvent{Type: StreamEventResult, Message: "rate limit exceeded", Error: "rate limit exceeded"},
		},
		{
			name: "error event",
			line: `{"type":"error","error":"boom"}`,
			want: StreamEvent{Type: StreamEventError, Error: "boom"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseStreamEvent([]byte(tt.line))
			if err != nil {
				t.Fatalf("ParseStreamEvent: %v", err)
			}
			got.Raw = nil
			got.ToolUse = nil
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseStreamEvent_ToolUse(t *testing.T) {
	line := `{"type":"assistant","message":{"content":[` +
		`{"type":"text","text":"editing now"},` +
		`{"type":"tool_use","name":"Edit","input":{"file_path":"internal/app/main.go"}}]}}`

	got, err := ParseStreamEvent([]byte(line))
	if err != nil {
		t.Fatalf("ParseStreamEvent: %v", err)
	}
	if got.ToolUse == nil || got.ToolUse.Name != "Edit" {
		t.Fatalf("tool use = %+v", got.ToolUse)
	}
	if got.ToolUse.Path != "internal/app/main.go" {
		t.Errorf("path = %q", got.ToolUse.Path)
	}
	if got.Message != "editing now" {
		t.Errorf("message = %q, want text block content", got.Message)
	}
}

func TestParseStreamEvent_BashToolUse(t *testing.T) {
	line := `{"type":"assistant","content":[{"type":"tool_use","name":"Bash","input":{"command":"go test ./..."}}]}`

	got, err := ParseStreamEvent([]byte(line))
	if err != nil {
		t.Fatalf("ParseStreamEvent: %v", err)
	}
	if got.ToolUse == nil || got.ToolUse.Name != "Bash" || got.ToolUse.Command != "go test ./..." {
		t.Errorf("tool use = %+v", got.ToolUse)
	}
}

func TestParseStreamEvent_Invalid(t *testing.T) {
	if _, err := ParseStreamEvent([]byte("not json")); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestClaudeProcess_StderrAfterStdoutClose(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a shell script stand-in for the CLI")
	}

	// The stand-in prints one result line, closes stdout, then keeps
	// writing stderr. The output channel must stay open until both
	// pipes have drained.
	dir := t.TempDir()
	script := `#!/bin/sh
echo '{"type":"result","message":"done","session_id":"sess-teardown"}'
exec 1>&-
i=0
while [ $i -lt 2000 ]; do
	echo "late diagnostics $i" >&2
	i=$((i+1))
done
`
	if err := os.WriteFile(filepath.Join(dir, "claude"), []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))

	for i := 0; i < 20; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		proc := NewClaudeProcess(ctx)
		if err := proc.Start("task", models.ExecuteOptions{}); err != nil {
			cancel()
			t.Fatalf("iteration %d: Start: %v", i, err)
		}

		sawResult := false
		for ev := range proc.Output() {
			if ev.Type == StreamEventResult {
				sawResult = true
			}
		}
		if err := proc.Wait(); err != nil {
			cancel()
			t.Fatalf("iteration %d: Wait: %v", i, err)
		}
		cancel()

		if !sawResult {
			t.Fatalf("iteration %d: result event never arrived", i)
		}
	}
}
