package duo

import (
	"strings"
	"testing"

	"github.com/ShayCichocki/duet/pkg/models"
)

func TestBuildPrompt(t *testing.T) {
	recent := []*AgentMessage{
		{From: models.RoleManager, To: models.RoleWorker, Content: "implement step one"},
		{From: models.RoleWorker, To: models.RoleManager, Content: "step one is done"},
	}

	t.Run("manager framing and context", func(t *testing.T) {
		p := BuildPrompt(models.RoleManager, recent, "review the work")
		if !strings.Contains(p, "MANAGER agent") {
			t.Error("missing manager framing")
		}
		if !strings.Contains(p, "[manager -> worker] implement step one") {
			t.Errorf("missing conversation context:\n%s", p)
		}
		if !strings.Contains(p, "Current task:\nreview the work") {
			t.Errorf("missing task section:\n%s", p)
		}
	})

	t.Run("worker framing", func(t *testing.T) {
		p := BuildPrompt(models.RoleWorker, nil, "build it")
		if !strings.Contains(p, "WORKER agent") {
			t.Error("missing worker framing")
		}
		if strings.Contains(p, "Recent agent conversation") {
			t.Error("empty context should omit the conversation section")
		}
	})
}

func TestBuildSinglePrompt(t *testing.T) {
	p := BuildSinglePrompt("ship the feature")
	if !strings.Contains(p, "working alone") {
		t.Error("missing single-agent framing")
	}
	if !strings.Contains(p, "ship the feature") {
		t.Error("missing task")
	}
}

func TestContinuationTask(t *testing.T) {
	tests := []struct {
		name string
		out  models.ParsedOutput
		want string
	}{
		{
			name: "error output",
			out:  models.ParsedOutput{ErrorText: "missing import"},
			want: "Fix the error",
		},
		{
			name: "result output",
			out:  models.ParsedOutput{Result: "wrote the handler"},
			want: "proceed with the next step",
		},
		{
			name: "empty output",
			out:  models.ParsedOutput{},
			want: "Continue working on the task.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ContinuationTask(tt.out)
			if !strings.Contains(got, tt.want) {
				t.Errorf("ContinuationTask = %q, want substring %q", got, tt.want)
			}
		})
	}
}

func TestErrorFollowupTask(t *testing.T) {
	got := ErrorFollowupTask("add the endpoint", "EACCES: permission denied")
	if !strings.Contains(got, "add the endpoint") || !strings.Contains(got, "EACCES") {
		t.Errorf("followup task missing content:\n%s", got)
	}
}

func TestSwitchAnnotatedTask(t *testing.T) {
	got := SwitchAnnotatedTask("add the endpoint", models.RoleWorker, "model is overloaded")
	if !strings.Contains(got, "worker agent failed") {
		t.Errorf("missing failed-role annotation:\n%s", got)
	}
	if !strings.Contains(got, "add the endpoint") || !strings.Contains(got, "overloaded") {
		t.Errorf("missing task or failure text:\n%s", got)
	}
}

func TestPromptSummary(t *testing.T) {
	long := strings.Repeat("x", 400)
	if got := PromptSummary(long); len(got) != 160 {
		t.Errorf("len = %d, want 160", len(got))
	}
	if got := PromptSummary("  short  "); got != "short" {
		t.Errorf("got %q, want trimmed", got)
	}
}
