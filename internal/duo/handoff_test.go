package duo

import (
	"strings"
	"testing"

	"github.com/ShayCichocki/duet/pkg/models"
)

func TestNegotiate_Completion(t *testing.T) {
	tests := []struct {
		name   string
		result string
		want   bool
	}{
		{"explicit completion", "All done. Task completed successfully.", true},
		{"ready for review", "The change is Ready For Review.", true},
		{"all requirements met", "all requirements met, see summary above", true},
		{"no completion phrase", "Working through the first step now.", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Negotiate(models.RoleManager, models.ParsedOutput{Result: tt.result}, 0)
			if v.Complete != tt.want {
				t.Errorf("Complete = %v, want %v", v.Complete, tt.want)
			}
		})
	}
}

func TestNegotiate_CompleteAndHandoffMutuallyExclusive(t *testing.T) {
	// A result that both signals completion and contains delegation verbs
	// must resolve to complete, never both.
	out := models.ParsedOutput{
		Result: "Task completed. Next we could implement more features.",
	}
	v := Negotiate(models.RoleManager, out, 0)
	if !v.Complete {
		t.Error("expected Complete")
	}
	if v.Handoff {
		t.Error("Complete and Handoff must be mutually exclusive")
	}
}

func TestNegotiate_ManagerDelegatesToWorker(t *testing.T) {
	out := models.ParsedOutput{
		Result: "Here is the plan: implement the caching layer first.",
	}
	v := Negotiate(models.RoleManager, out, 0)

	if !v.Handoff {
		t.Fatal("expected handoff")
	}
	if v.NextAgent != models.RoleWorker {
		t.Errorf("NextAgent = %s, want worker", v.NextAgent)
	}
	if v.HandoffTask == "" {
		t.Error("expected a non-empty handoff task")
	}
}

func TestNegotiate_ErroredTurnNeverHandsOff(t *testing.T) {
	out := models.ParsedOutput{
		Result:    "I will implement the fix",
		ErrorText: "connection reset",
	}
	v := Negotiate(models.RoleManager, out, 0)
	if !v.Errored {
		t.Error("expected Errored")
	}
	if v.Handoff || v.Complete {
		t.Errorf("errored turn must not hand off or complete: %+v", v)
	}

	v = Negotiate(models.RoleManager, models.ParsedOutput{Result: "implement it"}, 2)
	if !v.Errored {
		t.Error("non-zero exit must set Errored")
	}
}

func TestNegotiate_WorkerHandsBackForReview(t *testing.T) {
	out := models.ParsedOutput{
		Result:   "Finished the endpoint. All tests pass.",
		Files:    []string{"api/server.go", "api/server_test.go"},
		Commands: []string{"go test ./..."},
		Tools:    []string{"Edit", "Bash"},
	}
	v := Negotiate(models.RoleWorker, out, 0)

	if !v.Handoff {
		t.Fatal("expected handoff back to manager")
	}
	if v.NextAgent != models.RoleManager {
		t.Errorf("NextAgent = %s, want manager", v.NextAgent)
	}
	for _, want := range []string{"api/server.go", "go test ./...", "Edit"} {
		if !strings.Contains(v.HandoffTask, want) {
			t.Errorf("handoff task missing %q:\n%s", want, v.HandoffTask)
		}
	}
	if !strings.Contains(v.HandoffTask, "Finished the endpoint.") {
		t.Errorf("handoff task missing first sentence:\n%s", v.HandoffTask)
	}
}

func TestNegotiate_NeutralTurnContinues(t *testing.T) {
	v := Negotiate(models.RoleWorker, models.ParsedOutput{Result: "Still analyzing the problem."}, 0)
	if v.Complete || v.Errored || v.Handoff {
		t.Errorf("neutral turn should continue with same agent: %+v", v)
	}
}

func TestExtractWorkerTask(t *testing.T) {
	t.Run("harvests numbered and bulleted lines", func(t *testing.T) {
		result := `Plan:
1. Create the cache interface
2) Add the LRU implementation
- update the config loader
* wire it into the server
Implement metrics last
something that is not a step
3. a sixth step beyond the cap is fine
4. and a seventh`
		task := extractWorkerTask(result)

		for _, want := range []string{
			"1. Create the cache interface",
			"2) Add the LRU implementation",
			"- update the config loader",
			"* wire it into the server",
			"Implement metrics last",
		} {
			if !strings.Contains(task, want) {
				t.Errorf("task missing %q:\n%s", want, task)
			}
		}
		if strings.Contains(task, "sixth step") {
			t.Errorf("task should cap at %d items:\n%s", maxHandoffItems, task)
		}
	})

	t.Run("falls back to truncated summary", func(t *testing.T) {
		task := extractWorkerTask("just prose, nothing actionable in list form")
		if !strings.Contains(task, "just prose") {
			t.Errorf("fallback task should include the output summary:\n%s", task)
		}
	})
}

func TestFirstSentence(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Done. More detail follows.", "Done."},
		{"no period here", "no period here"},
		{"   ", ""},
		{"line one\nline two", "line one"},
	}
	for _, tt := range tests {
		if got := firstSentence(tt.in); got != tt.want {
			t.Errorf("firstSentence(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
