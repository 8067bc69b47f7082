package duo

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ShayCichocki/duet/pkg/models"
)

// Verdict is the handoff negotiator's reading of a completed agent turn.
// Complete and Handoff are mutually exclusive.
type Verdict struct {
	// Complete means the agent signaled the task is done.
	Complete bool
	// Errored means the turn failed (non-zero exit or error output).
	Errored bool
	// Handoff means control should pass to the other agent.
	Handoff bool
	// NextAgent is the receiving role when Handoff is set.
	NextAgent models.Role
	// HandoffTask is the task handed to the receiving agent.
	HandoffTask string
	// NextTask, when set, replaces the current task for the same agent.
	NextTask string
}

// completionPhrases end the session when any appears in a result text,
// case-insensitive. The match is intentionally permissive: a false
// negative only costs one extra iteration, while a stricter match risks
// sessions that never terminate. The known weakness is a phrase like
// "ready for review" appearing mid-explanation rather than as a status
// signal; do not tighten this list without data on both failure modes.
var completionPhrases = []string{
	"task completed",
	"task complete",
	"all requirements met",
	"ready for review",
	"implementation complete",
	"all tasks are done",
}

// managerDelegationVerbs in a manager's output trigger a handoff to the
// worker.
var managerDelegationVerbs = []string{"implement", "code", "build"}

// workerCompletionVerbs in a worker's output trigger a handoff back to the
// manager for review.
var workerCompletionVerbs = []string{"completed", "done", "finished"}

// directiveLine matches numbered or bulleted lines and lines starting with
// a directive verb; these are harvested into the worker's handoff task.
var directiveLine = regexp.MustCompile(`(?i)^\s*(?:\d+[.)]\s+|[-*]\s+|(?:implement|create|add|update)\b)`)

// maxHandoffItems caps how many directive lines are concatenated into a
// handoff task.
const maxHandoffItems = 5

// Negotiate inspects a completed turn and decides whether control passes
// to the other agent, stays put, or the session is complete.
func Negotiate(role models.Role, out models.ParsedOutput, exitCode int) Verdict {
	v := Verdict{
		Errored: exitCode != 0 || out.HasError(),
	}

	if isComplete(out.Result) {
		v.Complete = true
		return v
	}
	if v.Errored {
		return v
	}

	lower := strings.ToLower(out.Result)
	switch role {
	case models.RoleManager:
		if containsAnyWord(lower, managerDelegationVerbs) {
			v.Handoff = true
			v.NextAgent = models.RoleWorker
			v.HandoffTask = extractWorkerTask(out.Result)
		}
	case models.RoleWorker:
		if containsAnyWord(lower, workerCompletionVerbs) {
			v.Handoff = true
			v.NextAgent = models.RoleManager
			v.HandoffTask = buildReviewTask(out)
		}
	}

	return v
}

// isComplete reports whether the result text carries a completion phrase.
func isComplete(result string) bool {
	lower := strings.ToLower(result)
	for _, phrase := range completionPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

func containsAnyWord(lower string, words []string) bool {
	for _, w := range words {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

// extractWorkerTask scans a manager's output for actionable lines and
// concatenates up to maxHandoffItems of them. When none are found it falls
// back to a truncated summary of the whole output.
func extractWorkerTask(result string) string {
	var items []string
	for _, line := range strings.Split(result, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if directiveLine.MatchString(line) {
			items = append(items, trimmed)
			if len(items) == maxHandoffItems {
				break
			}
		}
	}

	if len(items) == 0 {
		return fmt.Sprintf("Implement the following plan:\n%s", truncate(result, 500))
	}
	return fmt.Sprintf("Implement the following steps:\n%s", strings.Join(items, "\n"))
}

// buildReviewTask synthesizes the review request handed back to the
// manager after a worker turn: what was touched, what ran, and the
// worker's own first sentence.
func buildReviewTask(out models.ParsedOutput) string {
	var b strings.Builder
	b.WriteString("Review the work just completed.")
	if s := firstSentence(out.Result); s != "" {
		fmt.Fprintf(&b, " Worker reports: %s", s)
	}
	if len(out.Files) > 0 {
		fmt.Fprintf(&b, "\nFiles touched: %s", strings.Join(out.Files, ", "))
	}
	if len(out.Commands) > 0 {
		fmt.Fprintf(&b, "\nCommands run: %s", strings.Join(out.Commands, ", "))
	}
	if len(out.Tools) > 0 {
		fmt.Fprintf(&b, "\nTools used: %s", strings.Join(out.Tools, ", "))
	}
	b.WriteString("\nConfirm the task is complete or delegate the remaining work.")
	return b.String()
}

// firstSentence returns the text up to and including the first period, or
// a truncated prefix when the result has no sentence break.
func firstSentence(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if idx := strings.IndexAny(s, ".\n"); idx >= 0 {
		return strings.TrimSpace(s[:idx+1])
	}
	return truncate(s, 120)
}
