package duo

import (
	"fmt"
	"strings"

	"github.com/ShayCichocki/duet/pkg/models"
)

// Role framing prepended to every prompt so each invocation knows which
// side of the pair it is, even when the underlying session was resumed.
const (
	managerFraming = `You are the MANAGER agent in a two-agent pair working on a coding task.
You plan, break work into concrete steps, delegate implementation to the
worker agent, and review its results. Do not implement large changes
yourself; produce clear, numbered instructions instead. When the overall
task is genuinely finished, state "task completed" and summarize.`

	workerFraming = `You are the WORKER agent in a two-agent pair working on a coding task.
You implement the steps the manager delegates: write code, run commands,
and fix what breaks. Report concretely what you changed and say "done"
when the delegated step is finished. When the overall task is genuinely
finished, state "task completed".`
)

// singleFraming frames the single-agent fallback continuation.
const singleFraming = `You are working alone on a coding task. Plan briefly, implement, and
verify your own work. When the task is genuinely finished, state
"task completed" and summarize.`

// contextMessageLimit is how many recent cross-agent messages are included
// in each prompt.
const contextMessageLimit = 3

// BuildPrompt assembles the role-framed prompt for one invocation: framing
// text, up to contextMessageLimit recent cross-agent messages, and the
// current task.
func BuildPrompt(role models.Role, recent []*AgentMessage, task string) string {
	var b strings.Builder
	switch role {
	case models.RoleManager:
		b.WriteString(managerFraming)
	case models.RoleWorker:
		b.WriteString(workerFraming)
	}
	b.WriteString("\n")

	if len(recent) > 0 {
		b.WriteString("\nRecent agent conversation:\n")
		for _, m := range recent {
			fmt.Fprintf(&b, "[%s -> %s] %s\n", m.From, m.To, truncate(m.Content, 300))
		}
	}

	fmt.Fprintf(&b, "\nCurrent task:\n%s\n", task)
	return b.String()
}

// BuildSinglePrompt assembles the prompt for the single-agent fallback.
func BuildSinglePrompt(task string) string {
	return fmt.Sprintf("%s\n\nCurrent task:\n%s\n", singleFraming, task)
}

// ContinuationTask synthesizes the follow-up task when a turn neither
// completed, erred, nor handed off: fix the reported error, act on the
// result, or just keep going.
func ContinuationTask(out models.ParsedOutput) string {
	switch {
	case out.HasError():
		return fmt.Sprintf("The previous attempt reported an error:\n%s\nFix the error and continue the task.",
			truncate(out.ErrorText, 300))
	case strings.TrimSpace(out.Result) != "":
		return fmt.Sprintf("Review your previous output and proceed with the next step:\n%s",
			truncate(out.Result, 300))
	default:
		return "Continue working on the task."
	}
}

// ErrorFollowupTask annotates the current task with the failure so a
// retried agent knows what went wrong.
func ErrorFollowupTask(task, errText string) string {
	return fmt.Sprintf("%s\n\nThe previous attempt failed:\n%s\nAvoid repeating the failure.",
		task, truncate(errText, 300))
}

// SwitchAnnotatedTask frames the task for the agent taking over after the
// other one failed.
func SwitchAnnotatedTask(task string, failed models.Role, errText string) string {
	return fmt.Sprintf("The %s agent failed on this task:\n%s\n\nFailure:\n%s\nTake over and make progress.",
		failed, task, truncate(errText, 300))
}

// PromptSummary is the truncated prompt stored on iteration records.
func PromptSummary(prompt string) string {
	return truncate(strings.TrimSpace(prompt), 160)
}
