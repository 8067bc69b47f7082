package api

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/google/uuid"

	"github.com/ShayCichocki/duet/internal/duo"
	"github.com/ShayCichocki/duet/pkg/models"
)

var _ duo.Executor = (*Executor)(nil)

// defaultMaxTurns bounds the inner tool-use loop of one invocation.
const defaultMaxTurns = 30

// systemPrompt frames every API-mode invocation.
const systemPrompt = "You are an AI assistant working on software development tasks in the given repository."

// Executor runs agent invocations directly against the Anthropic API
// instead of spawning the claude CLI. Conversations persist across
// invocations: each Execute call returns a session handle, and passing it
// back resumes the same message history, mirroring the CLI's --resume.
type Executor struct {
	client     *Client
	useBedrock bool
	maxTurns   int

	mu            sync.Mutex
	conversations map[string][]anthropic.MessageParam
}

// NewExecutor creates an API-backed executor.
func NewExecutor(client *Client, useBedrock bool) *Executor {
	return &Executor{
		client:        client,
		useBedrock:    useBedrock,
		maxTurns:      defaultMaxTurns,
		conversations: make(map[string][]anthropic.MessageParam),
	}
}

// Execute runs one agent invocation: an agent loop of model calls and
// tool executions until the model ends its turn or the turn budget runs
// out. Failures are reported in the result rather than as an error so the
// orchestration loop can classify them.
func (e *Executor) Execute(ctx context.Context, prompt string, opts models.ExecuteOptions) (*models.ExecResult, error) {
	start := time.Now()

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	handle := opts.SessionHandle
	if handle == "" {
		handle = uuid.NewString()
	}
	messages := append(e.history(handle), anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)))

	model := anthropic.Model(opts.Model)
	if model == "" {
		model = anthropic.ModelClaudeSonnet4_20250514
	}
	if e.useBedrock {
		model = translateModelForBedrock(model)
	}

	tools := FilterTools(ToolDefinitions(), opts.AllowedTools)
	toolExec := NewToolExecutor(opts.WorkDir)

	var (
		finalText string
		toolNames = make(map[string]struct{})
		tokens    int64
	)

	for turn := 0; turn < e.maxTurns; turn++ {
		if err := ctx.Err(); err != nil {
			return e.failedResult(handle, messages, toolExec, toolNames, tokens,
				fmt.Sprintf("invocation canceled: %v", err), start), nil
		}

		resp, err := e.client.sdk().Messages.New(ctx, anthropic.MessageNewParams{
			Model:     model,
			MaxTokens: 8192,
			System: []anthropic.TextBlockParam{
				{Text: systemPrompt},
			},
			Messages: messages,
			Tools:    tools,
		})
		if err != nil {
			return e.failedResult(handle, messages, toolExec, toolNames, tokens,
				fmt.Sprintf("API error: %v", err), start), nil
		}

		e.client.Tracker().Add(resp.Usage.InputTokens, resp.Usage.OutputTokens)
		tokens += resp.Usage.InputTokens + resp.Usage.OutputTokens

		var assistantBlocks []anthropic.ContentBlockParamUnion
		var toolResultBlocks []anthropic.ContentBlockParamUnion
		var turnText string

		for _, block := range resp.Content {
			switch variant := block.AsAny().(type) {
			case anthropic.TextBlock:
				turnText += variant.Text
				assistantBlocks = append(assistantBlocks, anthropic.NewTextBlock(variant.Text))

			case anthropic.ToolUseBlock:
				toolNames[variant.Name] = struct{}{}
				result := toolExec.Execute(ctx, variant.Name, variant.Input)

				assistantBlocks = append(assistantBlocks,
					anthropic.NewToolUseBlock(variant.ID, variant.Input, variant.Name))
				toolResultBlocks = append(toolResultBlocks,
					anthropic.NewToolResultBlock(variant.ID, result.Content, result.IsError))
			}
		}

		messages = append(messages, anthropic.NewAssistantMessage(assistantBlocks...))
		if len(toolResultBlocks) > 0 {
			messages = append(messages, anthropic.NewUserMessage(toolResultBlocks...))
		}

		if resp.StopReason == anthropic.StopReasonEndTurn {
			finalText = turnText
			break
		}
	}

	e.remember(handle, messages)

	out := models.ParsedOutput{
		Result:        finalText,
		Files:         sortedStrings(toolExec.TouchedFiles()),
		Commands:      toolExec.Commands(),
		Tools:         sortedSet(toolNames),
		SessionHandle: handle,
		TokensUsed:    tokens,
		Cost:          estimateCost(tokens),
	}
	if finalText == "" {
		out.ErrorText = fmt.Sprintf("agent loop exhausted %d turns without ending", e.maxTurns)
	}

	res := &models.ExecResult{
		Output:   out,
		Duration: time.Since(start),
	}
	if out.HasError() {
		res.ExitCode = 1
	}
	return res, nil
}

// failedResult preserves the conversation and reports the failure through
// the result so recovery can classify it.
func (e *Executor) failedResult(handle string, messages []anthropic.MessageParam, toolExec *ToolExecutor,
	toolNames map[string]struct{}, tokens int64, errText string, start time.Time) *models.ExecResult {

	e.remember(handle, messages)
	return &models.ExecResult{
		Output: models.ParsedOutput{
			Files:         sortedStrings(toolExec.TouchedFiles()),
			Commands:      toolExec.Commands(),
			Tools:         sortedSet(toolNames),
			ErrorText:     errText,
			SessionHandle: handle,
			TokensUsed:    tokens,
			Cost:          estimateCost(tokens),
		},
		ExitCode: 1,
		Duration: time.Since(start),
	}
}

func (e *Executor) history(handle string) []anthropic.MessageParam {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conversations[handle]
}

func (e *Executor) remember(handle string, messages []anthropic.MessageParam) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.conversations[handle] = messages
}

// Forget drops a stored conversation. The orchestrator clears handles on
// certain recoveries; dropping the history here keeps memory bounded.
func (e *Executor) Forget(handle string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.conversations, handle)
}

// estimateCost approximates the dollar cost of a call from combined token
// counts, using Sonnet pricing weighted toward input tokens.
func estimateCost(tokens int64) float64 {
	return float64(tokens) / 1_000_000 * 6.0
}

func sortedStrings(s []string) []string {
	sort.Strings(s)
	return s
}

func sortedSet(m map[string]struct{}) []string {
	if len(m) == 0 {
		return nil
	}
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
