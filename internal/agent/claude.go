// Package agent runs coding-agent invocations for duet: it spawns the
// claude CLI, parses its stream-json output, and folds the event stream
// into a structured result the orchestrator can act on.
package agent

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"github.com/ShayCichocki/duet/pkg/models"
)

// StreamEventType represents the type of stream event from the CLI.
type StreamEventType string

const (
	// StreamEventSystem indicates a system message.
	StreamEventSystem StreamEventType = "system"
	// StreamEventAssistant indicates an assistant message.
	StreamEventAssistant StreamEventType = "assistant"
	// StreamEventUser indicates a user message.
	StreamEventUser StreamEventType = "user"
	// StreamEventResult indicates a final result.
	StreamEventResult StreamEventType = "result"
	// StreamEventError indicates an error.
	StreamEventError StreamEventType = "error"
)

// ToolUse records one tool invocation seen in the stream.
type ToolUse struct {
	// Name is the tool name (e.g. "Edit", "Bash").
	Name string
	// Path is the file path argument, when the tool takes one.
	Path string
	// Command is the shell command, for Bash invocations.
	Command string
}

// StreamEvent represents a parsed event from the CLI's stream-json output.
type StreamEvent struct {
	// Type is the event type.
	Type StreamEventType `json:"type"`
	// Message contains the event content when applicable.
	Message string `json:"message,omitempty"`
	// Error contains error details when Type is StreamEventError.
	Error string `json:"error,omitempty"`
	// SessionID is the resumable session identifier, when reported.
	SessionID string `json:"session_id,omitempty"`
	// CostUSD is the cumulative cost reported on result events.
	CostUSD float64 `json:"cost_usd,omitempty"`
	// Tokens is the combined token usage reported on result events.
	Tokens int `json:"tokens,omitempty"`
	// ToolUse describes the tool invocation in assistant events, if any.
	ToolUse *ToolUse `json:"tool_use,omitempty"`
	// Raw contains the original JSON for debugging.
	Raw json.RawMessage `json:"-"`
}

// ClaudeProcess manages one claude CLI subprocess.
type ClaudeProcess struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr io.ReadCloser

	ctx       context.Context
	cancel    context.CancelFunc
	outputCh  chan StreamEvent
	stderrBuf []byte
	once      sync.Once
	mu        sync.Mutex
	started   bool
	readers   sync.WaitGroup
	done      chan struct{}
}

// NewClaudeProcess creates a new ClaudeProcess with the given context.
// The context is used for timeout cancellation.
func NewClaudeProcess(ctx context.Context) *ClaudeProcess {
	ctx, cancel := context.WithCancel(ctx)
	return &ClaudeProcess{
		ctx:      ctx,
		cancel:   cancel,
		outputCh: make(chan StreamEvent, 100),
		done:     make(chan struct{}),
	}
}

// defaultAllowedTools is passed when the caller restricts nothing. The
// project's .claude/settings.json can still deny specific patterns.
var defaultAllowedTools = []string{"Read", "Write", "Edit", "Bash", "Glob", "Grep", "WebFetch"}

// buildArgs assembles the CLI argument list for one invocation. The prompt
// is always last.
func buildArgs(prompt string, opts models.ExecuteOptions) []string {
	args := []string{
		"--output-format", "stream-json",
		"--print",
		"--verbose",
	}

	tools := opts.AllowedTools
	if len(tools) == 0 {
		tools = defaultAllowedTools
	}
	args = append(args, "--allowedTools", strings.Join(tools, ","))

	if opts.Model != "" {
		args = append(args, "--model", opts.Model)
	}
	if opts.SessionHandle != "" {
		args = append(args, "--resume", opts.SessionHandle)
	}

	return append(args, "-p", prompt)
}

// Start launches the claude subprocess for one prompt. Output flows on the
// channel returned by Output until the process exits.
func (p *ClaudeProcess) Start(prompt string, opts models.ExecuteOptions) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return fmt.Errorf("process already started")
	}

	p.cmd = exec.CommandContext(p.ctx, "claude", buildArgs(prompt, opts)...)
	if opts.WorkDir != "" {
		p.cmd.Dir = opts.WorkDir
	}

	var err error
	p.stdout, err = p.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}

	p.stderr, err = p.cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("create stderr pipe: %w", err)
	}

	if err := p.cmd.Start(); err != nil {
		return fmt.Errorf("start process: %w", err)
	}

	p.started = true

	// Both readers send on outputCh, so the channel closes only after
	// both have returned.
	p.readers.Add(2)
	go p.readOutput()
	go p.readStderr()
	go func() {
		p.readers.Wait()
		close(p.outputCh)
		close(p.done)
	}()

	return nil
}

// readOutput reads and parses JSON events from stdout.
func (p *ClaudeProcess) readOutput() {
	defer p.readers.Done()

	scanner := bufio.NewScanner(p.stdout)
	// Increase buffer size for large JSON objects
	buf := make([]byte, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	for scanner.Scan() {
		select {
		case <-p.ctx.Done():
			return
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		event, err := ParseStreamEvent(line)
		if err != nil {
			p.outputCh <- StreamEvent{
				Type:  StreamEventError,
				Error: fmt.Sprintf("parse error: %v", err),
				Raw:   line,
			}
			continue
		}

		select {
		case p.outputCh <- event:
		case <-p.ctx.Done():
			return
		}
	}

	if err := scanner.Err(); err != nil && p.ctx.Err() == nil {
		p.outputCh <- StreamEvent{
			Type:  StreamEventError,
			Error: fmt.Sprintf("read error: %v", err),
		}
	}
}

// readStderr reads stderr output incrementally and emits it as error
// events so startup hangs are diagnosable.
func (p *ClaudeProcess) readStderr() {
	defer p.readers.Done()

	scanner := bufio.NewScanner(p.stderr)
	buf := make([]byte, 16*1024)
	scanner.Buffer(buf, 256*1024)

	var allStderr []byte
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		p.mu.Lock()
		allStderr = append(allStderr, line...)
		allStderr = append(allStderr, '\n')
		p.stderrBuf = allStderr
		p.mu.Unlock()

		select {
		case p.outputCh <- StreamEvent{
			Type:  StreamEventError,
			Error: fmt.Sprintf("[stderr] %s", string(line)),
		}:
		case <-p.ctx.Done():
			return
		default:
			// Channel full, skip emitting but still capture in buffer
		}
	}

	if err := scanner.Err(); err != nil && p.ctx.Err() == nil {
		p.mu.Lock()
		errMsg := fmt.Sprintf("[stderr read error: %v]", err)
		allStderr = append(allStderr, []byte(errMsg)...)
		p.stderrBuf = allStderr
		p.mu.Unlock()
	}
}

// ParseStreamEvent parses one JSON line into a StreamEvent.
func ParseStreamEvent(data []byte) (StreamEvent, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return StreamEvent{}, fmt.Errorf("unmarshal json: %w", err)
	}

	event := StreamEvent{
		Raw: data,
	}

	if t, ok := raw["type"].(string); ok {
		event.Type = StreamEventType(t)
	}
	if sid, ok := raw["session_id"].(string); ok {
		event.SessionID = sid
	}

	switch event.Type {
	case StreamEventSystem, StreamEventAssistant, StreamEventUser:
		if msg, ok := raw["message"].(string); ok {
			event.Message = msg
		} else if content, ok := raw["content"].(string); ok {
			event.Message = content
		}
		if event.Type == StreamEventAssistant {
			event.ToolUse = extractToolUse(raw)
			if event.Message == "" {
				event.Message = extractAssistantText(raw)
			}
		}
	case StreamEventResult:
		if result, ok := raw["result"].(string); ok {
			event.Message = result
		} else if content, ok := raw["content"].(string); ok {
			event.Message = content
		}
		if cost, ok := raw["total_cost_usd"].(float64); ok {
			event.CostUSD = cost
		} else if cost, ok := raw["cost_usd"].(float64); ok {
			event.CostUSD = cost
		}
		if usage, ok := raw["usage"].(map[string]interface{}); ok {
			if in, ok := usage["input_tokens"].(float64); ok {
				event.Tokens += int(in)
			}
			if out, ok := usage["output_tokens"].(float64); ok {
				event.Tokens += int(out)
			}
		}
		if isErr, ok := raw["is_error"].(bool); ok && isErr {
			event.Error = event.Message
		}
	case StreamEventError:
		if errMsg, ok := raw["error"].(string); ok {
			event.Error = errMsg
		} else if msg, ok := raw["message"].(string); ok {
			event.Error = msg
		}
	}

	return event, nil
}

// extractToolUse finds the first tool_use block in an assistant event.
// The CLI emits tool_use in a few shapes, so all are checked.
func extractToolUse(raw map[string]interface{}) *ToolUse {
	// Pattern 1: message.content is an array with tool_use objects
	if msg, ok := raw["message"].(map[string]interface{}); ok {
		if content, ok := msg["content"].([]interface{}); ok {
			if tu := toolUseFromContent(content); tu != nil {
				return tu
			}
		}
	}

	// Pattern 2: content is an array at top level
	if content, ok := raw["content"].([]interface{}); ok {
		if tu := toolUseFromContent(content); tu != nil {
			return tu
		}
	}

	// Pattern 3: direct tool_use field
	if block, ok := raw["tool_use"].(map[string]interface{}); ok {
		return toolUseFromBlock(block)
	}

	return nil
}

func toolUseFromContent(content []interface{}) *ToolUse {
	for _, item := range content {
		if block, ok := item.(map[string]interface{}); ok {
			if blockType, _ := block["type"].(string); blockType == "tool_use" {
				return toolUseFromBlock(block)
			}
		}
	}
	return nil
}

func toolUseFromBlock(block map[string]interface{}) *ToolUse {
	name, _ := block["name"].(string)
	if name == "" {
		return nil
	}

	tu := &ToolUse{Name: name}
	input, _ := block["input"].(map[string]interface{})
	if path, ok := input["file_path"].(string); ok {
		tu.Path = path
	}
	if cmd, ok := input["command"].(string); ok {
		tu.Command = cmd
	}
	return tu
}

// extractAssistantText pulls the text blocks out of a structured assistant
// message.
func extractAssistantText(raw map[string]interface{}) string {
	msg, ok := raw["message"].(map[string]interface{})
	if !ok {
		return ""
	}
	content, ok := msg["content"].([]interface{})
	if !ok {
		return ""
	}

	var text string
	for _, item := range content {
		block, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		if blockType, _ := block["type"].(string); blockType == "text" {
			if t, ok := block["text"].(string); ok {
				if text != "" {
					text += "\n"
				}
				text += t
			}
		}
	}
	return text
}

// Output returns a channel that receives stream events from the process.
// The channel is closed when the process exits or is killed.
func (p *ClaudeProcess) Output() <-chan StreamEvent {
	return p.outputCh
}

// Wait waits for the process to exit and returns any error.
func (p *ClaudeProcess) Wait() error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return fmt.Errorf("process not started")
	}
	p.mu.Unlock()

	// Wait for output reading to complete
	<-p.done

	err := p.cmd.Wait()
	if err != nil {
		p.mu.Lock()
		stderr := string(p.stderrBuf)
		p.mu.Unlock()

		errMsg := fmt.Sprintf("process exited with error: %v", err)
		if p.ctx.Err() != nil {
			errMsg += fmt.Sprintf(" (context: %v)", p.ctx.Err())
		}
		if stderr != "" {
			errMsg += fmt.Sprintf("; stderr: %s", stderr)
		}
		return fmt.Errorf("%s", errMsg)
	}
	return nil
}

// Kill terminates the process immediately.
func (p *ClaudeProcess) Kill() error {
	p.once.Do(func() {
		p.cancel()
	})

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started || p.cmd.Process == nil {
		return nil
	}

	return p.cmd.Process.Kill()
}

// ExitCode returns the subprocess exit code, or -1 when unavailable.
func (p *ClaudeProcess) ExitCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd == nil || p.cmd.ProcessState == nil {
		return -1
	}
	return p.cmd.ProcessState.ExitCode()
}

// Stderr returns any stderr output captured from the process.
func (p *ClaudeProcess) Stderr() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return string(p.stderrBuf)
}

// PID returns the process ID of the subprocess, or 0 if not started.
func (p *ClaudeProcess) PID() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd != nil && p.cmd.Process != nil {
		return p.cmd.Process.Pid
	}
	return 0
}
