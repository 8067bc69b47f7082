package models

import "time"

// ParsedOutput is the structured record distilled from one agent invocation.
// The orchestration core depends only on this shape; how it is produced is
// the executor's concern.
type ParsedOutput struct {
	// Result is the final result text of the invocation.
	Result string `json:"result"`
	// Files lists files the agent created or modified.
	Files []string `json:"files,omitempty"`
	// Commands lists shell commands the agent ran.
	Commands []string `json:"commands,omitempty"`
	// Tools lists the distinct tool names the agent used.
	Tools []string `json:"tools,omitempty"`
	// ErrorText carries error output, empty when the invocation succeeded.
	ErrorText string `json:"error_text,omitempty"`
	// SessionHandle is the opaque resumption token issued by the external
	// tool. The orchestrator passes it back on the next call for the same
	// agent and never inspects it.
	SessionHandle string `json:"session_handle,omitempty"`
	// TokensUsed is the token count reported for the invocation, if any.
	TokensUsed int64 `json:"tokens_used,omitempty"`
	// Cost is the reported cost in dollars, if any.
	Cost float64 `json:"cost,omitempty"`
}

// HasError returns true if the output carries error text.
func (p *ParsedOutput) HasError() bool {
	return p.ErrorText != ""
}

// ExecResult is the outcome of a single agent invocation.
type ExecResult struct {
	// Output is the analyzed, structured output.
	Output ParsedOutput
	// RawOutput is the unmodified captured output, kept for logs.
	RawOutput string
	// ExitCode is the process exit status. API-backed executors report 0
	// on success and 1 on failure.
	ExitCode int
	// Duration is how long the invocation took.
	Duration time.Duration
}

// Failed returns true if the invocation exited non-zero or produced error
// output.
func (r *ExecResult) Failed() bool {
	return r.ExitCode != 0 || r.Output.HasError()
}

// ExecuteOptions carries per-invocation parameters for an executor.
type ExecuteOptions struct {
	// Model is the concrete model name to run with.
	Model string
	// SessionHandle resumes a previous invocation's conversational state
	// when non-empty.
	SessionHandle string
	// WorkDir is the directory the agent operates in.
	WorkDir string
	// AllowedTools restricts which tools the agent may use.
	AllowedTools []string
	// Timeout bounds the invocation; the executor must terminate the
	// underlying process when it expires.
	Timeout time.Duration
}
