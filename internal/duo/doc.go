// Package duo implements the dual-agent orchestration engine: a control
// loop that alternates a planning Manager agent and an implementing Worker
// agent, each realized as an independent invocation of an external
// code-generation CLI. The loop decides which agent runs next, what prompt
// it receives, how its output is interpreted, how handoffs between the two
// are negotiated, how failures are classified and recovered from, and when
// to give up and fall back to a single-agent strategy.
package duo
