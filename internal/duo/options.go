package duo

import (
	"time"

	"github.com/ShayCichocki/duet/pkg/models"
)

// DefaultMaxIterations bounds a session when no limit is configured.
const DefaultMaxIterations = 20

// fallbackMinIterations is the minimum iteration budget granted to the
// single-agent continuation, even when the dual-agent loop spent almost
// everything.
const fallbackMinIterations = 3

// Option configures an Orchestrator. Use With* functions to create
// Options.
type Option func(*orchestratorOptions)

type orchestratorOptions struct {
	maxIterations       int
	workDir             string
	allowedTools        []string
	continueOnError     bool
	loopThreshold       int
	maxRetries          int
	escalationThreshold int
	fallbackEnabled     bool
	modelByTier         map[models.Tier]string
	store               SessionStore
	logger              *DebugLogger
	emitter             *EventEmitter
	sleep               func(d time.Duration) <-chan time.Time
}

func defaultOptions() *orchestratorOptions {
	return &orchestratorOptions{
		maxIterations:       DefaultMaxIterations,
		loopThreshold:       DefaultLoopThreshold,
		maxRetries:          DefaultMaxRetries,
		escalationThreshold: DefaultEscalationThreshold,
		fallbackEnabled:     true,
		modelByTier:         map[models.Tier]string{},
		store:               NopStore{},
		logger:              &DebugLogger{},
		sleep:               time.After,
	}
}

// WithMaxIterations sets the iteration budget for the session.
func WithMaxIterations(n int) Option {
	return func(o *orchestratorOptions) {
		if n > 0 {
			o.maxIterations = n
		}
	}
}

// WithWorkDir sets the directory agents operate in.
func WithWorkDir(dir string) Option {
	return func(o *orchestratorOptions) { o.workDir = dir }
}

// WithAllowedTools restricts the tools agents may use.
func WithAllowedTools(tools []string) Option {
	return func(o *orchestratorOptions) { o.allowedTools = tools }
}

// WithContinueOnError makes the loop treat erroring turns like ordinary
// ones instead of routing them through recovery.
func WithContinueOnError(b bool) Option {
	return func(o *orchestratorOptions) { o.continueOnError = b }
}

// WithLoopThreshold sets the repetition detection window.
func WithLoopThreshold(n int) Option {
	return func(o *orchestratorOptions) {
		if n > 0 {
			o.loopThreshold = n
		}
	}
}

// WithMaxRetries sets the session-wide retry budget.
func WithMaxRetries(n int) Option {
	return func(o *orchestratorOptions) {
		if n > 0 {
			o.maxRetries = n
		}
	}
}

// WithEscalationThreshold sets the per-agent failure count that aborts
// the session.
func WithEscalationThreshold(n int) Option {
	return func(o *orchestratorOptions) {
		if n > 0 {
			o.escalationThreshold = n
		}
	}
}

// WithFallback enables or disables the single-agent safety net.
func WithFallback(b bool) Option {
	return func(o *orchestratorOptions) { o.fallbackEnabled = b }
}

// WithModel maps a tier to a concrete model name.
func WithModel(tier models.Tier, model string) Option {
	return func(o *orchestratorOptions) { o.modelByTier[tier] = model }
}

// WithStore sets the session persistence collaborator.
func WithStore(s SessionStore) Option {
	return func(o *orchestratorOptions) {
		if s != nil {
			o.store = s
		}
	}
}

// WithLogger sets the debug logger.
func WithLogger(l *DebugLogger) Option {
	return func(o *orchestratorOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithEmitter sets the event emitter for subscribers such as the TUI.
func WithEmitter(e *EventEmitter) Option {
	return func(o *orchestratorOptions) { o.emitter = e }
}

// withSleep replaces the backoff timer, for tests.
func withSleep(fn func(d time.Duration) <-chan time.Time) Option {
	return func(o *orchestratorOptions) { o.sleep = fn }
}
