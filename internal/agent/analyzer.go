package agent

import (
	"sort"
	"strings"

	"github.com/ShayCichocki/duet/pkg/models"
)

// Analyzer folds a stream of CLI events into a structured output: the
// final result text, the files and commands touched along the way, the
// tools used, any error text, and the resumable session handle.
type Analyzer struct {
	result    strings.Builder
	assistant strings.Builder
	errs      []string
	files     map[string]struct{}
	commands  []string
	tools     map[string]struct{}
	handle    string
	cost      float64
	tokens    int64
}

// NewAnalyzer creates an empty Analyzer.
func NewAnalyzer() *Analyzer {
	return &Analyzer{
		files: make(map[string]struct{}),
		tools: make(map[string]struct{}),
	}
}

// Feed processes one stream event.
func (a *Analyzer) Feed(ev StreamEvent) {
	if ev.SessionID != "" {
		a.handle = ev.SessionID
	}

	switch ev.Type {
	case StreamEventResult:
		a.result.WriteString(ev.Message)
		a.cost += ev.CostUSD
		a.tokens += int64(ev.Tokens)
		if ev.Error != "" {
			a.errs = append(a.errs, ev.Error)
		}
	case StreamEventAssistant:
		if ev.Message != "" {
			if a.assistant.Len() > 0 {
				a.assistant.WriteString("\n")
			}
			a.assistant.WriteString(ev.Message)
		}
		if tu := ev.ToolUse; tu != nil {
			a.tools[tu.Name] = struct{}{}
			switch tu.Name {
			case "Write", "Edit":
				if tu.Path != "" {
					a.files[tu.Path] = struct{}{}
				}
			case "Bash":
				if tu.Command != "" {
					a.commands = append(a.commands, tu.Command)
				}
			}
		}
	case StreamEventError:
		if ev.Error != "" {
			a.errs = append(a.errs, ev.Error)
		}
	}
}

// Result builds the final ParsedOutput. When the CLI produced no result
// event the accumulated assistant text stands in for it.
func (a *Analyzer) Result() models.ParsedOutput {
	out := models.ParsedOutput{
		Result:        a.result.String(),
		Files:         sortedKeys(a.files),
		Commands:      a.commands,
		Tools:         sortedKeys(a.tools),
		ErrorText:     strings.Join(a.errs, "\n"),
		SessionHandle: a.handle,
		Cost:          a.cost,
		TokensUsed:    a.tokens,
	}
	if out.Result == "" {
		out.Result = a.assistant.String()
	}
	return out
}

// Analyze folds a complete event slice in one call.
func Analyze(events []StreamEvent) models.ParsedOutput {
	a := NewAnalyzer()
	for _, ev := range events {
		a.Feed(ev)
	}
	return a.Result()
}

func sortedKeys(m map[string]struct{}) []string {
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
