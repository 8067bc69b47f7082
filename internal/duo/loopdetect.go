package duo

// taskPrefixLen is how much of a task description the detector keeps.
// Long prompts diverge in their tails (error annotations, synthesized
// summaries) while the leading intent stays stable, so comparing prefixes
// catches near-duplicate tasks without full-text equality.
const taskPrefixLen = 100

// DefaultLoopThreshold is the detection window used when none is
// configured.
const DefaultLoopThreshold = 3

// LoopDetector flags when the orchestration loop is cycling through the
// same task descriptions without progress. It keeps a bounded sliding
// buffer of task prefixes and signals a loop when any entry repeats often
// enough within the most recent threshold observations. This catches exact
// repeats as well as the common A-B-A-B alternation.
type LoopDetector struct {
	threshold int
	buf       []string
}

// NewLoopDetector creates a detector with the given window. A threshold
// < 1 falls back to the default.
func NewLoopDetector(threshold int) *LoopDetector {
	if threshold < 1 {
		threshold = DefaultLoopThreshold
	}
	return &LoopDetector{threshold: threshold}
}

// Threshold returns the configured detection window.
func (d *LoopDetector) Threshold() int {
	return d.threshold
}

// Observe records a task description and reports whether the recent
// history constitutes a loop. Fewer observations than the threshold never
// signal.
func (d *LoopDetector) Observe(task string) bool {
	entry := task
	if len(entry) > taskPrefixLen {
		entry = entry[:taskPrefixLen]
	}

	d.buf = append(d.buf, entry)
	if limit := 2 * d.threshold; len(d.buf) > limit {
		d.buf = d.buf[len(d.buf)-limit:]
	}

	if len(d.buf) < d.threshold {
		return false
	}

	recent := d.buf[len(d.buf)-d.threshold:]
	counts := make(map[string]int, len(recent))
	limit := (d.threshold + 1) / 2 // ceil(threshold/2)
	for _, e := range recent {
		counts[e]++
		if counts[e] >= limit {
			return true
		}
	}
	return false
}
