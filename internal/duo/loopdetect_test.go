package duo

import (
	"fmt"
	"strings"
	"testing"
)

func TestLoopDetector_Observe(t *testing.T) {
	tests := []struct {
		name      string
		threshold int
		tasks     []string
		// want holds the expected signal for each observation.
		want []bool
	}{
		{
			name:      "alternation within window",
			threshold: 3,
			tasks:     []string{"A", "B", "A"},
			want:      []bool{false, false, true},
		},
		{
			name:      "three distinct tasks",
			threshold: 3,
			tasks:     []string{"A", "B", "C"},
			want:      []bool{false, false, false},
		},
		{
			name:      "exact triple repeat",
			threshold: 3,
			tasks:     []string{"fix the parser", "fix the parser", "fix the parser"},
			want:      []bool{false, false, true},
		},
		{
			name:      "fewer observations than threshold never signal",
			threshold: 5,
			tasks:     []string{"A", "A", "A", "A"},
			want:      []bool{false, false, false, false},
		},
		{
			name:      "repeat outside the recent window",
			threshold: 3,
			tasks:     []string{"A", "B", "C", "D", "A"},
			want:      []bool{false, false, false, false, false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewLoopDetector(tt.threshold)
			for i, task := range tt.tasks {
				got := d.Observe(task)
				if got != tt.want[i] {
					t.Errorf("observation %d (%q) = %v, want %v", i+1, task, got, tt.want[i])
				}
			}
		})
	}
}

func TestLoopDetector_PrefixNormalization(t *testing.T) {
	// Long prompts that share the first 100 characters count as the same
	// entry even when their tails differ.
	base := strings.Repeat("x", taskPrefixLen)
	d := NewLoopDetector(3)

	d.Observe(base + " first tail")
	d.Observe("something else entirely")
	if !d.Observe(base + " completely different tail") {
		t.Error("expected loop for tasks sharing a 100-char prefix")
	}
}

func TestLoopDetector_BufferBounded(t *testing.T) {
	d := NewLoopDetector(3)
	for i := 0; i < 100; i++ {
		d.Observe(fmt.Sprintf("task %d", i))
	}
	if len(d.buf) > 2*d.threshold {
		t.Errorf("buffer grew to %d entries, cap is %d", len(d.buf), 2*d.threshold)
	}
}

func TestNewLoopDetector_DefaultThreshold(t *testing.T) {
	d := NewLoopDetector(0)
	if d.Threshold() != DefaultLoopThreshold {
		t.Errorf("Threshold() = %d, want %d", d.Threshold(), DefaultLoopThreshold)
	}
}
