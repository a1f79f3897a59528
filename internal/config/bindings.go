package config

// Binding pairs one watch pattern with at most one build target.
type Binding struct {
	// Pattern is the glob the watcher monitors.
	Pattern string

	// Target is the build target argument. Empty means no build.
	Target string
}

// HasTarget reports whether a change on the pattern triggers a build.
func (b Binding) HasTarget() bool {
	return b.Target != ""
}

// Bind pairs patterns with targets by position. Pattern i gets targets[i]
// when it exists; patterns past the end of targets have no target.
func Bind(patterns, targets []string) []Binding {
	bindings := make([]Binding, len(patterns))
	for i, pattern := range patterns {
		bindings[i] = Binding{Pattern: pattern}
		if i < len(targets) {
			bindings[i].Target = targets[i]
		}
	}
	return bindings
}

// UnboundTargets returns the targets that have no pattern at their index.
func UnboundTargets(patterns, targets []string) []string {
	if len(targets) <= len(patterns) {
		return nil
	}
	out := make([]string, 0, len(targets)-len(patterns))
	for _, target := range targets[len(patterns):] {
		if target != "" {
			out = append(out, target)
		}
	}
	return out
}
