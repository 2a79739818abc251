package orchestrator

import (
	"strings"

	"github.com/fixkit/mend/internal/task"
)

// ParseConstraints normalizes the constraint lists given at submission
// into the task's immutable constraint set: entries are trimmed,
// de-duplicated and emptied values dropped. This happens exactly once;
// the result never changes afterwards.
func ParseConstraints(mustPreserve, nonGoals, boundaryPaths []string) task.Constraints {
	return task.Constraints{
		MustPreserve:  normalize(mustPreserve),
		NonGoals:      normalize(nonGoals),
		BoundaryPaths: normalize(boundaryPaths),
	}
}

func normalize(values []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
