package workflow

import (
	"slices"
	"strings"
)

// UnmetDependencies lists the dependencies of s that are not DONE, in
// declaration order. Unresolvable IDs count as unmet.
func UnmetDependencies(s *Story, idx StoryIndex) []string {
	var out []string
	for _, id := range s.Dependencies {
		dep, ok := idx[id]
		if !ok || dep.Status != StatusDone {
			out = append(out, id)
		}
	}
	return out
}

func DependenciesCompleted(s *Story, idx StoryIndex) bool {
	return len(UnmetDependencies(s, idx)) == 0
}

func CanBeStarted(s *Story, idx StoryIndex) bool {
	return s.Status == StatusTodo && DependenciesCompleted(s, idx)
}

// NormalizeDependencies trims, dedupes and rejects self references.
func NormalizeDependencies(storyID string, deps []string) ([]string, error) {
	seen := make(map[string]bool, len(deps))
	out := make([]string, 0, len(deps))
	for _, raw := range deps {
		id := strings.TrimSpace(raw)
		if id == "" {
			continue
		}
		if id == storyID {
			return nil, validationf("story %s cannot depend on itself", storyID)
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out, nil
}

// FindCycle walks the depends-on graph from start and returns the first
// cycle through start as a path that begins and ends with start, or nil.
func FindCycle(start string, graph map[string][]string) []string {
	visited := make(map[string]bool)
	path := []string{start}
	var walk func(id string) bool
	walk = func(id string) bool {
		for _, next := range graph[id] {
			if next == start {
				path = append(path, next)
				return true
			}
			if visited[next] {
				continue
			}
			visited[next] = true
			path = append(path, next)
			if walk(next) {
				return true
			}
			path = path[:len(path)-1]
		}
		return false
	}
	if walk(start) {
		return slices.Clone(path)
	}
	return nil
}
