package conductor

import (
	"cmp"
	"fmt"
	"slices"
)

// Resolve validates the descriptors and returns a load order in which every
// component appears after all of its dependencies.
//
// Every dependency must name a declared component; the first missing one (in
// input order) fails with a *DependencyNotFoundError before any ordering work.
// Candidates and each component's dependencies are visited in ascending
// priority, input order breaking ties, so identical input always yields the
// same order. A cycle fails the whole resolution with a *CyclicDependencyError
// carrying the path found on the active recursion stack.
func Resolve(descriptors []Descriptor) ([]string, error) {
	index := make(map[string]int, len(descriptors))
	for i, d := range descriptors {
		if d.ID == "" {
			return nil, fmt.Errorf("%w: descriptor %d: %w", ErrInvalidDescriptor, i, ErrComponentIDEmpty)
		}
		if _, exists := index[d.ID]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateComponent, d.ID)
		}
		index[d.ID] = i
	}

	for _, d := range descriptors {
		for _, dep := range d.Dependencies {
			if _, exists := index[dep]; !exists {
				return nil, &DependencyNotFoundError{Missing: dep, Referrer: d.ID}
			}
		}
	}

	byPriority := func(a, b string) int {
		if c := cmp.Compare(descriptors[index[a]].Priority, descriptors[index[b]].Priority); c != 0 {
			return c
		}
		return cmp.Compare(index[a], index[b])
	}

	graph := make(map[string][]string, len(descriptors))
	candidates := make([]string, 0, len(descriptors))
	for _, d := range descriptors {
		deps := slices.Compact(slices.SortedFunc(slices.Values(d.Dependencies), byPriority))
		graph[d.ID] = deps
		candidates = append(candidates, d.ID)
	}
	slices.SortStableFunc(candidates, byPriority)

	result := make([]string, 0, len(descriptors))
	visited := make(map[string]bool, len(descriptors))
	resolving := make(map[string]bool)
	var path []string

	var visit func(string) error
	visit = func(node string) error {
		if resolving[node] {
			start := slices.Index(path, node)
			cycle := append(slices.Clone(path[start:]), node)
			return &CyclicDependencyError{Cycle: cycle}
		}
		if visited[node] {
			return nil
		}
		resolving[node] = true
		path = append(path, node)

		for _, dep := range graph[node] {
			if err := visit(dep); err != nil {
				return err
			}
		}

		path = path[:len(path)-1]
		resolving[node] = false
		visited[node] = true
		result = append(result, node)
		return nil
	}

	for _, node := range candidates {
		if !visited[node] {
			if err := visit(node); err != nil {
				return nil, err
			}
		}
	}

	return result, nil
}
