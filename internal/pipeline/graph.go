package pipeline

import (
	"fmt"
	"sort"
	"strings"

	"github.com/objspace/orchestrator/pkg/types"
)

// Graph is the dependency structure of a pipeline, resolved from output
// names to producing step indices. Selection dependencies do not create
// edges; they are gates checked against the state store at execution time.
type Graph struct {
	steps    []types.PipelineStep
	producer map[string]int
	deps     map[int][]int
	waves    [][]int
}

// BuildGraph resolves dependencies and computes the topological execution
// order as waves of mutually independent steps. A dependency cycle is
// rejected here, before anything executes.
func BuildGraph(steps []types.PipelineStep) (*Graph, error) {
	producer := make(map[string]int)
	for i, step := range steps {
		for _, out := range step.Outputs {
			if prev, dup := producer[out]; dup {
				return nil, fmt.Errorf("output %q produced by both %q and %q",
					out, steps[prev].StepName, step.StepName)
			}
			producer[out] = i
		}
	}

	deps := make(map[int][]int)
	dependents := make([][]int, len(steps))
	indegree := make([]int, len(steps))

	for i, step := range steps {
		seen := make(map[int]bool)
		for _, dep := range step.Dependencies {
			if types.IsSelectionDependency(dep) {
				continue
			}
			p, ok := producer[dep]
			if !ok {
				// Satisfied from input_data or prior runs via the store.
				continue
			}
			if p == i {
				return nil, fmt.Errorf("step %q depends on its own output %q", step.StepName, dep)
			}
			if seen[p] {
				continue
			}
			seen[p] = true
			deps[i] = append(deps[i], p)
			dependents[p] = append(dependents[p], i)
			indegree[i]++
		}
	}

	// Kahn's algorithm, wave at a time. Each wave is sorted so execution
	// order is deterministic for a given payload.
	var waves [][]int
	processed := 0
	remaining := make([]int, len(steps))
	copy(remaining, indegree)

	ready := make([]int, 0, len(steps))
	for i := range steps {
		if remaining[i] == 0 {
			ready = append(ready, i)
		}
	}

	for len(ready) > 0 {
		sort.Ints(ready)
		wave := make([]int, len(ready))
		copy(wave, ready)
		waves = append(waves, wave)
		processed += len(wave)

		ready = ready[:0]
		for _, idx := range wave {
			for _, dep := range dependents[idx] {
				remaining[dep]--
				if remaining[dep] == 0 {
					ready = append(ready, dep)
				}
			}
		}
	}

	if processed != len(steps) {
		var stuck []string
		for i := range steps {
			if remaining[i] > 0 {
				stuck = append(stuck, steps[i].StepName)
			}
		}
		return nil, fmt.Errorf("dependency cycle detected involving steps: %s", strings.Join(stuck, ", "))
	}

	return &Graph{steps: steps, producer: producer, deps: deps, waves: waves}, nil
}

// Waves returns the topological execution order. Steps within a wave have
// no dependencies on each other and may run concurrently.
func (g *Graph) Waves() [][]int {
	return g.waves
}

// Producer returns the index of the step producing the named output.
func (g *Graph) Producer(output string) (int, bool) {
	i, ok := g.producer[output]
	return i, ok
}

// DependsOn returns the producer indices step i waits for.
func (g *Graph) DependsOn(i int) []int {
	return g.deps[i]
}
