package sequential

import "github.com/objspace/orchestrator/pkg/types"

// edgeSet holds the outgoing control-flow edges of one instruction index,
// computed once before the walk. Conditioned indices use onTrue/onFalse;
// unconditioned indices use next.
type edgeSet struct {
	onTrue  []int
	onFalse []int
	next    []int
}

// buildEdges materializes the control-flow graph: conditional edges plus
// fallthrough edges, minus branch-target suppressions. An unconditioned
// index that is itself a branch target terminates its branch instead of
// falling through, so "branch destination" never doubles as "next in
// sequence". Conditioned indices with an empty branch list fall through
// regardless.
func buildEdges(insts []types.Instruction) []edgeSet {
	n := len(insts)
	targets := types.BranchTargets(insts)

	edges := make([]edgeSet, n)
	for i := range insts {
		cond := insts[i].Condition
		if cond == nil {
			if i+1 < n && !targets[i] {
				edges[i].next = []int{i + 1}
			}
			continue
		}

		if len(cond.IfTrue) > 0 {
			edges[i].onTrue = cond.IfTrue
		} else if i+1 < n {
			edges[i].onTrue = []int{i + 1}
		}
		if len(cond.IfFalse) > 0 {
			edges[i].onFalse = cond.IfFalse
		} else if i+1 < n {
			edges[i].onFalse = []int{i + 1}
		}
	}
	return edges
}
