package rules

import "github.com/solatis/rulelint/internal/types"

// TriggerStats summarizes the shape of a decoded trigger tree.
type TriggerStats struct {
	Nodes  int // all non-nil nodes
	Leaves int // predicate and always nodes
	Depth  int // and/or/not ancestors of the deepest node
}

// Stats walks a decoded trigger. A nil trigger yields zero stats.
// Decoded triggers are bounded by types.MaxTriggerDepth, so recursion is shallow.
func Stats(t types.Trigger) TriggerStats {
	var s TriggerStats
	collectStats(t, 0, &s)
	return s
}

func collectStats(t types.Trigger, depth int, s *TriggerStats) {
	if t == nil {
		return
	}
	s.Nodes++
	if depth > s.Depth {
		s.Depth = depth
	}
	switch n := t.(type) {
	case types.And:
		collectStats(n.Left, depth+1, s)
		collectStats(n.Right, depth+1, s)
	case types.Or:
		collectStats(n.Left, depth+1, s)
		collectStats(n.Right, depth+1, s)
	case types.Not:
		collectStats(n.Inner, depth+1, s)
	default:
		s.Leaves++
	}
}
