package series

// Cell holds the two generations of a transform's state. Committed is the
// state after the second-to-last input; candidate is the state after the last
// input, which may still be revised.
//
// Every stateful computation in the engine goes through Step, so the rollback
// rule lives in one place: a new input promotes candidate to committed, a
// revision recomputes from committed and leaves it untouched.
type Cell[S any] struct {
	committed S
	candidate S
}

// Step advances the cell by one input. f receives the committed state and
// returns the output value and the new candidate state.
func (c *Cell[S]) Step(revise bool, f func(committed S) (float64, S)) float64 {
	if !revise {
		c.committed = c.candidate
	}
	out, next := f(c.committed)
	c.candidate = next
	return out
}

// Committed returns the state that a revision of the tail starts from.
func (c *Cell[S]) Committed() S { return c.committed }

// Candidate returns the state consistent with the current tail.
func (c *Cell[S]) Candidate() S { return c.candidate }
