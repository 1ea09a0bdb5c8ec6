// Package beam implements the beam-search generative step: select expandable
// nodes from a search tree, expand each with an LLM call, evaluate the
// result by applying file writes and running tools against a workspace, and
// terminate on the first validated solution.
package beam

import "fmt"

// DiffMismatchError marks a SEARCH/REPLACE block whose SEARCH text occurs
// zero or more than once in the target file.
type DiffMismatchError struct {
	Path  string
	Count int
}

func (e *DiffMismatchError) Error() string {
	return fmt.Sprintf("beam: diff mismatch in %s: SEARCH text occurs %d times, want exactly 1", e.Path, e.Count)
}

// ValidatorFailureError wraps the concatenated output of a failed validator
// battery run.
type ValidatorFailureError struct {
	Validator string
	Output    string
}

func (e *ValidatorFailureError) Error() string {
	return fmt.Sprintf("beam: validator %q failed: %s", e.Validator, e.Output)
}

// ActorExhaustionError reports that beam search ran out of candidates
// before any branch reached a solution.
type ActorExhaustionError struct {
	Expanded int
}

func (e *ActorExhaustionError) Error() string {
	return fmt.Sprintf("beam: no solution found after expanding %d candidates", e.Expanded)
}
