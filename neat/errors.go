package neat

import (
	"errors"
	"fmt"
)

// Structural errors are fatal to the single operation that raised them. Callers
// decide whether to retry with different random choices or skip the mutation.
var (
	ErrStructural    = errors.New("structural error")
	ErrCycle         = fmt.Errorf("%w: link would introduce a cycle", ErrStructural)
	ErrLinkNotFound  = fmt.Errorf("%w: link not found", ErrStructural)
	ErrNodeNotFound  = fmt.Errorf("%w: node not found", ErrStructural)
	ErrDuplicateLink = fmt.Errorf("%w: duplicate link", ErrStructural)
	ErrDuplicateNode = fmt.Errorf("%w: duplicate node", ErrStructural)
	ErrInvalidLink   = fmt.Errorf("%w: invalid link", ErrStructural)
	ErrInvalidNode   = fmt.Errorf("%w: invalid node", ErrStructural)
)

// Consistency errors mean the innovation log's own invariants were broken.
// They are not recoverable.
var (
	ErrConsistency        = errors.New("innovation log consistency error")
	ErrDuplicateStructure = fmt.Errorf("%w: duplicate structure", ErrConsistency)
	ErrUnknownInnovation  = fmt.Errorf("%w: unknown innovation", ErrConsistency)
)

// ErrCrossoverMismatch is returned when two genes with the same innovation
// number disagree on their endpoints.
var ErrCrossoverMismatch = errors.New("crossover gene mismatch")
