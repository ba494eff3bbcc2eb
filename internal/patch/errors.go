package patch

import "github.com/rotisserie/eris"

var (
	// ErrTargetNotFound means a resolved target disappeared before apply, or
	// a selection names an item the trip does not have.
	ErrTargetNotFound = eris.New("patch: target not found")
	// ErrOperationDataMissing means an operation lacks the payload its type
	// requires.
	ErrOperationDataMissing = eris.New("patch: operation data missing")
	// ErrInvalidSelection means a pending action was resolved with an item
	// that is not among its candidates.
	ErrInvalidSelection = eris.New("patch: selection is not a candidate")
)
