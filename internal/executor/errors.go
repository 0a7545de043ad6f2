package executor

import (
	"errors"
	"fmt"

	"slippageScope/internal/model"
)

var (
	ErrInvalidAction = errors.New("invalid action")
	ErrConservation  = errors.New("portfolio conservation violated")
)

// ActionError reports the first action that failed; earlier actions stay applied.
type ActionError struct {
	Index int
	Kind  model.ActionKind
	Err   error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("action %d (%s): %v", e.Index, e.Kind, e.Err)
}

func (e *ActionError) Unwrap() error {
	return e.Err
}
