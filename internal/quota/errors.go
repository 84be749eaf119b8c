package quota

import (
	"errors"
	"fmt"
)

var (
	ErrQuotaExceeded = errors.New("daily search limit reached")
	ErrBanned        = errors.New("user is banned")
)

// LimitError is returned when the caller has used every search of the
// current epoch.
type LimitError struct {
	Limit int
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("daily search limit of %d reached", e.Limit)
}

func (e *LimitError) Unwrap() error { return ErrQuotaExceeded }
