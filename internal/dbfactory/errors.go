package dbfactory

import (
	"fmt"

	"dbfactory/internal/shared"
)

// Error classes returned by the session layer. They are the shared sentinels,
// so shared.KindOf classifies them as well.
var (
	ErrArgument         = shared.ErrArgument
	ErrNotInitialized   = shared.ErrNotInitialized
	ErrInvalidOperation = shared.ErrInvalidOperation
	ErrConnection       = shared.ErrConnection
)

// ErrReadOnly is returned by every save entry point of a read-only context.
var ErrReadOnly = fmt.Errorf("%w: cannot persist through a read-only context", ErrInvalidOperation)

func errorf(class error, format string, args ...any) error {
	return fmt.Errorf("dbfactory: %w: %s", class, fmt.Sprintf(format, args...))
}
