package dbfactory

// Mode is the access mode stamped on a factory or context.
// The zero value is ReadWrite.
type Mode int

const (
	// ReadWrite allows mutations and enlists in the session transaction.
	ReadWrite Mode = iota
	// ReadOnly rejects mutations. Once set it can never be lifted.
	ReadOnly
)

// String returns the string representation of the Mode.
func (m Mode) String() string {
	switch m {
	case ReadWrite:
		return "read-write"
	case ReadOnly:
		return "read-only"
	default:
		return "unknown"
	}
}

// Transition returns the mode that results from moving m to next.
// Demotion to ReadOnly is always allowed; promotion out of ReadOnly fails
// with ErrInvalidOperation and leaves the mode unchanged.
func (m Mode) Transition(next Mode) (Mode, error) {
	if next != ReadWrite && next != ReadOnly {
		return m, errorf(ErrArgument, "unknown mode %d", int(next))
	}
	if m == ReadOnly && next != ReadOnly {
		return m, errorf(ErrInvalidOperation, "cannot convert a read-only context to writable")
	}
	return next, nil
}
