package types

import "errors"

// Codec errors
var (
	// ErrInvalidDict is returned when a serialised identity dict cannot be parsed
	ErrInvalidDict = errors.New("invalid identity dict")
)
