package export

import "errors"

var (
	// ErrUnknownFormat is returned when a format name is not recognized.
	ErrUnknownFormat = errors.New("unknown export format")
)
