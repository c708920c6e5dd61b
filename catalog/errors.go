package catalog

import "errors"

var (
	// ErrMissingColumn is returned when a required column cannot be found.
	ErrMissingColumn = errors.New("required column not found")

	// ErrEmptyFile is returned for input without a header row.
	ErrEmptyFile = errors.New("file has no header row")

	// ErrUnsupportedFormat is returned for file extensions no loader handles.
	ErrUnsupportedFormat = errors.New("unsupported file format")
)
