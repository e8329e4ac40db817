package export

import "errors"

var (
	// ErrUnknownFormat is returned for an unsupported export format.
	ErrUnknownFormat = errors.New("unknown export format")
)
