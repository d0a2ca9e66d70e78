package sentinel

import "errors"

// Sentinel errors for storage facts. Stores return these (optionally wrapped)
// so services can translate them into coded domain errors:
//   - ErrNotFound: record or partition does not exist
//   - ErrAlreadyExists: partition or record is already present
//   - ErrUnavailable: the backing store cannot be reached
//
// For validation failures use pkg/domain-errors directly.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrUnavailable   = errors.New("unavailable")
)
