package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Storage backends return these
// (optionally wrapped) so the layers above can translate them into domain
// errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: key does not exist in the store
// - ErrConflict: concurrent modification detected
// - ErrClosed: store or watcher has been closed
// - ErrUnavailable: backend temporarily unreachable
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrClosed      = errors.New("closed")
	ErrUnavailable = errors.New("unavailable")
)
