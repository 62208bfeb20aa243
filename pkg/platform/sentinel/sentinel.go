package sentinel

import "errors"

// ErrUnavailable is wrapped by upstream clients and stores when a dependency
// is down or deliberately skipped, so callers can tell it apart from a
// dependency that answered badly.
var ErrUnavailable = errors.New("unavailable")
