package audit

import "errors"

// ErrInvalidEntry is returned by Record for an entry missing a required field.
var ErrInvalidEntry = errors.New("audit: entry needs device_id, command and source")
