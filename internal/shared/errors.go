package shared

import "errors"

// ErrNotFound is the base lookup failure wrapped by repository errors.
var ErrNotFound = errors.New("not found")
