package approval

import "errors"

var ErrNotFound = errors.New("approval: request not found")
