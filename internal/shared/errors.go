package shared

import "errors"

// ErrLockNotObtained indicates another request already holds a critical section.
var ErrLockNotObtained = errors.New("lock held by another request")
