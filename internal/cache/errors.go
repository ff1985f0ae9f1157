package cache

import "fmt"

// RefreshError reports a mutation that the backend accepted but whose follow-up
// refresh failed; the cache still shows the last known state. It wraps the
// refresh failure, so check for it before matching transport errors.
type RefreshError struct {
	Op  string
	Err error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("%s succeeded but refresh failed, showing last known state: %v", e.Op, e.Err)
}

func (e *RefreshError) Unwrap() error { return e.Err }
