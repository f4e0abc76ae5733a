package cache

import (
	"errors"
	"fmt"
)

// Result reports the outcome of a best-effort cache mutation. Failures are carried in Err
// instead of being returned so callers on a write path can ignore them safely.
type Result struct {
	Deleted int64
	Err     error
}

// OK reports whether the operation completed without any store error.
func (r Result) OK() bool {
	return r.Err == nil
}

// StoreError marks a failure of the backing store as opposed to the compute function.
type StoreError struct {
	Op  string
	Key string
	Err error
}

func (e *StoreError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("cache: store %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("cache: store %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// IsStoreError reports whether err originated from the backing store.
func IsStoreError(err error) bool {
	var storeErr *StoreError
	return errors.As(err, &storeErr)
}
