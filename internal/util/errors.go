package util

import "fmt"

// WrapError prefixes err with the operation that failed. A nil err stays
// nil so call sites can wrap unconditionally.
func WrapError(operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("failed to %s: %w", operation, err)
}
