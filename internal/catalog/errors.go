package catalog

import "errors"

// Fetch outcome sentinels. They partition terminal fetch results so callers
// can distinguish "the item does not exist" from "the item could not be
// retrieved" with errors.Is.
var (
	// ErrNotFound marks a 404. It is terminal and never retried.
	ErrNotFound = errors.New("resource not found")
	// ErrExhausted marks a fetch that ran out of retry budget.
	ErrExhausted = errors.New("retries exhausted")
)
