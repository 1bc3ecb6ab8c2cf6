package configservice

import "errors"

var (
	// ErrValidation wraps a config that failed validate(); its message
	// carries the first rejection reason, matching spec.md §7's
	// ValidationError surfacing to the API caller (never the LLM).
	ErrValidation = errors.New("configservice: validation failed")

	// ErrUnknownPreset means the requested preset ID or provider
	// sub-config does not exist.
	ErrUnknownPreset = errors.New("configservice: unknown preset")
)
