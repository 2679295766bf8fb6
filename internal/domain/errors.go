package domain

import "errors"

// Error classes shared by every layer. Concrete errors wrap one of these
// with fmt.Errorf("%w: ...") so callers can classify with errors.Is.
var (
	// ErrConfiguration covers a bad token selector, missing API key or
	// invalid settings. Raised before any network or database call.
	ErrConfiguration = errors.New("configuration error")

	// ErrNetwork covers chain data API and RPC failures, including
	// malformed records delivered by the upstream API.
	ErrNetwork = errors.New("network error")

	// ErrPersistence covers non-duplicate storage failures.
	ErrPersistence = errors.New("persistence error")
)
