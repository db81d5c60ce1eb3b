package metadata

import "errors"

var (
	// ErrUnreachable reports a metadata document that could not be fetched
	// from the content gateway (network failure, timeout, non-2xx status).
	ErrUnreachable = errors.New("metadata unreachable")

	// ErrMalformed reports a URI that cannot be rewritten to a gateway URL
	// or a fetched document that is not valid metadata JSON.
	ErrMalformed = errors.New("metadata malformed")
)
