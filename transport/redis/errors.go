package redis

import "strings"

// IsOOMError checks if an error is a Redis out-of-memory error.
// Redis returns "OOM command not allowed when used memory > 'maxmemory'"
// when a write hits the memory limit. Mirror writes treat OOM as
// non-fatal: the in-memory cache stays authoritative.
func IsOOMError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "OOM command not allowed")
}
