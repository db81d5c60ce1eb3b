package redis

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oscarprdev/nft-market-sync/config"
)

func TestIsOOMError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "nil error",
			err:      nil,
			expected: false,
		},
		{
			name:     "OOM error",
			err:      errors.New("OOM command not allowed when used memory > 'maxmemory'"),
			expected: true,
		},
		{
			name:     "wrapped OOM error",
			err:      fmt.Errorf("mirror write failed: %w", errors.New("OOM command not allowed when used memory > 'maxmemory'")),
			expected: true,
		},
		{
			name:     "connection error",
			err:      errors.New("connection refused"),
			expected: false,
		},
		{
			name:     "timeout error",
			err:      errors.New("i/o timeout"),
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, IsOOMError(tt.err))
		})
	}
}

func TestKeyBuilder(t *testing.T) {
	kb := NewKeyBuilder(config.DefaultRedisNamespaceConfig())

	require.Equal(t, "market:cache:listings", kb.CacheKey("listings"))
	require.Equal(t, "market:cache:listings:version", kb.CacheVersionKey("listings"))
	require.Equal(t, "market:events:invalidation", kb.InvalidationChannel())
}
