package market

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFormatEther(t *testing.T) {
	tests := []struct {
		name     string
		wei      *big.Int
		expected string
	}{
		{"nil", nil, "0.0"},
		{"zero", big.NewInt(0), "0.0"},
		{"one ether", big.NewInt(1000000000000000000), "1.0"},
		{"half ether", big.NewInt(500000000000000000), "0.5"},
		{"one and a half", big.NewInt(1500000000000000000), "1.5"},
		{"one wei", big.NewInt(1), "0.000000000000000001"},
		{"quarter ether", big.NewInt(250000000000000000), "0.25"},
		{"large", new(big.Int).Mul(big.NewInt(12345), weiPerEther), "12345.0"},
		{"negative", big.NewInt(-500000000000000000), "-0.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, FormatEther(tt.wei))
		})
	}
}

func TestParseEther(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected *big.Int
	}{
		{"integer", "1", big.NewInt(1000000000000000000)},
		{"with fraction", "0.5", big.NewInt(500000000000000000)},
		{"trailing zero", "1.0", big.NewInt(1000000000000000000)},
		{"bare fraction", ".25", big.NewInt(250000000000000000)},
		{"negative", "-0.5", big.NewInt(-500000000000000000)},
		{"whitespace", " 2 ", big.NewInt(2000000000000000000)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wei, err := ParseEther(tt.input)
			require.NoError(t, err)
			require.Equal(t, 0, tt.expected.Cmp(wei), "expected %s, got %s", tt.expected, wei)
		})
	}
}

func TestParseEther_Invalid(t *testing.T) {
	for _, input := range []string{"", "abc", "1.2.3", "0.0000000000000000001"} {
		t.Run(input, func(t *testing.T) {
			_, err := ParseEther(input)
			require.ErrorIs(t, err, ErrInvalidPrice)
		})
	}
}

func TestFormatParseRoundTrip(t *testing.T) {
	wei := big.NewInt(1234500000000000000)
	parsed, err := ParseEther(FormatEther(wei))
	require.NoError(t, err)
	require.Equal(t, 0, wei.Cmp(parsed))
}
