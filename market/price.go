package market

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

var weiPerEther = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// ErrInvalidPrice reports an ether amount string that cannot be
// converted to exact wei.
var ErrInvalidPrice = errors.New("invalid price")

// FormatEther converts an exact wei amount to a decimal ether string.
// The fractional part keeps at least one digit and drops trailing zeros,
// so 1 ether renders as "1.0" and 0.5 ether as "0.5". A nil amount
// renders as "0.0".
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0.0"
	}

	sign := ""
	abs := new(big.Int).Abs(wei)
	if wei.Sign() < 0 {
		sign = "-"
	}

	whole, frac := new(big.Int).QuoRem(abs, weiPerEther, new(big.Int))

	fracStr := fmt.Sprintf("%018s", frac.String())
	fracStr = strings.TrimRight(fracStr, "0")
	if fracStr == "" {
		fracStr = "0"
	}

	return fmt.Sprintf("%s%s.%s", sign, whole.String(), fracStr)
}

// ParseEther converts a decimal ether string to exact integer wei.
// Fractional parts beyond 18 digits are rejected rather than truncated.
func ParseEther(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty ether amount", ErrInvalidPrice)
	}

	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}

	wholeStr, fracStr, _ := strings.Cut(s, ".")
	if wholeStr == "" {
		wholeStr = "0"
	}
	if len(fracStr) > 18 {
		return nil, fmt.Errorf("%w: ether amount %q exceeds wei precision", ErrInvalidPrice, s)
	}

	whole, ok := new(big.Int).SetString(wholeStr, 10)
	if !ok {
		return nil, fmt.Errorf("%w: ether amount %q", ErrInvalidPrice, s)
	}
	wei := new(big.Int).Mul(whole, weiPerEther)

	if fracStr != "" {
		// Right-pad the fractional digits out to 18 places.
		frac, ok := new(big.Int).SetString(fracStr+strings.Repeat("0", 18-len(fracStr)), 10)
		if !ok {
			return nil, fmt.Errorf("%w: ether amount %q", ErrInvalidPrice, s)
		}
		wei.Add(wei, frac)
	}

	if neg {
		wei.Neg(wei)
	}
	return wei, nil
}
