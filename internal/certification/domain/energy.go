package certification

import (
	"fmt"
	"math/big"
	"strings"
)

// ParseEnergy parses a decimal Wh volume. Volumes exceed int64 for large
// plants so they are carried as big integers.
func ParseEnergy(value string) (*big.Int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidEnergy)
	}
	energy, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEnergy, value)
	}
	if energy.Sign() <= 0 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEnergy, value)
	}
	return energy, nil
}

// FormatEnergy renders a volume as a decimal string; nil is "0".
func FormatEnergy(value *big.Int) string {
	if value == nil {
		return "0"
	}
	return value.String()
}
