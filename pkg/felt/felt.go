// Package felt parses the scalar values returned by the game contract.
// Scalars arrive as 0x-prefixed hex strings that can exceed 64 bits, so
// every value goes through math/big before it is narrowed.
package felt

import (
	"fmt"
	"math/big"
	"strings"
)

// Parse converts a hex (0x-prefixed) or decimal scalar to a big integer
func Parse(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty scalar")
	}

	v := new(big.Int)
	var ok bool
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		digits := s[2:]
		if digits == "" {
			return nil, fmt.Errorf("scalar %q has no digits", s)
		}
		if digits[0] == '-' || digits[0] == '+' {
			return nil, fmt.Errorf("signed hex scalar %q", s)
		}
		_, ok = v.SetString(digits, 16)
	} else {
		_, ok = v.SetString(s, 10)
	}
	if !ok {
		return nil, fmt.Errorf("invalid scalar %q", s)
	}
	return v, nil
}

// Int parses s and narrows it to int64
func Int(s string) (int64, error) {
	v, err := Parse(s)
	if err != nil {
		return 0, err
	}
	if !v.IsInt64() {
		return 0, fmt.Errorf("scalar %q out of int64 range", s)
	}
	return v.Int64(), nil
}

// Uint parses s and narrows it to uint64
func Uint(s string) (uint64, error) {
	v, err := Parse(s)
	if err != nil {
		return 0, err
	}
	if !v.IsUint64() {
		return 0, fmt.Errorf("scalar %q out of uint64 range", s)
	}
	return v.Uint64(), nil
}

// Bool parses s as a flag: zero is false, anything else is true
func Bool(s string) (bool, error) {
	v, err := Parse(s)
	if err != nil {
		return false, err
	}
	return v.Sign() != 0, nil
}

// IsZero reports whether s is a parseable zero
func IsZero(s string) bool {
	v, err := Parse(s)
	return err == nil && v.Sign() == 0
}

// Hex normalises s to lowercase 0x hex without leading zeros
func Hex(s string) (string, error) {
	v, err := Parse(s)
	if err != nil {
		return "", err
	}
	return "0x" + v.Text(16), nil
}

// FromInt formats v as a 0x hex scalar for calldata
func FromInt(v int64) string {
	return "0x" + big.NewInt(v).Text(16)
}
