// Package keys provides the password and key strength providers consumed by
// encrypted archive filters.
package keys

import (
	"fmt"
	"strings"
)

// KeyStrength selects the AES key size.
type KeyStrength int

const (
	// Bits128 is AES-128.
	Bits128 KeyStrength = iota
	// Bits192 is AES-192.
	Bits192
	// Bits256 is AES-256.
	Bits256
)

// DefaultKeyStrength is used when no strength has been selected.
const DefaultKeyStrength = Bits256

// KeyStrengths returns all strengths in ascending order.
func KeyStrengths() []KeyStrength {
	return []KeyStrength{Bits128, Bits192, Bits256}
}

// Bits returns the key size in bits.
func (k KeyStrength) Bits() int {
	return 128 + int(k)*64
}

// Bytes returns the key size in bytes.
func (k KeyStrength) Bytes() int {
	return k.Bits() / 8
}

// Valid reports whether k is one of the three supported strengths.
func (k KeyStrength) Valid() bool {
	return k >= Bits128 && k <= Bits256
}

// String returns the human-readable security and performance tradeoff.
func (k KeyStrength) String() string {
	switch k {
	case Bits128:
		return "128 bit: medium security / shortest runtime"
	case Bits192:
		return "192 bit: strong security / medium runtime"
	case Bits256:
		return "256 bit: very strong security / longest runtime"
	default:
		return fmt.Sprintf("KeyStrength(%d)", int(k))
	}
}

// ParseKeyStrength accepts "128", "192" or "256", optionally followed by
// "bit" or "bits".
func ParseKeyStrength(s string) (KeyStrength, error) {
	v := strings.TrimSpace(strings.ToLower(s))
	v = strings.TrimSuffix(v, "s")
	v = strings.TrimSpace(strings.TrimSuffix(v, "bit"))
	for _, k := range KeyStrengths() {
		if v == fmt.Sprint(k.Bits()) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("invalid key strength %q: must be 128, 192 or 256", s)
}

// KeyStrengthFromBytes maps an AES key length to its strength.
func KeyStrengthFromBytes(n int) (KeyStrength, error) {
	for _, k := range KeyStrengths() {
		if k.Bytes() == n {
			return k, nil
		}
	}
	return 0, fmt.Errorf("invalid AES key length: %d bytes", n)
}
