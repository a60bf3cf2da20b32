package chain

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Address identifies an account or component on the ledger.
// Always lowercase, 0x-prefixed, 20 bytes of hex.
type Address string

// ZeroAddress is the null address. It is never a valid recipient.
const ZeroAddress Address = "0x0000000000000000000000000000000000000000"

// ParseAddress validates and normalises a hex address.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return "", fmt.Errorf("address %q: missing 0x prefix", s)
	}
	body := s[2:]
	if len(body) != 40 {
		return "", fmt.Errorf("address %q: want 40 hex chars, got %d", s, len(body))
	}
	if _, err := hex.DecodeString(body); err != nil {
		return "", fmt.Errorf("address %q: %w", s, err)
	}
	return Address("0x" + strings.ToLower(body)), nil
}

// MustAddress is ParseAddress for constants and tests.
func MustAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// IsZero reports whether a is empty or the null address.
func (a Address) IsZero() bool {
	return a == "" || a == ZeroAddress
}

// Bytes returns the 20 raw address bytes (zeroes for malformed input).
func (a Address) Bytes() []byte {
	out := make([]byte, 20)
	if len(a) == 42 {
		_, _ = hex.Decode(out, []byte(a[2:]))
	}
	return out
}

func (a Address) String() string { return string(a) }

// Short renders the address as 0x1234…abcd for logs.
func (a Address) Short() string {
	if len(a) != 42 {
		return string(a)
	}
	return string(a[:6]) + "…" + string(a[38:])
}

// UnmarshalText validates and normalises addresses decoded from JSON or
// YAML. An empty value decodes to the empty address.
func (a *Address) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*a = ""
		return nil
	}
	parsed, err := ParseAddress(string(b))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
