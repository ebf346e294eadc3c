package utils

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// ValidateAddress checks that s is a 0x-prefixed 20-byte hex address.
func ValidateAddress(s string) error {
	if s == "" {
		return fmt.Errorf("address cannot be empty")
	}
	if !common.IsHexAddress(s) {
		return fmt.Errorf("invalid address format: %s", s)
	}
	return nil
}

// ParseAddress validates and normalizes a hex address.
func ParseAddress(s string) (common.Address, error) {
	if err := ValidateAddress(s); err != nil {
		return common.Address{}, err
	}
	return common.HexToAddress(s), nil
}

// ParseBigInt parses a non-negative base-10 integer string.
func ParseBigInt(s string) (*big.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("value cannot be empty")
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid integer: %s", s)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("value cannot be negative: %s", s)
	}
	return v, nil
}

// DecodeHex decodes hex data with an optional 0x prefix. An empty string
// or bare "0x" decodes to empty bytes.
func DecodeHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		return []byte{}, nil
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex data: %w", err)
	}
	return b, nil
}

// DecodeSalt decodes a hex-encoded salt and enforces the exact 32-byte
// length the commitment scheme requires.
func DecodeSalt(s string) ([32]byte, error) {
	var salt [32]byte
	b, err := DecodeHex(s)
	if err != nil {
		return salt, fmt.Errorf("invalid salt: %w", err)
	}
	if len(b) != 32 {
		return salt, fmt.Errorf("salt must be exactly 32 bytes, got %d", len(b))
	}
	copy(salt[:], b)
	return salt, nil
}

// DecodeSignature decodes a hex-encoded 65-byte ECDSA signature.
func DecodeSignature(s string) ([]byte, error) {
	b, err := DecodeHex(s)
	if err != nil {
		return nil, fmt.Errorf("invalid signature: %w", err)
	}
	if len(b) != 65 {
		return nil, fmt.Errorf("signature must be 65 bytes, got %d", len(b))
	}
	return b, nil
}

// AtomicToDecimal converts an atomic-unit amount to a display-unit
// decimal given the token's decimals.
func AtomicToDecimal(amount *big.Int, decimals int) decimal.Decimal {
	return decimal.NewFromBigInt(amount, 0).Shift(int32(-decimals))
}
