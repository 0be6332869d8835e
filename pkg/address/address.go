// Package address canonicalizes account identifiers so every store, cache and
// in-flight guard keys on the same string regardless of checksum casing.
package address

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"

	dErrors "identityvault/pkg/domain-errors"
)

// IsWellFormed reports whether s is a 0x-prefixed, 20-byte hex account identifier.
func IsWellFormed(s string) bool {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return false
	}
	return common.IsHexAddress(s)
}

// Normalize returns the lowercase key for s. Normalize is idempotent.
func Normalize(s string) (string, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return "", dErrors.New(dErrors.CodeInvalidAddress, "address is required")
	}
	if !IsWellFormed(trimmed) {
		return "", dErrors.Newf(dErrors.CodeInvalidAddress, "invalid address %q", trimmed)
	}
	return "0x" + strings.ToLower(trimmed[2:]), nil
}

// MustNormalize is Normalize for constants and tests.
func MustNormalize(s string) string {
	key, err := Normalize(s)
	if err != nil {
		panic(err)
	}
	return key
}

// FromCommon converts a go-ethereum address into its normalized key.
func FromCommon(a common.Address) string {
	return strings.ToLower(a.Hex())
}

// ToCommon parses a normalized or checksummed key.
func ToCommon(s string) (common.Address, error) {
	key, err := Normalize(s)
	if err != nil {
		return common.Address{}, err
	}
	return common.HexToAddress(key), nil
}

// NormalizeAll normalizes a list, dropping blanks and duplicates while keeping
// order. The first invalid entry aborts.
func NormalizeAll(values []string) ([]string, error) {
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			continue
		}
		key, err := Normalize(v)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		result = append(result, key)
	}
	return result, nil
}
