// Package validation provides input validation for slitherd.
package validation

import (
	"errors"
	"regexp"
	"strings"

	"golang.org/x/mod/semver"
)

// Blockchain names: lowercase alphanumeric with hyphens, as used for the
// explorer credential lookup.
var blockchainNameRegex = regexp.MustCompile(`^[a-z][a-z0-9-]{0,30}[a-z0-9]$`)

// ValidateBlockchain validates a blockchain name.
func ValidateBlockchain(name string) error {
	if len(name) < 2 {
		return errors.New("blockchain name too short (min 2 chars)")
	}
	if !blockchainNameRegex.MatchString(name) {
		return errors.New("invalid blockchain name: must be lowercase alphanumeric with hyphens")
	}
	if strings.Contains(name, "..") || strings.Contains(name, "--") {
		return errors.New("invalid characters in blockchain name")
	}
	return nil
}

// ValidateAddress validates an EVM contract address.
func ValidateAddress(addr string) error {
	if len(addr) != 42 {
		return errors.New("invalid address length: must be 42 characters (0x + 40 hex)")
	}
	if !strings.HasPrefix(addr, "0x") {
		return errors.New("invalid address: must start with 0x")
	}
	for _, c := range addr[2:] {
		isDigit := c >= '0' && c <= '9'
		isLowerHex := c >= 'a' && c <= 'f'
		isUpperHex := c >= 'A' && c <= 'F'
		if !isDigit && !isLowerHex && !isUpperHex {
			return errors.New("invalid address: contains non-hex characters")
		}
	}
	return nil
}

// ValidateCompilerVersion validates a normalized major.minor.patch compiler
// version string. The empty string is allowed: it means no version could be
// resolved and compiler pinning is skipped.
func ValidateCompilerVersion(v string) error {
	if v == "" {
		return nil
	}
	if !semver.IsValid("v"+v) || strings.Count(v, ".") != 2 {
		return errors.New("invalid compiler version: must be in format X.Y.Z (major.minor.patch)")
	}
	return nil
}
