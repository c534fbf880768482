package domain

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeName returns the NFC form of a level name with surrounding
// whitespace removed. Names arrive as raw UTF-8 from the contract and are
// compared and sorted by the store, so equivalent encodings must collapse.
func NormalizeName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

// NormalizeAddress lowercases a hex address so filters match regardless of
// checksum casing.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}
