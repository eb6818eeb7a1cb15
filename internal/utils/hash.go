package utils

import (
	"hash/fnv"
	"strings"
)

// NormalizeAddress lowercases an address and collapses runs of whitespace so
// that spelling variants of the same cell share one key.
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.Join(strings.Fields(address), " "))
}

// AddressHash is a stable 64-bit FNV-1a hash of the normalized address.
func AddressHash(address string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(NormalizeAddress(address)))
	return h.Sum64()
}
