package curve

import (
	"fmt"
	"strings"
)

// HashFromName returns the challenge hash that matches the provided name.
func HashFromName(name string) (HashFunc, error) {
	switch strings.ToLower(name) {
	case "sha512", "sha-512":
		return SHA512, nil
	case "sha3-512":
		return SHA3_512, nil
	case "blake2b-512", "blake2b":
		return BLAKE2b512, nil
	default:
		return nil, fmt.Errorf("unsupported hash: %s", name)
	}
}

// SupportedHashes lists the hash identifiers understood by HashFromName.
func SupportedHashes() []string {
	return []string{"sha512", "sha3-512", "blake2b-512"}
}
