package chain

import (
	"fmt"
	"strings"
)

// Platform selects a chain backend.
type Platform int

const (
	Substrate Platform = iota
	Near
	Polygon
	Bsc
	// Devnet is the local HTTP devnet served by cmd/pixeldevnet.
	Devnet
	// InMemory is an in-process contract.
	InMemory
)

var platformNames = [...]string{
	Substrate: "substrate",
	Near:      "near",
	Polygon:   "polygon",
	Bsc:       "bsc",
	Devnet:    "devnet",
	InMemory:  "memory",
}

var nativeTokens = [...]string{
	Substrate: "DOT",
	Near:      "NEAR",
	Polygon:   "MATIC",
	Bsc:       "BNB",
	Devnet:    "DEV",
	InMemory:  "DEV",
}

func (p Platform) valid() bool {
	return p >= 0 && int(p) < len(platformNames)
}

func (p Platform) String() string {
	if !p.valid() {
		return fmt.Sprintf("Platform(%d)", int(p))
	}
	return platformNames[p]
}

// NativeToken returns the symbol balances are reported in.
func (p Platform) NativeToken() string {
	if !p.valid() {
		return ""
	}
	return nativeTokens[p]
}

// ParsePlatform parses a platform name, ignoring case.
func ParsePlatform(s string) (Platform, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range platformNames {
		if n == name {
			return Platform(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownPlatform, s)
}
