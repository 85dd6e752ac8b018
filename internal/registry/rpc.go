package registry

import (
	"fmt"
	"strings"
)

// Public RPC endpoints used when neither the vault config nor --rpc-url names one.
var defaultRPCByChainID = map[int64]string{
	1:     "https://eth.llamarpc.com",
	8453:  "https://mainnet.base.org",
	42161: "https://arb1.arbitrum.io/rpc",
}

func DefaultRPCURL(chainID int64) (string, bool) {
	value, ok := defaultRPCByChainID[chainID]
	return value, ok
}

// ResolveRPCURL picks the first non-empty candidate, then the chain default.
func ResolveRPCURL(chainID int64, candidates ...string) (string, error) {
	for _, c := range candidates {
		if v := strings.TrimSpace(c); v != "" {
			return v, nil
		}
	}
	if value, ok := DefaultRPCURL(chainID); ok {
		return value, nil
	}
	return "", fmt.Errorf("no default rpc configured for chain id %d; provide --rpc-url", chainID)
}
