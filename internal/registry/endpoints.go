package registry

import (
	"net"
	"net/url"
	"strings"
)

const (
	MorphoRewardsBaseURL = "https://rewards.morpho.org"

	// Morpho Blue singleton, same address on every supported chain.
	MorphoBlueAddress = "0xBBBBBbbBBb9cC5e90e3b3Af64bdAF62C37EEFFCb"
)

var explorerAPIByChainID = map[int64]string{
	1:     "https://api.etherscan.io/api",
	8453:  "https://api.basescan.org/api",
	42161: "https://api.arbiscan.io/api",
}

// ExplorerAPIURL returns the etherscan-compatible API for a chain.
func ExplorerAPIURL(chainID int64) (string, bool) {
	v, ok := explorerAPIByChainID[chainID]
	return v, ok
}

// IsAllowedAPIURL accepts https URLs and plain http on loopback hosts, so test
// servers can stand in for the public APIs.
func IsAllowedAPIURL(endpoint string) bool {
	parsed, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil || strings.TrimSpace(parsed.Hostname()) == "" {
		return false
	}
	scheme := strings.ToLower(parsed.Scheme)
	if isLoopbackHost(parsed.Hostname()) {
		return scheme == "http" || scheme == "https"
	}
	return scheme == "https"
}

func isLoopbackHost(host string) bool {
	h := strings.TrimSpace(strings.ToLower(host))
	if h == "localhost" {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
