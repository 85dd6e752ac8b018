package id

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	clierr "github.com/ipor-labs/fusion/internal/errors"
)

var (
	eip155ChainPattern = regexp.MustCompile(`^eip155:[0-9]+$`)
	evmAddressPattern  = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	eip155AssetPattern = regexp.MustCompile(`^eip155:[0-9]+/erc20:0x[0-9a-fA-F]{40}$`)
)

const (
	EthereumChainID int64 = 1
	BaseChainID     int64 = 8453
	ArbitrumChainID int64 = 42161
)

type Chain struct {
	Name       string
	ShortName  string
	Slug       string
	CAIP2      string
	EVMChainID int64
}

// Supported reports whether Fusion contracts are known on the chain.
func (c Chain) Supported() bool {
	_, ok := chainByID[c.EVMChainID]
	return ok
}

type Asset struct {
	ChainID  string
	AssetID  string
	Address  string
	Symbol   string
	Decimals int
	Known    bool
}

type Token struct {
	Symbol   string
	Address  string
	Decimals int
}

var (
	ethereum = Chain{Name: "Ethereum Mainnet", ShortName: "eth", Slug: "ethereum", CAIP2: "eip155:1", EVMChainID: EthereumChainID}
	base     = Chain{Name: "Base", ShortName: "base", Slug: "base", CAIP2: "eip155:8453", EVMChainID: BaseChainID}
	arbitrum = Chain{Name: "Arbitrum One", ShortName: "arb1", Slug: "arbitrum", CAIP2: "eip155:42161", EVMChainID: ArbitrumChainID}
)

var chainBySlug = map[string]Chain{
	"ethereum":     ethereum,
	"mainnet":      ethereum,
	"eth":          ethereum,
	"base":         base,
	"arbitrum":     arbitrum,
	"arbitrum-one": arbitrum,
	"arb1":         arbitrum,
}

var chainByID = map[int64]Chain{
	EthereumChainID: ethereum,
	BaseChainID:     base,
	ArbitrumChainID: arbitrum,
}

// Assets per chain. Symbols match the names used in vault substrates and fuse configs.
var tokenRegistry = map[int64][]Token{
	EthereumChainID: {
		{Symbol: "USDC", Address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", Decimals: 6},
		{Symbol: "USDT", Address: "0xdAC17F958D2ee523a2206206994597C13D831ec7", Decimals: 6},
		{Symbol: "DAI", Address: "0x6B175474E89094C44Da98b954EedeAC495271d0F", Decimals: 18},
		{Symbol: "WETH", Address: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", Decimals: 18},
	},
	BaseChainID: {
		{Symbol: "USDC", Address: "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", Decimals: 6},
		{Symbol: "WETH", Address: "0x4200000000000000000000000000000000000006", Decimals: 18},
		{Symbol: "cbBTC", Address: "0xcbB7C0000aB88B473b1f5aFd9ef808440eed33Bf", Decimals: 8},
		{Symbol: "cbETH", Address: "0x2Ae3F1Ec7F1F5012CFEab0185bfc7aa3cf0DEc22", Decimals: 18},
		{Symbol: "wstETH", Address: "0xc1CBa3fCea344f92D9239c08C0568f6F2F0ee452", Decimals: 18},
	},
	ArbitrumChainID: {
		{Symbol: "USDC", Address: "0xaf88d065e77c8cC2239327C5EDb3A432268e5831", Decimals: 6},
		{Symbol: "USDT", Address: "0xFd086bC7CD5C481DCC9C85ebE478A1C0b69FCbb9", Decimals: 6},
		{Symbol: "DAI", Address: "0xDA10009cBd5D07dd0CeCc66161FC93D7c9000da1", Decimals: 18},
		{Symbol: "WETH", Address: "0x82aF49447D8a07e3bd95BD0d56f35241523fBab1", Decimals: 18},
		{Symbol: "WBTC", Address: "0x2f2a2543B76A4166549F7aaB2e75Bef0aefC5B0f", Decimals: 8},
		{Symbol: "aArbUSDCn", Address: "0x724dc807b04555b71ed48a6896b6F41593b8C637", Decimals: 6},
		{Symbol: "cUSDCv3", Address: "0x9c4ec768c28520B50860ea7a15bd7213a9fF58bf", Decimals: 6},
		{Symbol: "fUSDC", Address: "0x1A996cb54bb95462040408C06122D45D6Cdb6096", Decimals: 6},
		{Symbol: "FluidLendingStakingRewardsUsdc", Address: "0x48f89d731C5e3b5BeE8235162FC2C639Ba62DB7d", Decimals: 6},
		{Symbol: "RAM", Address: "0xAAA6C1E32C55A7Bfa8066A6FAE9b42650F262418", Decimals: 18},
		{Symbol: "xRAM", Address: "0xAAA1eE8DC1864AE49185C368e8c64Dd780a50Fb7", Decimals: 18},
		{Symbol: "dUSDCV3", Address: "0x890A69EF363C9c7BdD5E36eb95Ceb569F63ACbF6", Decimals: 6},
		{Symbol: "farmdUSDCV3", Address: "0xD0181a36B0566a8645B7eECFf2148adE7Ecf2BE9", Decimals: 6},
	},
}

func ParseChain(input string) (Chain, error) {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return Chain{}, clierr.New(clierr.CodeUsage, "chain is required")
	}
	norm := strings.ToLower(raw)

	if chain, ok := chainBySlug[norm]; ok {
		return chain, nil
	}

	if eip155ChainPattern.MatchString(norm) {
		id, _ := strconv.ParseInt(strings.TrimPrefix(norm, "eip155:"), 10, 64)
		return ChainFromID(id), nil
	}

	if id, err := strconv.ParseInt(norm, 10, 64); err == nil && id > 0 {
		return ChainFromID(id), nil
	}

	return Chain{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("unsupported chain input: %s", input))
}

// ChainFromID returns the known chain for id, or a generic EVM chain.
func ChainFromID(id int64) Chain {
	if chain, ok := chainByID[id]; ok {
		return chain
	}
	return Chain{
		Name:       fmt.Sprintf("EVM-%d", id),
		ShortName:  fmt.Sprintf("evm-%d", id),
		Slug:       fmt.Sprintf("evm-%d", id),
		CAIP2:      fmt.Sprintf("eip155:%d", id),
		EVMChainID: id,
	}
}

// SupportedChains lists the chains with Fusion deployments, ordered by id.
func SupportedChains() []Chain {
	out := make([]Chain, 0, len(chainByID))
	for _, c := range chainByID {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EVMChainID < out[j].EVMChainID })
	return out
}

// ParseAsset accepts a registry symbol, a 0x address or a CAIP-19 erc20 id.
func ParseAsset(input string, chain Chain) (Asset, error) {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return Asset{}, clierr.New(clierr.CodeUsage, "asset is required")
	}

	if strings.Contains(raw, "/") {
		if !eip155AssetPattern.MatchString(strings.ToLower(raw)) {
			return Asset{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("invalid CAIP-19 asset format: %s", input))
		}
		parts := strings.SplitN(raw, "/", 2)
		if strings.ToLower(parts[0]) != chain.CAIP2 {
			return Asset{}, clierr.New(clierr.CodeUsage, "asset chain does not match vault chain")
		}
		raw = strings.TrimPrefix(strings.ToLower(parts[1]), "erc20:")
	}

	if evmAddressPattern.MatchString(raw) {
		addr := strings.ToLower(raw)
		token, known := findTokenByAddress(chain.EVMChainID, addr)
		return Asset{
			ChainID:  chain.CAIP2,
			AssetID:  canonicalAssetID(chain.CAIP2, addr),
			Address:  addr,
			Symbol:   token.Symbol,
			Decimals: token.Decimals,
			Known:    known,
		}, nil
	}

	matches := findTokensBySymbol(chain.EVMChainID, raw)
	if len(matches) == 0 {
		return Asset{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("symbol %s not found in registry for chain %s", input, chain.CAIP2))
	}
	if len(matches) > 1 {
		addresses := make([]string, 0, len(matches))
		for _, m := range matches {
			addresses = append(addresses, m.Address)
		}
		sort.Strings(addresses)
		return Asset{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("symbol %s is ambiguous on chain %s, use address (%s)", input, chain.CAIP2, strings.Join(addresses, ", ")))
	}
	t := matches[0]
	return Asset{
		ChainID:  chain.CAIP2,
		AssetID:  canonicalAssetID(chain.CAIP2, t.Address),
		Address:  t.Address,
		Symbol:   t.Symbol,
		Decimals: t.Decimals,
		Known:    true,
	}, nil
}

func canonicalAssetID(chainID, address string) string {
	return fmt.Sprintf("%s/erc20:%s", chainID, strings.ToLower(strings.TrimSpace(address)))
}

func findTokenByAddress(chainID int64, address string) (Token, bool) {
	for _, t := range tokenRegistry[chainID] {
		if strings.EqualFold(t.Address, address) {
			return Token{Symbol: t.Symbol, Address: strings.ToLower(t.Address), Decimals: t.Decimals}, true
		}
	}
	return Token{}, false
}

func findTokensBySymbol(chainID int64, symbol string) []Token {
	matches := []Token{}
	for _, t := range tokenRegistry[chainID] {
		if strings.EqualFold(t.Symbol, symbol) {
			matches = append(matches, Token{Symbol: t.Symbol, Address: strings.ToLower(t.Address), Decimals: t.Decimals})
		}
	}
	return matches
}

func KnownToken(chainID int64, symbol string) (Token, bool) {
	matches := findTokensBySymbol(chainID, symbol)
	if len(matches) != 1 {
		return Token{}, false
	}
	return matches[0], true
}

func LookupByAddress(chainID int64, address string) (Token, bool) {
	return findTokenByAddress(chainID, address)
}

// Tokens returns a copy of the registry entries for a chain.
func Tokens(chainID int64) []Token {
	src := tokenRegistry[chainID]
	out := make([]Token, 0, len(src))
	for _, t := range src {
		out = append(out, Token{Symbol: t.Symbol, Address: strings.ToLower(t.Address), Decimals: t.Decimals})
	}
	return out
}
