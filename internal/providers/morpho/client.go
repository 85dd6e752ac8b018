// Package morpho reads claimable rewards from the Morpho rewards API.
package morpho

import (
	"context"
	"fmt"
	"math/big"
	"net/url"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	clierr "github.com/ipor-labs/fusion/internal/errors"
	"github.com/ipor-labs/fusion/internal/httpx"
	"github.com/ipor-labs/fusion/internal/registry"
)

type Client struct {
	http    *httpx.Client
	baseURL string
}

func New(httpClient *httpx.Client) *Client {
	return &Client{http: httpClient, baseURL: registry.MorphoRewardsBaseURL}
}

// WithBaseURL points the client at another rewards API deployment.
func (c *Client) WithBaseURL(base string) *Client {
	c.baseURL = strings.TrimRight(base, "/")
	return c
}

// Distribution is one merkle distribution a user can claim through a
// universal rewards distributor. Claimable is cumulative: the distributor
// pays out the difference to what was already claimed.
type Distribution struct {
	ChainID      int64
	Distributor  common.Address
	RewardsToken common.Address
	Claimable    *big.Int
	Proof        []string
}

type distributionsResponse struct {
	Timestamp string             `json:"timestamp"`
	Data      []distributionItem `json:"data"`
}

type distributionItem struct {
	User  string `json:"user"`
	Asset struct {
		Address string `json:"address"`
		ChainID int64  `json:"chain_id"`
	} `json:"asset"`
	Distributor struct {
		Address string `json:"address"`
		ChainID int64  `json:"chain_id"`
	} `json:"distributor"`
	Claimable string   `json:"claimable"`
	Proof     []string `json:"proof"`
}

func (c *Client) Distributions(ctx context.Context, user common.Address) ([]Distribution, error) {
	if !registry.IsAllowedAPIURL(c.baseURL) {
		return nil, clierr.New(clierr.CodeUsage, "morpho rewards api url must use https")
	}
	endpoint := c.baseURL + "/v1/users/" + url.PathEscape(user.Hex()) + "/distributions"

	var resp distributionsResponse
	if err := httpx.GetJSON(ctx, c.http, endpoint, nil, &resp); err != nil {
		return nil, err
	}

	out := make([]Distribution, 0, len(resp.Data))
	for i, item := range resp.Data {
		d, err := item.toDistribution()
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeUnavailable, fmt.Sprintf("morpho distribution %d", i), err)
		}
		out = append(out, d)
	}
	return out, nil
}

// ForChain keeps the distributions whose distributor lives on chainID.
func ForChain(items []Distribution, chainID int64) []Distribution {
	out := make([]Distribution, 0, len(items))
	for _, d := range items {
		if d.ChainID == chainID {
			out = append(out, d)
		}
	}
	return out
}

func (item distributionItem) toDistribution() (Distribution, error) {
	if !common.IsHexAddress(item.Distributor.Address) {
		return Distribution{}, fmt.Errorf("invalid distributor address %q", item.Distributor.Address)
	}
	if !common.IsHexAddress(item.Asset.Address) {
		return Distribution{}, fmt.Errorf("invalid asset address %q", item.Asset.Address)
	}
	claimable, ok := new(big.Int).SetString(strings.TrimSpace(item.Claimable), 10)
	if !ok || claimable.Sign() < 0 {
		return Distribution{}, fmt.Errorf("invalid claimable %q", item.Claimable)
	}
	chainID := item.Distributor.ChainID
	if chainID == 0 {
		chainID = item.Asset.ChainID
	}
	return Distribution{
		ChainID:      chainID,
		Distributor:  common.HexToAddress(item.Distributor.Address),
		RewardsToken: common.HexToAddress(item.Asset.Address),
		Claimable:    claimable,
		Proof:        append([]string(nil), item.Proof...),
	}, nil
}
