// Package resolver names contracts, fuses in particular, through the chain's
// etherscan-compatible explorer API.
package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/ipor-labs/fusion/internal/cache"
	clierr "github.com/ipor-labs/fusion/internal/errors"
	"github.com/ipor-labs/fusion/internal/httpx"
	"github.com/ipor-labs/fusion/internal/logging"
	"github.com/ipor-labs/fusion/internal/registry"
)

const erc4626SupplyFuse = "Erc4626SupplyFuse"

var marketIDABI = registry.MustABI(registry.MarketIDFuseABI)

// Reader reads view functions. Only Erc4626 supply fuses need it.
type Reader interface {
	Read(ctx context.Context, to common.Address, data []byte) ([]byte, error)
}

type Resolver struct {
	apiKey   string
	client   *httpx.Client
	store    *cache.Store
	ttl      time.Duration
	mem      *ristretto.Cache
	limit    rate.Limit
	endpoint func(chainID int64) (string, bool)
	log      zerolog.Logger
}

type Option func(*Resolver)

// WithStore persists resolved names across runs.
func WithStore(store *cache.Store, ttl time.Duration) Option {
	return func(r *Resolver) {
		r.store = store
		r.ttl = ttl
	}
}

// WithEndpoint replaces the explorer URL for every chain.
func WithEndpoint(apiURL string) Option {
	return func(r *Resolver) {
		r.endpoint = func(int64) (string, bool) { return apiURL, true }
	}
}

// WithRate overrides the default one request per second pacing.
func WithRate(limit rate.Limit) Option {
	return func(r *Resolver) { r.limit = limit }
}

func New(apiKey string, timeout time.Duration, retries int, opts ...Option) (*Resolver, error) {
	mem, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10_000,
		MaxCost:     1_000,
		BufferItems: 64,
	})
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "init name cache", err)
	}
	r := &Resolver{
		apiKey:   apiKey,
		mem:      mem,
		endpoint: registry.ExplorerAPIURL,
		log:      logging.For("resolver"),
		limit:    rate.Every(time.Second),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.client = httpx.New(timeout, retries, httpx.WithLimiter(rate.NewLimiter(r.limit, 1)))
	return r, nil
}

func (r *Resolver) Close() { r.mem.Close() }

func cacheKey(chainID int64, addr common.Address) string {
	return strconv.FormatInt(chainID, 10) + "_" + addr.Hex()
}

// ContractName returns the verified contract name for addr. Erc4626 supply
// fuses get their market id appended, e.g. Erc4626SupplyFuseMarketId5, since
// a vault usually installs several of them.
func (r *Resolver) ContractName(ctx context.Context, reader Reader, chainID int64, addr common.Address) (string, error) {
	key := cacheKey(chainID, addr)
	if v, ok := r.mem.Get(key); ok {
		return v.(string), nil
	}
	if r.store != nil {
		if entry, ok, err := r.store.Get(key); err == nil && ok && !entry.Expired {
			name := string(entry.Value)
			r.remember(key, name)
			return name, nil
		} else if err != nil {
			r.log.Warn().Err(err).Str("key", key).Msg("name cache read failed")
		}
	}

	name, err := r.fetch(ctx, chainID, addr)
	if err != nil {
		return "", err
	}
	if name == erc4626SupplyFuse {
		marketID, err := readMarketID(ctx, reader, addr)
		if err != nil {
			return "", err
		}
		name += "MarketId" + marketID.String()
	}

	r.remember(key, name)
	if r.store != nil {
		if err := r.store.Set(key, []byte(name), r.ttl); err != nil {
			r.log.Warn().Err(err).Str("key", key).Msg("name cache write failed")
		}
	}
	return name, nil
}

func (r *Resolver) remember(key, name string) {
	r.mem.Set(key, name, 1)
	r.mem.Wait()
}

type sourceCodeResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

type sourceCodeEntry struct {
	ContractName string `json:"ContractName"`
}

func (r *Resolver) fetch(ctx context.Context, chainID int64, addr common.Address) (string, error) {
	if strings.TrimSpace(r.apiKey) == "" {
		return "", clierr.New(clierr.CodeAuth, "explorer api key is required (FUSION_SCAN_API_KEY)")
	}
	base, ok := r.endpoint(chainID)
	if !ok {
		return "", clierr.New(clierr.CodeUnsupported, fmt.Sprintf("no explorer api for chain %d", chainID))
	}
	if !registry.IsAllowedAPIURL(base) {
		return "", clierr.New(clierr.CodeUsage, "explorer api url must use https")
	}

	q := url.Values{}
	q.Set("module", "contract")
	q.Set("action", "getsourcecode")
	q.Set("address", addr.Hex())
	q.Set("apikey", r.apiKey)

	var resp sourceCodeResponse
	if err := httpx.GetJSON(ctx, r.client, base+"?"+q.Encode(), nil, &resp); err != nil {
		return "", err
	}
	if resp.Status != "1" {
		return "", clierr.New(clierr.CodeUnavailable, "explorer lookup failed: "+explorerMessage(resp))
	}
	var entries []sourceCodeEntry
	if err := json.Unmarshal(resp.Result, &entries); err != nil {
		return "", clierr.Wrap(clierr.CodeUnavailable, "decode explorer result", err)
	}
	if len(entries) == 0 || entries[0].ContractName == "" {
		return "", clierr.New(clierr.CodeUnavailable, fmt.Sprintf("contract %s is not verified", addr.Hex()))
	}
	r.log.Debug().Int64("chain_id", chainID).Str("address", addr.Hex()).Str("name", entries[0].ContractName).Msg("resolved contract name")
	return entries[0].ContractName, nil
}

func explorerMessage(resp sourceCodeResponse) string {
	var detail string
	if err := json.Unmarshal(resp.Result, &detail); err == nil && detail != "" {
		return detail
	}
	if resp.Message != "" {
		return resp.Message
	}
	return "status " + resp.Status
}

func readMarketID(ctx context.Context, reader Reader, fuse common.Address) (*big.Int, error) {
	if reader == nil {
		return nil, clierr.New(clierr.CodeUsage, "reading MARKET_ID requires a chain reader")
	}
	data, err := marketIDABI.Pack("MARKET_ID")
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "pack MARKET_ID", err)
	}
	raw, err := reader.Read(ctx, fuse, data)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "read MARKET_ID", err)
	}
	out, err := marketIDABI.Unpack("MARKET_ID", raw)
	if err != nil || len(out) == 0 {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "decode MARKET_ID", err)
	}
	id, ok := out[0].(*big.Int)
	if !ok {
		return nil, clierr.New(clierr.CodeUnavailable, "decode MARKET_ID: unexpected type")
	}
	return id, nil
}
