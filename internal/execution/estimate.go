package execution

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"

	clierr "github.com/ipor-labs/fusion/internal/errors"
)

type EstimateBlockTag string

const (
	EstimateBlockTagLatest  EstimateBlockTag = "latest"
	EstimateBlockTagPending EstimateBlockTag = "pending"
)

// fallbackBaseFee is used when a node reports no base fee (pre-London forks,
// some L2 dev nodes).
var fallbackBaseFee = big.NewInt(1_000_000_000)

type EstimateOptions struct {
	StepIDs            []string
	GasMultiplier      float64
	MaxFeeGwei         string
	MaxPriorityFeeGwei string
	BlockTag           EstimateBlockTag
	// Sender overrides the action's from address. Vault calls are access
	// managed, so estimating from the zero address usually reverts.
	Sender common.Address
}

type ActionGasEstimate struct {
	ActionID      string                        `json:"action_id"`
	EstimatedAt   string                        `json:"estimated_at"`
	BlockTag      string                        `json:"block_tag"`
	Sender        string                        `json:"sender"`
	Steps         []ActionGasEstimateStep       `json:"steps"`
	TotalsByChain []ActionGasEstimateChainTotal `json:"totals_by_chain"`
}

type ActionGasEstimateStep struct {
	StepID                  string     `json:"step_id"`
	Type                    StepType   `json:"type"`
	Status                  StepStatus `json:"status"`
	ChainID                 string     `json:"chain_id"`
	GasEstimateRaw          string     `json:"gas_estimate_raw"`
	GasLimit                string     `json:"gas_limit"`
	BaseFeePerGasWei        string     `json:"base_fee_per_gas_wei"`
	MaxPriorityFeePerGasWei string     `json:"max_priority_fee_per_gas_wei"`
	MaxFeePerGasWei         string     `json:"max_fee_per_gas_wei"`
	EffectiveGasPriceWei    string     `json:"effective_gas_price_wei"`
	LikelyFeeWei            string     `json:"likely_fee_wei"`
	WorstCaseFeeWei         string     `json:"worst_case_fee_wei"`
}

type ActionGasEstimateChainTotal struct {
	ChainID         string `json:"chain_id"`
	LikelyFeeWei    string `json:"likely_fee_wei"`
	WorstCaseFeeWei string `json:"worst_case_fee_wei"`
}

func DefaultEstimateOptions() EstimateOptions {
	return EstimateOptions{GasMultiplier: 1.2, BlockTag: EstimateBlockTagPending}
}

// EstimateActionGas prices the selected steps without sending anything. Steps
// are estimated independently against current state, so a step that depends
// on an earlier approval may fail to estimate until that approval is mined.
func EstimateActionGas(ctx context.Context, action Action, opts EstimateOptions) (ActionGasEstimate, error) {
	if strings.TrimSpace(action.ActionID) == "" {
		return ActionGasEstimate{}, clierr.New(clierr.CodeUsage, "missing action id")
	}
	if len(action.Steps) == 0 {
		return ActionGasEstimate{}, clierr.New(clierr.CodeUsage, "action has no executable steps")
	}
	if opts.GasMultiplier < 1 {
		return ActionGasEstimate{}, clierr.New(clierr.CodeUsage, "--gas-multiplier must be >= 1")
	}
	tag, err := parseBlockTag(opts.BlockTag)
	if err != nil {
		return ActionGasEstimate{}, err
	}
	from, err := estimateSender(action, opts.Sender)
	if err != nil {
		return ActionGasEstimate{}, err
	}
	steps, err := selectSteps(action.Steps, opts.StepIDs)
	if err != nil {
		return ActionGasEstimate{}, err
	}

	clients := map[string]*ethclient.Client{}
	defer func() {
		for _, c := range clients {
			c.Close()
		}
	}()

	likely := map[string]*big.Int{}
	worst := map[string]*big.Int{}
	out := ActionGasEstimate{
		ActionID:    action.ActionID,
		EstimatedAt: time.Now().UTC().Format(time.RFC3339),
		BlockTag:    string(tag),
		Sender:      from.Hex(),
		Steps:       make([]ActionGasEstimateStep, 0, len(steps)),
	}
	for _, step := range steps {
		rpcURL := strings.TrimSpace(step.RPCURL)
		if rpcURL == "" {
			return ActionGasEstimate{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("step %s is missing rpc_url", step.StepID))
		}
		client, ok := clients[rpcURL]
		if !ok {
			client, err = ethclient.DialContext(ctx, rpcURL)
			if err != nil {
				return ActionGasEstimate{}, clierr.Wrap(clierr.CodeUnavailable, "connect rpc", err)
			}
			clients[rpcURL] = client
		}

		est, likelyFee, worstFee, err := estimateStep(ctx, client, step, from, tag, opts)
		if err != nil {
			return ActionGasEstimate{}, err
		}
		out.Steps = append(out.Steps, est)
		addTo(likely, est.ChainID, likelyFee)
		addTo(worst, est.ChainID, worstFee)
	}

	chains := make([]string, 0, len(likely))
	for chain := range likely {
		chains = append(chains, chain)
	}
	sort.Strings(chains)
	for _, chain := range chains {
		out.TotalsByChain = append(out.TotalsByChain, ActionGasEstimateChainTotal{
			ChainID:         chain,
			LikelyFeeWei:    likely[chain].String(),
			WorstCaseFeeWei: worst[chain].String(),
		})
	}
	return out, nil
}

func estimateStep(ctx context.Context, client *ethclient.Client, step ActionStep, from common.Address, tag EstimateBlockTag, opts EstimateOptions) (ActionGasEstimateStep, *big.Int, *big.Int, error) {
	fail := func(err error) (ActionGasEstimateStep, *big.Int, *big.Int, error) {
		return ActionGasEstimateStep{}, nil, nil, err
	}
	msg, err := stepCallMsg(step, from)
	if err != nil {
		return fail(err)
	}
	chainID, err := client.ChainID(ctx)
	if err != nil {
		return fail(clierr.Wrap(clierr.CodeUnavailable, "read chain id", err))
	}
	chainKey := fmt.Sprintf("eip155:%d", chainID.Int64())
	if planned := strings.TrimSpace(step.ChainID); planned != "" && !strings.EqualFold(planned, chainKey) {
		return fail(clierr.New(clierr.CodeActionPlan, fmt.Sprintf("step chain mismatch: expected %s, got %s", chainKey, planned)))
	}

	rawGas, err := estimateGasAt(ctx, client, msg, tag)
	if err != nil {
		return fail(wrapEVMExecutionError(clierr.CodeActionSim, "estimate gas", err))
	}
	gasLimit := uint64(float64(rawGas) * opts.GasMultiplier)
	if gasLimit == 0 {
		return fail(clierr.New(clierr.CodeActionSim, "estimate gas returned zero"))
	}
	tipCap, err := resolveTipCap(ctx, client, opts.MaxPriorityFeeGwei)
	if err != nil {
		return fail(err)
	}
	baseFee, err := baseFeeAt(ctx, client, tag)
	if err != nil {
		return fail(err)
	}
	feeCap, err := resolveFeeCap(baseFee, tipCap, opts.MaxFeeGwei)
	if err != nil {
		return fail(err)
	}

	price := new(big.Int).Add(baseFee, tipCap)
	if price.Cmp(feeCap) > 0 {
		price.Set(feeCap)
	}
	limit := new(big.Int).SetUint64(gasLimit)
	likelyFee := new(big.Int).Mul(limit, price)
	worstFee := new(big.Int).Mul(limit, feeCap)

	return ActionGasEstimateStep{
		StepID:                  step.StepID,
		Type:                    step.Type,
		Status:                  step.Status,
		ChainID:                 chainKey,
		GasEstimateRaw:          strconv.FormatUint(rawGas, 10),
		GasLimit:                strconv.FormatUint(gasLimit, 10),
		BaseFeePerGasWei:        baseFee.String(),
		MaxPriorityFeePerGasWei: tipCap.String(),
		MaxFeePerGasWei:         feeCap.String(),
		EffectiveGasPriceWei:    price.String(),
		LikelyFeeWei:            likelyFee.String(),
		WorstCaseFeeWei:         worstFee.String(),
	}, likelyFee, worstFee, nil
}

func addTo(totals map[string]*big.Int, key string, v *big.Int) {
	if totals[key] == nil {
		totals[key] = new(big.Int)
	}
	totals[key].Add(totals[key], v)
}

func estimateSender(action Action, override common.Address) (common.Address, error) {
	if override != (common.Address{}) {
		return override, nil
	}
	raw := strings.TrimSpace(action.FromAddress)
	if raw == "" {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(raw) {
		return common.Address{}, clierr.New(clierr.CodeUsage, "action has invalid from_address")
	}
	return common.HexToAddress(raw), nil
}

func selectSteps(steps []ActionStep, ids []string) ([]ActionStep, error) {
	if len(ids) == 0 {
		return steps, nil
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id = strings.ToLower(strings.TrimSpace(id)); id != "" {
			want[id] = true
		}
	}
	if len(want) == 0 {
		return steps, nil
	}
	out := make([]ActionStep, 0, len(steps))
	for _, step := range steps {
		if want[strings.ToLower(strings.TrimSpace(step.StepID))] {
			out = append(out, step)
		}
	}
	if len(out) == 0 {
		return nil, clierr.New(clierr.CodeUsage, "no action steps matched the requested --step-ids filter")
	}
	return out, nil
}

func stepCallMsg(step ActionStep, from common.Address) (ethereum.CallMsg, error) {
	if !common.IsHexAddress(strings.TrimSpace(step.Target)) {
		return ethereum.CallMsg{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("step %s has invalid target address", step.StepID))
	}
	target := common.HexToAddress(strings.TrimSpace(step.Target))
	data, err := decodeHex(step.Data)
	if err != nil {
		return ethereum.CallMsg{}, clierr.Wrap(clierr.CodeUsage, "decode step calldata", err)
	}
	value := new(big.Int)
	if raw := strings.TrimSpace(step.Value); raw != "" {
		if _, ok := value.SetString(raw, 10); !ok || value.Sign() < 0 {
			return ethereum.CallMsg{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("step %s has invalid value %q", step.StepID, step.Value))
		}
	}
	return ethereum.CallMsg{From: from, To: &target, Value: value, Data: data}, nil
}

func parseBlockTag(input EstimateBlockTag) (EstimateBlockTag, error) {
	switch EstimateBlockTag(strings.ToLower(strings.TrimSpace(string(input)))) {
	case "", EstimateBlockTagPending:
		return EstimateBlockTagPending, nil
	case EstimateBlockTagLatest:
		return EstimateBlockTagLatest, nil
	default:
		return "", clierr.New(clierr.CodeUsage, "--block-tag must be one of: pending,latest")
	}
}

// estimateGasAt asks for an estimate at tag. Nodes that reject "pending" are
// retried at "latest", then through ethclient's default.
func estimateGasAt(ctx context.Context, client *ethclient.Client, msg ethereum.CallMsg, tag EstimateBlockTag) (uint64, error) {
	arg := map[string]any{"from": msg.From.Hex()}
	if msg.To != nil {
		arg["to"] = msg.To.Hex()
	}
	if len(msg.Data) > 0 {
		arg["data"] = hexutil.Bytes(msg.Data)
	}
	if msg.Value != nil {
		arg["value"] = (*hexutil.Big)(msg.Value)
	}

	var gas hexutil.Uint64
	err := client.Client().CallContext(ctx, &gas, "eth_estimateGas", arg, string(tag))
	if err == nil {
		return uint64(gas), nil
	}
	if tag == EstimateBlockTagPending {
		if client.Client().CallContext(ctx, &gas, "eth_estimateGas", arg, string(EstimateBlockTagLatest)) == nil {
			return uint64(gas), nil
		}
	}
	if fallback, fbErr := client.EstimateGas(ctx, msg); fbErr == nil {
		return fallback, nil
	}
	return 0, err
}

func baseFeeAt(ctx context.Context, client *ethclient.Client, tag EstimateBlockTag) (*big.Int, error) {
	var block struct {
		BaseFeePerGas *hexutil.Big `json:"baseFeePerGas"`
	}
	err := client.Client().CallContext(ctx, &block, "eth_getBlockByNumber", string(tag), false)
	if err != nil && tag == EstimateBlockTagPending {
		err = client.Client().CallContext(ctx, &block, "eth_getBlockByNumber", string(EstimateBlockTagLatest), false)
	}
	if err != nil {
		header, headerErr := client.HeaderByNumber(ctx, nil)
		if headerErr != nil {
			return nil, clierr.Wrap(clierr.CodeUnavailable, "fetch latest header", err)
		}
		if header.BaseFee == nil {
			return new(big.Int).Set(fallbackBaseFee), nil
		}
		return new(big.Int).Set(header.BaseFee), nil
	}
	if block.BaseFeePerGas == nil {
		return new(big.Int).Set(fallbackBaseFee), nil
	}
	return new(big.Int).Set((*big.Int)(block.BaseFeePerGas)), nil
}
