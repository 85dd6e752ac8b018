package execution

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	clierr "github.com/ipor-labs/fusion/internal/errors"
	"github.com/ipor-labs/fusion/internal/execution/signer"
	"github.com/ipor-labs/fusion/internal/logging"
)

type ExecuteOptions struct {
	Simulate           bool
	PollInterval       time.Duration
	StepTimeout        time.Duration
	GasMultiplier      float64
	GasLimit           uint64
	MaxFeeGwei         string
	MaxPriorityFeeGwei string
	AllowMaxApproval   bool
}

func DefaultExecuteOptions() ExecuteOptions {
	return ExecuteOptions{
		Simulate:      true,
		PollInterval:  2 * time.Second,
		StepTimeout:   2 * time.Minute,
		GasMultiplier: 1.2,
	}
}

func (o ExecuteOptions) normalized() ExecuteOptions {
	if o.PollInterval <= 0 {
		o.PollInterval = 2 * time.Second
	}
	if o.StepTimeout <= 0 {
		o.StepTimeout = 2 * time.Minute
	}
	if o.GasMultiplier == 0 {
		o.GasMultiplier = 1.2
	}
	return o
}

// validate rejects options normalized cannot repair. A multiplier of exactly
// 1 sends the raw estimate.
func (o ExecuteOptions) validate() error {
	if o.GasMultiplier < 1 {
		return clierr.New(clierr.CodeUsage, fmt.Sprintf("gas multiplier must be >= 1, got %g", o.GasMultiplier))
	}
	return nil
}

// ExecuteAction runs every unconfirmed step of action in order and persists
// progress to store after each step. The first failing step stops the run.
func ExecuteAction(ctx context.Context, store *Store, action *Action, txSigner signer.Signer, opts ExecuteOptions) error {
	if action == nil {
		return clierr.New(clierr.CodeInternal, "missing action")
	}
	if txSigner == nil {
		return clierr.New(clierr.CodeSigner, "missing signer")
	}
	if len(action.Steps) == 0 {
		return clierr.New(clierr.CodeUsage, "action has no executable steps")
	}
	opts = opts.normalized()
	if err := opts.validate(); err != nil {
		return err
	}
	log := logging.For("execution")
	save := func() {
		if store == nil {
			return
		}
		if err := store.Save(*action); err != nil {
			log.Warn().Err(err).Str("action_id", action.ActionID).Msg("persist action")
		}
	}

	action.Status = ActionStatusRunning
	action.FromAddress = txSigner.Address().Hex()
	action.Touch()
	save()

	for i := range action.Steps {
		step := &action.Steps[i]
		if step.Status == StepStatusConfirmed {
			continue
		}
		if !common.IsHexAddress(strings.TrimSpace(step.Target)) {
			markStepFailed(action, step, "invalid target")
			save()
			return clierr.New(clierr.CodeUsage, "invalid target for action step")
		}
		if strings.TrimSpace(step.RPCURL) == "" {
			markStepFailed(action, step, "missing rpc url")
			save()
			return clierr.New(clierr.CodeUsage, "missing rpc url for action step")
		}
		client, err := ethclient.DialContext(ctx, step.RPCURL)
		if err != nil {
			markStepFailed(action, step, err.Error())
			save()
			return clierr.Wrap(clierr.CodeUnavailable, "connect rpc", err)
		}

		log.Info().Str("action_id", action.ActionID).Str("step_id", step.StepID).Str("type", string(step.Type)).Msg("executing step")
		err = executeStep(ctx, client, txSigner, action, step, opts)
		client.Close()
		if err != nil {
			markStepFailed(action, step, err.Error())
			save()
			return err
		}
		action.Touch()
		save()
	}
	action.Status = ActionStatusCompleted
	action.Touch()
	save()
	return nil
}

func executeStep(ctx context.Context, client *ethclient.Client, txSigner signer.Signer, action *Action, step *ActionStep, opts ExecuteOptions) error {
	chainID, err := client.ChainID(ctx)
	if err != nil {
		return clierr.Wrap(clierr.CodeUnavailable, "read chain id", err)
	}
	if step.ChainID != "" {
		expected := fmt.Sprintf("eip155:%d", chainID.Int64())
		if !strings.EqualFold(strings.TrimSpace(step.ChainID), expected) {
			return clierr.New(clierr.CodeActionPlan, fmt.Sprintf("step chain mismatch: expected %s, got %s", expected, step.ChainID))
		}
	}
	msg, err := stepCallMsg(*step, txSigner.Address())
	if err != nil {
		return err
	}
	if err := validateStepPolicy(action, step, msg.Data, opts); err != nil {
		return err
	}
	if opts.Simulate {
		if _, err := client.CallContract(ctx, msg, nil); err != nil {
			return wrapEVMExecutionError(clierr.CodeActionSim, "simulate step (eth_call)", err)
		}
		step.Status = StepStatusSimulated
	}
	receipt, err := sendSigned(ctx, client, chainID, txSigner, msg, opts, func(hash common.Hash) {
		step.Status = StepStatusSubmitted
		step.TxHash = hash.Hex()
	})
	if err != nil {
		return err
	}
	step.GasUsed = receipt.GasUsed
	step.Status = StepStatusConfirmed
	return nil
}

// sendSigned estimates, prices, signs, broadcasts and waits for msg.
// onSubmit runs once the transaction is accepted by the node.
func sendSigned(ctx context.Context, client *ethclient.Client, chainID *big.Int, txSigner signer.Signer, msg ethereum.CallMsg, opts ExecuteOptions, onSubmit func(common.Hash)) (*types.Receipt, error) {
	gasLimit := opts.GasLimit
	if gasLimit == 0 {
		estimated, err := client.EstimateGas(ctx, msg)
		if err != nil {
			return nil, wrapEVMExecutionError(clierr.CodeActionSim, "estimate gas", err)
		}
		gasLimit = uint64(float64(estimated) * opts.GasMultiplier)
	}

	tipCap, err := resolveTipCap(ctx, client, opts.MaxPriorityFeeGwei)
	if err != nil {
		return nil, err
	}
	header, err := client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "fetch latest header", err)
	}
	baseFee := header.BaseFee
	if baseFee == nil {
		baseFee = big.NewInt(1_000_000_000)
	}
	feeCap, err := resolveFeeCap(baseFee, tipCap, opts.MaxFeeGwei)
	if err != nil {
		return nil, err
	}

	unlock := acquireSignerNonceLock(chainID, txSigner.Address())
	nonce, err := client.PendingNonceAt(ctx, txSigner.Address())
	if err != nil {
		unlock()
		return nil, clierr.Wrap(clierr.CodeUnavailable, "fetch nonce", err)
	}
	value := msg.Value
	if value == nil {
		value = big.NewInt(0)
	}
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gasLimit,
		To:        msg.To,
		Value:     value,
		Data:      msg.Data,
	})
	signed, err := txSigner.SignTx(chainID, tx)
	if err != nil {
		unlock()
		return nil, clierr.Wrap(clierr.CodeSigner, "sign transaction", err)
	}
	err = client.SendTransaction(ctx, signed)
	unlock()
	if err != nil {
		return nil, wrapEVMExecutionError(clierr.CodeUnavailable, "broadcast transaction", err)
	}
	if onSubmit != nil {
		onSubmit(signed.Hash())
	}
	return waitForReceipt(ctx, client, signed.Hash(), msg, opts)
}

func waitForReceipt(ctx context.Context, client *ethclient.Client, hash common.Hash, msg ethereum.CallMsg, opts ExecuteOptions) (*types.Receipt, error) {
	waitCtx, cancel := context.WithTimeout(ctx, opts.StepTimeout)
	defer cancel()
	ticker := time.NewTicker(opts.PollInterval)
	defer ticker.Stop()
	for {
		// Transient polling failures are retried until the step timeout.
		receipt, err := client.TransactionReceipt(waitCtx, hash)
		if err == nil && receipt != nil {
			if receipt.Status == types.ReceiptStatusSuccessful {
				return receipt, nil
			}
			return receipt, revertedReceiptError(ctx, client, hash, msg, receipt)
		}
		select {
		case <-waitCtx.Done():
			return nil, clierr.Wrap(clierr.CodeActionTimeout, "timed out waiting for receipt", waitCtx.Err())
		case <-ticker.C:
		}
	}
}

// revertedReceiptError replays the call at the failing block to recover the
// revert reason.
func revertedReceiptError(ctx context.Context, client *ethclient.Client, hash common.Hash, msg ethereum.CallMsg, receipt *types.Receipt) error {
	message := fmt.Sprintf("transaction %s reverted on-chain", hash.Hex())
	if _, err := client.CallContract(ctx, msg, receipt.BlockNumber); err != nil {
		return wrapEVMExecutionError(clierr.CodeActionSim, message, err)
	}
	return clierr.New(clierr.CodeActionSim, message)
}

var (
	nonceLocksMu sync.Mutex
	nonceLocks   = map[string]*sync.Mutex{}
)

// acquireSignerNonceLock serializes nonce allocation per (chain, signer) inside
// this process.
func acquireSignerNonceLock(chainID *big.Int, addr common.Address) func() {
	key := fmt.Sprintf("%s:%s", chainID.String(), strings.ToLower(addr.Hex()))
	nonceLocksMu.Lock()
	mu, ok := nonceLocks[key]
	if !ok {
		mu = &sync.Mutex{}
		nonceLocks[key] = mu
	}
	nonceLocksMu.Unlock()
	mu.Lock()
	return mu.Unlock
}

func resolveTipCap(ctx context.Context, client *ethclient.Client, overrideGwei string) (*big.Int, error) {
	if strings.TrimSpace(overrideGwei) != "" {
		v, err := parseGwei(overrideGwei)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeUsage, "parse --max-priority-fee-gwei", err)
		}
		return v, nil
	}
	tipCap, err := client.SuggestGasTipCap(ctx)
	if err != nil {
		return big.NewInt(2_000_000_000), nil // 2 gwei fallback
	}
	return tipCap, nil
}

func resolveFeeCap(baseFee, tipCap *big.Int, overrideGwei string) (*big.Int, error) {
	if strings.TrimSpace(overrideGwei) != "" {
		v, err := parseGwei(overrideGwei)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeUsage, "parse --max-fee-gwei", err)
		}
		if v.Cmp(tipCap) < 0 {
			return nil, clierr.New(clierr.CodeUsage, "--max-fee-gwei must be >= --max-priority-fee-gwei")
		}
		return v, nil
	}
	feeCap := new(big.Int).Mul(baseFee, big.NewInt(2))
	feeCap.Add(feeCap, tipCap)
	return feeCap, nil
}

func parseGwei(v string) (*big.Int, error) {
	clean := strings.TrimSpace(v)
	if clean == "" {
		return nil, fmt.Errorf("empty gwei value")
	}
	rat, ok := new(big.Rat).SetString(clean)
	if !ok {
		return nil, fmt.Errorf("invalid numeric value %q", v)
	}
	if rat.Sign() < 0 {
		return nil, fmt.Errorf("value must be non-negative")
	}
	rat.Mul(rat, big.NewRat(1_000_000_000, 1))
	if !rat.IsInt() {
		return nil, fmt.Errorf("value must resolve to an integer wei amount")
	}
	return new(big.Int).Set(rat.Num()), nil
}

func markStepFailed(action *Action, step *ActionStep, msg string) {
	step.Status = StepStatusFailed
	step.Error = msg
	action.Status = ActionStatusFailed
	action.Touch()
}

func decodeHex(v string) ([]byte, error) {
	clean := strings.TrimSpace(v)
	clean = strings.TrimPrefix(strings.TrimPrefix(clean, "0x"), "0X")
	if clean == "" {
		return []byte{}, nil
	}
	if len(clean)%2 != 0 {
		clean = "0" + clean
	}
	buf, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}
	return buf, nil
}
