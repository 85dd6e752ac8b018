package fuse

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	clierr "github.com/ipor-labs/fusion/internal/errors"
)

const (
	ExecuteSignature      = "execute((address,bytes)[])"
	ClaimRewardsSignature = "claimRewards((address,bytes)[])"
)

type actionTuple struct {
	Fuse common.Address
	Data []byte
}

var actionsArgs = abi.Arguments{{
	Name: "calls",
	Type: mustType("tuple[]", []abi.ArgumentMarshaling{field("fuse", "address"), field("data", "bytes")}),
}}

func toTuples(actions []FuseAction) []actionTuple {
	out := make([]actionTuple, 0, len(actions))
	for _, a := range actions {
		data := a.Data
		if data == nil {
			data = []byte{}
		}
		out = append(out, actionTuple{Fuse: a.Fuse, Data: data})
	}
	return out
}

// EncodeActions is the bare abi.encode((address,bytes)[]) of actions, used as
// the callback payload of flash loans.
func EncodeActions(actions []FuseAction) ([]byte, error) {
	packed, err := actionsArgs.Pack(toTuples(actions))
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeActionPlan, "encode fuse actions", err)
	}
	return packed, nil
}

// DecodeActions reverses EncodeActions.
func DecodeActions(data []byte) ([]FuseAction, error) {
	values, err := actionsArgs.Unpack(data)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUsage, "decode fuse actions", err)
	}
	if len(values) != 1 {
		return nil, clierr.New(clierr.CodeUsage, "decode fuse actions: unexpected output")
	}
	var tuples []actionTuple
	if err := convert(values[0], &tuples); err != nil {
		return nil, err
	}
	out := make([]FuseAction, 0, len(tuples))
	for _, t := range tuples {
		out = append(out, FuseAction{Fuse: t.Fuse, Data: t.Data})
	}
	return out, nil
}

// ExecuteCalldata builds PlasmaVault.execute call data for a batch of actions.
func ExecuteCalldata(actions []FuseAction) ([]byte, error) {
	return Encode(ExecuteSignature, actionsArgs, toTuples(actions))
}

// ClaimRewardsCalldata builds RewardsClaimManager.claimRewards call data.
func ClaimRewardsCalldata(actions []FuseAction) ([]byte, error) {
	return Encode(ClaimRewardsSignature, actionsArgs, toTuples(actions))
}

// DecodeExecuteCalldata parses execute call data back into actions.
func DecodeExecuteCalldata(data []byte) ([]FuseAction, error) {
	if len(data) < 4 || !bytes.Equal(data[:4], Selector(ExecuteSignature)) {
		return nil, clierr.New(clierr.CodeUsage, "call data is not execute((address,bytes)[])")
	}
	return DecodeActions(data[4:])
}

func convert(in any, out any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = clierr.New(clierr.CodeUsage, fmt.Sprintf("decode abi value: %v", r))
		}
	}()
	abi.ConvertType(in, out)
	return nil
}
