// Package fuse builds call data for Plasma Vault fuses.
//
// Every encoder is a pure function from typed arguments to
// selector(signature) || abi.encode(arguments). Nothing here talks to a node.
package fuse

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	clierr "github.com/ipor-labs/fusion/internal/errors"
)

// Protocol ids used in MarketID.
const (
	ProtocolAaveV3                = "aave-v3"
	ProtocolCompoundV3            = "compound-v3"
	ProtocolMoonwell              = "moonwell"
	ProtocolMorpho                = "morpho"
	ProtocolUniswapV3             = "uniswap-v3"
	ProtocolRamsesV2              = "ramses-v2"
	ProtocolErc4626               = "erc4626"
	ProtocolGearboxV3             = "gearbox-v3"
	ProtocolFluidInstadapp        = "fluid-instadapp"
	ProtocolUniversalTokenSwapper = "universal-token-swapper"
)

// FuseAction is one call the vault delegates to a fuse inside execute.
type FuseAction struct {
	Fuse common.Address `json:"fuse"`
	Data []byte         `json:"-"`
}

func (a FuseAction) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf(`{"fuse":%q,"data":%q}`, a.Fuse.Hex(), hexutil.Encode(a.Data))), nil
}

// Selector returns the 4-byte function selector for a canonical signature.
func (a FuseAction) Selector() [4]byte {
	var out [4]byte
	copy(out[:], a.Data)
	return out
}

// MarketID identifies a market the way fuses report it: a protocol id plus a
// protocol-specific market key (asset address, market hash, position kind).
type MarketID struct {
	ProtocolID string `json:"protocol_id"`
	MarketID   string `json:"market_id"`
}

func (m MarketID) String() string {
	return m.ProtocolID + "/" + m.MarketID
}

// Selector hashes a canonical signature such as "enter((address,uint256))".
func Selector(signature string) []byte {
	return crypto.Keccak256([]byte(signature))[:4]
}

type base struct {
	address common.Address
}

func newBase(name string, addr common.Address) (base, error) {
	if addr == (common.Address{}) {
		return base{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("%s address is required", name))
	}
	return base{address: addr}, nil
}

func (b base) Address() common.Address { return b.address }

func (b base) call(signature string, args abi.Arguments, values ...any) (FuseAction, error) {
	data, err := Encode(signature, args, values...)
	if err != nil {
		return FuseAction{}, err
	}
	return FuseAction{Fuse: b.address, Data: data}, nil
}

// Encode packs values with args and prefixes the selector of signature.
func Encode(signature string, args abi.Arguments, values ...any) ([]byte, error) {
	packed, err := args.Pack(values...)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeActionPlan, "encode "+signature, err)
	}
	out := make([]byte, 0, 4+len(packed))
	out = append(out, Selector(signature)...)
	return append(out, packed...), nil
}

func mustType(t string, components []abi.ArgumentMarshaling) abi.Type {
	typ, err := abi.NewType(t, "", components)
	if err != nil {
		panic(err)
	}
	return typ
}

// tuple builds a single tuple argument, matching Solidity `f((...))`.
func tuple(components ...abi.ArgumentMarshaling) abi.Arguments {
	return abi.Arguments{{Name: "data", Type: mustType("tuple", components)}}
}

func params(components ...abi.ArgumentMarshaling) abi.Arguments {
	out := make(abi.Arguments, 0, len(components))
	for _, c := range components {
		out = append(out, abi.Argument{Name: c.Name, Type: mustType(c.Type, c.Components)})
	}
	return out
}

func field(name, typ string) abi.ArgumentMarshaling {
	return abi.ArgumentMarshaling{Name: name, Type: typ}
}

func requireAmount(name string, v *big.Int) error {
	if v == nil {
		return clierr.New(clierr.CodeUsage, name+" is required")
	}
	if v.Sign() < 0 {
		return clierr.New(clierr.CodeUsage, name+" must be non-negative")
	}
	return nil
}

func requireAmounts(pairs ...any) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		name, _ := pairs[i].(string)
		v, _ := pairs[i+1].(*big.Int)
		if err := requireAmount(name, v); err != nil {
			return err
		}
	}
	return nil
}

// tupleOf builds a tuple argument from "name:type" pairs.
func tupleOf(fields ...string) abi.Arguments {
	components := make([]abi.ArgumentMarshaling, 0, len(fields))
	for _, f := range fields {
		name, typ, ok := strings.Cut(f, ":")
		if !ok {
			panic("fuse: bad tuple field " + f)
		}
		components = append(components, field(name, typ))
	}
	return tuple(components...)
}
