package fuse

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	clierr "github.com/ipor-labs/fusion/internal/errors"
)

const (
	claimNoArgs         = "claim()"
	claimMorphoBlue     = "claim(address,address,uint256,bytes32[])"
	claimMoonwell       = "claim((address[]))"
	claimRamsesPosition = "claim(uint256[],address[][])"
)

var (
	morphoClaimArgs = params(
		field("distributor", "address"),
		field("rewardsToken", "address"),
		field("claimable", "uint256"),
		field("proof", "bytes32[]"),
	)
	moonwellClaimArgs = tuple(field("mTokens", "address[]"))
	ramsesClaimArgs   = params(field("tokenIds", "uint256[]"), field("tokenRewards", "address[][]"))
)

// ClaimFuse is a rewards fuse whose claim takes no arguments
// (Compound V3, Fluid Instadapp, Gearbox V3 farm dToken).
type ClaimFuse struct{ base }

func NewClaimFuse(addr common.Address) (ClaimFuse, error) {
	b, err := newBase("claim fuse", addr)
	return ClaimFuse{b}, err
}

func (f ClaimFuse) Claim() (FuseAction, error) {
	return f.call(claimNoArgs, abi.Arguments{})
}

type MorphoBlueClaimFuse struct{ base }

func NewMorphoBlueClaimFuse(addr common.Address) (MorphoBlueClaimFuse, error) {
	b, err := newBase("morpho claim fuse", addr)
	return MorphoBlueClaimFuse{b}, err
}

// Claim builds a universal rewards distributor claim. Proof entries are hex
// strings with or without a 0x prefix.
func (f MorphoBlueClaimFuse) Claim(distributor, rewardsToken common.Address, claimable *big.Int, proof []string) (FuseAction, error) {
	if err := requireAmount("claimable", claimable); err != nil {
		return FuseAction{}, err
	}
	hashes, err := ParseProof(proof)
	if err != nil {
		return FuseAction{}, err
	}
	return f.call(claimMorphoBlue, morphoClaimArgs, distributor, rewardsToken, claimable, hashes)
}

// ParseProof decodes merkle proof entries into 32-byte words.
func ParseProof(proof []string) ([][32]byte, error) {
	out := make([][32]byte, 0, len(proof))
	for i, p := range proof {
		raw := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(p), "0x"), "0X")
		buf, err := hex.DecodeString(raw)
		if err != nil || len(buf) != 32 {
			return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("proof[%d] must be 32 bytes of hex", i))
		}
		var word [32]byte
		copy(word[:], buf)
		out = append(out, word)
	}
	return out, nil
}

type MoonwellClaimFuse struct{ base }

func NewMoonwellClaimFuse(addr common.Address) (MoonwellClaimFuse, error) {
	b, err := newBase("moonwell claim fuse", addr)
	return MoonwellClaimFuse{b}, err
}

func (f MoonwellClaimFuse) Claim(mTokens []common.Address) (FuseAction, error) {
	return f.call(claimMoonwell, moonwellClaimArgs, struct{ MTokens []common.Address }{nonNilAddresses(mTokens)})
}

type RamsesClaimFuse struct{ base }

func NewRamsesClaimFuse(addr common.Address) (RamsesClaimFuse, error) {
	b, err := newBase("ramses claim fuse", addr)
	return RamsesClaimFuse{b}, err
}

// Claim collects gauge rewards for positions; tokenRewards[i] lists the reward
// tokens of tokenIDs[i].
func (f RamsesClaimFuse) Claim(tokenIDs []*big.Int, tokenRewards [][]common.Address) (FuseAction, error) {
	if len(tokenIDs) != len(tokenRewards) {
		return FuseAction{}, clierr.New(clierr.CodeUsage, "token ids and token rewards must have the same length")
	}
	for i, id := range tokenIDs {
		if err := requireAmount(fmt.Sprintf("tokenIds[%d]", i), id); err != nil {
			return FuseAction{}, err
		}
	}
	rewards := make([][]common.Address, len(tokenRewards))
	for i, r := range tokenRewards {
		rewards[i] = nonNilAddresses(r)
	}
	ids := tokenIDs
	if ids == nil {
		ids = []*big.Int{}
	}
	return f.call(claimRamsesPosition, ramsesClaimArgs, ids, rewards)
}
