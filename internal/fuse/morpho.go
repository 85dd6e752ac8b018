package fuse

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

const enterFlashLoan = "enter((address,uint256,bytes))"

var flashLoanArgs = tuple(field("token", "address"), field("tokenAmount", "uint256"), field("callbackFuseActionsData", "bytes"))

type flashLoan struct {
	Token                   common.Address
	TokenAmount             *big.Int
	CallbackFuseActionsData []byte
}

// MorphoFlashLoanFuse borrows from Morpho Blue and runs the callback actions
// inside the loan.
type MorphoFlashLoanFuse struct{ base }

func NewMorphoFlashLoanFuse(addr common.Address) (MorphoFlashLoanFuse, error) {
	b, err := newBase("morpho flash loan fuse", addr)
	return MorphoFlashLoanFuse{b}, err
}

func (f MorphoFlashLoanFuse) FlashLoan(token common.Address, amount *big.Int, callbacks []FuseAction) (FuseAction, error) {
	if err := requireAmount("amount", amount); err != nil {
		return FuseAction{}, err
	}
	payload, err := EncodeActions(callbacks)
	if err != nil {
		return FuseAction{}, err
	}
	return f.call(enterFlashLoan, flashLoanArgs, flashLoan{Token: token, TokenAmount: amount, CallbackFuseActionsData: payload})
}
