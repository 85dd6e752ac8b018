// Package markets groups a vault's fuses by protocol and exposes the actions a
// strategy can put into one PlasmaVault.execute batch.
//
// A market is built from the vault's on-chain fuse list. Methods whose fuse the
// vault does not carry return an error wrapping ErrUnsupportedFuse.
package markets

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	clierr "github.com/ipor-labs/fusion/internal/errors"
	"github.com/ipor-labs/fusion/internal/registry"
)

var ErrUnsupportedFuse = errors.New("fuse is not supported by plasma vault")

func unsupported(fuseName string) error {
	return clierr.Wrap(clierr.CodeUnsupported, fmt.Sprintf("%s is not supported by PlasmaVault", fuseName), ErrUnsupportedFuse)
}

// fuseSet matches vault fuse addresses against the registry for one chain.
type fuseSet struct {
	chainID int64
	fuses   []common.Address
}

func newFuseSet(chainID int64, fuses []common.Address) fuseSet {
	return fuseSet{chainID: chainID, fuses: fuses}
}

// find returns the first vault fuse registered under name.
func (s fuseSet) find(name string) (common.Address, bool) {
	for _, f := range s.fuses {
		if registry.IsFuse(s.chainID, name, f) {
			return f, true
		}
	}
	return common.Address{}, false
}

// build constructs a fuse wrapper when the vault carries name.
func build[T any](s fuseSet, name string, ctor func(common.Address) (T, error)) *T {
	addr, ok := s.find(name)
	if !ok {
		return nil
	}
	f, err := ctor(addr)
	if err != nil {
		return nil
	}
	return &f
}

func anyOf(present ...bool) bool {
	for _, p := range present {
		if p {
			return true
		}
	}
	return false
}
