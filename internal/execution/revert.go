package execution

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"

	clierr "github.com/ipor-labs/fusion/internal/errors"
	"github.com/ipor-labs/fusion/internal/registry"
)

var (
	errorStringSelector = common.FromHex("0x08c379a0")
	panicSelector       = common.FromHex("0x4e487b71")

	fusionErrorsABI = registry.MustABI(registry.FusionErrorsABI)
)

// RevertError carries a decoded custom error alongside the raw revert data.
type RevertError struct {
	Name   string
	Args   []any
	Reason string
	Data   []byte
}

func (e *RevertError) Error() string { return e.Reason }

func decodeRevertData(data []byte) string {
	if decoded := decodeRevert(data); decoded != nil {
		return decoded.Reason
	}
	return ""
}

func decodeRevert(data []byte) *RevertError {
	if len(data) < 4 {
		return nil
	}
	selector := data[:4]
	switch {
	case bytes.Equal(selector, errorStringSelector):
		reason, err := abi.UnpackRevert(data)
		if err != nil {
			return &RevertError{Name: "Error", Reason: "execution reverted", Data: data}
		}
		return &RevertError{Name: "Error", Args: []any{reason}, Reason: reason, Data: data}
	case bytes.Equal(selector, panicSelector):
		code := new(big.Int)
		if len(data) >= 36 {
			code.SetBytes(data[4:36])
		}
		return &RevertError{Name: "Panic", Args: []any{code}, Reason: fmt.Sprintf("panic(0x%x)", code), Data: data}
	}
	for name, customErr := range fusionErrorsABI.Errors {
		if !bytes.Equal(selector, customErr.ID[:4]) {
			continue
		}
		args, err := customErr.Inputs.Unpack(data[4:])
		if err != nil {
			return &RevertError{Name: name, Reason: name, Data: data}
		}
		parts := make([]string, 0, len(args))
		for _, arg := range args {
			parts = append(parts, formatRevertArg(arg))
		}
		return &RevertError{Name: name, Args: args, Reason: fmt.Sprintf("%s(%s)", name, strings.Join(parts, ", ")), Data: data}
	}
	return &RevertError{Name: "", Reason: fmt.Sprintf("custom error 0x%x", selector), Data: data}
}

func formatRevertArg(arg any) string {
	switch v := arg.(type) {
	case common.Address:
		return v.Hex()
	case *big.Int:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

func revertDataFromError(err error) []byte {
	var dataErr rpc.DataError
	if !errors.As(err, &dataErr) {
		return nil
	}
	switch data := dataErr.ErrorData().(type) {
	case string:
		return common.FromHex(data)
	case []byte:
		return data
	default:
		return nil
	}
}

func decodeRevertFromError(err error) string {
	return decodeRevertData(revertDataFromError(err))
}

// DecodeRevert extracts the structured revert from an RPC error, if any.
func DecodeRevert(err error) (*RevertError, bool) {
	if err == nil {
		return nil, false
	}
	var typed *RevertError
	if errors.As(err, &typed) {
		return typed, true
	}
	decoded := decodeRevert(revertDataFromError(err))
	return decoded, decoded != nil
}

// UnauthorizedCaller reports the caller named by AccessManagedUnauthorized.
func UnauthorizedCaller(err error) (common.Address, bool) {
	decoded, ok := DecodeRevert(err)
	if !ok || decoded.Name != "AccessManagedUnauthorized" || len(decoded.Args) != 1 {
		return common.Address{}, false
	}
	caller, ok := decoded.Args[0].(common.Address)
	return caller, ok
}

func wrapEVMExecutionError(code clierr.Code, message string, err error) error {
	if err == nil {
		return nil
	}
	decoded := decodeRevert(revertDataFromError(err))
	if decoded == nil {
		return clierr.Wrap(code, message, err)
	}
	if decoded.Name == "AccessManagedUnauthorized" {
		code = clierr.CodeUnauthorized
	}
	return clierr.Wrap(code, fmt.Sprintf("%s: %s", message, decoded.Reason), decoded)
}

func normalizeStepTxHash(v string) (common.Hash, bool) {
	clean := strings.TrimSpace(v)
	if !strings.HasPrefix(clean, "0x") && !strings.HasPrefix(clean, "0X") {
		clean = "0x" + clean
	}
	if len(clean) != 66 {
		return common.Hash{}, false
	}
	raw := common.FromHex(clean)
	if len(raw) != common.HashLength {
		return common.Hash{}, false
	}
	return common.BytesToHash(raw), true
}
