package system

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/ipor-labs/fusion/internal/id"
)

// Balance is one token balance held by the vault.
type Balance struct {
	Token    common.Address `json:"token"`
	Symbol   string         `json:"symbol,omitempty"`
	Amount   string         `json:"amount"`
	Decimals int            `json:"decimals"`
	Decimal  string         `json:"amount_decimal"`
}

// Balances reads the vault's balance of each token.
func (s *PlasmaSystem) Balances(ctx context.Context, tokens []common.Address) ([]Balance, error) {
	out := make([]Balance, 0, len(tokens))
	for _, token := range tokens {
		erc20 := s.ERC20(token)
		amount, err := erc20.BalanceOf(ctx, s.data.PlasmaVault)
		if err != nil {
			return nil, err
		}
		b := Balance{Token: token, Amount: amount.String()}
		if known, ok := id.LookupByAddress(s.chainID, token.Hex()); ok {
			b.Symbol, b.Decimals = known.Symbol, known.Decimals
		} else {
			decimals, err := erc20.Decimals(ctx)
			if err != nil {
				return nil, err
			}
			b.Decimals = int(decimals)
			if symbol, err := erc20.Symbol(ctx); err == nil {
				b.Symbol = symbol
			}
		}
		b.Decimal = id.FormatDecimalCompat(b.Amount, b.Decimals)
		out = append(out, b)
	}
	return out, nil
}

// LogBalances writes one info line per token balance of the vault.
func (s *PlasmaSystem) LogBalances(ctx context.Context, log zerolog.Logger, msg string, tokens []common.Address) error {
	balances, err := s.Balances(ctx, tokens)
	if err != nil {
		return err
	}
	for _, b := range balances {
		log.Info().
			Str("token", b.Token.Hex()).
			Str("symbol", b.Symbol).
			Str("amount", b.Decimal).
			Msg(msg)
	}
	return nil
}
