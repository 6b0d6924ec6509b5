package solana

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Carl590/ai-trading-bot/internal/execution"
)

// LiveExecutor turns USD-sized orders into Jupiter swaps. Buys route
// SOL -> token; sells route token -> SOL. The USD notional is converted to
// lamports via the live SOL price.
type LiveExecutor struct {
	client *JupiterClient
	log    zerolog.Logger
}

// NewLiveExecutor wires a Jupiter client as the engine's executor.
func NewLiveExecutor(client *JupiterClient, log zerolog.Logger) *LiveExecutor {
	return &LiveExecutor{client: client, log: log}
}

// Execute performs one swap and reports the fill at the token's quoted
// price. Any failure on the quote, build, or submit path surfaces as an
// error so the retrier can decide what to do.
func (e *LiveExecutor) Execute(ctx context.Context, order execution.Order) (*execution.Fill, error) {
	solPrice, err := e.client.GetPriceUSD(ctx, MintWSOL)
	if err != nil {
		return nil, fmt.Errorf("sol price: %w", err)
	}
	tokenPrice, err := e.client.GetPriceUSD(ctx, order.Token)
	if err != nil {
		return nil, fmt.Errorf("token price: %w", err)
	}

	var inputMint, outputMint string
	var amount uint64
	switch order.Side {
	case execution.Buy:
		inputMint, outputMint = MintWSOL, order.Token
		amount = uint64(order.SizeUSD / solPrice * lamportsPerSOL)
	case execution.Sell:
		inputMint, outputMint = order.Token, MintWSOL
		// Memecoin mints are overwhelmingly 6-decimal SPL tokens.
		amount = uint64(order.SizeUSD / tokenPrice * 1_000_000)
	default:
		return nil, fmt.Errorf("unknown side %q", order.Side)
	}
	if amount == 0 {
		return nil, fmt.Errorf("size %.2f USD rounds to zero input units", order.SizeUSD)
	}

	quote, err := e.client.GetQuote(ctx, inputMint, outputMint, amount, order.SlippageBps)
	if err != nil {
		return nil, fmt.Errorf("quote: %w", err)
	}
	sig, err := e.client.BuildAndSendSwap(ctx, quote)
	if err != nil {
		return nil, fmt.Errorf("swap: %w", err)
	}

	e.log.Info().
		Str("token", order.Token).
		Str("side", string(order.Side)).
		Float64("size_usd", order.SizeUSD).
		Str("sig", sig.String()).
		Msg("live fill")

	return &execution.Fill{
		OrderID:     order.ID,
		User:        order.User,
		Token:       order.Token,
		Side:        order.Side,
		SizeUSD:     order.SizeUSD,
		Price:       tokenPrice,
		TxSignature: sig.String(),
		Ts:          time.Now().UTC(),
	}, nil
}
