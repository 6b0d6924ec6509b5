package paper

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Carl590/ai-trading-bot/internal/execution"
)

// PriceFunc returns the latest known price for a token mint.
type PriceFunc func(token string) (float64, bool)

// Executor fills orders instantly against the virtual account at the feed's
// last price, shifted by a configured slippage.
type Executor struct {
	account     *Account
	price       PriceFunc
	slippageBps int
	fills       *FillLog // optional
	log         zerolog.Logger
}

// NewExecutor builds a paper executor on top of an account and price source.
// Every fill is recorded into fills when one is given.
func NewExecutor(account *Account, price PriceFunc, slippageBps int, fills *FillLog, log zerolog.Logger) *Executor {
	if slippageBps < 0 {
		slippageBps = 0
	}
	return &Executor{account: account, price: price, slippageBps: slippageBps, fills: fills, log: log}
}

// Execute fills the order at last price +/- slippage. Buys pay up, sells
// give up, mirroring how a market order crosses the spread.
func (e *Executor) Execute(ctx context.Context, order execution.Order) (*execution.Fill, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	last, ok := e.price(order.Token)
	if !ok || last <= 0 {
		return nil, fmt.Errorf("paper: no price for %s", order.Token)
	}

	slip := float64(e.slippageBps) / 10000
	price := last
	switch order.Side {
	case execution.Buy:
		price = last * (1 + slip)
	case execution.Sell:
		price = last * (1 - slip)
	}

	qty := order.SizeUSD / price
	if err := e.account.MarketFill(order.Token, order.Side, qty, price); err != nil {
		return nil, fmt.Errorf("paper: fill %s %s: %w", order.Side, order.Token, err)
	}

	fill := &execution.Fill{
		OrderID: order.ID,
		User:    order.User,
		Token:   order.Token,
		Side:    order.Side,
		SizeUSD: order.SizeUSD,
		Price:   price,
		Ts:      time.Now().UTC(),
	}
	e.fills.Record(*fill)
	e.log.Info().
		Str("token", order.Token).
		Str("side", string(order.Side)).
		Float64("size_usd", order.SizeUSD).
		Float64("px", price).
		Msg("paper fill")
	return fill, nil
}
