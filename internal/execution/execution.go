// Package execution defines the order/fill model and the venue-facing
// Executor contract shared by paper and live trading.
package execution

import (
	"context"
	"time"
)

// Side enumerates order directions used by the executor.
type Side string

const (
	// Buy swaps quote currency into the token.
	Buy Side = "BUY"
	// Sell swaps the token back into quote currency.
	Sell Side = "SELL"
)

// Order is a swap request sized in quote currency (USD). Token is the mint
// address of the asset being traded.
type Order struct {
	ID          string
	User        string
	Token       string
	Side        Side
	SizeUSD     float64
	SlippageBps int
}

// Fill is the confirmed result of an executed order. TxSignature is empty in
// paper mode.
type Fill struct {
	OrderID     string    `json:"order_id"`
	User        string    `json:"user"`
	Token       string    `json:"token"`
	Side        Side      `json:"side"`
	SizeUSD     float64   `json:"size_usd"`
	Price       float64   `json:"price"`
	TxSignature string    `json:"tx_signature,omitempty"`
	Ts          time.Time `json:"ts"`
}

// Executor submits a single order to a venue and reports the fill.
// Implementations must honor ctx cancellation.
type Executor interface {
	Execute(ctx context.Context, order Order) (*Fill, error)
}
