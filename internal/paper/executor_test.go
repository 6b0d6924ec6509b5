package paper

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/Carl590/ai-trading-bot/internal/execution"
)

func fixedPrice(p float64) PriceFunc {
	return func(string) (float64, bool) { return p, true }
}

func TestExecutorBuyAppliesSlippage(t *testing.T) {
	account := NewAccount(1000, 0)
	fills := NewFillLog(0)
	exec := NewExecutor(account, fixedPrice(2.0), 100, fills, zerolog.Nop()) // 1% slip

	fill, err := exec.Execute(context.Background(), execution.Order{
		ID: "o1", User: "u1", Token: "TOKEN", Side: execution.Buy, SizeUSD: 100,
	})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if fill.Price != 2.02 {
		t.Fatalf("expected buy at 2.02, got %.4f", fill.Price)
	}
	if account.AvailableCash() != 900 {
		t.Fatalf("expected cash 900, got %.2f", account.AvailableCash())
	}
	if account.Position("TOKEN") <= 0 {
		t.Fatalf("expected positive holding")
	}
	snap := fills.Snapshot()
	if len(snap) != 1 || snap[0].OrderID != "o1" || snap[0].Price != 2.02 {
		t.Fatalf("fill not recorded: %+v", snap)
	}
}

func TestExecutorSellRealizesPnL(t *testing.T) {
	account := NewAccount(1000, 0)
	exec := NewExecutor(account, fixedPrice(1.0), 0, nil, zerolog.Nop())

	if _, err := exec.Execute(context.Background(), execution.Order{
		ID: "o1", User: "u1", Token: "TOKEN", Side: execution.Buy, SizeUSD: 100,
	}); err != nil {
		t.Fatalf("buy: %v", err)
	}

	up := NewExecutor(account, fixedPrice(2.0), 0, nil, zerolog.Nop())
	if _, err := up.Execute(context.Background(), execution.Order{
		ID: "o2", User: "u1", Token: "TOKEN", Side: execution.Sell, SizeUSD: 200,
	}); err != nil {
		t.Fatalf("sell: %v", err)
	}
	if account.RealizedPnL() != 100 {
		t.Fatalf("expected +100 realized, got %.2f", account.RealizedPnL())
	}
	if account.Position("TOKEN") != 0 {
		t.Fatalf("expected flat position, got %.4f", account.Position("TOKEN"))
	}
}

func TestExecutorNoPrice(t *testing.T) {
	account := NewAccount(1000, 0)
	exec := NewExecutor(account, func(string) (float64, bool) { return 0, false }, 0, nil, zerolog.Nop())
	if _, err := exec.Execute(context.Background(), execution.Order{
		Token: "TOKEN", Side: execution.Buy, SizeUSD: 100,
	}); err == nil {
		t.Fatalf("expected error without a price")
	}
}

func TestExecutorInsufficientCash(t *testing.T) {
	account := NewAccount(50, 0)
	exec := NewExecutor(account, fixedPrice(1.0), 0, nil, zerolog.Nop())
	if _, err := exec.Execute(context.Background(), execution.Order{
		Token: "TOKEN", Side: execution.Buy, SizeUSD: 100,
	}); err == nil {
		t.Fatalf("expected insufficient cash error")
	}
}

func TestFillLog(t *testing.T) {
	log := NewFillLog(4)
	log.Record(execution.Fill{OrderID: "a"})
	log.Record(execution.Fill{OrderID: "b"})
	snap := log.Snapshot()
	if len(snap) != 2 || snap[0].OrderID != "a" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	log.Reset()
	if len(log.Snapshot()) != 0 {
		t.Fatalf("reset did not clear fills")
	}
}
