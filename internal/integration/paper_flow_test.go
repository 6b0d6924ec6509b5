package integration

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Carl590/ai-trading-bot/internal/engine"
	"github.com/Carl590/ai-trading-bot/internal/intake"
	"github.com/Carl590/ai-trading-bot/internal/ledger"
	"github.com/Carl590/ai-trading-bot/internal/normalize"
	"github.com/Carl590/ai-trading-bot/internal/paper"
	"github.com/Carl590/ai-trading-bot/internal/policy"
	"github.com/Carl590/ai-trading-bot/internal/safety"
	"github.com/Carl590/ai-trading-bot/internal/score"
	sig "github.com/Carl590/ai-trading-bot/internal/signal"
	"github.com/Carl590/ai-trading-bot/internal/stops"
)

const mint = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"

type okProvider struct{}

func (okProvider) Fetch(ctx context.Context, token string) (safety.Facts, error) {
	return safety.Facts{
		MintRevoked:      true,
		FreezeRevoked:    true,
		LPLockedOrBurned: true,
		LiquidityUSD:     250000,
		Volume24hUSD:     120000,
		Top10HolderPct:   0.20,
		TokenAgeHours:    72,
	}, nil
}

// End to end in paper mode: a webhook signal becomes an open position, then
// a falling tick trails it out and the account realizes the round trip.
func TestPaperFlowSignalToExit(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := ledger.Open(filepath.Join(t.TempDir(), "flow.db"))
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	defer store.Close()

	policies, err := policy.NewStore(store.DB())
	if err != nil {
		t.Fatalf("policy store: %v", err)
	}
	p := policy.Default("u1")
	p.Enabled = true
	p.MinConfidence = 0.5
	p.Version = 0
	if err := policies.Save(ctx, p); err != nil {
		t.Fatalf("save policy: %v", err)
	}

	price := 1.0
	account := paper.NewAccount(5000, 0)
	fills := paper.NewFillLog(0)
	exec := paper.NewExecutor(account, func(string) (float64, bool) { return price, true }, 0, fills, zerolog.Nop())

	width, err := stops.BuildWidthStrategy("fixed", stops.WidthParams{FloorPct: 0.10})
	if err != nil {
		t.Fatalf("width: %v", err)
	}

	eng, err := engine.New(engine.Deps{
		Normalizer: normalize.New(),
		Scorer:     score.New(score.Params{}),
		Gate:       safety.NewGate(okProvider{}, safety.Thresholds{}, time.Second, 0, zerolog.Nop()),
		Policies:   policies,
		Ledger:     store,
		Stops:      stops.NewManager(),
		Width:      width,
		Executor:   exec,
		Log:        zerolog.Nop(),
		QueueSize:  16,
		Workers:    2,
	})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	if err := eng.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	server := intake.NewServer(eng, zerolog.Nop())
	web := httptest.NewServer(server.Handler())
	defer web.Close()

	resp, err := http.Post(web.URL+"/signal", "application/json",
		strings.NewReader(`{"channel":"alpha","text":"new token on solana $BONK `+mint+`"}`))
	if err != nil {
		t.Fatalf("post signal: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}

	deadline := time.Now().Add(5 * time.Second)
	var pos *ledger.Position
	for time.Now().Before(deadline) {
		pos, _ = store.OpenByKey(ctx, "u1", mint)
		if pos != nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if pos == nil {
		t.Fatalf("signal never became a position")
	}
	if account.AvailableCash() >= 5000 {
		t.Fatalf("entry did not spend cash")
	}

	now := time.Now().UTC()
	price = 2.0
	eng.ObservePrice(ctx, sig.Tick{Token: mint, Price: 2.0, Ts: now.Add(time.Second)})
	price = 1.7
	eng.ObservePrice(ctx, sig.Tick{Token: mint, Price: 1.7, Ts: now.Add(2 * time.Second)})

	if after, _ := store.OpenByKey(ctx, "u1", mint); after != nil {
		t.Fatalf("position still open after stop-out tick")
	}
	if account.RealizedPnL() <= 0 {
		t.Fatalf("profitable round trip should realize gains, got %.2f", account.RealizedPnL())
	}
	recorded := fills.Snapshot()
	if len(recorded) != 2 {
		t.Fatalf("expected buy and sell in the fill log, got %d", len(recorded))
	}
}
