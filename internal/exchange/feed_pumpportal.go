package exchange

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Carl590/ai-trading-bot/internal/metrics"
	"github.com/Carl590/ai-trading-bot/internal/signal"
)

// pumpPortalTrade is one tokenTrade event. Price is derived from the pool's
// virtual reserves; solInPool approximates liquidity depth.
type pumpPortalTrade struct {
	Mint                  string  `json:"mint"`
	TxType                string  `json:"txType"`
	SolAmount             float64 `json:"solAmount"`
	TokenAmount           float64 `json:"tokenAmount"`
	VSolInBondingCurve    float64 `json:"vSolInBondingCurve"`
	VTokensInBondingCurve float64 `json:"vTokensInBondingCurve"`
	SolInPool             float64 `json:"solInPool"`
}

func (f *Feed) runPumpPortal(ctx context.Context, out chan<- signal.Tick) error {
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := f.consumePumpPortal(ctx, out); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			f.log.Warn().Err(err).Msg("pumpportal feed disconnected, retrying")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff = time.Duration(math.Min(float64(maxBackoff), float64(backoff)*1.8))
			continue
		}
		return nil
	}
}

func (f *Feed) consumePumpPortal(ctx context.Context, out chan<- signal.Tick) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, f.pumpportalURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	tokens := f.snapshotTokens()
	f.log.Info().Str("provider", ProviderPumpPortal).Int("tokens", len(tokens)).Msg("connected market data feed")

	if len(tokens) > 0 {
		sub := map[string]any{"method": "subscribeTokenTrade", "keys": tokens}
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteJSON(sub); err != nil {
			return err
		}
	}

	conn.SetReadLimit(1 << 20)
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					f.log.Warn().Err(err).Msg("pumpportal ping failed")
					return
				}
			case <-pingCtx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var trade pumpPortalTrade
		if err := json.Unmarshal(message, &trade); err != nil {
			f.log.Warn().Err(err).Msg("failed to decode pumpportal message")
			continue
		}
		if trade.Mint == "" || trade.VTokensInBondingCurve <= 0 {
			continue
		}

		price := trade.VSolInBondingCurve / trade.VTokensInBondingCurve
		liquidity := trade.SolInPool
		if liquidity == 0 {
			liquidity = trade.VSolInBondingCurve
		}
		f.recordPrice(trade.Mint, price)

		tick := signal.Tick{
			Token:     trade.Mint,
			Price:     price,
			Liquidity: liquidity,
			Ts:        time.Now().UTC(),
		}
		select {
		case out <- tick:
			metrics.TicksTotal.WithLabelValues(f.provider).Inc()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
