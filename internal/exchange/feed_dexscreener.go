package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Carl590/ai-trading-bot/internal/metrics"
	"github.com/Carl590/ai-trading-bot/internal/signal"
)

type dexscreenerPairsResponse struct {
	Pairs []dexscreenerPair `json:"pairs"`
}

type dexscreenerPair struct {
	ChainID     string               `json:"chainId"`
	PairAddress string               `json:"pairAddress"`
	BaseToken   dexscreenerToken     `json:"baseToken"`
	QuoteToken  dexscreenerToken     `json:"quoteToken"`
	PriceUsd    string               `json:"priceUsd"`
	PriceNative string               `json:"priceNative"`
	Liquidity   dexscreenerLiquidity `json:"liquidity"`
	Volume      dexscreenerVolumes   `json:"volume"`
}

type dexscreenerToken struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
}

type dexscreenerLiquidity struct {
	USD   float64 `json:"usd"`
	Base  float64 `json:"base"`
	Quote float64 `json:"quote"`
}

type dexscreenerVolumes struct {
	M5  float64 `json:"m5"`
	H1  float64 `json:"h1"`
	H6  float64 `json:"h6"`
	H24 float64 `json:"h24"`
}

func (f *Feed) runDexScreener(ctx context.Context, out chan<- signal.Tick) error {
	client := &http.Client{Timeout: 10 * time.Second}
	if err := f.pollDexScreener(ctx, client, out); err != nil && !errors.Is(err, context.Canceled) {
		f.log.Warn().Err(err).Msg("initial dexscreener poll failed")
	}

	ticker := time.NewTicker(f.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := f.pollDexScreener(ctx, client, out); err != nil && !errors.Is(err, context.Canceled) {
				f.log.Warn().Err(err).Msg("dexscreener poll failed")
			}
		}
	}
}

func (f *Feed) pollDexScreener(ctx context.Context, client *http.Client, out chan<- signal.Tick) error {
	for _, token := range f.snapshotTokens() {
		tick, err := f.fetchDexScreener(ctx, client, token)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			f.log.Warn().Err(err).Str("token", token).Msg("dexscreener fetch failed")
			continue
		}
		f.recordPrice(token, tick.Price)
		select {
		case out <- *tick:
			metrics.TicksTotal.WithLabelValues(f.provider).Inc()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (f *Feed) fetchDexScreener(ctx context.Context, client *http.Client, token string) (*signal.Tick, error) {
	url := fmt.Sprintf("%s/latest/dex/tokens/%s", f.dexscreenerBaseURL, token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "ai-trading-bot/1.0 (feed)")
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http do: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var payload dexscreenerPairsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	pair, ok := deepestPair(payload.Pairs)
	if !ok {
		return nil, fmt.Errorf("no pair data returned")
	}
	price, err := parseDexScreenerPrice(pair)
	if err != nil {
		return nil, err
	}

	return &signal.Tick{
		Token:     token,
		Price:     price,
		Liquidity: pair.Liquidity.USD,
		Ts:        time.Now().UTC(),
	}, nil
}

// deepestPair picks the most liquid pair so thin side pools cannot distort
// the price the stop engine sees.
func deepestPair(pairs []dexscreenerPair) (*dexscreenerPair, bool) {
	var best *dexscreenerPair
	for i := range pairs {
		if best == nil || pairs[i].Liquidity.USD > best.Liquidity.USD {
			best = &pairs[i]
		}
	}
	return best, best != nil
}

func parseDexScreenerPrice(pair *dexscreenerPair) (float64, error) {
	if pair == nil {
		return 0, fmt.Errorf("pair missing")
	}
	if pair.PriceUsd != "" {
		if px, err := strconv.ParseFloat(pair.PriceUsd, 64); err == nil && px > 0 {
			return px, nil
		}
	}
	if pair.PriceNative != "" {
		if px, err := strconv.ParseFloat(pair.PriceNative, 64); err == nil && px > 0 {
			return px, nil
		}
	}
	return 0, fmt.Errorf("pair missing price")
}
