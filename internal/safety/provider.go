package safety

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// HTTPProvider fetches token reports from a rug-check style REST API. The
// report shape varies by token (risks are a free-form list, market entries
// differ by venue), so the interesting fields are pulled out with gjson
// rather than a rigid struct.
type HTTPProvider struct {
	baseURL string
	client  *http.Client
}

// NewHTTPProvider builds a provider against the given base URL.
func NewHTTPProvider(baseURL string, timeout time.Duration) *HTTPProvider {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &HTTPProvider{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Fetch retrieves and maps the token report. Any transport or decode failure
// is returned as an error; the Gate turns that into a fail-closed verdict.
func (p *HTTPProvider) Fetch(ctx context.Context, token string) (Facts, error) {
	url := fmt.Sprintf("%s/v1/tokens/%s/report", p.baseURL, token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Facts{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "ai-trading-bot/1.0 (safety)")
	resp, err := p.client.Do(req)
	if err != nil {
		return Facts{}, fmt.Errorf("http do: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Facts{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Facts{}, fmt.Errorf("read body: %w", err)
	}
	if !gjson.ValidBytes(body) {
		return Facts{}, fmt.Errorf("invalid report payload")
	}
	return parseReport(body), nil
}

func parseReport(body []byte) Facts {
	doc := gjson.ParseBytes(body)

	facts := Facts{
		// Authorities are revoked when the report carries null for them.
		MintRevoked:   !doc.Get("token.mintAuthority").Exists() || doc.Get("token.mintAuthority").Type == gjson.Null,
		FreezeRevoked: !doc.Get("token.freezeAuthority").Exists() || doc.Get("token.freezeAuthority").Type == gjson.Null,
		BuyTaxPct:     doc.Get("token.transferFee.buyPct").Float(),
		SellTaxPct:    doc.Get("token.transferFee.sellPct").Float(),
		LiquidityUSD:  doc.Get("totalMarketLiquidity").Float(),
		Volume24hUSD:  doc.Get("volume24h").Float(),
		TokenAgeHours: doc.Get("token.ageHours").Float(),
	}

	// LP is fine when any market reports >=90% locked or burned.
	doc.Get("markets").ForEach(func(_, market gjson.Result) bool {
		if market.Get("lp.lpLockedPct").Float() >= 90 || market.Get("lp.lpBurned").Bool() {
			facts.LPLockedOrBurned = true
			return false
		}
		return true
	})

	// Top-10 concentration: either reported directly or summed from the
	// holder list.
	if top10 := doc.Get("topHolders.top10Pct"); top10.Exists() {
		facts.Top10HolderPct = top10.Float()
	} else {
		sum, count := 0.0, 0
		doc.Get("topHolders").ForEach(func(_, holder gjson.Result) bool {
			sum += holder.Get("pct").Float()
			count++
			return count < 10
		})
		facts.Top10HolderPct = sum
	}

	// Risk entries are free-form; scan names for capability flags.
	doc.Get("risks").ForEach(func(_, risk gjson.Result) bool {
		name := strings.ToLower(risk.Get("name").String())
		switch {
		case strings.Contains(name, "blacklist"):
			facts.HasBlacklist = true
		case strings.Contains(name, "pause"):
			facts.CanPauseTrading = true
		}
		return true
	})

	return facts
}
