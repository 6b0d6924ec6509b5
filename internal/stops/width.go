// Package stops tracks trailing exits for open positions: a monotone
// watermark, a stop price that only ratchets up, plus take-profit and
// max-age exits.
package stops

import (
	"fmt"
	"strings"
)

// WidthParams tunes the liquidity-aware stop width:
//
//	width = z*vol + alpha*(size/liquidity) + beta*spread
//
// clamped to [FloorPct, CeilingPct].
type WidthParams struct {
	Z          float64 `yaml:"z"`
	Alpha      float64 `yaml:"alpha"`
	Beta       float64 `yaml:"beta"`
	FloorPct   float64 `yaml:"floor_pct"`
	CeilingPct float64 `yaml:"ceiling_pct"`
}

// DefaultWidthParams returns the tuned liquidity-model parameters.
func DefaultWidthParams() WidthParams {
	return WidthParams{
		Z:          1.65,
		Alpha:      1.8,
		Beta:       1.0,
		FloorPct:   0.06,
		CeilingPct: 0.40,
	}
}

func (p WidthParams) withDefaults() WidthParams {
	d := DefaultWidthParams()
	if p.Z == 0 {
		p.Z = d.Z
	}
	if p.Alpha == 0 {
		p.Alpha = d.Alpha
	}
	if p.Beta == 0 {
		p.Beta = d.Beta
	}
	if p.FloorPct == 0 {
		p.FloorPct = d.FloorPct
	}
	if p.CeilingPct == 0 {
		p.CeilingPct = d.CeilingPct
	}
	return p
}

// MarketSnapshot carries the inputs the width model reads at entry time.
type MarketSnapshot struct {
	Volatility   float64 // recent return volatility, as a fraction
	SizeUSD      float64 // position notional
	LiquidityUSD float64 // pool liquidity
	SpreadPct    float64 // quoted spread, as a fraction
}

// WidthStrategy computes the trailing width for a new position.
type WidthStrategy interface {
	Name() string
	Width(m MarketSnapshot) float64
}

// BuildWidthStrategy constructs a width strategy by mode name.
func BuildWidthStrategy(mode string, params WidthParams) (WidthStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", "liquidity":
		return &liquidityWidth{params: params.withDefaults()}, nil
	case "fixed":
		return &fixedWidth{pct: params.withDefaults().FloorPct}, nil
	default:
		return nil, fmt.Errorf("stops: unknown width mode %q", mode)
	}
}

// liquidityWidth widens the stop for volatile, thin, or wide-spread markets
// so routine noise does not shake the position out.
type liquidityWidth struct {
	params WidthParams
}

func (l *liquidityWidth) Name() string { return "liquidity" }

func (l *liquidityWidth) Width(m MarketSnapshot) float64 {
	p := l.params
	impact := 0.0
	if m.LiquidityUSD > 0 {
		impact = m.SizeUSD / m.LiquidityUSD
	}
	w := p.Z*m.Volatility + p.Alpha*impact + p.Beta*m.SpreadPct
	if w < p.FloorPct {
		w = p.FloorPct
	}
	if w > p.CeilingPct {
		w = p.CeilingPct
	}
	return w
}

// fixedWidth always trails by the same fraction.
type fixedWidth struct {
	pct float64
}

func (f *fixedWidth) Name() string { return "fixed" }

func (f *fixedWidth) Width(MarketSnapshot) float64 { return f.pct }
