// Package engine runs the signal-to-trade pipeline: normalize, score, gate,
// decide per user, execute, and track exits. It is the only component that
// writes to the position ledger.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	cache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/Carl590/ai-trading-bot/internal/execution"
	"github.com/Carl590/ai-trading-bot/internal/ledger"
	"github.com/Carl590/ai-trading-bot/internal/metrics"
	"github.com/Carl590/ai-trading-bot/internal/normalize"
	"github.com/Carl590/ai-trading-bot/internal/policy"
	"github.com/Carl590/ai-trading-bot/internal/safety"
	"github.com/Carl590/ai-trading-bot/internal/score"
	"github.com/Carl590/ai-trading-bot/internal/signal"
	"github.com/Carl590/ai-trading-bot/internal/stops"
)

// Ledger is the slice of the position store the engine drives. Satisfied by
// *ledger.Store.
type Ledger interface {
	OpenByKey(ctx context.Context, user, token string) (*ledger.Position, error)
	OpenPosition(ctx context.Context, user, token string, entryPrice, entryLiquidity, size float64) (*ledger.Position, error)
	ClosePosition(ctx context.Context, id int64, reason ledger.CloseReason, exitPrice float64) (ledger.CloseReason, error)
	CommittedSince(ctx context.Context, user string, t time.Time) (float64, error)
	SaveStopState(ctx context.Context, st ledger.StopState) error
	LoadStopState(ctx context.Context, positionID int64) (ledger.StopState, error)
	AllOpen(ctx context.Context) ([]ledger.Position, error)
	OpenPositions(ctx context.Context, user string) ([]ledger.Position, error)
}

// Deps bundles everything the engine needs. All fields are required unless
// noted.
type Deps struct {
	Normalizer *normalize.Normalizer
	Scorer     *score.Scorer
	Gate       *safety.Gate
	Policies   *policy.Store
	Ledger     Ledger
	Stops      *stops.Manager
	Width      stops.WidthStrategy
	Executor   execution.Executor
	Sizing     policy.Sizing
	Audit      *AuditLog // optional
	Log        zerolog.Logger

	QueueSize int     // intake queue capacity, default 256
	Workers   int     // concurrent signal processors, default 4
	TickRate  float64 // per-token observed ticks per second, default 20
	TickBurst int     // tick limiter burst, default 40
}

// Engine coordinates the pipeline. Per-(user, token) work is serialized with
// a keyed lock; durable writes land before the key is released.
type Engine struct {
	normalizer *normalize.Normalizer
	scorer     *score.Scorer
	gate       *safety.Gate
	policies   *policy.Store
	ledger     Ledger
	stops      *stops.Manager
	width      stops.WidthStrategy
	executor   execution.Executor
	sizing     policy.Sizing
	audit      *AuditLog
	log        zerolog.Logger

	keys       *keyLock
	recentBuys *cache.Cache

	limMu     sync.Mutex
	limiters  map[string]*rate.Limiter
	tickRate  rate.Limit
	tickBurst int

	queue   chan signal.Signal
	workers int
	pool    *ants.Pool

	tokenMu  sync.Mutex
	onTokens func([]string)
}

// New validates deps and builds an Engine.
func New(d Deps) (*Engine, error) {
	switch {
	case d.Normalizer == nil:
		return nil, fmt.Errorf("engine: nil normalizer")
	case d.Scorer == nil:
		return nil, fmt.Errorf("engine: nil scorer")
	case d.Gate == nil:
		return nil, fmt.Errorf("engine: nil gate")
	case d.Policies == nil:
		return nil, fmt.Errorf("engine: nil policy store")
	case d.Ledger == nil:
		return nil, fmt.Errorf("engine: nil ledger")
	case d.Stops == nil:
		return nil, fmt.Errorf("engine: nil stop manager")
	case d.Width == nil:
		return nil, fmt.Errorf("engine: nil width strategy")
	case d.Executor == nil:
		return nil, fmt.Errorf("engine: nil executor")
	}
	if d.QueueSize <= 0 {
		d.QueueSize = 256
	}
	if d.Workers <= 0 {
		d.Workers = 4
	}
	if d.TickRate <= 0 {
		d.TickRate = 20
	}
	if d.TickBurst <= 0 {
		d.TickBurst = 40
	}
	return &Engine{
		normalizer: d.Normalizer,
		scorer:     d.Scorer,
		gate:       d.Gate,
		policies:   d.Policies,
		ledger:     d.Ledger,
		stops:      d.Stops,
		width:      d.Width,
		executor:   d.Executor,
		sizing:     d.Sizing,
		audit:      d.Audit,
		log:        d.Log,
		keys:       newKeyLock(),
		recentBuys: cache.New(24*time.Hour, time.Hour),
		limiters:   make(map[string]*rate.Limiter),
		tickRate:   rate.Limit(d.TickRate),
		tickBurst:  d.TickBurst,
		queue:      make(chan signal.Signal, d.QueueSize),
		workers:    d.Workers,
	}, nil
}

// SetTokenListener registers a callback invoked with the full tracked token
// list whenever positions open or close, so the feed can resubscribe.
func (e *Engine) SetTokenListener(fn func([]string)) {
	e.tokenMu.Lock()
	e.onTokens = fn
	e.tokenMu.Unlock()
}

func (e *Engine) notifyTokens() {
	e.tokenMu.Lock()
	fn := e.onTokens
	e.tokenMu.Unlock()
	if fn != nil {
		fn(e.stops.TokensTracked())
	}
}

// Ingest queues a raw signal for processing. When the queue is full the
// oldest queued signal is dropped so fresh signals keep flowing; memecoin
// signals age out in minutes and the newest one is the most valuable.
func (e *Engine) Ingest(s signal.Signal) {
	for {
		select {
		case e.queue <- s:
			return
		default:
		}
		select {
		case <-e.queue:
			metrics.QueueDropped.Inc()
		default:
		}
	}
}

// Start restores trackers from the ledger, then consumes the intake queue
// with a bounded worker pool until ctx is canceled.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.Restore(ctx); err != nil {
		return err
	}
	pool, err := ants.NewPool(e.workers)
	if err != nil {
		return fmt.Errorf("engine: worker pool: %w", err)
	}
	e.pool = pool

	go func() {
		defer pool.Release()
		for {
			select {
			case <-ctx.Done():
				return
			case s := <-e.queue:
				sig := s
				if err := pool.Submit(func() { e.SubmitSignal(ctx, sig) }); err != nil {
					e.log.Warn().Err(err).Msg("signal worker submit failed")
				}
			}
		}
	}()
	return nil
}

// Restore rebuilds stop trackers for every open position after a restart.
func (e *Engine) Restore(ctx context.Context) error {
	open, err := e.ledger.AllOpen(ctx)
	if err != nil {
		return fmt.Errorf("engine: restore: %w", err)
	}
	for _, pos := range open {
		p, err := e.policies.Get(ctx, pos.User)
		if err != nil {
			return fmt.Errorf("engine: restore policy %s: %w", pos.User, err)
		}
		st, err := e.ledger.LoadStopState(ctx, pos.ID)
		if err != nil {
			// No persisted state means the process died between the insert
			// and the first save; re-arm from entry.
			t := stops.NewTracker(pos.ID, pos.User, pos.Token, pos.EntryPrice,
				e.entryWidth(p, pos.EntrySize, pos.EntryLiquidity), p.TakeProfitPct, p.MaxAge(), pos.OpenedAt)
			if err := e.ledger.SaveStopState(ctx, t.Snapshot()); err != nil {
				return fmt.Errorf("engine: restore stop state: %w", err)
			}
			e.stops.Add(t)
			continue
		}
		e.stops.Add(stops.Restore(pos.ID, pos.User, pos.Token, pos.EntryPrice,
			p.TakeProfitPct, p.MaxAge(), pos.OpenedAt, st))
	}
	metrics.OpenPositions.Set(float64(len(open)))
	if len(open) > 0 {
		e.log.Info().Int("positions", len(open)).Msg("restored open positions")
		e.notifyTokens()
	}
	return nil
}

// SubmitSignal runs one signal through the full pipeline and returns the
// outcome for every enabled user.
func (e *Engine) SubmitSignal(ctx context.Context, s signal.Signal) signal.Outcome {
	norm, reason := e.normalizer.Normalize(s)
	if reason != "" {
		metrics.SignalsTotal.WithLabelValues("rejected").Inc()
		out := signal.Outcome{Stage: signal.StageNormalize, Reason: reason}
		e.recordAudit(s, out)
		return out
	}

	sc := e.scorer.Evaluate(norm.Text, norm.Address, norm.Symbol, norm.Suspicious)
	verdict := e.gate.Check(ctx, norm.Address, norm.Suspicious)
	if !verdict.HardPass && len(verdict.HardFails) > 0 && verdict.HardFails[0] == safety.FailProvider {
		metrics.ProviderErrors.Inc()
	}

	policies, err := e.policies.List(ctx)
	if err != nil {
		e.log.Error().Err(err).Msg("policy list failed")
		metrics.SignalsTotal.WithLabelValues("error").Inc()
		out := signal.Outcome{Token: norm.Address, Stage: signal.StagePolicy, Reason: signal.ReasonExecutionFailed}
		e.recordAudit(s, out)
		return out
	}

	out := signal.Outcome{
		Token:  norm.Address,
		Symbol: norm.Symbol,
		Score:  sc.Value,
		Band:   string(sc.Band),
	}
	for _, p := range policies {
		out.Users = append(out.Users, e.decideUser(ctx, p, norm, sc, verdict))
	}

	metrics.SignalsTotal.WithLabelValues("processed").Inc()
	e.recordAudit(s, out)
	return out
}

func (e *Engine) decideUser(ctx context.Context, p policy.Policy, norm *normalize.Normalized, sc score.Score, verdict safety.Verdict) signal.UserResult {
	res := signal.UserResult{User: p.User, Stage: signal.StagePolicy}
	key := p.User + "|" + norm.Address
	unlock := e.keys.Lock(key)
	defer unlock()

	if pos, err := e.ledger.OpenByKey(ctx, p.User, norm.Address); err != nil {
		e.log.Error().Err(err).Str("user", p.User).Msg("ledger lookup failed")
		res.Reason = signal.ReasonExecutionFailed
		return res
	} else if pos != nil {
		res.Reason = signal.ReasonDuplicatePosition
		return res
	}
	if boughtAt, ok := e.recentBuys.Get(key); ok {
		if t, ok := boughtAt.(time.Time); ok && time.Since(t) < p.DuplicateWindow() {
			res.Reason = signal.ReasonDuplicateWindow
			return res
		}
	}

	midnight := time.Now().UTC().Truncate(24 * time.Hour)
	committed, err := e.ledger.CommittedSince(ctx, p.User, midnight)
	if err != nil {
		e.log.Error().Err(err).Str("user", p.User).Msg("budget lookup failed")
		res.Reason = signal.ReasonExecutionFailed
		return res
	}

	d := policy.Decide(norm.Channel, sc.Value, verdict, p, committed, e.sizing)
	if !d.Enter {
		res.Reason = d.Reason
		metrics.DecisionsTotal.WithLabelValues("reject").Inc()
		return res
	}

	res.Stage = signal.StageDispatch
	order := execution.Order{
		ID:      uuid.NewString(),
		User:    p.User,
		Token:   norm.Address,
		Side:    execution.Buy,
		SizeUSD: d.SizeUSD,
	}
	fill, err := e.executor.Execute(ctx, order)
	if err != nil {
		e.log.Warn().Err(err).Str("user", p.User).Str("token", norm.Address).Msg("entry execution failed")
		metrics.DecisionsTotal.WithLabelValues("exec_failed").Inc()
		res.Reason = signal.ReasonExecutionFailed
		return res
	}
	metrics.OrdersTotal.WithLabelValues(string(execution.Buy)).Inc()

	pos, err := e.ledger.OpenPosition(ctx, p.User, norm.Address, fill.Price, verdict.Facts.LiquidityUSD, d.SizeUSD)
	if err != nil {
		// The keyed lock makes a duplicate here a logic defect, not a race.
		e.log.Error().Err(err).Str("user", p.User).Str("token", norm.Address).Msg("position insert failed after fill")
		res.Reason = signal.ReasonDuplicatePosition
		return res
	}

	tracker := stops.NewTracker(pos.ID, p.User, norm.Address, fill.Price,
		e.entryWidth(p, d.SizeUSD, verdict.Facts.LiquidityUSD), p.TakeProfitPct, p.MaxAge(), pos.OpenedAt)
	if err := e.ledger.SaveStopState(ctx, tracker.Snapshot()); err != nil {
		e.log.Error().Err(err).Int64("position", pos.ID).Msg("stop state save failed")
	}
	e.stops.Add(tracker)
	e.recentBuys.Set(key, time.Now().UTC(), p.DuplicateWindow())

	metrics.DecisionsTotal.WithLabelValues("enter").Inc()
	metrics.OpenPositions.Inc()
	e.log.Info().
		Str("user", p.User).
		Str("token", norm.Address).
		Float64("size_usd", d.SizeUSD).
		Float64("px", fill.Price).
		Strs("rationale", d.Rationale).
		Msg("position opened")
	e.notifyTokens()

	res.Entered = true
	res.SizeUSD = d.SizeUSD
	res.Reason = ""
	return res
}

// entryWidth runs the width model, capped by the user's configured stop loss
// when one is set.
func (e *Engine) entryWidth(p policy.Policy, sizeUSD, liquidityUSD float64) float64 {
	w := e.width.Width(stops.MarketSnapshot{SizeUSD: sizeUSD, LiquidityUSD: liquidityUSD})
	if p.StopLossPct > 0 && w > p.StopLossPct {
		w = p.StopLossPct
	}
	return w
}

// ObservePrice feeds one tick to every tracker watching the token. A
// per-token rate limiter sheds pathological tick floods.
func (e *Engine) ObservePrice(ctx context.Context, tick signal.Tick) {
	if !e.limiter(tick.Token).Allow() {
		return
	}
	for _, t := range e.stops.ForToken(tick.Token) {
		e.observeOne(ctx, t, tick)
	}
}

func (e *Engine) observeOne(ctx context.Context, t *stops.Tracker, tick signal.Tick) {
	unlock := e.keys.Lock(t.User + "|" + t.Token)
	defer unlock()

	ev, changed := t.Observe(tick.Price, tick.Ts)
	if !ev.Exit {
		if changed {
			if err := e.ledger.SaveStopState(ctx, t.Snapshot()); err != nil {
				e.log.Error().Err(err).Int64("position", t.PositionID).Msg("stop state save failed")
			}
		}
		return
	}
	e.closePosition(ctx, t, ev.Reason, tick.Price)
}

// closePosition sells out the position and marks it closed. Caller must hold
// the key lock. On execution failure the position stays open and the tracker
// re-arms so the next tick retries.
func (e *Engine) closePosition(ctx context.Context, t *stops.Tracker, reason ledger.CloseReason, price float64) {
	pos, err := e.ledger.OpenByKey(ctx, t.User, t.Token)
	if err != nil || pos == nil {
		if err != nil {
			e.log.Error().Err(err).Int64("position", t.PositionID).Msg("exit lookup failed")
		}
		e.stops.Remove(t.PositionID)
		return
	}

	order := execution.Order{
		ID:      uuid.NewString(),
		User:    t.User,
		Token:   t.Token,
		Side:    execution.Sell,
		SizeUSD: pos.CurrentSize,
	}
	fill, err := e.executor.Execute(ctx, order)
	if err != nil {
		e.log.Warn().Err(err).Str("user", t.User).Str("token", t.Token).Msg("exit execution failed, will retry")
		t.Reopen()
		return
	}
	metrics.OrdersTotal.WithLabelValues(string(execution.Sell)).Inc()

	if !e.finalizeClose(ctx, pos.ID, reason, fill.Price) {
		return
	}
	e.stops.Remove(pos.ID)
	metrics.ExitsTotal.WithLabelValues(string(reason)).Inc()
	metrics.OpenPositions.Dec()
	e.log.Info().
		Str("user", t.User).
		Str("token", t.Token).
		Str("reason", string(reason)).
		Float64("px", fill.Price).
		Msg("position closed")
	e.notifyTokens()
}

// closeWriteAttempts bounds retries of the ledger write recording a completed
// sell.
const closeWriteAttempts = 3

// finalizeClose records a completed sell in the ledger, retrying the write
// while the key lock is still held. The coins are already sold, so when the
// write keeps failing the tracker is dropped so no later tick can sell the
// position a second time, and the OPEN row is left behind for manual
// reconciliation.
func (e *Engine) finalizeClose(ctx context.Context, positionID int64, reason ledger.CloseReason, exitPrice float64) bool {
	var err error
	for attempt := 1; attempt <= closeWriteAttempts; attempt++ {
		if _, err = e.ledger.ClosePosition(ctx, positionID, reason, exitPrice); err == nil {
			return true
		}
		e.log.Warn().Err(err).Int64("position", positionID).Int("attempt", attempt).Msg("close write failed")
	}
	e.stops.Remove(positionID)
	metrics.ReconcileNeeded.Inc()
	e.log.Error().Err(err).
		Int64("position", positionID).
		Str("reason", string(reason)).
		Float64("px", exitPrice).
		Msg("position sold but close not recorded, manual reconciliation required")
	return false
}

// ManualExit closes a user's open position at market, recording MANUAL.
func (e *Engine) ManualExit(ctx context.Context, user, token string) error {
	unlock := e.keys.Lock(user + "|" + token)
	defer unlock()

	pos, err := e.ledger.OpenByKey(ctx, user, token)
	if err != nil {
		return err
	}
	if pos == nil {
		return ledger.ErrNotFound
	}

	order := execution.Order{
		ID:      uuid.NewString(),
		User:    user,
		Token:   token,
		Side:    execution.Sell,
		SizeUSD: pos.CurrentSize,
	}
	fill, err := e.executor.Execute(ctx, order)
	if err != nil {
		return fmt.Errorf("engine: manual exit: %w", err)
	}
	metrics.OrdersTotal.WithLabelValues(string(execution.Sell)).Inc()

	if !e.finalizeClose(ctx, pos.ID, ledger.CloseManual, fill.Price) {
		return fmt.Errorf("engine: manual exit: position %d sold but close not recorded", pos.ID)
	}
	e.stops.Remove(pos.ID)
	metrics.ExitsTotal.WithLabelValues(string(ledger.CloseManual)).Inc()
	metrics.OpenPositions.Dec()
	e.notifyTokens()
	return nil
}

// OpenPositions lists a user's open positions.
func (e *Engine) OpenPositions(ctx context.Context, user string) ([]ledger.Position, error) {
	return e.ledger.OpenPositions(ctx, user)
}

func (e *Engine) limiter(token string) *rate.Limiter {
	e.limMu.Lock()
	defer e.limMu.Unlock()
	l, ok := e.limiters[token]
	if !ok {
		l = rate.NewLimiter(e.tickRate, e.tickBurst)
		e.limiters[token] = l
	}
	return l
}

func (e *Engine) recordAudit(s signal.Signal, out signal.Outcome) {
	e.audit.Record(AuditEntry{
		Ts:      time.Now().UTC(),
		Channel: s.Channel,
		Token:   out.Token,
		Symbol:  out.Symbol,
		Score:   out.Score,
		Band:    out.Band,
		Stage:   out.Stage,
		Reason:  out.Reason,
		Users:   out.Users,
	})
}
