package engine

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"PerpEngine/internal/account"
	"PerpEngine/internal/book"
	"PerpEngine/internal/event"
	"PerpEngine/internal/market"
	fpmath "PerpEngine/internal/math"
	"PerpEngine/internal/observability"
	"PerpEngine/internal/oracle"
	"PerpEngine/internal/risk"
)

// CollateralAsset is the quote asset all margin is denominated in.
const CollateralAsset = "USDC"

// Config tunes engine-wide behavior. Market-level parameters live on the
// Market itself.
type Config struct {
	// TakerFeePct is charged on filled quote value (pct scale) and paid
	// into the insurance fund.
	TakerFeePct int64
	// Liquidation prices the liquidation penalty.
	Liquidation risk.LiquidationConfig
	// SnapshotDepth is the number of levels per side in book snapshots.
	SnapshotDepth int
}

func DefaultConfig() Config {
	return Config{
		TakerFeePct:   500, // 0.05%
		Liquidation:   risk.DefaultLiquidationConfig(),
		SnapshotDepth: 20,
	}
}

// Deps wires the engine's collaborators. Sink and Metrics are optional.
type Deps struct {
	Log       zerolog.Logger
	Clock     Clock
	Oracle    *oracle.Adapter
	Accounts  *account.Registry
	Insurance *risk.InsuranceFund
	Sink      event.Sink
	Metrics   *observability.Metrics
}

// marketState is one market's mutable matching state. Its mutex serializes
// every operation touching the market; the account registry lock nests
// inside it.
type marketState struct {
	mu     sync.Mutex
	market *market.Market
	book   *book.Book
}

// Engine is the deterministic matching and risk core. All operations are
// synchronous: callers get the committed result or a typed rejection.
type Engine struct {
	cfg       Config
	log       zerolog.Logger
	clock     Clock
	oracle    *oracle.Adapter
	accounts  *account.Registry
	insurance *risk.InsuranceFund
	sink      event.Sink
	metrics   *observability.Metrics

	seq atomic.Uint64

	marketsMu sync.RWMutex
	markets   map[uint16]*marketState
}

func New(cfg Config, d Deps) *Engine {
	if d.Clock == nil {
		d.Clock = NewSystemClock(0)
	}
	if d.Accounts == nil {
		d.Accounts = account.NewRegistry()
	}
	if d.Insurance == nil {
		d.Insurance = risk.NewInsuranceFund(0)
	}
	return &Engine{
		cfg:       cfg,
		log:       d.Log,
		clock:     d.Clock,
		oracle:    d.Oracle,
		accounts:  d.Accounts,
		insurance: d.Insurance,
		sink:      d.Sink,
		metrics:   d.Metrics,
		markets:   make(map[uint16]*marketState),
	}
}

// AddMarket registers a market. Parameters are validated once here; they
// are treated as immutable afterwards except for AMM state.
func (e *Engine) AddMarket(m *market.Market) error {
	if err := market.ValidateMarketParams(m); err != nil {
		return validation("market params: %w", err)
	}
	e.marketsMu.Lock()
	defer e.marketsMu.Unlock()
	if _, exists := e.markets[m.Index]; exists {
		return validation("market %d already registered", m.Index)
	}
	e.markets[m.Index] = &marketState{market: m, book: book.New(m.Index)}
	e.log.Info().Uint16("market", m.Index).Str("symbol", m.Symbol).Msg("market registered")
	return nil
}

// RepegMarket moves the AMM peg multiplier. Admin operation, used to pull
// the mark price back toward the oracle after a sustained divergence.
func (e *Engine) RepegMarket(marketIndex uint16, newPeg int64) error {
	ms := e.stateFor(marketIndex)
	if ms == nil {
		return reject(ErrMarketNotFound, "market %d", marketIndex)
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.market.AMM.UpdateTwaps(e.clock.Slot())
	if err := ms.market.AMM.Repeg(newPeg); err != nil {
		return validation("repeg: %w", err)
	}
	e.log.Info().Uint16("market", marketIndex).Int64("peg", newPeg).Msg("market repegged")
	return nil
}

// RecenterMarket rescales the AMM reserves to a new sqrtK, deepening or
// thinning liquidity while preserving the reserve price.
func (e *Engine) RecenterMarket(marketIndex uint16, newSqrtK int64) error {
	ms := e.stateFor(marketIndex)
	if ms == nil {
		return reject(ErrMarketNotFound, "market %d", marketIndex)
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.market.AMM.UpdateTwaps(e.clock.Slot())
	if err := ms.market.AMM.Recenter(newSqrtK); err != nil {
		return validation("recenter: %w", err)
	}
	e.log.Info().Uint16("market", marketIndex).Int64("sqrt_k", newSqrtK).Msg("market recentered")
	return nil
}

// Market returns a market's configuration.
func (e *Engine) Market(index uint16) (*market.Market, bool) {
	ms := e.stateFor(index)
	if ms == nil {
		return nil, false
	}
	return ms.market, true
}

// MarketIndexes lists registered markets.
func (e *Engine) MarketIndexes() []uint16 {
	e.marketsMu.RLock()
	defer e.marketsMu.RUnlock()
	out := make([]uint16, 0, len(e.markets))
	for idx := range e.markets {
		out = append(out, idx)
	}
	return out
}

func (e *Engine) stateFor(index uint16) *marketState {
	e.marketsMu.RLock()
	defer e.marketsMu.RUnlock()
	return e.markets[index]
}

// CreateAccount claims a sub-account slot.
func (e *Engine) CreateAccount(owner uuid.UUID, subAccountID uint16) error {
	e.accounts.Lock()
	defer e.accounts.Unlock()
	if _, err := e.accounts.Create(owner, subAccountID); err != nil {
		return validation("create account: %w", err)
	}
	return nil
}

// Deposit credits collateral to a sub-account at full weight.
func (e *Engine) Deposit(owner uuid.UUID, subAccountID uint16, asset string, amount int64) error {
	e.accounts.Lock()
	defer e.accounts.Unlock()
	acct, err := e.accounts.Get(owner, subAccountID)
	if err != nil {
		return reject(ErrAccountNotFound, "account: %w", err)
	}
	if err := acct.Deposit(asset, amount, fpmath.MarginConfig.Scale); err != nil {
		return validation("deposit: %w", err)
	}
	return nil
}

// emit publishes a committed event to the sink, stamping sequence and time.
func (e *Engine) emit(t event.Type, marketIndex uint16, payload interface{}) {
	if e.sink == nil {
		return
	}
	e.sink.Publish(event.Envelope{
		Sequence:    e.seq.Add(1),
		Type:        t,
		MarketIndex: marketIndex,
		Ts:          e.clock.Ts(),
		Payload:     payload,
	})
}

func (e *Engine) countReject(op string, err error) error {
	if e.metrics != nil {
		e.metrics.Rejections.WithLabelValues(op, CodeOf(err)).Inc()
	}
	return err
}

// readOracle fetches and guards the oracle reading for a market.
func (e *Engine) readOracle(marketIndex uint16, slot uint64) (oracle.Price, error) {
	p, err := e.oracle.GetPrice(marketIndex, slot)
	if err != nil {
		return oracle.Price{}, reject(ErrOracleInvalid, "read: %w", err)
	}
	if err := e.oracle.Validate(p, slot); err != nil {
		return oracle.Price{}, reject(ErrOracleInvalid, "%w", err)
	}
	return p, nil
}

// viewsFor assembles the per-market inputs a cross-margin health check
// needs: the given market plus every market the account has exposure in.
func (e *Engine) viewsFor(acct *account.Account, include uint16) (map[uint16]risk.MarketView, error) {
	slot := e.clock.Slot()
	views := make(map[uint16]risk.MarketView)
	add := func(mi uint16) error {
		if _, ok := views[mi]; ok {
			return nil
		}
		ms := e.stateFor(mi)
		if ms == nil {
			return reject(ErrMarketNotFound, "market %d", mi)
		}
		p, err := e.readOracle(mi, slot)
		if err != nil {
			return err
		}
		views[mi] = risk.MarketView{Market: ms.market, OraclePrice: p.Price}
		return nil
	}
	if err := add(include); err != nil {
		return nil, err
	}
	for _, pos := range acct.Positions() {
		if err := add(pos.MarketIndex); err != nil {
			return nil, err
		}
	}
	return views, nil
}

// cancelLocked removes an order from the book and its account. Both the
// market mutex and the registry lock are held.
func (e *Engine) cancelLocked(ms *marketState, acct *account.Account, o *book.Order, reason string) {
	ms.book.Remove(o.Key())
	acct.RemoveOrder(o.OrderID)
	e.emit(event.TypeOrderCanceled, o.MarketIndex, event.OrderCanceled{
		Order:  orderRef(o),
		Reason: reason,
	})
	if e.metrics != nil {
		e.metrics.OrdersCanceled.WithLabelValues(ms.market.Symbol, reason).Inc()
		e.metrics.RestingOrders.WithLabelValues(ms.market.Symbol).Set(float64(ms.book.Len()))
	}
}

func orderRef(o *book.Order) event.OrderRef {
	return event.OrderRef{Owner: o.Owner, SubAccount: o.SubAccount, OrderID: o.OrderID}
}

// findOrderMarket resolves which market an open order belongs to.
func (e *Engine) findOrderMarket(owner uuid.UUID, subAccountID uint16, orderID uint32) (uint16, error) {
	e.accounts.Lock()
	defer e.accounts.Unlock()
	acct, err := e.accounts.Get(owner, subAccountID)
	if err != nil {
		return 0, reject(ErrAccountNotFound, "account: %w", err)
	}
	o, ok := acct.GetOrder(orderID)
	if !ok {
		return 0, reject(ErrOrderNotFound, "order %d", orderID)
	}
	return o.MarketIndex, nil
}

// CancelOrder removes an open order. Serialized against fills: a cancel
// that wins the market lock guarantees no later fill touches the order.
func (e *Engine) CancelOrder(owner uuid.UUID, subAccountID uint16, orderID uint32) error {
	mi, err := e.findOrderMarket(owner, subAccountID, orderID)
	if err != nil {
		return e.countReject("cancel", err)
	}
	ms := e.stateFor(mi)
	if ms == nil {
		return e.countReject("cancel", reject(ErrMarketNotFound, "market %d", mi))
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()
	e.accounts.Lock()
	defer e.accounts.Unlock()

	acct, err := e.accounts.Get(owner, subAccountID)
	if err != nil {
		return e.countReject("cancel", reject(ErrAccountNotFound, "account: %w", err))
	}
	o, ok := acct.GetOrder(orderID)
	if !ok {
		// Lost the race against a fill or another cancel.
		return e.countReject("cancel", reject(ErrOrderNotFound, "order %d", orderID))
	}
	e.cancelLocked(ms, acct, o, "user")
	return nil
}

// CancelByUserOrderID cancels via the user-chosen alias.
func (e *Engine) CancelByUserOrderID(owner uuid.UUID, subAccountID uint16, userOrderID uint8) error {
	if userOrderID == 0 {
		return e.countReject("cancel", validation("user_order_id 0 is reserved"))
	}
	e.accounts.Lock()
	acct, err := e.accounts.Get(owner, subAccountID)
	if err != nil {
		e.accounts.Unlock()
		return e.countReject("cancel", reject(ErrAccountNotFound, "account: %w", err))
	}
	var orderID uint32
	found := false
	for _, o := range acct.OpenOrders() {
		if o.UserOrderID == userOrderID {
			orderID = o.OrderID
			found = true
			break
		}
	}
	e.accounts.Unlock()
	if !found {
		return e.countReject("cancel", reject(ErrOrderNotFound, "user_order_id %d", userOrderID))
	}
	return e.CancelOrder(owner, subAccountID, orderID)
}

// CancelAllOrders cancels every open order of a sub-account across markets.
// Returns the number canceled.
func (e *Engine) CancelAllOrders(owner uuid.UUID, subAccountID uint16) (int, error) {
	canceled := 0
	for _, mi := range e.MarketIndexes() {
		n, err := e.CancelMarketOrders(owner, subAccountID, mi)
		if err != nil {
			return canceled, err
		}
		canceled += n
	}
	return canceled, nil
}

// CancelMarketOrders cancels a sub-account's open orders in one market.
func (e *Engine) CancelMarketOrders(owner uuid.UUID, subAccountID uint16, marketIndex uint16) (int, error) {
	ms := e.stateFor(marketIndex)
	if ms == nil {
		return 0, e.countReject("cancel", reject(ErrMarketNotFound, "market %d", marketIndex))
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()
	e.accounts.Lock()
	defer e.accounts.Unlock()

	acct, err := e.accounts.Get(owner, subAccountID)
	if err != nil {
		return 0, e.countReject("cancel", reject(ErrAccountNotFound, "account: %w", err))
	}

	canceled := 0
	for _, o := range acct.OpenOrders() {
		if o.MarketIndex != marketIndex {
			continue
		}
		e.cancelLocked(ms, acct, o, "user")
		canceled++
	}
	return canceled, nil
}

// ExpireOrders sweeps one market for orders past their max_ts. Meant to be
// cranked periodically; fills also expire orders lazily.
func (e *Engine) ExpireOrders(marketIndex uint16) (int, error) {
	ms := e.stateFor(marketIndex)
	if ms == nil {
		return 0, reject(ErrMarketNotFound, "market %d", marketIndex)
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()
	e.accounts.Lock()
	defer e.accounts.Unlock()

	now := e.clock.Ts()
	expired := 0
	for _, acct := range e.accounts.All() {
		for _, o := range acct.OpenOrders() {
			if o.MarketIndex != marketIndex || !o.IsExpired(now) {
				continue
			}
			e.expireLocked(ms, acct, o)
			expired++
		}
	}
	return expired, nil
}

func (e *Engine) expireLocked(ms *marketState, acct *account.Account, o *book.Order) {
	ms.book.Remove(o.Key())
	acct.RemoveOrder(o.OrderID)
	e.emit(event.TypeOrderExpired, o.MarketIndex, event.OrderExpired{Order: orderRef(o)})
	if e.metrics != nil {
		e.metrics.OrdersExpired.WithLabelValues(ms.market.Symbol).Inc()
		e.metrics.RestingOrders.WithLabelValues(ms.market.Symbol).Set(float64(ms.book.Len()))
	}
}

// TriggerOrder activates a trigger order once its oracle condition holds.
// Trigger-limit orders start resting on the book; trigger-market orders
// restart their auction clock at the trigger slot.
func (e *Engine) TriggerOrder(owner uuid.UUID, subAccountID uint16, orderID uint32) error {
	mi, err := e.findOrderMarket(owner, subAccountID, orderID)
	if err != nil {
		return e.countReject("trigger", err)
	}
	ms := e.stateFor(mi)
	if ms == nil {
		return e.countReject("trigger", reject(ErrMarketNotFound, "market %d", mi))
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()
	e.accounts.Lock()
	defer e.accounts.Unlock()

	acct, err := e.accounts.Get(owner, subAccountID)
	if err != nil {
		return e.countReject("trigger", reject(ErrAccountNotFound, "account: %w", err))
	}
	o, ok := acct.GetOrder(orderID)
	if !ok {
		return e.countReject("trigger", reject(ErrOrderNotFound, "order %d", orderID))
	}
	if !o.OrderType.IsTrigger() {
		return e.countReject("trigger", validation("order %d is not a trigger order", orderID))
	}
	if o.Triggered {
		return e.countReject("trigger", validation("order %d already triggered", orderID))
	}

	slot := e.clock.Slot()
	p, err := e.readOracle(mi, slot)
	if err != nil {
		return e.countReject("trigger", err)
	}

	met := false
	switch o.TriggerCondition {
	case book.TriggerAbove:
		met = p.Price >= o.TriggerPrice
	case book.TriggerBelow:
		met = p.Price <= o.TriggerPrice
	}
	if !met {
		return e.countReject("trigger", reject(ErrTriggerConditionNotMet,
			"oracle %d vs trigger %d", p.Price, o.TriggerPrice))
	}

	o.Triggered = true
	o.StartSlot = slot
	if o.OrderType == book.OrderTypeTriggerLimit {
		if err := ms.book.Insert(o, o.Price); err != nil {
			return e.countReject("trigger", validation("rest triggered order: %w", err))
		}
	}

	e.emit(event.TypeOrderTriggered, mi, event.OrderTriggered{Order: orderRef(o), OraclePrice: p.Price})
	if e.metrics != nil {
		e.metrics.OrdersTriggered.WithLabelValues(ms.market.Symbol).Inc()
	}
	e.log.Info().Uint32("order", orderID).Int64("oracle", p.Price).Msg("order triggered")
	return nil
}

// LiquidationResult reports one executed liquidation.
type LiquidationResult struct {
	Transfer        risk.Transfer
	OraclePrice     int64
	VictimRemaining int64
	CoveredDeficit  int64
}

// Liquidate transfers part of an unhealthy victim's position to the
// liquidator at the oracle price. Only the named market's position moves;
// exposure in other markets is untouched. The victim pays the liquidation
// fee, split between liquidator and insurance fund.
func (e *Engine) Liquidate(liqOwner uuid.UUID, liqSub uint16, victimOwner uuid.UUID, victimSub uint16, marketIndex uint16, maxBase int64) (*LiquidationResult, error) {
	ms := e.stateFor(marketIndex)
	if ms == nil {
		return nil, e.countReject("liquidate", reject(ErrMarketNotFound, "market %d", marketIndex))
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()
	e.accounts.Lock()
	defer e.accounts.Unlock()

	victim, err := e.accounts.Get(victimOwner, victimSub)
	if err != nil {
		return nil, e.countReject("liquidate", reject(ErrAccountNotFound, "victim: %w", err))
	}
	liquidator, err := e.accounts.Get(liqOwner, liqSub)
	if err != nil {
		return nil, e.countReject("liquidate", reject(ErrAccountNotFound, "liquidator: %w", err))
	}
	if liqOwner == victimOwner && liqSub == victimSub {
		return nil, e.countReject("liquidate", validation("cannot self-liquidate"))
	}

	views, err := e.viewsFor(victim, marketIndex)
	if err != nil {
		return nil, e.countReject("liquidate", err)
	}
	// Health is checked against the current oracle, not the price at which
	// the account first became unhealthy. A recovered account is safe.
	if !risk.CanBeLiquidated(victim, views) {
		return nil, e.countReject("liquidate", reject(ErrNotLiquidatable, "victim meets maintenance margin"))
	}

	pos := victim.GetPosition(marketIndex)
	if pos == nil || pos.IsFlat() {
		return nil, e.countReject("liquidate", validation("victim has no position in market %d", marketIndex))
	}

	oraclePrice := views[marketIndex].OraclePrice
	transfer, err := risk.PlanLiquidation(pos, maxBase, oraclePrice, ms.market.StepSize, e.cfg.Liquidation)
	if err != nil {
		return nil, e.countReject("liquidate", validation("%w", err))
	}

	liqPos, err := liquidator.GetOrCreatePosition(marketIndex)
	if err != nil {
		return nil, e.countReject("liquidate", validation("liquidator position: %w", err))
	}

	// The victim's resting orders in this market go first: they could
	// otherwise re-risk the account mid-liquidation.
	for _, o := range victim.OpenOrders() {
		if o.MarketIndex == marketIndex {
			e.cancelLocked(ms, victim, o, "liquidation")
		}
	}

	risk.ApplyTransfer(pos, liqPos, transfer)

	totalFee := transfer.LiquidatorFee + transfer.InsuranceFee
	pos.SettledPerpPnl -= totalFee
	liqPos.SettledPerpPnl += transfer.LiquidatorFee
	e.insurance.Credit(transfer.InsuranceFee)

	// A fully closed victim with negative equity is bankrupt; the fund
	// absorbs what it can.
	covered := int64(0)
	if pos.IsFlat() {
		h := risk.ComputeHealth(victim, risk.Maintenance, views)
		if h.TotalCollateral < 0 {
			covered = e.insurance.CoverDeficit(-h.TotalCollateral)
			pos.SettledPerpPnl += covered
		}
	}

	e.emit(event.TypeLiquidation, marketIndex, event.Liquidation{
		Liquidator:    event.AccountRef{Owner: liqOwner, SubAccount: liqSub},
		Victim:        event.AccountRef{Owner: victimOwner, SubAccount: victimSub},
		BaseTransfer:  transfer.BaseTransfer,
		QuoteTransfer: transfer.QuoteTransfer,
		LiquidatorFee: transfer.LiquidatorFee,
		InsuranceFee:  transfer.InsuranceFee,
		OraclePrice:   oraclePrice,
	})
	if e.metrics != nil {
		e.metrics.LiquidationsTotal.WithLabelValues(ms.market.Symbol).Inc()
		if covered > 0 {
			e.metrics.LiquidationDeficit.WithLabelValues(ms.market.Symbol).Add(float64(covered))
		}
		e.metrics.InsuranceFundBalance.Set(float64(e.insurance.Balance()))
	}
	e.log.Info().
		Uint16("market", marketIndex).
		Int64("base", transfer.BaseTransfer).
		Int64("quote", transfer.QuoteTransfer).
		Int64("covered_deficit", covered).
		Msg("liquidation executed")

	return &LiquidationResult{
		Transfer:        transfer,
		OraclePrice:     oraclePrice,
		VictimRemaining: pos.BaseAssetAmount,
		CoveredDeficit:  covered,
	}, nil
}

// UpdateFundingRate settles one funding period for a market. Calling it
// before the period has elapsed is a timing rejection, not an error.
func (e *Engine) UpdateFundingRate(marketIndex uint16) (*risk.FundingUpdate, error) {
	ms := e.stateFor(marketIndex)
	if ms == nil {
		return nil, e.countReject("funding", reject(ErrMarketNotFound, "market %d", marketIndex))
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()
	e.accounts.Lock()
	defer e.accounts.Unlock()

	amm := ms.market.AMM
	now := e.clock.Ts()
	if amm.LastFundingRateTs != 0 && now-amm.LastFundingRateTs < amm.FundingPeriod {
		return nil, e.countReject("funding", reject(ErrFundingWasNotUpdated,
			"period not elapsed: %ds of %ds", now-amm.LastFundingRateTs, amm.FundingPeriod))
	}

	slot := e.clock.Slot()
	p, err := e.readOracle(marketIndex, slot)
	if err != nil {
		return nil, e.countReject("funding", err)
	}
	amm.UpdateTwaps(slot)

	oracleTwap := p.Price
	if tw, ok := e.oracle.Twap(marketIndex); ok {
		oracleTwap = tw
	}

	upd := risk.ComputeFundingUpdate(marketIndex, amm, oracleTwap, now)
	amm.LastFundingRate = upd.Rate
	amm.LastFundingRateTs = now

	for _, acct := range e.accounts.All() {
		if pos := acct.GetPosition(marketIndex); pos != nil {
			risk.SettleFunding(pos, upd.Rate, p.Price, now)
		}
	}

	e.emit(event.TypeFundingUpdate, marketIndex, event.FundingUpdate{
		Rate:       upd.Rate,
		MarkTwap:   upd.MarkTwap,
		OracleTwap: upd.OracleTwap,
	})
	if e.metrics != nil {
		e.metrics.FundingUpdates.WithLabelValues(ms.market.Symbol).Inc()
		e.metrics.FundingRate.WithLabelValues(ms.market.Symbol).Set(float64(upd.Rate))
	}
	e.log.Info().
		Uint16("market", marketIndex).
		Int64("rate", upd.Rate).
		Int64("mark_twap", upd.MarkTwap).
		Int64("oracle_twap", upd.OracleTwap).
		Msg("funding updated")

	return &upd, nil
}

// SettleResult reports a PnL settlement.
type SettleResult struct {
	Amount      int64
	OraclePrice int64
}

// SettlePnl realizes a position's mark-to-oracle PnL, rebasing its cost
// basis so unrealized PnL returns to zero. Guarded by the market's settle
// band: settlement is refused while the AMM mark TWAP disagrees with the
// oracle.
func (e *Engine) SettlePnl(owner uuid.UUID, subAccountID uint16, marketIndex uint16) (*SettleResult, error) {
	ms := e.stateFor(marketIndex)
	if ms == nil {
		return nil, e.countReject("settle", reject(ErrMarketNotFound, "market %d", marketIndex))
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()
	e.accounts.Lock()
	defer e.accounts.Unlock()

	acct, err := e.accounts.Get(owner, subAccountID)
	if err != nil {
		return nil, e.countReject("settle", reject(ErrAccountNotFound, "account: %w", err))
	}
	pos := acct.GetPosition(marketIndex)
	if pos == nil {
		return nil, e.countReject("settle", reject(ErrNoUnsettledPnl, "no position in market %d", marketIndex))
	}

	slot := e.clock.Slot()
	p, err := e.readOracle(marketIndex, slot)
	if err != nil {
		return nil, e.countReject("settle", err)
	}
	if err := risk.CheckSettleBand(p.Price, ms.market.AMM.LastMarkTwap, ms.market.SettleBandPct); err != nil {
		return nil, e.countReject("settle", reject(ErrSettleBandViolated, "%w", err))
	}

	amount := risk.ApplySettlement(pos, p.Price)
	if amount == 0 {
		return nil, e.countReject("settle", reject(ErrNoUnsettledPnl, "position has no unrealized pnl"))
	}

	e.emit(event.TypePnlSettled, marketIndex, event.PnlSettled{
		Account:     event.AccountRef{Owner: owner, SubAccount: subAccountID},
		Amount:      amount,
		OraclePrice: p.Price,
	})
	if e.metrics != nil {
		e.metrics.PnlSettlements.WithLabelValues(ms.market.Symbol).Inc()
	}
	e.log.Info().Uint16("market", marketIndex).Int64("amount", amount).Msg("pnl settled")

	return &SettleResult{Amount: amount, OraclePrice: p.Price}, nil
}

// MarketSnapshot is the indexer-facing view of one market.
type MarketSnapshot struct {
	Book         book.Snapshot `json:"book"`
	ReservePrice int64         `json:"reservePrice"`
	AmmBid       int64         `json:"ammBid"`
	AmmAsk       int64         `json:"ammAsk"`
	OraclePrice  int64         `json:"oraclePrice"`
	FundingRate  int64         `json:"fundingRate"`
}

// Snapshot exports the resting book plus AMM quotes for a market.
func (e *Engine) Snapshot(marketIndex uint16) (MarketSnapshot, error) {
	ms := e.stateFor(marketIndex)
	if ms == nil {
		return MarketSnapshot{}, reject(ErrMarketNotFound, "market %d", marketIndex)
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	snap := MarketSnapshot{
		Book:         ms.book.Snapshot(e.cfg.SnapshotDepth),
		ReservePrice: ms.market.AMM.ReservePrice(),
		AmmBid:       ms.market.AMM.BidPrice(),
		AmmAsk:       ms.market.AMM.AskPrice(),
		FundingRate:  ms.market.AMM.LastFundingRate,
	}
	if p, err := e.oracle.GetPrice(marketIndex, e.clock.Slot()); err == nil {
		snap.OraclePrice = p.Price
	}
	return snap, nil
}

// PositionView is a read-only copy of one position for API consumers.
type PositionView struct {
	MarketIndex      uint16 `json:"marketIndex"`
	BaseAssetAmount  int64  `json:"baseAssetAmount"`
	QuoteEntryAmount int64  `json:"quoteEntryAmount"`
	SettledPerpPnl   int64  `json:"settledPerpPnl"`
	EntryPrice       int64  `json:"entryPrice"`
}

// AccountView is a read-only account snapshot for API consumers.
type AccountView struct {
	Owner      uuid.UUID             `json:"owner"`
	SubAccount uint16                `json:"subAccount"`
	Spot       []account.SpotBalance `json:"spot"`
	Positions  []PositionView        `json:"positions"`
	OpenOrders int                   `json:"openOrders"`
	Health     risk.Health           `json:"health"`
}

// AccountSnapshot returns a consistent view of one sub-account, including
// its maintenance health across all markets.
func (e *Engine) AccountSnapshot(owner uuid.UUID, subAccountID uint16) (AccountView, error) {
	e.accounts.Lock()
	defer e.accounts.Unlock()

	acct, err := e.accounts.Get(owner, subAccountID)
	if err != nil {
		return AccountView{}, reject(ErrAccountNotFound, "account: %w", err)
	}

	view := AccountView{
		Owner:      owner,
		SubAccount: subAccountID,
		Spot:       acct.SpotBalances(),
		OpenOrders: acct.OpenOrderCount(),
	}

	slot := e.clock.Slot()
	views := make(map[uint16]risk.MarketView)
	for _, pos := range acct.Positions() {
		pv := PositionView{
			MarketIndex:      pos.MarketIndex,
			BaseAssetAmount:  pos.BaseAssetAmount,
			QuoteEntryAmount: pos.QuoteEntryAmount,
			SettledPerpPnl:   pos.SettledPerpPnl,
			EntryPrice:       pos.EntryPrice(),
		}
		view.Positions = append(view.Positions, pv)

		if ms := e.stateFor(pos.MarketIndex); ms != nil {
			if p, err := e.readOracle(pos.MarketIndex, slot); err == nil {
				views[pos.MarketIndex] = risk.MarketView{Market: ms.market, OraclePrice: p.Price}
			}
		}
	}
	view.Health = risk.ComputeHealth(acct, risk.Maintenance, views)
	return view, nil
}
