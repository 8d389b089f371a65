package engine

import (
	"time"

	"github.com/google/uuid"

	"PerpEngine/internal/account"
	"PerpEngine/internal/book"
	"PerpEngine/internal/event"
	"PerpEngine/internal/market"
	fpmath "PerpEngine/internal/math"
	"PerpEngine/internal/risk"
)

// OrderParams is the placement request for every order type. Zero values
// follow order conventions: Price 0 means no static limit, MaxTs 0 means
// no expiry, AuctionDuration 0 means no auction window.
type OrderParams struct {
	Owner       uuid.UUID
	SubAccount  uint16
	MarketIndex uint16

	Direction book.Direction
	OrderType book.OrderType

	BaseAssetAmount   int64
	Price             int64
	OraclePriceOffset int64

	AuctionStartPrice int64
	AuctionEndPrice   int64
	AuctionDuration   uint64

	UserOrderID       uint8
	PostOnly          book.PostOnlyParam
	ReduceOnly        bool
	ImmediateOrCancel bool
	MaxTs             int64

	TriggerCondition book.TriggerCondition
	TriggerPrice     int64
}

// FillSource names where a fill leg's liquidity came from.
type FillSource string

const (
	FillSourceMaker FillSource = "maker"
	FillSourceAMM   FillSource = "amm"
)

// Fill is one committed fill leg.
type Fill struct {
	Source FillSource
	Maker  *book.OrderKey // nil for AMM legs
	Price  int64          // price scale; curve-average for AMM legs
	Base   int64          // base scale, unsigned
	Quote  int64          // quote scale, unsigned
}

// FillResult reports one fill operation against a taker order.
type FillResult struct {
	MarketIndex  uint16
	Taker        book.OrderKey
	Fills        []Fill
	FilledBase   int64
	FilledQuote  int64
	TakerFee     int64
	TakerRemoved bool
}

// PlaceOrder validates and accepts an order. Passive orders rest on the
// book; market and trigger orders wait in their account for a filler.
// IOC orders must go through PlaceAndTake. A try-post-only order that
// would cross returns (nil, nil): silently skipped, nothing placed.
func (e *Engine) PlaceOrder(p OrderParams) (*book.Order, error) {
	ms := e.stateFor(p.MarketIndex)
	if ms == nil {
		return nil, e.countReject("place", reject(ErrMarketNotFound, "market %d", p.MarketIndex))
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()
	e.accounts.Lock()
	defer e.accounts.Unlock()

	acct, err := e.accounts.Get(p.Owner, p.SubAccount)
	if err != nil {
		return nil, e.countReject("place", reject(ErrAccountNotFound, "account: %w", err))
	}

	o, err := e.placeLocked(ms, acct, p, false)
	if err != nil {
		return nil, e.countReject("place", err)
	}
	return o, nil
}

// PlaceAndTake places a taker order and immediately fills it against the
// given makers and the AMM in one atomic step. Any IOC remainder is
// canceled before returning.
func (e *Engine) PlaceAndTake(p OrderParams, makers []book.OrderKey) (*FillResult, error) {
	ms := e.stateFor(p.MarketIndex)
	if ms == nil {
		return nil, e.countReject("place_and_take", reject(ErrMarketNotFound, "market %d", p.MarketIndex))
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()
	e.accounts.Lock()
	defer e.accounts.Unlock()

	acct, err := e.accounts.Get(p.Owner, p.SubAccount)
	if err != nil {
		return nil, e.countReject("place_and_take", reject(ErrAccountNotFound, "account: %w", err))
	}

	o, err := e.placeLocked(ms, acct, p, true)
	if err != nil {
		return nil, e.countReject("place_and_take", err)
	}
	if o == nil {
		// Try-post-only skipped: nothing placed, nothing to fill.
		return nil, nil
	}

	res, err := e.fillLocked(ms, acct, o, makers)
	if err != nil {
		return nil, e.countReject("place_and_take", err)
	}
	return res, nil
}

// FillOrder matches a taker order against the referenced makers and the
// AMM. Maker references that no longer rest on the book are skipped, so a
// stale fill request can never double-fill.
func (e *Engine) FillOrder(owner uuid.UUID, subAccountID uint16, orderID uint32, makers []book.OrderKey) (*FillResult, error) {
	mi, err := e.findOrderMarket(owner, subAccountID, orderID)
	if err != nil {
		return nil, e.countReject("fill", err)
	}
	ms := e.stateFor(mi)
	if ms == nil {
		return nil, e.countReject("fill", reject(ErrMarketNotFound, "market %d", mi))
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()
	e.accounts.Lock()
	defer e.accounts.Unlock()

	acct, err := e.accounts.Get(owner, subAccountID)
	if err != nil {
		return nil, e.countReject("fill", reject(ErrAccountNotFound, "account: %w", err))
	}
	taker, ok := acct.GetOrder(orderID)
	if !ok {
		return nil, e.countReject("fill", reject(ErrOrderNotFound, "order %d", orderID))
	}

	res, err := e.fillLocked(ms, acct, taker, makers)
	if err != nil {
		return nil, e.countReject("fill", err)
	}
	return res, nil
}

// placeLocked runs order admission with the market and registry locks held.
func (e *Engine) placeLocked(ms *marketState, acct *account.Account, p OrderParams, viaTake bool) (*book.Order, error) {
	m := ms.market
	now := e.clock.Ts()
	slot := e.clock.Slot()

	switch m.Status {
	case market.StatusPaused:
		return nil, reject(ErrMarketPaused, "market %d", m.Index)
	case market.StatusReduceOnly:
		if !p.ReduceOnly {
			return nil, validation("market %d accepts reduce-only orders", m.Index)
		}
	}

	if p.ImmediateOrCancel && !viaTake {
		return nil, reject(ErrIOCRequiresPlaceAndTake, "order is immediate-or-cancel")
	}

	o := &book.Order{
		Owner:             p.Owner,
		SubAccount:        p.SubAccount,
		UserOrderID:       p.UserOrderID,
		MarketIndex:       p.MarketIndex,
		Direction:         p.Direction,
		OrderType:         p.OrderType,
		BaseAssetAmount:   p.BaseAssetAmount,
		Price:             p.Price,
		OraclePriceOffset: p.OraclePriceOffset,
		AuctionStartPrice: p.AuctionStartPrice,
		AuctionEndPrice:   p.AuctionEndPrice,
		AuctionDuration:   p.AuctionDuration,
		StartSlot:         slot,
		PostOnly:          p.PostOnly,
		ReduceOnly:        p.ReduceOnly,
		ImmediateOrCancel: p.ImmediateOrCancel,
		MaxTs:             p.MaxTs,
		TriggerCondition:  p.TriggerCondition,
		TriggerPrice:      p.TriggerPrice,
	}

	if err := o.ValidateGranularity(m.StepSize, m.TickSize, m.MinOrderSize); err != nil {
		return nil, validation("%w", err)
	}
	if o.MaxTs != 0 && o.MaxTs <= now {
		return nil, validation("max_ts %d already elapsed", o.MaxTs)
	}
	if o.OrderType == book.OrderTypeMarket && o.AuctionDuration == 0 {
		return nil, validation("market orders need an auction window")
	}
	if o.AuctionDuration > 0 {
		if o.AuctionStartPrice <= 0 || o.AuctionEndPrice <= 0 {
			return nil, validation("auction prices must be > 0")
		}
		if o.IsBuy() && o.AuctionStartPrice > o.AuctionEndPrice {
			return nil, validation("buy auction must move start %d -> end %d upward",
				o.AuctionStartPrice, o.AuctionEndPrice)
		}
		if !o.IsBuy() && o.AuctionStartPrice < o.AuctionEndPrice {
			return nil, validation("sell auction must move start %d -> end %d downward",
				o.AuctionStartPrice, o.AuctionEndPrice)
		}
	}
	if o.OrderType.IsTrigger() && o.TriggerPrice <= 0 {
		return nil, validation("trigger orders need a trigger price")
	}
	if o.PostOnly != book.PostOnlyNone &&
		(o.OrderType == book.OrderTypeMarket || o.OrderType.IsTrigger()) {
		return nil, validation("post-only applies to limit and oracle orders")
	}

	oraclePrice, err := e.readOracle(m.Index, slot)
	if err != nil {
		return nil, err
	}

	if o.OrderType == book.OrderTypeOracle {
		if oraclePrice.Price+o.OraclePriceOffset <= 0 {
			return nil, validation("oracle offset %d pushes price below zero", o.OraclePriceOffset)
		}
	}

	if !o.ReduceOnly {
		if err := e.checkPlacementMargin(acct, m, o, oraclePrice.Price); err != nil {
			return nil, err
		}
	}

	restingPrice := o.Price
	if o.OrderType == book.OrderTypeOracle {
		restingPrice = book.OraclePegPrice(o, oraclePrice.Price, m.TickSize)
	}

	if o.PostOnly != book.PostOnlyNone {
		if e.wouldCross(ms, o, restingPrice) {
			if o.PostOnly == book.MustPostOnly {
				return nil, reject(ErrPostOnlyWouldCross, "resting price %d crosses", restingPrice)
			}
			// Try-post-only: skip silently, place nothing.
			return nil, nil
		}
	}

	o.OrderID = acct.NextOrderID()
	if err := acct.AddOrder(o); err != nil {
		return nil, validation("%w", err)
	}

	if e.shouldRest(o) {
		if err := ms.book.Insert(o, restingPrice); err != nil {
			acct.RemoveOrder(o.OrderID)
			return nil, validation("%w", err)
		}
	}

	e.emit(event.TypeOrderPlaced, m.Index, event.OrderPlaced{
		Order:       orderRef(o),
		UserOrderID: o.UserOrderID,
		Direction:   o.Direction.String(),
		OrderType:   o.OrderType.String(),
		Base:        o.BaseAssetAmount,
		Price:       restingPrice,
	})
	if e.metrics != nil {
		e.metrics.OrdersPlaced.WithLabelValues(m.Symbol, o.OrderType.String()).Inc()
		e.metrics.RestingOrders.WithLabelValues(m.Symbol).Set(float64(ms.book.Len()))
	}
	e.log.Debug().
		Uint16("market", m.Index).
		Uint32("order", o.OrderID).
		Str("type", o.OrderType.String()).
		Str("direction", o.Direction.String()).
		Int64("base", o.BaseAssetAmount).
		Msg("order placed")

	return o, nil
}

// shouldRest reports whether an order provides resting liquidity. Market
// and auction orders are takers held in their account; trigger orders rest
// only after triggering.
func (e *Engine) shouldRest(o *book.Order) bool {
	if o.ImmediateOrCancel || o.OrderType.IsTrigger() {
		return false
	}
	return o.OrderType == book.OrderTypeLimit || o.OrderType == book.OrderTypeOracle
}

// wouldCross reports whether a resting price takes liquidity from the
// opposite book side or the AMM quote.
func (e *Engine) wouldCross(ms *marketState, o *book.Order, restingPrice int64) bool {
	if o.IsBuy() {
		if ask, ok := ms.book.BestAsk(); ok && restingPrice >= ask.Price {
			return true
		}
		return restingPrice >= ms.market.AMM.AskPrice()
	}
	if bid, ok := ms.book.BestBid(); ok && restingPrice <= bid.Price {
		return true
	}
	return restingPrice <= ms.market.AMM.BidPrice()
}

// checkPlacementMargin enforces the initial margin requirement for new
// risk: current requirement plus the order's worst-case notional must be
// covered by collateral.
func (e *Engine) checkPlacementMargin(acct *account.Account, m *market.Market, o *book.Order, oraclePx int64) error {
	views, err := e.viewsFor(acct, m.Index)
	if err != nil {
		return err
	}
	h := risk.ComputeHealth(acct, risk.Initial, views)

	admissionPrice := o.Price
	switch {
	case o.OrderType == book.OrderTypeOracle:
		admissionPrice = oraclePx + o.OraclePriceOffset
	case admissionPrice == 0 && o.AuctionDuration > 0:
		admissionPrice = o.AuctionEndPrice
	case admissionPrice == 0:
		admissionPrice = oraclePx
	}

	notional := fpmath.BaseToQuote(o.BaseAssetAmount, admissionPrice, fpmath.RoundUp)
	added := fpmath.MulDiv(notional, m.MarginRatioInitial, fpmath.MarginConfig.Scale, fpmath.RoundUp)
	if h.TotalCollateral < h.MarginRequirement+added {
		return reject(ErrInsufficientMargin,
			"collateral %d < requirement %d + order %d", h.TotalCollateral, h.MarginRequirement, added)
	}
	return nil
}

// plannedLeg is one maker match staged before commit.
type plannedLeg struct {
	maker     *book.Order
	makerAcct *account.Account
	price     int64
	amount    int64
}

// fillLocked runs the matching algorithm with the market and registry
// locks held. The operation is atomic: any rejection leaves positions,
// orders and reserves untouched.
func (e *Engine) fillLocked(ms *marketState, takerAcct *account.Account, taker *book.Order, makerKeys []book.OrderKey) (*FillResult, error) {
	started := time.Now()
	m := ms.market
	now := e.clock.Ts()
	slot := e.clock.Slot()

	if m.Status == market.StatusPaused {
		return nil, reject(ErrMarketPaused, "market %d", m.Index)
	}
	if taker.Remaining() <= 0 {
		return nil, reject(ErrOrderFullyFilled, "order %d", taker.OrderID)
	}
	if taker.IsExpired(now) {
		e.expireLocked(ms, takerAcct, taker)
		return nil, reject(ErrOrderExpired, "order %d past max_ts %d", taker.OrderID, taker.MaxTs)
	}
	if taker.OrderType.IsTrigger() && !taker.Triggered {
		return nil, reject(ErrOrderNotTriggered, "order %d", taker.OrderID)
	}
	if taker.PostOnly != book.PostOnlyNone {
		return nil, validation("post-only order %d cannot take", taker.OrderID)
	}

	oraclePx, err := e.readOracle(m.Index, slot)
	if err != nil {
		return nil, err
	}
	views, err := e.viewsFor(takerAcct, m.Index)
	if err != nil {
		return nil, err
	}

	effPrice := book.EffectiveTakerPrice(taker, slot, oraclePx.Price, m.TickSize)
	if effPrice <= 0 {
		return nil, validation("order %d has no positive effective price", taker.OrderID)
	}

	takerPos := takerAcct.GetPosition(m.Index)

	// Reduce-only orders can only shrink the current exposure.
	budget := taker.Remaining()
	if taker.ReduceOnly {
		if takerPos == nil || takerPos.IsFlat() || takerPos.SideSign() == taker.SideSign() {
			return nil, validation("reduce-only order %d would not reduce", taker.OrderID)
		}
		budget = fpmath.MinInt64(budget, fpmath.AbsInt64(takerPos.BaseAssetAmount))
	}
	if !hasPositionCapacity(takerAcct, m.Index) {
		return nil, validation("no free position slot in market %d", m.Index)
	}

	bandTwap := oraclePx.Price
	if tw, ok := e.oracle.Twap(m.Index); ok && tw > 0 {
		bandTwap = tw
	}
	maxDivergence := m.ContractTier.MaxOracleDivergencePct()

	// Plan maker legs. Skipping is the rule here: a missing, crossed-out
	// or self-owned maker reference never aborts the whole fill. Each key
	// is planned at most once; the book does not mutate until commit, so a
	// repeated reference would otherwise fill at full remaining size twice.
	var legs []plannedLeg
	seen := make(map[book.OrderKey]struct{}, len(makerKeys))
	for _, key := range makerKeys {
		if budget <= 0 {
			break
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		maker, ok := ms.book.Get(key)
		if !ok {
			continue // already filled or canceled
		}
		if maker.Owner == taker.Owner {
			continue // self-trade
		}
		if maker.Direction == taker.Direction {
			continue
		}
		if maker.IsExpired(now) {
			makerAcct, err := e.accounts.Get(maker.Owner, maker.SubAccount)
			if err == nil {
				e.expireLocked(ms, makerAcct, maker)
			}
			continue
		}
		if maker.Remaining() <= 0 {
			continue
		}

		makerAcct, err := e.accounts.Get(maker.Owner, maker.SubAccount)
		if err != nil {
			continue
		}
		if !hasPositionCapacity(makerAcct, m.Index) {
			continue
		}

		makerPrice := maker.Price
		if maker.OrderType == book.OrderTypeOracle {
			makerPrice = book.OraclePegPrice(maker, oraclePx.Price, m.TickSize)
		}
		if !book.Crosses(taker.IsBuy(), effPrice, makerPrice) {
			continue
		}

		makerBudget := maker.Remaining()
		if maker.ReduceOnly {
			makerPos := makerAcct.GetPosition(m.Index)
			if makerPos == nil || makerPos.IsFlat() || makerPos.SideSign() == maker.SideSign() {
				continue
			}
			makerBudget = fpmath.MinInt64(makerBudget, fpmath.AbsInt64(makerPos.BaseAssetAmount))
		}

		amount := fpmath.MinInt64(budget, makerBudget)
		if amount <= 0 {
			continue
		}

		if err := checkPriceBand(makerPrice, bandTwap, maxDivergence); err != nil {
			return nil, err
		}

		legs = append(legs, plannedLeg{maker: maker, makerAcct: makerAcct, price: makerPrice, amount: amount})
		budget -= amount
	}

	// AMM leg for the remainder, when active and crossed.
	var ammSwap *market.SwapResult
	if budget > 0 && m.Status == market.StatusActive {
		direction := market.SwapSell
		instant := m.AMM.BidPrice()
		if taker.IsBuy() {
			direction = market.SwapBuy
			instant = m.AMM.AskPrice()
		}
		if book.Crosses(taker.IsBuy(), effPrice, instant) {
			swap, err := m.AMM.QuoteSwapBase(direction, budget)
			if err == nil && book.Crosses(taker.IsBuy(), effPrice, swap.AvgPrice) {
				if err := checkPriceBand(swap.AvgPrice, bandTwap, maxDivergence); err != nil {
					return nil, err
				}
				ammSwap = &swap
				budget = 0
			}
		}
	}

	res := &FillResult{MarketIndex: m.Index, Taker: taker.Key()}

	if len(legs) == 0 && ammSwap == nil {
		// Nothing crossed. IOC orders die here instead of resting.
		if taker.ImmediateOrCancel {
			e.cancelLocked(ms, takerAcct, taker, "ioc")
			res.TakerRemoved = true
		}
		return res, nil
	}

	sign := taker.SideSign()

	// Fill-time margin: simulate the taker's post-fill position and reject
	// risk-increasing fills that breach the initial requirement.
	if err := e.checkFillMargin(takerAcct, takerPos, m, views, legs, ammSwap, sign); err != nil {
		return nil, err
	}

	// Commit. From here on nothing fails.
	pos, err := takerAcct.GetOrCreatePosition(m.Index)
	if err != nil {
		return nil, validation("%w", err)
	}

	for _, leg := range legs {
		quote := fpmath.BaseToQuote(leg.amount, leg.price, fpmath.RoundHalfEven)
		makerPos, err := leg.makerAcct.GetOrCreatePosition(m.Index)
		if err != nil {
			continue
		}

		pos.ApplyDelta(sign*leg.amount, -sign*quote)
		makerPos.ApplyDelta(-sign*leg.amount, sign*quote)
		taker.BaseAssetAmountFilled += leg.amount
		leg.maker.BaseAssetAmountFilled += leg.amount

		if leg.maker.Remaining() == 0 {
			ms.book.Remove(leg.maker.Key())
			leg.makerAcct.RemoveOrder(leg.maker.OrderID)
		}

		makerKey := leg.maker.Key()
		res.Fills = append(res.Fills, Fill{
			Source: FillSourceMaker,
			Maker:  &makerKey,
			Price:  leg.price,
			Base:   leg.amount,
			Quote:  quote,
		})
		res.FilledBase += leg.amount
		res.FilledQuote += quote

		makerRef := orderRef(leg.maker)
		e.emit(event.TypeOrderFilled, m.Index, event.OrderFilled{
			Taker:  orderRef(taker),
			Maker:  &makerRef,
			Source: string(FillSourceMaker),
			Price:  leg.price,
			Base:   leg.amount,
			Quote:  quote,
		})
		if e.metrics != nil {
			e.metrics.FillsTotal.WithLabelValues(m.Symbol, string(FillSourceMaker)).Inc()
			e.metrics.FillBaseVolume.WithLabelValues(m.Symbol, string(FillSourceMaker)).Add(float64(leg.amount))
			e.metrics.FillQuoteVolume.WithLabelValues(m.Symbol, string(FillSourceMaker)).Add(float64(quote))
		}
	}

	if ammSwap != nil {
		m.AMM.Commit(*ammSwap)
		pos.ApplyDelta(sign*ammSwap.BaseAmount, -sign*ammSwap.QuoteAmount)
		taker.BaseAssetAmountFilled += ammSwap.BaseAmount

		res.Fills = append(res.Fills, Fill{
			Source: FillSourceAMM,
			Price:  ammSwap.AvgPrice,
			Base:   ammSwap.BaseAmount,
			Quote:  ammSwap.QuoteAmount,
		})
		res.FilledBase += ammSwap.BaseAmount
		res.FilledQuote += ammSwap.QuoteAmount

		e.emit(event.TypeOrderFilled, m.Index, event.OrderFilled{
			Taker:  orderRef(taker),
			Source: string(FillSourceAMM),
			Price:  ammSwap.AvgPrice,
			Base:   ammSwap.BaseAmount,
			Quote:  ammSwap.QuoteAmount,
		})
		if e.metrics != nil {
			e.metrics.FillsTotal.WithLabelValues(m.Symbol, string(FillSourceAMM)).Inc()
			e.metrics.FillBaseVolume.WithLabelValues(m.Symbol, string(FillSourceAMM)).Add(float64(ammSwap.BaseAmount))
			e.metrics.FillQuoteVolume.WithLabelValues(m.Symbol, string(FillSourceAMM)).Add(float64(ammSwap.QuoteAmount))
		}
	}

	if e.cfg.TakerFeePct > 0 && res.FilledQuote > 0 {
		res.TakerFee = fpmath.MulDiv(res.FilledQuote, e.cfg.TakerFeePct, fpmath.PctConfig.Scale, fpmath.RoundUp)
		pos.SettledPerpPnl -= res.TakerFee
		pos.QuoteBreakEvenAmount -= res.TakerFee
		e.insurance.Credit(res.TakerFee)
	}

	if taker.Remaining() == 0 {
		ms.book.Remove(taker.Key())
		takerAcct.RemoveOrder(taker.OrderID)
		res.TakerRemoved = true
	} else if taker.ImmediateOrCancel {
		e.cancelLocked(ms, takerAcct, taker, "ioc")
		res.TakerRemoved = true
	}

	m.AMM.UpdateTwaps(slot)
	if e.metrics != nil {
		e.metrics.MarkPrice.WithLabelValues(m.Symbol).Set(float64(m.AMM.ReservePrice()))
		e.metrics.OraclePrice.WithLabelValues(m.Symbol).Set(float64(oraclePx.Price))
		e.metrics.RestingOrders.WithLabelValues(m.Symbol).Set(float64(ms.book.Len()))
		e.metrics.FillDuration.WithLabelValues(m.Symbol).Observe(time.Since(started).Seconds())
	}
	e.log.Debug().
		Uint16("market", m.Index).
		Uint32("taker", taker.OrderID).
		Int64("base", res.FilledBase).
		Int64("quote", res.FilledQuote).
		Int("legs", len(res.Fills)).
		Msg("fill committed")

	return res, nil
}

// checkFillMargin rejects risk-increasing fills the taker cannot back.
// The post-fill position is simulated on a copy; risk-reducing fills are
// always allowed.
func (e *Engine) checkFillMargin(takerAcct *account.Account, takerPos *account.Position, m *market.Market, views map[uint16]risk.MarketView, legs []plannedLeg, ammSwap *market.SwapResult, sign int64) error {
	var before account.Position
	if takerPos != nil {
		before = *takerPos
	} else {
		before = account.Position{MarketIndex: m.Index}
	}
	after := before
	for _, leg := range legs {
		quote := fpmath.BaseToQuote(leg.amount, leg.price, fpmath.RoundHalfEven)
		after.ApplyDelta(sign*leg.amount, -sign*quote)
	}
	if ammSwap != nil {
		after.ApplyDelta(sign*ammSwap.BaseAmount, -sign*ammSwap.QuoteAmount)
	}

	if fpmath.AbsInt64(after.BaseAssetAmount) <= fpmath.AbsInt64(before.BaseAssetAmount) {
		return nil
	}

	oraclePrice := views[m.Index].OraclePrice
	h := risk.ComputeHealth(takerAcct, risk.Initial, views)

	collAfter := h.TotalCollateral -
		(before.UnrealizedPnl(oraclePrice) + before.SettledPerpPnl) +
		(after.UnrealizedPnl(oraclePrice) + after.SettledPerpPnl)

	reqBefore := fpmath.MulDiv(before.Notional(oraclePrice), m.MarginRatioInitial, fpmath.MarginConfig.Scale, fpmath.RoundUp)
	reqAfter := fpmath.MulDiv(after.Notional(oraclePrice), m.MarginRatioInitial, fpmath.MarginConfig.Scale, fpmath.RoundUp)
	requirement := h.MarginRequirement - reqBefore + reqAfter

	if collAfter < requirement {
		return reject(ErrInsufficientMargin,
			"post-fill collateral %d < requirement %d", collAfter, requirement)
	}
	return nil
}

func checkPriceBand(fillPrice, twap, maxDivergencePct int64) error {
	if twap <= 0 {
		return nil
	}
	divergence := fpmath.MulDiv(fpmath.AbsInt64(fillPrice-twap), fpmath.PctConfig.Scale, twap, fpmath.RoundUp)
	if divergence > maxDivergencePct {
		return reject(ErrPriceBandViolated,
			"fill price %d diverges %d pct from oracle twap %d (max %d)",
			fillPrice, divergence, twap, maxDivergencePct)
	}
	return nil
}

func hasPositionCapacity(a *account.Account, marketIndex uint16) bool {
	if a.GetPosition(marketIndex) != nil {
		return true
	}
	return len(a.Positions()) < account.MaxPositions
}
