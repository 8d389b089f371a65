package risk

import (
	"fmt"

	"PerpEngine/internal/account"
	fpmath "PerpEngine/internal/math"
)

// LiquidationConfig prices the penalty charged to a liquidated account.
// Both fees are pct-scale fractions of the transferred notional; the
// liquidator fee is paid to the liquidator, the insurance fee to the fund.
type LiquidationConfig struct {
	LiquidatorFeePct int64
	InsuranceFeePct  int64
}

func DefaultLiquidationConfig() LiquidationConfig {
	return LiquidationConfig{
		LiquidatorFeePct: 10_000, // 1%
		InsuranceFeePct:  5_000,  // 0.5%
	}
}

// Transfer is a planned liquidation: the liquidator inherits BaseTransfer
// of the victim's position (signed, same sign as the victim's base) against
// QuoteTransfer of quote value at the oracle price.
type Transfer struct {
	BaseTransfer  int64 // base scale, signed
	QuoteTransfer int64 // quote scale, unsigned value of the base
	LiquidatorFee int64 // quote scale
	InsuranceFee  int64 // quote scale
}

// PlanLiquidation sizes a position transfer. maxBase <= 0 means the whole
// position; partial amounts are clamped to the position and snapped down to
// a step multiple. The caller has already established that the account is
// liquidatable.
func PlanLiquidation(pos *account.Position, maxBase, oraclePrice, stepSize int64, cfg LiquidationConfig) (Transfer, error) {
	if pos == nil || pos.IsFlat() {
		return Transfer{}, fmt.Errorf("no position to liquidate")
	}

	absBase := fpmath.AbsInt64(pos.BaseAssetAmount)
	amount := absBase
	if maxBase > 0 && maxBase < absBase {
		amount = maxBase - maxBase%stepSize
	}
	if amount <= 0 {
		return Transfer{}, fmt.Errorf("liquidation amount %d below one step (%d)", maxBase, stepSize)
	}

	quoteValue := fpmath.BaseToQuote(amount, oraclePrice, fpmath.RoundHalfEven)

	return Transfer{
		BaseTransfer:  pos.SideSign() * amount,
		QuoteTransfer: quoteValue,
		LiquidatorFee: fpmath.MulDiv(quoteValue, cfg.LiquidatorFeePct, fpmath.PctConfig.Scale, fpmath.RoundDown),
		InsuranceFee:  fpmath.MulDiv(quoteValue, cfg.InsuranceFeePct, fpmath.PctConfig.Scale, fpmath.RoundDown),
	}, nil
}

// ApplyTransfer moves the planned slice from victim to liquidator at the
// oracle price. The victim exits at oracle (realizing its loss there); the
// liquidator enters at the same price, so base and quote are conserved.
func ApplyTransfer(victim, liquidator *account.Position, t Transfer) {
	sign := fpmath.SignInt64(t.BaseTransfer)
	amount := fpmath.AbsInt64(t.BaseTransfer)

	victim.ApplyDelta(-sign*amount, sign*t.QuoteTransfer)
	liquidator.ApplyDelta(sign*amount, -sign*t.QuoteTransfer)
}
