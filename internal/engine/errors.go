package engine

import (
	"errors"
	"fmt"
)

// RejectKind buckets engine rejections so callers can branch without
// string-matching. Every rejection is local and atomic: no partial state
// mutation escapes a rejected operation.
type RejectKind int32

const (
	RejectValidation RejectKind = iota
	RejectGuardRail
	RejectMargin
	RejectNotLiquidatable
	RejectTiming
	RejectConcurrency
)

func (k RejectKind) String() string {
	switch k {
	case RejectValidation:
		return "Validation"
	case RejectGuardRail:
		return "GuardRail"
	case RejectMargin:
		return "Margin"
	case RejectNotLiquidatable:
		return "NotLiquidatable"
	case RejectTiming:
		return "Timing"
	case RejectConcurrency:
		return "Concurrency"
	default:
		return "Unknown"
	}
}

// Rejection is a typed engine rejection. Code is stable for callers and
// wire surfaces; Err carries detail.
type Rejection struct {
	Kind RejectKind
	Code string
	Err  error
}

func (r *Rejection) Error() string {
	if r.Err != nil {
		return fmt.Sprintf("%s: %v", r.Code, r.Err)
	}
	return r.Code
}

func (r *Rejection) Unwrap() error { return r.Err }

// Is matches rejections by code, so errors.Is(err, ErrFundingWasNotUpdated)
// works on wrapped instances.
func (r *Rejection) Is(target error) bool {
	t, ok := target.(*Rejection)
	if !ok {
		return false
	}
	return r.Code == t.Code
}

// Sentinel rejections callers branch on.
var (
	ErrMarketNotFound          = &Rejection{Kind: RejectValidation, Code: "MarketNotFound"}
	ErrMarketPaused            = &Rejection{Kind: RejectValidation, Code: "MarketPaused"}
	ErrAccountNotFound         = &Rejection{Kind: RejectValidation, Code: "AccountNotFound"}
	ErrOrderNotFound           = &Rejection{Kind: RejectConcurrency, Code: "OrderNotFound"}
	ErrOrderFullyFilled        = &Rejection{Kind: RejectConcurrency, Code: "OrderFullyFilled"}
	ErrOrderExpired            = &Rejection{Kind: RejectValidation, Code: "OrderExpired"}
	ErrOrderNotTriggered       = &Rejection{Kind: RejectValidation, Code: "OrderNotTriggered"}
	ErrTriggerConditionNotMet  = &Rejection{Kind: RejectTiming, Code: "TriggerConditionNotMet"}
	ErrPostOnlyWouldCross      = &Rejection{Kind: RejectValidation, Code: "PostOnlyWouldCross"}
	ErrIOCRequiresPlaceAndTake = &Rejection{Kind: RejectValidation, Code: "IOCRequiresPlaceAndTake"}
	ErrInsufficientMargin      = &Rejection{Kind: RejectMargin, Code: "InsufficientCollateral"}
	ErrNotLiquidatable         = &Rejection{Kind: RejectNotLiquidatable, Code: "SufficientCollateral"}
	ErrFundingWasNotUpdated    = &Rejection{Kind: RejectTiming, Code: "FundingWasNotUpdated"}
	ErrNoUnsettledPnl          = &Rejection{Kind: RejectTiming, Code: "NoUnsettledPnl"}
	ErrSettleBandViolated      = &Rejection{Kind: RejectTiming, Code: "SettleBandViolated"}
	ErrOracleInvalid           = &Rejection{Kind: RejectGuardRail, Code: "OracleInvalid"}
	ErrPriceBandViolated       = &Rejection{Kind: RejectGuardRail, Code: "PriceBandViolated"}
)

func reject(base *Rejection, format string, args ...interface{}) error {
	return &Rejection{Kind: base.Kind, Code: base.Code, Err: fmt.Errorf(format, args...)}
}

func validation(format string, args ...interface{}) error {
	return &Rejection{Kind: RejectValidation, Code: "InvalidOrder", Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the rejection kind, or RejectValidation for untyped errors.
func KindOf(err error) RejectKind {
	var r *Rejection
	if errors.As(err, &r) {
		return r.Kind
	}
	return RejectValidation
}

// CodeOf extracts the stable rejection code, or "Internal".
func CodeOf(err error) string {
	var r *Rejection
	if errors.As(err, &r) {
		return r.Code
	}
	return "Internal"
}
