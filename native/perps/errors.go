package perps

import "errors"

// Sentinel errors returned by the engine. Every wire-observable rejection
// maps to exactly one of these; callers compare with errors.Is.
var (
	ErrNilState       = errors.New("perps: nil engine state")
	ErrNilPool        = errors.New("perps: nil pool")
	ErrNilCustody     = errors.New("perps: nil custody")
	ErrNilPosition    = errors.New("perps: nil position")
	ErrInvalidArgument = errors.New("perps: invalid argument")

	ErrInsufficientFunds          = errors.New("perps: insufficient funds")
	ErrInsufficientAmountReturned = errors.New("perps: insufficient amount returned")
	ErrMathOverflow               = errors.New("perps: math overflow")
	ErrDivideByZero               = errors.New("perps: divide by zero")
	ErrMaxPriceSlippage           = errors.New("perps: max price slippage")
	ErrMaxLeverage                = errors.New("perps: max leverage")
	ErrMaxUtilization             = errors.New("perps: max utilization")
	ErrCustodyAmountLimit         = errors.New("perps: custody amount limit")
	ErrPositionAmountLimit        = errors.New("perps: position amount limit")
	ErrTokenRatioOutOfRange       = errors.New("perps: token ratio out of range")
	ErrUnsupportedToken           = errors.New("perps: unsupported token")
	ErrInvalidCollateralCustody   = errors.New("perps: invalid collateral custody")
	ErrInvalidPoolConfig          = errors.New("perps: invalid pool config")
	ErrInstructionNotAllowed      = errors.New("perps: instruction not allowed")
	ErrAccountAlreadyInitialized  = errors.New("perps: account already initialized")
	ErrNotLiquidatable            = errors.New("perps: position not liquidatable")
)
