package engine

import "errors"

var (
	// Input validation.
	ErrInvalidAmount    = errors.New("collateral engine: amount must be positive")
	ErrAssetNotApproved = errors.New("collateral engine: asset not approved")
	ErrLengthMismatch   = errors.New("collateral engine: asset and price source lists differ in length")
	ErrDuplicateAsset   = errors.New("collateral engine: duplicate collateral asset")

	// Invariant violation.
	ErrHealthFactorBroken = errors.New("collateral engine: health factor below minimum")

	// External dependency failure.
	ErrStalePrice     = errors.New("collateral engine: stale oracle price")
	ErrInvalidPrice   = errors.New("collateral engine: oracle price not positive")
	ErrTransferFailed = errors.New("collateral engine: token transfer failed")
	ErrMintFailed     = errors.New("collateral engine: debt token mint failed")
	ErrBurnFailed     = errors.New("collateral engine: debt token burn failed")

	// Liquidation-specific.
	ErrHealthFactorOk          = errors.New("collateral engine: target health factor not below minimum")
	ErrHealthFactorNotImproved = errors.New("collateral engine: liquidation did not improve target health factor")

	// Arithmetic faults surfaced as contract violations.
	ErrInsufficientCollateral = errors.New("collateral engine: redeem amount exceeds deposited collateral")
	ErrInsufficientDebt       = errors.New("collateral engine: burn amount exceeds minted debt")

	// Engine wiring.
	ErrNilState      = errors.New("collateral engine: state not configured")
	ErrReentrantCall = errors.New("collateral engine: reentrant call rejected")
)
