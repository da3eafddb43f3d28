package services

import "errors"

// Validation failures are detected before any mutation and surfaced to the
// caller verbatim; ErrStoreTimeout is transient and the whole operation may
// be retried.
var (
	ErrUsernameTaken        = errors.New("username already exists")
	ErrInvalidReferralCode  = errors.New("invalid referral code")
	ErrReferralLimitReached = errors.New("referral limit reached")
	ErrInvalidAmount        = errors.New("purchase amount must be positive")
	ErrNotFound             = errors.New("account not found")
	ErrStoreTimeout         = errors.New("store operation timed out")

	// ErrReferralCodeTaken never leaves the services package: a generated
	// code collided with the unique index and generation is retried.
	ErrReferralCodeTaken = errors.New("referral code already exists")
)
