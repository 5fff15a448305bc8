package service

import "errors"

var (
	// ErrInvalidAmount rejects order creation with a non-positive amount.
	ErrInvalidAmount = errors.New("amount must be a positive integer")

	// ErrReconciliationConflict marks an order already paid under a different
	// charge id. Never auto-resolved; requires operator intervention.
	ErrReconciliationConflict = errors.New("order already paid with a different charge")

	// ErrUnresolvedCapture marks a verified capture whose order could not be
	// located within the retry budget. The capture is parked, not dropped.
	ErrUnresolvedCapture = errors.New("capture could not be matched to an order")

	// ErrInvalidCredentials covers both unknown email and wrong password.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrSessionRevoked marks a refresh token whose lineage has been revoked.
	ErrSessionRevoked = errors.New("session revoked")

	// ErrOrderNotFound is returned for lookups of unknown orders or charges.
	ErrOrderNotFound = errors.New("order not found")
)
