package models

import (
	"database/sql"
	"time"
)

// Order represents a purchase intent. Amount is in minor currency units and
// never changes after creation. GatewayChargeID is set exactly once, by the
// webhook path, and only alongside the transition to PAID.
type Order struct {
	ID              string         `db:"id" json:"id"`
	UserID          sql.NullString `db:"user_id" json:"user_id,omitempty"`
	EventRef        sql.NullString `db:"event_ref" json:"event_ref,omitempty"`
	Amount          int64          `db:"amount" json:"amount"`
	GatewayIntentID string         `db:"gateway_intent_id" json:"gateway_intent_id"`
	GatewayChargeID sql.NullString `db:"gateway_charge_id" json:"gateway_charge_id,omitempty"`
	Status          string         `db:"status" json:"status"`
	ArtifactURL     sql.NullString `db:"artifact_url" json:"artifact_url,omitempty"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updated_at"`
}

// Payment is the immutable audit record for one captured charge. The unique
// constraint on ChargeID is the at-most-once guard for webhook redelivery.
type Payment struct {
	ID        int64          `db:"id" json:"id"`
	ChargeID  string         `db:"charge_id" json:"charge_id"`
	OrderID   string         `db:"order_id" json:"order_id"`
	UserID    sql.NullString `db:"user_id" json:"user_id,omitempty"`
	Amount    int64          `db:"amount" json:"amount"`
	Currency  string         `db:"currency" json:"currency"`
	Name      string         `db:"name" json:"name"`
	Email     string         `db:"email" json:"email"`
	Status    string         `db:"status" json:"status"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
}

// User represents a registered account. PasswordHash is a bcrypt hash.
type User struct {
	ID           string    `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Session is one refresh-token lineage. Fingerprint holds the salted hash of
// the current refresh token secret; the raw secret is never persisted.
// RotationVersion increases by exactly one per successful rotation.
type Session struct {
	ID              string       `db:"id" json:"id"`
	UserID          string       `db:"user_id" json:"user_id"`
	Fingerprint     string       `db:"fingerprint" json:"-"`
	RotationVersion int64        `db:"rotation_version" json:"rotation_version"`
	RevokedAt       sql.NullTime `db:"revoked_at" json:"revoked_at,omitempty"`
	CreatedAt       time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time    `db:"updated_at" json:"updated_at"`
}

// UnresolvedCapture records a verified capture whose order could not be
// located within the lookup retry budget. Kept for operator review.
type UnresolvedCapture struct {
	ID        int64     `db:"id" json:"id"`
	ChargeID  string    `db:"charge_id" json:"charge_id"`
	IntentID  string    `db:"intent_id" json:"intent_id"`
	Amount    int64     `db:"amount" json:"amount"`
	Currency  string    `db:"currency" json:"currency"`
	Reason    string    `db:"reason" json:"reason"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Order statuses. Transitions: CREATED -> PAID, CREATED -> FAILED,
// PAID -> REFUNDED. Anything else is an idempotent no-op.
const (
	OrderStatusCreated  = "CREATED"
	OrderStatusPaid     = "PAID"
	OrderStatusFailed   = "FAILED"
	OrderStatusRefunded = "REFUNDED"
)

// Payment statuses
const (
	PaymentStatusCaptured = "CAPTURED"
	PaymentStatusRefunded = "REFUNDED"
)

// Revoked reports whether the session lineage has been revoked.
func (s *Session) Revoked() bool {
	return s.RevokedAt.Valid
}
