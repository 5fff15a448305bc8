package store

import (
	"context"
	"database/sql"
	"fmt"

	"ticketing-service/internal/models"
)

// CreateOrder inserts a new order. The gateway intent id must already be set;
// the row is never written before the intent exists.
func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO orders (id, user_id, event_ref, amount, gateway_intent_id, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`

	row := s.db.QueryRowxContext(ctx, query,
		order.ID, order.UserID, order.EventRef, order.Amount, order.GatewayIntentID, order.Status)
	return row.Scan(&order.CreatedAt, &order.UpdatedAt)
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderByIntentID retrieves an order by its gateway intent id. Returns
// ErrNotFound when the row has not committed yet; callers retry with backoff.
func (s *Store) GetOrderByIntentID(ctx context.Context, intentID string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE gateway_intent_id = $1", intentID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// MarkOrderPaid flips the order to PAID and records the Payment in one
// transaction. The unique index on payments.charge_id is the at-most-once
// guard: a second delivery of the same charge fails the insert and is
// reported as ErrDuplicateCharge before the order row is touched.
// The status predicate keeps the order amount and charge id immutable once
// the order left CREATED.
func (s *Store) MarkOrderPaid(ctx context.Context, orderID string, payment *models.Payment) (*models.Order, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	insert := `
		INSERT INTO payments (charge_id, order_id, user_id, amount, currency, name, email, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`
	row := tx.QueryRowxContext(ctx, insert,
		payment.ChargeID, payment.OrderID, payment.UserID, payment.Amount,
		payment.Currency, payment.Name, payment.Email, payment.Status)
	if err := row.Scan(&payment.ID, &payment.CreatedAt); err != nil {
		if isUniqueViolation(err, "") {
			return nil, ErrDuplicateCharge
		}
		return nil, fmt.Errorf("failed to insert payment: %w", err)
	}

	var order models.Order
	update := `
		UPDATE orders
		SET status = $1, gateway_charge_id = $2, updated_at = NOW()
		WHERE id = $3 AND status = $4
		RETURNING *`
	err = tx.GetContext(ctx, &order, update,
		models.OrderStatusPaid, payment.ChargeID, orderID, models.OrderStatusCreated)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("order %s not in %s state: %w", orderID, models.OrderStatusCreated, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update order: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &order, nil
}

// MarkOrderFailed transitions CREATED -> FAILED. Returns ErrNotFound when the
// order is not in CREATED (the engine treats that as an idempotent no-op).
func (s *Store) MarkOrderFailed(ctx context.Context, orderID string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, `
		UPDATE orders SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3
		RETURNING *`,
		models.OrderStatusFailed, orderID, models.OrderStatusCreated)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// MarkOrderRefunded transitions PAID -> REFUNDED and marks the payment record
// refunded in the same transaction.
func (s *Store) MarkOrderRefunded(ctx context.Context, orderID, chargeID string) (*models.Order, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var order models.Order
	err = tx.GetContext(ctx, &order, `
		UPDATE orders SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3 AND gateway_charge_id = $4
		RETURNING *`,
		models.OrderStatusRefunded, orderID, models.OrderStatusPaid, chargeID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE payments SET status = $1 WHERE charge_id = $2",
		models.PaymentStatusRefunded, chargeID); err != nil {
		return nil, fmt.Errorf("failed to update payment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &order, nil
}

// SetOrderArtifactURL stores the ticket artifact URL once. The predicate
// keeps the first written URL authoritative under worker retries.
func (s *Store) SetOrderArtifactURL(ctx context.Context, orderID, url string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE orders SET artifact_url = $1, updated_at = NOW()
		WHERE id = $2 AND artifact_url IS NULL`,
		url, orderID)
	return err
}

// GetPaymentByChargeID retrieves the payment audit record for a charge
func (s *Store) GetPaymentByChargeID(ctx context.Context, chargeID string) (*models.Payment, error) {
	var payment models.Payment
	err := s.db.GetContext(ctx, &payment, "SELECT * FROM payments WHERE charge_id = $1", chargeID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// SaveUnresolvedCapture parks a verified capture that could not be matched to
// an order within the retry budget.
func (s *Store) SaveUnresolvedCapture(ctx context.Context, c *models.UnresolvedCapture) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO unresolved_captures (charge_id, intent_id, amount, currency, reason)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (charge_id) DO NOTHING`,
		c.ChargeID, c.IntentID, c.Amount, c.Currency, c.Reason)
	return err
}
