package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ticketing-service/internal/gateway"
	"ticketing-service/internal/models"
	"ticketing-service/internal/store"
	"ticketing-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Reconciler drives the order state machine from externally confirmed payment
// events. Transitions: CREATED -> PAID, CREATED -> FAILED, PAID -> REFUNDED.
// Illegal transitions are idempotent no-ops that return the current state.
type Reconciler struct {
	store          OrderStore
	artifacts      ArtifactGenerator
	publisher      EventPublisher
	lookupAttempts int
	lookupBackoff  time.Duration
	artifactWait   time.Duration
	logger         *zap.Logger
}

// NewReconciler creates a reconciler. lookupAttempts and lookupBackoff bound
// the wait for an order row whose commit raced behind the webhook.
func NewReconciler(
	orderStore OrderStore,
	artifacts ArtifactGenerator,
	publisher EventPublisher,
	lookupAttempts int,
	lookupBackoff time.Duration,
	artifactWait time.Duration,
) *Reconciler {
	return &Reconciler{
		store:          orderStore,
		artifacts:      artifacts,
		publisher:      publisher,
		lookupAttempts: lookupAttempts,
		lookupBackoff:  lookupBackoff,
		artifactWait:   artifactWait,
		logger:         util.GetLogger(),
	}
}

// MarkPaid reconciles a verified capture with its order. The Payment record's
// unique charge id is the at-most-once guard: redelivered and concurrent
// duplicates collapse into one PAID transition.
func (r *Reconciler) MarkPaid(ctx context.Context, capture *gateway.Capture) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "Reconciler.MarkPaid")
	defer span.End()

	start := time.Now()
	defer func() {
		util.CaptureLookupLatency.Observe(time.Since(start).Seconds())
	}()

	order, err := r.lookupOrder(ctx, capture.IntentID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, r.parkUnresolved(ctx, capture)
	}
	if err != nil {
		return nil, err
	}

	if order.Status != models.OrderStatusCreated {
		return r.resolveSettled(order, capture.ChargeID)
	}

	if capture.Amount != order.Amount {
		r.logger.Warn("Capture amount differs from order amount",
			zap.String("order_id", order.ID),
			zap.Int64("order_amount", order.Amount),
			zap.Int64("capture_amount", capture.Amount))
	}

	payment := &models.Payment{
		ChargeID: capture.ChargeID,
		OrderID:  order.ID,
		Amount:   capture.Amount,
		Currency: capture.Currency,
		Name:     noteOrDefault(capture.Notes, "name", "Guest"),
		Email:    emailOrDefault(capture),
		Status:   models.PaymentStatusCaptured,
	}
	if userID := capture.Notes["user_id"]; userID != "" {
		payment.UserID = sql.NullString{String: userID, Valid: true}
	}

	updated, err := r.store.MarkOrderPaid(ctx, order.ID, payment)
	if errors.Is(err, store.ErrDuplicateCharge) {
		// Lost a race with a concurrent delivery of the same charge, or the
		// charge already settled another order.
		return r.resolveDuplicateCharge(ctx, order.ID, capture.ChargeID)
	}
	if errors.Is(err, store.ErrNotFound) {
		// Status flipped between the read and the update; re-read and apply
		// the settled-order rules.
		current, rerr := r.store.GetOrderByID(ctx, order.ID)
		if rerr != nil {
			return nil, rerr
		}
		return r.resolveSettled(current, capture.ChargeID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to mark order paid: %w", err)
	}

	util.OrdersPaidTotal.Inc()
	r.logger.Info("Order reconciled to paid",
		zap.String("order_id", updated.ID),
		zap.String("charge_id", capture.ChargeID),
		zap.Int64("amount", updated.Amount))

	event := &models.OrderPaidEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderPaid,
			Timestamp: time.Now(),
		},
		OrderID:  updated.ID,
		ChargeID: capture.ChargeID,
		Amount:   updated.Amount,
		Currency: capture.Currency,
	}
	if err := r.publisher.PublishOrderPaid(ctx, event); err != nil {
		r.logger.Error("Failed to publish OrderPaid event", zap.Error(err))
	}

	// Best-effort inline artifact generation under a bounded wait. The PAID
	// status is already durable; on failure the background worker picks the
	// order up from the OrderPaid event.
	r.generateArtifact(ctx, updated, payment)

	return updated, nil
}

// lookupOrder retries the intent-id lookup with exponential backoff, because
// the intent id is allocated before the order row commits and the webhook can
// arrive first.
func (r *Reconciler) lookupOrder(ctx context.Context, intentID string) (*models.Order, error) {
	backoff := r.lookupBackoff
	for attempt := 0; ; attempt++ {
		order, err := r.store.GetOrderByIntentID(ctx, intentID)
		if err == nil {
			return order, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		if attempt >= r.lookupAttempts-1 {
			return nil, err
		}

		r.logger.Debug("Order not yet visible for capture, retrying",
			zap.String("intent_id", intentID),
			zap.Int("attempt", attempt+1))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

// parkUnresolved persists an unmatched capture for operator review.
func (r *Reconciler) parkUnresolved(ctx context.Context, capture *gateway.Capture) error {
	util.UnresolvedCapturesTotal.Inc()
	r.logger.Error("Capture exhausted order lookup retries, parking as unresolved",
		zap.String("charge_id", capture.ChargeID),
		zap.String("intent_id", capture.IntentID),
		zap.Int64("amount", capture.Amount))

	unresolved := &models.UnresolvedCapture{
		ChargeID: capture.ChargeID,
		IntentID: capture.IntentID,
		Amount:   capture.Amount,
		Currency: capture.Currency,
		Reason:   "no order found for intent within retry budget",
	}
	if err := r.store.SaveUnresolvedCapture(ctx, unresolved); err != nil {
		return fmt.Errorf("failed to park unresolved capture: %w", err)
	}
	return ErrUnresolvedCapture
}

// resolveSettled applies the idempotency rules for an order that already left
// CREATED: same charge id means duplicate delivery, a different charge id on a
// paid order is a fatal conflict, anything else is a no-op.
func (r *Reconciler) resolveSettled(order *models.Order, chargeID string) (*models.Order, error) {
	switch order.Status {
	case models.OrderStatusPaid, models.OrderStatusRefunded:
		if order.GatewayChargeID.Valid && order.GatewayChargeID.String == chargeID {
			util.CaptureDuplicatesTotal.Inc()
			r.logger.Info("Duplicate capture delivery absorbed",
				zap.String("order_id", order.ID),
				zap.String("charge_id", chargeID))
			return order, nil
		}
		util.ReconciliationConflictsTotal.Inc()
		r.logger.Error("Reconciliation conflict: order settled under a different charge",
			zap.String("order_id", order.ID),
			zap.String("existing_charge_id", order.GatewayChargeID.String),
			zap.String("incoming_charge_id", chargeID))
		return nil, ErrReconciliationConflict
	default:
		r.logger.Warn("Capture for order in terminal state, ignoring",
			zap.String("order_id", order.ID),
			zap.String("status", order.Status),
			zap.String("charge_id", chargeID))
		return order, nil
	}
}

// resolveDuplicateCharge handles a unique-violation loss on the payments
// insert: if the charge settled this order it is the idempotent-duplicate
// case, otherwise the charge belongs elsewhere and this is a conflict.
func (r *Reconciler) resolveDuplicateCharge(ctx context.Context, orderID, chargeID string) (*models.Order, error) {
	payment, err := r.store.GetPaymentByChargeID(ctx, chargeID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve duplicate charge: %w", err)
	}

	if payment.OrderID != orderID {
		util.ReconciliationConflictsTotal.Inc()
		r.logger.Error("Reconciliation conflict: charge already settled another order",
			zap.String("charge_id", chargeID),
			zap.String("order_id", orderID),
			zap.String("settled_order_id", payment.OrderID))
		return nil, ErrReconciliationConflict
	}

	util.CaptureDuplicatesTotal.Inc()
	order, err := r.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	r.logger.Info("Concurrent duplicate capture absorbed",
		zap.String("order_id", orderID),
		zap.String("charge_id", chargeID))
	return order, nil
}

// MarkFailed transitions CREATED -> FAILED on a gateway failure event. Orders
// in any other state are left untouched.
func (r *Reconciler) MarkFailed(ctx context.Context, intentID, reason string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "Reconciler.MarkFailed")
	defer span.End()

	order, err := r.lookupOrder(ctx, intentID)
	if errors.Is(err, store.ErrNotFound) {
		r.logger.Warn("Failure event for unknown intent, ignoring",
			zap.String("intent_id", intentID))
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}

	updated, err := r.store.MarkOrderFailed(ctx, order.ID)
	if errors.Is(err, store.ErrNotFound) {
		// Already settled; idempotent no-op.
		current, rerr := r.store.GetOrderByID(ctx, order.ID)
		if rerr != nil {
			return nil, rerr
		}
		r.logger.Info("Failure event for settled order, ignoring",
			zap.String("order_id", order.ID),
			zap.String("status", current.Status))
		return current, nil
	}
	if err != nil {
		return nil, err
	}

	util.OrdersFailedTotal.WithLabelValues("gateway_declined").Inc()
	r.logger.Info("Order marked failed",
		zap.String("order_id", updated.ID),
		zap.String("reason", reason))

	event := &models.OrderFailedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderFailed,
			Timestamp: time.Now(),
		},
		OrderID:  updated.ID,
		IntentID: intentID,
		Reason:   reason,
	}
	if err := r.publisher.PublishOrderFailed(ctx, event); err != nil {
		r.logger.Error("Failed to publish OrderFailed event", zap.Error(err))
	}

	return updated, nil
}

// MarkRefunded transitions PAID -> REFUNDED for a settled charge. Repeated
// calls are idempotent no-ops.
func (r *Reconciler) MarkRefunded(ctx context.Context, chargeID string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "Reconciler.MarkRefunded")
	defer span.End()

	payment, err := r.store.GetPaymentByChargeID(ctx, chargeID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}

	updated, err := r.store.MarkOrderRefunded(ctx, payment.OrderID, chargeID)
	if errors.Is(err, store.ErrNotFound) {
		current, rerr := r.store.GetOrderByID(ctx, payment.OrderID)
		if rerr != nil {
			return nil, rerr
		}
		return current, nil
	}
	if err != nil {
		return nil, err
	}

	util.OrdersRefundedTotal.Inc()
	r.logger.Info("Order refunded",
		zap.String("order_id", updated.ID),
		zap.String("charge_id", chargeID))

	event := &models.OrderRefundedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderRefunded,
			Timestamp: time.Now(),
		},
		OrderID:  updated.ID,
		ChargeID: chargeID,
	}
	if err := r.publisher.PublishOrderRefunded(ctx, event); err != nil {
		r.logger.Error("Failed to publish OrderRefunded event", zap.Error(err))
	}

	return updated, nil
}

// generateArtifact tries to render the ticket inline under a bounded wait and
// stores the URL on success. Failures are left to the background worker.
func (r *Reconciler) generateArtifact(ctx context.Context, order *models.Order, payment *models.Payment) {
	genCtx, cancel := context.WithTimeout(ctx, r.artifactWait)
	defer cancel()

	url, err := r.artifacts.Generate(genCtx, order, payment)
	if err != nil {
		util.ArtifactGenerationsTotal.WithLabelValues("deferred").Inc()
		r.logger.Warn("Inline artifact generation failed, deferring to worker",
			zap.String("order_id", order.ID),
			zap.Error(err))
		return
	}

	if err := r.store.SetOrderArtifactURL(ctx, order.ID, url); err != nil {
		r.logger.Error("Failed to store artifact URL",
			zap.String("order_id", order.ID),
			zap.Error(err))
		return
	}

	util.ArtifactGenerationsTotal.WithLabelValues("success").Inc()
	order.ArtifactURL = sql.NullString{String: url, Valid: true}

	event := &models.TicketIssuedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeTicketIssued,
			Timestamp: time.Now(),
		},
		OrderID:     order.ID,
		ChargeID:    payment.ChargeID,
		ArtifactURL: url,
	}
	if err := r.publisher.PublishTicketIssued(ctx, event); err != nil {
		r.logger.Error("Failed to publish TicketIssued event", zap.Error(err))
	}
}

func noteOrDefault(notes map[string]string, key, fallback string) string {
	if v := notes[key]; v != "" {
		return v
	}
	return fallback
}

func emailOrDefault(capture *gateway.Capture) string {
	if capture.Email != "" {
		return capture.Email
	}
	if v := capture.Notes["email"]; v != "" {
		return v
	}
	return "guest@example.com"
}
