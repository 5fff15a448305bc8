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

const intentCreateAttempts = 3

// OrderStore is the slice of the persistence layer the order paths need.
// *store.Store satisfies it.
type OrderStore interface {
	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
	GetOrderByIntentID(ctx context.Context, intentID string) (*models.Order, error)
	MarkOrderPaid(ctx context.Context, orderID string, payment *models.Payment) (*models.Order, error)
	MarkOrderFailed(ctx context.Context, orderID string) (*models.Order, error)
	MarkOrderRefunded(ctx context.Context, orderID, chargeID string) (*models.Order, error)
	SetOrderArtifactURL(ctx context.Context, orderID, url string) error
	GetPaymentByChargeID(ctx context.Context, chargeID string) (*models.Payment, error)
	SaveUnresolvedCapture(ctx context.Context, c *models.UnresolvedCapture) error
}

// EventPublisher publishes domain events. *broker.EventPublisher satisfies it.
type EventPublisher interface {
	PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error
	PublishOrderPaid(ctx context.Context, event *models.OrderPaidEvent) error
	PublishOrderFailed(ctx context.Context, event *models.OrderFailedEvent) error
	PublishOrderRefunded(ctx context.Context, event *models.OrderRefundedEvent) error
	PublishTicketIssued(ctx context.Context, event *models.TicketIssuedEvent) error
}

// ProjectionCache caches payment projections for the polled lookup endpoint.
// *redisclient.Client satisfies it.
type ProjectionCache interface {
	GetProjection(ctx context.Context, chargeID string) (*PaymentProjection, error)
	SetProjection(ctx context.Context, chargeID string, p *PaymentProjection, ttl time.Duration) error
}

// OrderService handles order creation and payment projections
type OrderService struct {
	store     OrderStore
	gateway   gateway.IntentCreator
	publisher EventPublisher
	cache     ProjectionCache
	currency  string
	logger    *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(
	orderStore OrderStore,
	intentCreator gateway.IntentCreator,
	publisher EventPublisher,
	cache ProjectionCache,
	currency string,
) *OrderService {
	return &OrderService{
		store:     orderStore,
		gateway:   intentCreator,
		publisher: publisher,
		cache:     cache,
		currency:  currency,
		logger:    util.GetLogger(),
	}
}

// CreateOrderRequest represents a request to create an order. UserID is empty
// for guest checkout.
type CreateOrderRequest struct {
	UserID   string
	EventRef string
	Amount   int64
	Name     string
	Email    string
}

// CreateOrderResponse is returned to the client so it can open the gateway
// checkout against the intent.
type CreateOrderResponse struct {
	OrderID  string `json:"db_order_id"`
	IntentID string `json:"gateway_intent_id"`
	Status   string `json:"status"`
}

// CreateOrder mints a gateway intent and persists the order carrying it. The
// intent call comes first: if the gateway fails after retries, no order row is
// written.
func (s *OrderService) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*CreateOrderResponse, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateOrder")
	defer span.End()

	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}

	notes := map[string]string{}
	if req.UserID != "" {
		notes["user_id"] = req.UserID
	}
	if req.Name != "" {
		notes["name"] = req.Name
	}
	if req.Email != "" {
		notes["email"] = req.Email
	}

	intentID, err := s.createIntent(ctx, gateway.IntentRequest{
		Amount:   req.Amount,
		Currency: s.currency,
		Notes:    notes,
	})
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("gateway_intent").Inc()
		return nil, err
	}

	order := &models.Order{
		ID:              uuid.New().String(),
		Amount:          req.Amount,
		GatewayIntentID: intentID,
		Status:          models.OrderStatusCreated,
	}
	if req.UserID != "" {
		order.UserID = sql.NullString{String: req.UserID, Valid: true}
	}
	if req.EventRef != "" {
		order.EventRef = sql.NullString{String: req.EventRef, Valid: true}
	}

	if err := s.store.CreateOrder(ctx, order); err != nil {
		util.OrdersFailedTotal.WithLabelValues("db_error").Inc()
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order created",
		zap.String("order_id", order.ID),
		zap.String("intent_id", intentID),
		zap.Int64("amount", req.Amount))

	event := &models.OrderCreatedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderCreated,
			Timestamp: time.Now(),
		},
		OrderID:  order.ID,
		IntentID: intentID,
		Amount:   order.Amount,
	}
	if err := s.publisher.PublishOrderCreated(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCreated event", zap.Error(err))
	}

	return &CreateOrderResponse{
		OrderID:  order.ID,
		IntentID: intentID,
		Status:   order.Status,
	}, nil
}

// createIntent retries transient gateway failures with a short backoff.
func (s *OrderService) createIntent(ctx context.Context, req gateway.IntentRequest) (string, error) {
	var lastErr error
	for attempt := 0; attempt < intentCreateAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(time.Duration(attempt) * 200 * time.Millisecond):
			}
		}

		intentID, err := s.gateway.CreateIntent(ctx, req)
		if err == nil {
			return intentID, nil
		}
		lastErr = err
		if !errors.Is(err, gateway.ErrGatewayUnavailable) {
			break
		}
		s.logger.Warn("Gateway intent attempt failed",
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}
	return "", lastErr
}

// PaymentProjection is the client-facing view of a reconciled payment.
type PaymentProjection struct {
	PaymentID   string `json:"payment_id"`
	OrderID     string `json:"order_id"`
	Amount      int64  `json:"amount"`
	ArtifactURL string `json:"artifact_url,omitempty"`
	Status      string `json:"status"`
}

const projectionCacheTTL = 30 * time.Second

// GetPaymentProjection returns the Order+Payment view for a charge id.
// Clients poll this with backoff until the webhook has reconciled the charge,
// so hits are cached briefly in Redis.
func (s *OrderService) GetPaymentProjection(ctx context.Context, chargeID string) (*PaymentProjection, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.GetPaymentProjection")
	defer span.End()

	if s.cache != nil {
		if cached, err := s.cache.GetProjection(ctx, chargeID); err == nil && cached != nil {
			return cached, nil
		}
	}

	payment, err := s.store.GetPaymentByChargeID(ctx, chargeID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}

	order, err := s.store.GetOrderByID(ctx, payment.OrderID)
	if err != nil {
		return nil, err
	}

	projection := &PaymentProjection{
		PaymentID: payment.ChargeID,
		OrderID:   order.ID,
		Amount:    order.Amount,
		Status:    order.Status,
	}
	if order.ArtifactURL.Valid {
		projection.ArtifactURL = order.ArtifactURL.String
	}

	if s.cache != nil {
		if err := s.cache.SetProjection(ctx, chargeID, projection, projectionCacheTTL); err != nil {
			s.logger.Warn("Failed to cache payment projection", zap.Error(err))
		}
	}

	return projection, nil
}
