package worker

import (
	"context"
	"time"

	"ticketing-service/internal/broker"
	"ticketing-service/internal/models"
	"ticketing-service/internal/service"
	"ticketing-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ArtifactWorker renders ticket artifacts for paid orders whose inline
// generation was deferred. The reconciler publishes OrderPaid after the PAID
// transition is durable; the worker is the retry path.
type ArtifactWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	store        service.OrderStore
	artifacts    service.ArtifactGenerator
	publisher    service.EventPublisher
	logger       *zap.Logger
}

// NewArtifactWorker creates a new artifact worker
func NewArtifactWorker(
	consumer *broker.Consumer,
	orderStore service.OrderStore,
	artifacts service.ArtifactGenerator,
	publisher service.EventPublisher,
) *ArtifactWorker {
	w := &ArtifactWorker{
		consumer:  consumer,
		store:     orderStore,
		artifacts: artifacts,
		publisher: publisher,
		logger:    util.GetLogger(),
	}

	eventHandler := broker.NewEventHandler()
	eventHandler.OnOrderPaid(w.handleOrderPaid)
	w.eventHandler = eventHandler

	return w
}

// Start starts the worker
func (w *ArtifactWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting artifact worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *ArtifactWorker) Stop() error {
	w.logger.Info("Stopping artifact worker")
	return w.consumer.Close()
}

// handleOrderPaid renders and stores the artifact for one paid order.
// Returning an error leaves the message uncommitted so it is redelivered;
// the artifact-url predicate makes repeats harmless.
func (w *ArtifactWorker) handleOrderPaid(ctx context.Context, event *models.OrderPaidEvent) error {
	order, err := w.store.GetOrderByID(ctx, event.OrderID)
	if err != nil {
		return err
	}

	if order.ArtifactURL.Valid {
		return nil
	}
	if order.Status != models.OrderStatusPaid {
		w.logger.Warn("OrderPaid event for order no longer paid, skipping",
			zap.String("order_id", order.ID),
			zap.String("status", order.Status))
		return nil
	}

	payment, err := w.store.GetPaymentByChargeID(ctx, event.ChargeID)
	if err != nil {
		return err
	}

	url, err := w.artifacts.Generate(ctx, order, payment)
	if err != nil {
		util.ArtifactGenerationsTotal.WithLabelValues("worker_retry").Inc()
		w.logger.Warn("Artifact generation failed, will retry",
			zap.String("order_id", order.ID),
			zap.Error(err))
		return err
	}

	if err := w.store.SetOrderArtifactURL(ctx, order.ID, url); err != nil {
		return err
	}

	util.ArtifactGenerationsTotal.WithLabelValues("success").Inc()
	w.logger.Info("Ticket artifact issued",
		zap.String("order_id", order.ID),
		zap.String("artifact_url", url))

	issued := &models.TicketIssuedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeTicketIssued,
			Timestamp: time.Now(),
		},
		OrderID:     order.ID,
		ChargeID:    event.ChargeID,
		ArtifactURL: url,
	}
	if err := w.publisher.PublishTicketIssued(ctx, issued); err != nil {
		w.logger.Error("Failed to publish TicketIssued event", zap.Error(err))
	}

	return nil
}
