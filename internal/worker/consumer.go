package worker

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/cuongbtq/zimage-orchestrator/internal/domain"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// batchDelivery is a parsed batch message together with the delivery to settle
type batchDelivery struct {
	msg      domain.BatchMessage
	delivery amqp.Delivery
}

// setupConsumer starts consuming with the worker id as consumer tag
func (w *Worker) setupConsumer() (<-chan amqp.Delivery, error) {
	deliveries, err := w.consumer.Consume(w.workerID)
	if err != nil {
		return nil, err
	}

	w.logger.Info("RabbitMQ consumer started",
		slog.String("consumer_tag", w.workerID),
	)

	return deliveries, nil
}

// startMessageDispatcher parses deliveries and hands them to the pool until
// ctx is canceled or the delivery channel closes
func (w *Worker) startMessageDispatcher(ctx context.Context, deliveries <-chan amqp.Delivery) {
	w.logger.Info("Message dispatcher started", slog.String("worker_id", w.workerID))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Message dispatcher stopped - context canceled")
			return

		case delivery, ok := <-deliveries:
			if !ok {
				w.logger.Warn("RabbitMQ delivery channel closed")
				return
			}

			msg, ok := w.parseDelivery(delivery)
			if !ok {
				// malformed messages are dropped (or dead-lettered by the broker)
				if err := delivery.Nack(false, false); err != nil {
					w.logger.Error("Failed to NACK malformed message", slog.String("error", err.Error()))
				}
				continue
			}

			select {
			case w.batchesChan <- &batchDelivery{msg: msg, delivery: delivery}:
				w.logger.Debug("Batch dispatched to worker pool",
					slog.String("batch_id", msg.BatchID),
					slog.Uint64("delivery_tag", msg.DeliveryTag),
				)
			case <-ctx.Done():
				w.logger.Info("Message dispatcher stopped while dispatching batch")
				if err := delivery.Nack(false, true); err != nil {
					w.logger.Error("Failed to NACK message on shutdown", slog.String("error", err.Error()))
				}
				return
			}
		}
	}
}

func (w *Worker) parseDelivery(delivery amqp.Delivery) (domain.BatchMessage, bool) {
	var msg domain.BatchMessage
	if err := json.Unmarshal(delivery.Body, &msg); err != nil {
		w.logger.Error("Failed to parse message JSON",
			slog.String("error", err.Error()),
			slog.String("body", domain.Truncate(string(delivery.Body), 200)),
		)
		return msg, false
	}

	if _, err := uuid.Parse(msg.BatchID); err != nil {
		w.logger.Error("Invalid batch_id format - not a UUID",
			slog.String("batch_id", msg.BatchID),
			slog.String("error", err.Error()),
		)
		return msg, false
	}

	msg.DeliveryTag = delivery.DeliveryTag
	return msg, true
}
