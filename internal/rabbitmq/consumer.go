package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"chat-dashboard/internal/chat"
	"chat-dashboard/internal/models"
)

// ReceiptBinding is the routing pattern delivery receipts are published on.
const ReceiptBinding = "receipts.#"

const reconnectDelay = 5 * time.Second

// ReceiptApplier applies a delivery receipt to the stored message.
type ReceiptApplier interface {
	ApplyReceipt(ctx context.Context, r chat.Receipt) (models.Message, bool, error)
}

type disposition int

const (
	ack disposition = iota
	requeue
)

// ReceiptConsumer reads delivery receipts from a durable queue bound to the
// event exchange.
type ReceiptConsumer struct {
	url      string
	exchange string
	queue    string
	applier  ReceiptApplier
	log      *slog.Logger
}

func NewReceiptConsumer(url, exchange, queue string, applier ReceiptApplier, log *slog.Logger) *ReceiptConsumer {
	if log == nil {
		log = slog.Default()
	}
	return &ReceiptConsumer{url: url, exchange: exchange, queue: queue, applier: applier, log: log}
}

// Run consumes until ctx is cancelled, reconnecting after broker failures.
// It returns immediately when no AMQP url is configured.
func (c *ReceiptConsumer) Run(ctx context.Context) {
	if c.url == "" {
		c.log.Info("receipt consumer disabled", "reason", "empty amqp url")
		return
	}
	for {
		err := c.consume(ctx)
		if ctx.Err() != nil {
			return
		}
		c.log.Warn("receipt consumer stopped, reconnecting", "error", err, "delay", reconnectDelay.String())
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func (c *ReceiptConsumer) consume(ctx context.Context) error {
	conn, err := amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel: %w", err)
	}
	defer ch.Close()

	if err := declareExchange(ch, c.exchange); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	q, err := ch.QueueDeclare(c.queue, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, ReceiptBinding, c.exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	if err := ch.Qos(16, 0, false); err != nil {
		return fmt.Errorf("qos: %w", err)
	}
	deliveries, err := ch.ConsumeWithContext(ctx, q.Name, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	c.log.Info("receipt consumer started", "queue", q.Name, "binding", ReceiptBinding)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			switch c.process(ctx, d.Body) {
			case requeue:
				_ = d.Nack(false, true)
			default:
				_ = d.Ack(false)
			}
		}
	}
}

// process applies one receipt body. Only transient failures are requeued;
// malformed payloads and unknown messages would never succeed on redelivery.
func (c *ReceiptConsumer) process(ctx context.Context, body []byte) disposition {
	receipt, err := decodeReceipt(body)
	if err != nil {
		c.log.WarnContext(ctx, "receipt dropped", "reason", "decode", "error", err)
		return ack
	}

	msg, applied, err := c.applier.ApplyReceipt(ctx, receipt)
	switch {
	case errors.Is(err, chat.ErrInvalidReceipt), errors.Is(err, chat.ErrUnknownMessage):
		c.log.WarnContext(ctx, "receipt dropped", "external_message_id", receipt.ExternalMessageID, "status", receipt.Status, "error", err)
		return ack
	case err != nil:
		c.log.ErrorContext(ctx, "receipt failed, requeueing", "external_message_id", receipt.ExternalMessageID, "error", err)
		return requeue
	case !applied:
		c.log.DebugContext(ctx, "receipt ignored", "external_message_id", receipt.ExternalMessageID, "status", receipt.Status, "current", msg.Status)
		return ack
	default:
		c.log.InfoContext(ctx, "receipt applied", "external_message_id", receipt.ExternalMessageID, "status", receipt.Status, "conversation_id", msg.ConversationID)
		return ack
	}
}

func decodeReceipt(body []byte) (chat.Receipt, error) {
	var r chat.Receipt
	if err := json.Unmarshal(body, &r); err != nil {
		return chat.Receipt{}, err
	}
	if r.ExternalMessageID == "" {
		return chat.Receipt{}, errors.New("external_message_id is required")
	}
	return r, nil
}
