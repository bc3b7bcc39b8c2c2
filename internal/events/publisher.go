// Package events publishes sale lifecycle events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/warungtech/pos-register/internal/register"
)

const (
	TypeSaleFinalized = "sale.finalized"
	TypeSalePending   = "sale.pending"
	TypeSaleResolved  = "sale.resolved"
)

// Envelope wraps every event published to the sales topic.
type Envelope struct {
	EventID    string          `json:"event_id"`
	Type       string          `json:"type"`
	Version    int             `json:"version"`
	OccurredAt time.Time       `json:"occurred_at"`
	Producer   string          `json:"producer"`
	Payload    json.RawMessage `json:"payload"`
}

// PendingEvent is the payload for sale.pending and sale.resolved.
type PendingEvent struct {
	OrderCode string `json:"order_code"`
	PendingID string `json:"pending_id"`
	Status    string `json:"status,omitempty"`
}

var _ register.EventSink = (*Publisher)(nil)

// Publisher is an async Kafka producer implementing register.EventSink.
// Publish never blocks the session: messages queue on a buffered inbox and a
// single goroutine drains it. When the inbox is full the event is dropped and
// logged.
type Publisher struct {
	w       *kafka.Writer
	lg      *zap.Logger
	inbox   chan kafka.Message
	closeCh chan struct{}
}

// NewPublisher creates a Publisher for the given brokers and topic. Run must
// be called before any events are published.
func NewPublisher(brokers []string, topic string, buf int, lg *zap.Logger) *Publisher {
	return &Publisher{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		},
		lg:      lg,
		inbox:   make(chan kafka.Message, buf),
		closeCh: make(chan struct{}),
	}
}

// Run drains the inbox until ctx is cancelled, then flushes what remains and
// closes the writer.
func (p *Publisher) Run(ctx context.Context) error {
	defer close(p.closeCh)
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case m := <-p.inbox:
					p.write(m)
				default:
					return p.w.Close()
				}
			}
		case m := <-p.inbox:
			p.write(m)
		}
	}
}

func (p *Publisher) write(m kafka.Message) {
	if err := p.w.WriteMessages(context.Background(), m); err != nil {
		p.lg.Error("publish event failed",
			zap.String("key", string(m.Key)),
			zap.Error(err))
	}
}

// SaleFinalized publishes the full sale record.
func (p *Publisher) SaleFinalized(s register.Sale) {
	p.publish(TypeSaleFinalized, s.OrderCode, s)
}

// SalePending announces an order awaiting customer confirmation.
func (p *Publisher) SalePending(orderCode, pendingID string) {
	p.publish(TypeSalePending, orderCode, PendingEvent{
		OrderCode: orderCode,
		PendingID: pendingID,
	})
}

// SaleResolved announces the outcome of a pending order.
func (p *Publisher) SaleResolved(orderCode, pendingID, status string) {
	p.publish(TypeSaleResolved, orderCode, PendingEvent{
		OrderCode: orderCode,
		PendingID: pendingID,
		Status:    status,
	})
}

func (p *Publisher) publish(eventType, key string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		p.lg.Error("marshal event failed",
			zap.String("type", eventType),
			zap.Error(err))
		return
	}
	value, err := json.Marshal(Envelope{
		EventID:    uuid.New().String(),
		Type:       eventType,
		Version:    1,
		OccurredAt: time.Now().UTC(),
		Producer:   "pos-register",
		Payload:    raw,
	})
	if err != nil {
		p.lg.Error("marshal envelope failed",
			zap.String("type", eventType),
			zap.Error(err))
		return
	}

	select {
	case p.inbox <- kafka.Message{Key: []byte(key), Value: value, Time: time.Now()}:
	default:
		p.lg.Warn("event inbox full, dropping event",
			zap.String("type", eventType),
			zap.String("key", key))
	}
}
