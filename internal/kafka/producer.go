package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/ASMdeS/smart-impulse-portfolio/internal/models"
)

const (
	EventStocksSold   = "STOCKS_SOLD"
	EventStocksBought = "STOCKS_BOUGHT"
)

// TradeEvent is the envelope published for each notification batch.
type TradeEvent struct {
	EventType string         `json:"event_type"`
	Source    string         `json:"source"`
	Timestamp string         `json:"timestamp"`
	Data      TradeEventData `json:"data"`
}

// TradeEventData carries the trades of one cycle.
type TradeEventData struct {
	CycleDate string         `json:"cycle_date"`
	Trades    []models.Trade `json:"trades"`
}

// Producer publishes buy/sell notification batches. Formatting and
// delivery (Telegram, email, ...) belong to downstream consumers.
type Producer struct {
	writer *kafka.Writer
}

// NewProducer creates a Kafka producer for trade notifications.
func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireOne,
		},
	}
}

// PublishStocksSold publishes the cycle's exit batch.
func (p *Producer) PublishStocksSold(ctx context.Context, cycleDate time.Time, trades []models.Trade) error {
	return p.publish(ctx, EventStocksSold, cycleDate, trades)
}

// PublishStocksBought publishes the cycle's admission batch.
func (p *Producer) PublishStocksBought(ctx context.Context, cycleDate time.Time, trades []models.Trade) error {
	return p.publish(ctx, EventStocksBought, cycleDate, trades)
}

func (p *Producer) publish(ctx context.Context, eventType string, cycleDate time.Time, trades []models.Trade) error {
	if len(trades) == 0 {
		return nil
	}
	event := TradeEvent{
		EventType: eventType,
		Source:    "portfolio-service",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Data: TradeEventData{
			CycleDate: cycleDate.Format("2006-01-02"),
			Trades:    trades,
		},
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", eventType, err)
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(eventType),
		Value: payload,
	})
	if err != nil {
		return fmt.Errorf("failed to publish %s event: %w", eventType, err)
	}
	return nil
}

// Close closes the Kafka writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}
