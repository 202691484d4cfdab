package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/ASMdeS/smart-impulse-portfolio/internal/models"
	"github.com/ASMdeS/smart-impulse-portfolio/internal/screener"
)

// CycleRunner defines the interface for driving one reconciliation cycle.
type CycleRunner interface {
	RunCycle(ctx context.Context, snap *models.Snapshot) (*models.Ledger, error)
}

// SnapshotEvent represents a screener snapshot event from Kafka.
type SnapshotEvent struct {
	EventType string            `json:"event_type"`
	Source    string            `json:"source"`
	Timestamp string            `json:"timestamp"`
	Data      SnapshotEventData `json:"data"`
}

// SnapshotEventData holds the export date and its raw rows. Rows arrive
// uncleaned: prices and market caps may be currency-formatted strings.
type SnapshotEventData struct {
	SnapshotDate string            `json:"snapshot_date"`
	Rows         []screener.RawRow `json:"rows"`
}

// SnapshotConsumer handles consuming screener snapshot events from Kafka
// and turning each into one reconciliation cycle.
type SnapshotConsumer struct {
	reader *kafka.Reader
	runner CycleRunner
}

// NewSnapshotConsumer creates a new Kafka consumer for snapshot events.
func NewSnapshotConsumer(brokers []string, topic, groupID string, runner CycleRunner) *SnapshotConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID + "-snapshots",
		MinBytes:       10e3, // 10KB
		MaxBytes:       10e6, // 10MB
		MaxWait:        1 * time.Second,
		StartOffset:    kafka.LastOffset, // Only read new snapshots (not historical)
		CommitInterval: time.Second,
	})

	return &SnapshotConsumer{
		reader: reader,
		runner: runner,
	}
}

// Start begins consuming messages from Kafka.
func (c *SnapshotConsumer) Start(ctx context.Context) error {
	log.Printf("Starting snapshot consumer for topic: %s", c.reader.Config().Topic)

	for {
		select {
		case <-ctx.Done():
			log.Println("Snapshot consumer shutting down...")
			return c.reader.Close()
		default:
			msg, err := c.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil // Context cancelled, normal shutdown
				}
				log.Printf("Error reading snapshot message: %v", err)
				continue
			}

			if err := c.processMessage(ctx, msg); err != nil {
				log.Printf("Error processing snapshot message: %v", err)
				// A failed cycle leaves the prior ledger untouched; the
				// corrected export can simply be re-published.
			}
		}
	}
}

// processMessage handles a single Kafka message.
func (c *SnapshotConsumer) processMessage(ctx context.Context, msg kafka.Message) error {
	log.Printf("Received snapshot message from partition %d offset %d",
		msg.Partition, msg.Offset)

	var event SnapshotEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("failed to unmarshal snapshot event: %w", err)
	}

	if event.EventType != "SCREENER_SNAPSHOT" {
		log.Printf("Ignoring event type: %s", event.EventType)
		return nil
	}

	date, err := time.Parse("2006-01-02", event.Data.SnapshotDate)
	if err != nil {
		return fmt.Errorf("invalid snapshot_date %q: %w", event.Data.SnapshotDate, err)
	}

	snap, err := screener.ParseRows(date, event.Data.Rows)
	if err != nil {
		return fmt.Errorf("failed to parse snapshot rows: %w", err)
	}

	ledger, err := c.runner.RunCycle(ctx, snap)
	if err != nil {
		return fmt.Errorf("cycle failed for %s: %w", event.Data.SnapshotDate, err)
	}

	log.Printf("Cycle complete for %s: %d positions (%d active)",
		event.Data.SnapshotDate, len(ledger.Positions), ledger.ActiveCount())
	return nil
}

// Close closes the Kafka consumer.
func (c *SnapshotConsumer) Close() error {
	return c.reader.Close()
}
