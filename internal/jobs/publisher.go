package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub"

	"github.com/orderdeck/api/internal/printing"
	"github.com/orderdeck/api/internal/services"
)

// Message attribute keys used for subscriber-side filtering.
const (
	attrEventType = "eventType"
	attrTenantID  = "tenantId"
	attrStoreID   = "storeId"
)

// OrderEventPublisher pushes order domain events onto a Pub/Sub topic for
// out-of-band consumers. It implements services.OrderEventPublisher.
type OrderEventPublisher struct {
	topic *pubsub.Topic
}

var _ services.OrderEventPublisher = (*OrderEventPublisher)(nil)

// NewOrderEventPublisher binds the publisher to a topic.
func NewOrderEventPublisher(client *pubsub.Client, topicID string) (*OrderEventPublisher, error) {
	if client == nil {
		return nil, errors.New("order event publisher: pubsub client is required")
	}
	if strings.TrimSpace(topicID) == "" {
		return nil, errors.New("order event publisher: topic id is required")
	}
	return &OrderEventPublisher{topic: client.Topic(topicID)}, nil
}

// PublishOrderEvent serializes the event and waits for the server ack. Topic
// attributes carry the routing keys so subscribers can filter without
// decoding the payload.
func (p *OrderEventPublisher) PublishOrderEvent(ctx context.Context, event services.OrderEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("order event publisher: encode %s: %w", event.Type, err)
	}

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: eventAttributes(event),
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("order event publisher: publish %s: %w", event.Type, err)
	}
	return nil
}

// Close flushes buffered messages and releases topic resources.
func (p *OrderEventPublisher) Close() {
	p.topic.Stop()
}

func eventAttributes(event services.OrderEvent) map[string]string {
	attrs := map[string]string{
		attrEventType: event.Type,
	}
	if event.TenantID != "" {
		attrs[attrTenantID] = event.TenantID
	}
	if event.StoreID != "" {
		attrs[attrStoreID] = event.StoreID
	}
	return attrs
}

// PrintJobPublisher hands rendered ticket jobs to the print worker topic. It
// implements printing.PrintJobPublisher.
type PrintJobPublisher struct {
	topic *pubsub.Topic
}

var _ printing.PrintJobPublisher = (*PrintJobPublisher)(nil)

// NewPrintJobPublisher binds the publisher to a topic.
func NewPrintJobPublisher(client *pubsub.Client, topicID string) (*PrintJobPublisher, error) {
	if client == nil {
		return nil, errors.New("print job publisher: pubsub client is required")
	}
	if strings.TrimSpace(topicID) == "" {
		return nil, errors.New("print job publisher: topic id is required")
	}
	return &PrintJobPublisher{topic: client.Topic(topicID)}, nil
}

// PublishPrintJob serializes the job and waits for the server ack.
func (p *PrintJobPublisher) PublishPrintJob(ctx context.Context, job printing.PrintJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("print job publisher: encode order %s: %w", job.OrderID, err)
	}

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			attrStoreID: job.StoreID,
		},
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("print job publisher: publish order %s: %w", job.OrderID, err)
	}
	return nil
}

// Close flushes buffered messages and releases topic resources.
func (p *PrintJobPublisher) Close() {
	p.topic.Stop()
}
