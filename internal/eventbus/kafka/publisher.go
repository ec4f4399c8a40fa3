// Package kafka carries events over a Kafka topic with franz-go. Records are
// keyed by the event partition key so one candidate's events share a
// partition and keep their order.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	"talentflow/internal/eventbus/metrics"
	"talentflow/internal/events"
)

const headerEventType = "event-type"

// Producer is the part of *kgo.Client the publisher needs.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

type Publisher struct {
	producer Producer
	metrics  *metrics.Metrics
}

func NewPublisher(producer Producer, m *metrics.Metrics) *Publisher {
	return &Publisher{producer: producer, metrics: m}
}

// Publish produces all events and waits for broker acknowledgement.
func (p *Publisher) Publish(ctx context.Context, evts ...events.Event) error {
	if len(evts) == 0 {
		return nil
	}
	records := make([]*kgo.Record, 0, len(evts))
	for _, evt := range evts {
		r, err := toRecord(evt)
		if err != nil {
			return err
		}
		records = append(records, r)
	}
	if err := p.producer.ProduceSync(ctx, records...).FirstErr(); err != nil {
		return fmt.Errorf("produce events: %w", err)
	}
	for _, evt := range evts {
		p.metrics.IncrementPublished(evt.Type.String())
	}
	return nil
}

func toRecord(evt events.Event) (*kgo.Record, error) {
	value, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("encode event %s: %w", evt.ID, err)
	}
	return &kgo.Record{
		Key:   []byte(evt.PartitionKey()),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: headerEventType, Value: []byte(evt.Type)},
		},
	}, nil
}

func fromRecord(r *kgo.Record) (events.Event, error) {
	var evt events.Event
	if err := json.Unmarshal(r.Value, &evt); err != nil {
		return events.Event{}, fmt.Errorf("%w: decode record at offset %d: %v", events.ErrMalformedPayload, r.Offset, err)
	}
	if err := evt.Validate(); err != nil {
		return events.Event{}, fmt.Errorf("%w: %v", events.ErrMalformedPayload, err)
	}
	return evt, nil
}
