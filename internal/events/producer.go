package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	HeaderEventType   = "event-type"
	HeaderEventID     = "event-id"
	HeaderContentType = "content-type"

	contentTypeJSON = "application/json"
)

var producerTracer = otel.Tracer("bookstore/events")

// Producer пишет события заказов в Kafka
type Producer struct {
	writer *kafka.Writer
	topic  string
}

// NewProducer ждёт подтверждения от всех реплик: потерянное order.placed
// не восстановить, а дубль потребитель отбросит по event-id.
func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{
		topic: topic,
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			Compression:            kafka.Snappy,
			AllowAutoTopicCreation: true,
			BatchTimeout:           50 * time.Millisecond,
			WriteTimeout:           5 * time.Second,
		},
	}
}

// Publish ключом служит id заказа, поэтому события одного заказа
// попадают в одну партицию и сохраняют порядок.
func (p *Producer) Publish(ctx context.Context, key string, event any) error {
	msg, err := newMessage(key, event)
	if err != nil {
		return err
	}
	eventType := header(msg, HeaderEventType)

	ctx, span := producerTracer.Start(ctx, eventType+" publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			semconv.MessagingSystemKafka,
			semconv.MessagingOperationTypePublish,
			semconv.MessagingDestinationName(p.topic),
			semconv.MessagingKafkaMessageKey(key),
			semconv.MessagingMessageID(header(msg, HeaderEventID)),
			attribute.String("bookstore.event.type", eventType),
		),
	)
	defer span.End()

	otel.GetTextMapPropagator().Inject(ctx, headerCarrier{headers: &msg.Headers})

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to publish %s: %w", eventType, err)
	}
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

func newMessage(key string, event any) (kafka.Message, error) {
	e, ok := event.(Event)
	if !ok {
		return kafka.Message{}, fmt.Errorf("unsupported event type %T", event)
	}
	data, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to marshal %s: %w", e.EventType(), err)
	}
	return kafka.Message{
		Key:   []byte(key),
		Value: data,
		Time:  e.OccurredAt(),
		Headers: []kafka.Header{
			{Key: HeaderEventType, Value: []byte(e.EventType())},
			{Key: HeaderEventID, Value: []byte(e.ID())},
			{Key: HeaderContentType, Value: []byte(contentTypeJSON)},
		},
	}, nil
}
