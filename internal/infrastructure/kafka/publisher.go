// Package kafka publica los eventos del outbox en Kafka.
package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/jhoicas/Cotizador-api/internal/domain/entity"
)

// Writer subconjunto de *kafka.Writer que usa el publicador.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher escribe mensajes del outbox en un tópico, con el aggregate id como key
// para conservar el orden por cotización.
type Publisher struct {
	writer Writer
	topic  string
}

// NewWriter construye el writer de segmentio con acks de todas las réplicas.
func NewWriter(brokers []string, timeout time.Duration) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: timeout,
	}
}

// NewPublisher construye el publicador sobre un writer.
func NewPublisher(writer Writer, topic string) *Publisher {
	return &Publisher{writer: writer, topic: topic}
}

// Publish envía un mensaje del outbox con headers de tipo, id y contexto de traza.
func (p *Publisher) Publish(ctx context.Context, msg *entity.OutboxMessage) error {
	ctx, span := otel.Tracer("kafka-publisher").Start(ctx, "kafka.publish."+msg.Type,
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", p.topic),
			attribute.String("event.type", msg.Type),
			attribute.String("event.id", msg.ID),
		),
	)
	defer span.End()

	headers := []kafka.Header{
		{Key: "event_type", Value: []byte(msg.Type)},
		{Key: "event_id", Value: []byte(msg.ID)},
	}
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	for k, v := range carrier {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}

	err := p.writer.WriteMessages(ctx, kafka.Message{
		Topic:   p.topic,
		Key:     []byte(msg.AggregateID),
		Value:   msg.Payload,
		Headers: headers,
		Time:    msg.CreatedAt,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "publish failed")
		return fmt.Errorf("kafka: publicar %s: %w", msg.Type, err)
	}
	return nil
}

// Close libera el writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
