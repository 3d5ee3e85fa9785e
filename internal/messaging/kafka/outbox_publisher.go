package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

var errPublisherNotInitialized = errors.New("kafka outbox publisher is not initialized")

// OutboxTopicPublisher отправляет outbox-сообщения в один topic в виде Envelope.
type OutboxTopicPublisher struct {
	producer *Producer
	topic    string
	// origin - исходный topic; задаётся только для DLQ.
	origin string
}

// NewOutboxPublisher создаёт publisher событий заказов; пустой topic заменяется TopicOrderEvents.
func NewOutboxPublisher(producer *Producer, topic string) *OutboxTopicPublisher {
	if topic == "" {
		topic = TopicOrderEvents
	}
	return &OutboxTopicPublisher{producer: producer, topic: topic}
}

// NewDeadLetterPublisher создаёт publisher DLQ: сообщения помечаются заголовком
// x-original-topic, чтобы их можно было вернуть в origin.
func NewDeadLetterPublisher(producer *Producer, dlqTopic, origin string) *OutboxTopicPublisher {
	if dlqTopic == "" {
		dlqTopic = TopicDeadLetterQueue
	}
	return &OutboxTopicPublisher{producer: producer, topic: dlqTopic, origin: origin}
}

// Topic возвращает topic назначения.
func (p *OutboxTopicPublisher) Topic() string {
	return p.topic
}

// Publish отправляет сообщение с ключом PartitionKey, поэтому события одного заказа упорядочены.
func (p *OutboxTopicPublisher) Publish(ctx context.Context, event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return errPublisherNotInitialized
	}

	body, err := json.Marshal(NewEnvelope(event, p.producer.now()))
	if err != nil {
		return fmt.Errorf("marshal %s envelope: %w", event.EventType, err)
	}
	headers := map[string]string{
		HeaderEventType:     event.EventType,
		HeaderMessageID:     event.ID,
		HeaderAggregateType: event.AggregateType,
	}
	if p.origin != "" {
		headers[HeaderOriginalTopic] = p.origin
	}
	return p.producer.Send(ctx, Message{
		Topic:   p.topic,
		Key:     PartitionKey(event),
		Value:   body,
		Headers: headers,
	})
}

var _ domain.OutboxPublisher = (*OutboxTopicPublisher)(nil)
