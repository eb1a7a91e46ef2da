package rabbitmq

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/companion-bot/internal/lib/clock"
)

// ErrUnknownRoutingKey ключ не привязан ни к одной очереди уведомлений,
// сообщение было бы потеряно обменником.
var ErrUnknownRoutingKey = errors.New("unknown routing key")

// Publisher публикует уведомления в обменник notifications. Канал AMQP не
// допускает параллельной публикации, поэтому вызовы сериализуются.
type Publisher struct {
	mu    sync.Mutex
	ch    *amqp.Channel
	clock clock.Clock
	keys  map[string]struct{}
}

// NewPublisher создает издателя поверх канала, подготовленного SetupChannel.
func NewPublisher(ch *amqp.Channel, clk clock.Clock) *Publisher {
	keys := make(map[string]struct{})
	for _, q := range NotificationQueues() {
		keys[q.RoutingKey] = struct{}{}
	}
	return &Publisher{ch: ch, clock: clk, keys: keys}
}

// Publish отправляет сообщение в JSON с сохранением на диске. Каждое
// сообщение получает собственный MessageId и время публикации.
func (p *Publisher) Publish(routingKey string, message any) error {
	const op = "rabbitmq.Publisher.Publish"
	if _, ok := p.keys[routingKey]; !ok {
		return fmt.Errorf("%s: %w: %q", op, ErrUnknownRoutingKey, routingKey)
	}
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.ch.Publish(ExchangeName, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    p.clock.Now(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
