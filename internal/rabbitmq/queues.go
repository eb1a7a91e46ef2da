package rabbitmq

// Ключи маршрутизации уведомлений.
const (
	RoutingKeyExpiry  = "expiry"
	RoutingKeyExpired = "expired"
)

// QueueConfig очередь и ключ, по которому она привязана к обменнику.
type QueueConfig struct {
	QueueName  string
	RoutingKey string
}

// NotificationQueues очереди, которые читает notification-sender.
func NotificationQueues() []QueueConfig {
	return []QueueConfig{
		{QueueName: "notifications.expiry", RoutingKey: RoutingKeyExpiry},
		{QueueName: "notifications.expired", RoutingKey: RoutingKeyExpired},
	}
}
