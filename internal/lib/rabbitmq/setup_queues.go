package rabbitmq

// QueueConfig описывает очередь и её ключ маршрутизации.
type QueueConfig struct {
	QueueName  string
	RoutingKey string
}

// Очереди движка исполнения подписок.
const (
	// RemovalRetryQueue — задания на повторное удаление участника из канала
	// после неудачного вызова Bot API в свипе.
	RemovalRetryQueue = "membership.removal.retry"
	// RemovalRetryKey — ключ маршрутизации заданий на повтор.
	RemovalRetryKey = "removal.retry"
)

// GetFulfillmentQueues возвращает очереди, которые должны существовать
// до старта свипера и консьюмера повторов.
func GetFulfillmentQueues() []QueueConfig {
	return []QueueConfig{
		{QueueName: RemovalRetryQueue, RoutingKey: RemovalRetryKey},
	}
}
