package models

const (
	// DefaultMaxRetries количество попыток до перевода в permanently_failed
	DefaultMaxRetries = 5

	// DefaultBaseDelaySeconds базовая задержка перед повтором
	DefaultBaseDelaySeconds = 2

	// DefaultMaxDelaySeconds потолок задержки повтора
	DefaultMaxDelaySeconds = 60

	// DefaultBackoffFactor множитель экспоненциального отката
	DefaultBackoffFactor = 2

	// DefaultTickSeconds период фонового прохода по очереди в онлайне
	DefaultTickSeconds = 30

	// DefaultSuccessWindowSeconds сколько завершённый элемент остаётся в очереди
	DefaultSuccessWindowSeconds = 30

	// DefaultProbeSeconds период проверки доступности апстрима
	DefaultProbeSeconds = 15

	// DefaultUpstreamTimeoutSeconds таймаут HTTP-запроса к апстриму
	DefaultUpstreamTimeoutSeconds = 10

	// DefaultQueueKey ключ очереди в KV-хранилище
	DefaultQueueKey = "bookrelay:queue"
)
