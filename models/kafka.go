package models

// Record is a transport-neutral message. Kafka fetches and dead-letter
// entries both use it.
type Record struct {
	Key   []byte
	Value []byte
	Topic string
}

type ConsumerConfig struct {
	Brokers        []string
	Name           string
	Topic          string
	RecordsPerPoll int
}

type ProducerConfig struct {
	Brokers       []string
	EnvelopeTopic string
	ParsedTopic   string
}
