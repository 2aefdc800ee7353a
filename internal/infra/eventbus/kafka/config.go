// Package kafka publishes domain events to a Kafka topic.
package kafka

import (
	"errors"

	"github.com/IBM/sarama"
)

// Config contains settings for connecting to Kafka and routing events.
type Config struct {
	// Brokers is a list of Kafka broker addresses to connect to.
	Brokers []string
	// Topic receives every scan and quarantine event.
	Topic string
	// ClientID uniquely identifies this client to the Kafka cluster.
	ClientID string
}

// Validate reports missing required settings.
func (c *Config) Validate() error {
	switch {
	case len(c.Brokers) == 0:
		return errors.New("kafka: at least one broker is required")
	case c.Topic == "":
		return errors.New("kafka: topic is required")
	}
	return nil
}

// producerConfig returns the sarama settings for a durable, ordered producer.
func producerConfig(clientID string) *sarama.Config {
	config := sarama.NewConfig()
	config.ClientID = clientID
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Return.Successes = true
	config.Producer.Partitioner = sarama.NewHashPartitioner
	config.Producer.Idempotent = true
	config.Net.MaxOpenRequests = 1
	config.Version = sarama.V3_6_0_0
	return config
}
