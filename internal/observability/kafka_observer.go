// Package observability adapts rate limiter outcomes onto external
// telemetry systems, starting with a Kafka publisher for async
// consumption by dashboards and billing pipelines.
package observability

import (
	"encoding/json"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/samir-patel/ratequota/internal/ratelimit"
)

// outcomeEvent is the JSON wire shape published for each Outcome.
type outcomeEvent struct {
	Status      string  `json:"status"`
	ResourceKey string  `json:"resource_key"`
	LimitType   string  `json:"limit_type"`
	N           float64 `json:"n"`
	WaitMs      int64   `json:"wait_ms"`
	Load        float64 `json:"load"`
	Backend     string  `json:"backend"`
	Error       string  `json:"error,omitempty"`
}

// KafkaOutcomeObserver publishes every rate limiter Outcome to a
// Kafka topic as it's produced, so outcomes can be consumed downstream
// for billing and abuse dashboards without coupling the coordinator's
// hot path to those consumers.
//
// A publish failure is logged and swallowed: losing a telemetry event
// must never affect an admit/reject decision that already happened.
type KafkaOutcomeObserver struct {
	producer sarama.SyncProducer
	topic    string
}

// NewKafkaOutcomeObserver dials the given brokers and returns an
// Observer that publishes to topic. The returned producer requires
// acks from all in-sync replicas before SendMessage returns, trading
// publish latency for durability of the outcome stream.
func NewKafkaOutcomeObserver(brokers []string, topic string) (*KafkaOutcomeObserver, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 3

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, err
	}

	return &KafkaOutcomeObserver{producer: producer, topic: topic}, nil
}

// Observe implements ratelimit.Observer.
func (o *KafkaOutcomeObserver) Observe(outcome ratelimit.Outcome) {
	evt := outcomeEvent{
		Status:      string(outcome.Status),
		ResourceKey: outcome.ResourceKey,
		LimitType:   string(outcome.LimitType),
		N:           outcome.N,
		WaitMs:      outcome.Wait.Milliseconds(),
		Load:        outcome.Load,
		Backend:     outcome.Backend,
	}
	if outcome.Err != nil {
		evt.Error = outcome.Err.Error()
	}

	payload, err := json.Marshal(evt)
	if err != nil {
		log.Error().Err(err).Str("component", "kafka_outcome_observer").Msg("failed to marshal outcome event")
		return
	}

	msg := &sarama.ProducerMessage{
		Topic:     o.topic,
		Key:       sarama.StringEncoder(outcome.ResourceKey),
		Value:     sarama.ByteEncoder(payload),
		Timestamp: time.Now(),
		Headers: []sarama.RecordHeader{
			{Key: []byte("message-id"), Value: []byte(uuid.New().String())},
		},
	}

	if _, _, err := o.producer.SendMessage(msg); err != nil {
		log.Warn().Err(err).Str("component", "kafka_outcome_observer").Str("topic", o.topic).Msg("failed to publish rate limiter outcome")
	}
}

// Close releases the underlying producer connection.
func (o *KafkaOutcomeObserver) Close() error {
	return o.producer.Close()
}
