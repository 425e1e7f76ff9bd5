package tracking

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Shopify/sarama"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v2/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// Queue topics.
const (
	TopicTracking = "tracking"
	TopicDead     = "tracking_dead"
)

// Queue backends.
const (
	BackendMemory = "memory"
	BackendKafka  = "kafka"
)

// QueueConfig selects and configures the queue backend.
type QueueConfig struct {
	Backend       string
	Brokers       []string
	ConsumerGroup string
	ClientID      string
}

// Queue carries tracking jobs between the scheduler and the workers.
type Queue struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	shared     bool
	logger     *otelzap.Logger
}

// NewQueue connects the configured backend.
func NewQueue(cfg QueueConfig, logger *otelzap.Logger) (*Queue, error) {
	wmLogger := NewWatermillLogger(logger)

	switch cfg.Backend {
	case "", BackendMemory:
		// Not persistent: jobs published before a subscriber exists are dropped.
		ch := gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: 100,
		}, wmLogger)
		return &Queue{publisher: ch, subscriber: ch, shared: true, logger: logger}, nil

	case BackendKafka:
		if len(cfg.Brokers) == 0 {
			return nil, errors.New("kafka queue requires at least one broker")
		}

		publisher, err := kafka.NewPublisher(kafka.PublisherConfig{
			Brokers:               cfg.Brokers,
			Marshaler:             kafka.DefaultMarshaler{},
			OverwriteSaramaConfig: saramaPublisherConfig(cfg),
		}, wmLogger)
		if err != nil {
			return nil, errors.Wrap(err, "creating kafka publisher")
		}

		subscriber, err := kafka.NewSubscriber(kafka.SubscriberConfig{
			Brokers:               cfg.Brokers,
			ConsumerGroup:         cfg.ConsumerGroup,
			Unmarshaler:           kafka.DefaultMarshaler{},
			OverwriteSaramaConfig: saramaSubscriberConfig(cfg),
		}, wmLogger)
		if err != nil {
			publisher.Close()
			return nil, errors.Wrap(err, "creating kafka subscriber")
		}
		return &Queue{publisher: publisher, subscriber: subscriber, logger: logger}, nil

	default:
		return nil, errors.Newf("unknown queue backend %q", cfg.Backend)
	}
}

func saramaPublisherConfig(cfg QueueConfig) *sarama.Config {
	sc := kafka.DefaultSaramaSyncPublisherConfig()
	sc.Version = sarama.V2_1_0_0
	if cfg.ClientID != "" {
		sc.ClientID = cfg.ClientID
	}
	return sc
}

func saramaSubscriberConfig(cfg QueueConfig) *sarama.Config {
	sc := kafka.DefaultSaramaSubscriberConfig()
	sc.Version = sarama.V2_1_0_0
	if cfg.ClientID != "" {
		sc.ClientID = cfg.ClientID
	}
	sc.Consumer.Offsets.Initial = sarama.OffsetOldest
	sc.Consumer.Offsets.AutoCommit.Enable = true
	sc.Consumer.Offsets.AutoCommit.Interval = 5 * time.Second
	sc.Consumer.Offsets.Retry.Max = 3
	return sc
}

// Enqueue publishes a tracking job for the shipment.
func (q *Queue) Enqueue(ctx context.Context, shipmentID string) error {
	payload, err := json.Marshal(Job{ShipmentID: shipmentID})
	if err != nil {
		return errors.Wrap(err, "encoding tracking job")
	}

	msg := message.NewMessage(uuid.NewString(), payload)
	msg.SetContext(ctx)
	middleware.SetCorrelationID(watermill.NewUUID(), msg)

	if err := q.publisher.Publish(TopicTracking, msg); err != nil {
		return errors.Wrapf(err, "enqueueing tracking job for %s", shipmentID)
	}
	q.logger.Ctx(ctx).Debug("Enqueued tracking job",
		zap.String("shipment_id", shipmentID),
		zap.String("message_id", msg.UUID),
	)
	return nil
}

// Subscribe returns the messages of a topic.
func (q *Queue) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return q.subscriber.Subscribe(ctx, topic)
}

// Close closes the publisher and subscriber.
func (q *Queue) Close() error {
	err := q.publisher.Close()
	if !q.shared {
		err = errors.CombineErrors(err, q.subscriber.Close())
	}
	return err
}
