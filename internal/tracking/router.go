package tracking

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/cockroachdb/errors"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// RetryConfig bounds redelivery of a failing job before it goes to TopicDead.
type RetryConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
}

// DefaultRetryConfig makes three attempts, 5s then 10s apart.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      2,
		InitialInterval: 5 * time.Second,
		MaxInterval:     time.Minute,
		Multiplier:      2,
	}
}

// Router consumes tracking jobs and hands them to the worker.
type Router struct {
	router *message.Router
	logger *otelzap.Logger
}

// NewRouter wires the worker to the queue's tracking topic.
func NewRouter(q *Queue, worker *Worker, retry RetryConfig, logger *otelzap.Logger) (*Router, error) {
	wmLogger := NewWatermillLogger(logger)

	router, err := message.NewRouter(message.RouterConfig{}, wmLogger)
	if err != nil {
		return nil, errors.Wrap(err, "creating router")
	}

	poisonQueue, err := middleware.PoisonQueue(q.publisher, TopicDead)
	if err != nil {
		return nil, errors.Wrap(err, "creating poison queue")
	}

	router.AddMiddleware(
		poisonQueue,
		middleware.Recoverer,
		middleware.CorrelationID,
		middleware.Retry{
			MaxRetries:      retry.MaxRetries,
			InitialInterval: retry.InitialInterval,
			MaxInterval:     retry.MaxInterval,
			Multiplier:      retry.Multiplier,
			Logger:          wmLogger,
			OnRetryHook: func(retryNum int, delay time.Duration) {
				logger.Info("Retrying tracking job",
					zap.Int("retry_number", retryNum),
					zap.Int("max_retries", retry.MaxRetries),
					zap.Duration("delay", delay),
				)
			},
		}.Middleware,
	)

	r := &Router{router: router, logger: logger}
	router.AddNoPublisherHandler("tracking_worker", TopicTracking, q.subscriber, r.handler(worker))
	return r, nil
}

func (r *Router) handler(worker *Worker) message.NoPublishHandlerFunc {
	return func(msg *message.Message) error {
		var job Job
		if err := json.Unmarshal(msg.Payload, &job); err != nil || job.ShipmentID == "" {
			r.logger.Error("Dropping malformed tracking job",
				zap.String("message_uuid", msg.UUID),
				zap.ByteString("payload", msg.Payload),
				zap.Error(err),
			)
			return nil
		}

		err := worker.Handle(msg.Context(), job)
		if err != nil {
			r.logger.Ctx(msg.Context()).Error("Tracking job failed",
				zap.String("shipment_id", job.ShipmentID),
				zap.String("correlation_id", middleware.MessageCorrelationID(msg)),
				zap.String("message_uuid", msg.UUID),
				zap.Error(err),
			)
		}
		return err
	}
}

// Run blocks until ctx is done or the router is closed.
func (r *Router) Run(ctx context.Context) error {
	r.logger.Info("Starting tracking router")
	return r.router.Run(ctx)
}

// Running is closed once the router's handlers are subscribed.
func (r *Router) Running() chan struct{} {
	return r.router.Running()
}

// Close stops the router.
func (r *Router) Close() error {
	r.logger.Info("Closing tracking router")
	return r.router.Close()
}
