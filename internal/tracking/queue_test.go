package tracking_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tournevent/labeler/internal/store"
	"github.com/tournevent/labeler/internal/tracking"
	"github.com/tournevent/labeler/pkg/carrier"
	"github.com/tournevent/labeler/pkg/carrier/mock"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

var fastRetry = tracking.RetryConfig{
	MaxRetries:      1,
	InitialInterval: time.Millisecond,
	MaxInterval:     5 * time.Millisecond,
	Multiplier:      2,
}

func startRouter(t *testing.T, f *fixture) *tracking.Queue {
	t.Helper()
	logger := otelzap.New(zap.NewNop())

	q, err := tracking.NewQueue(tracking.QueueConfig{Backend: tracking.BackendMemory}, logger)
	require.NoError(t, err)

	router, err := tracking.NewRouter(q, f.worker, fastRetry, logger)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = router.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		q.Close()
	})

	select {
	case <-router.Running():
	case <-time.After(5 * time.Second):
		t.Fatal("router did not start")
	}
	return q
}

func TestQueue_DeliversJobs(t *testing.T) {
	f := newFixture(t)
	sh := f.shipment(t, "TN600")
	q := startRouter(t, f)

	require.NoError(t, q.Enqueue(context.Background(), sh.ID))

	require.Eventually(t, func() bool {
		return f.status(t, sh.ID) == store.StatusInTransit
	}, 5*time.Second, 10*time.Millisecond)
}

func TestQueue_FailingJobGoesToDeadTopic(t *testing.T) {
	f := newFixture(t)
	sh := f.shipment(t, "TN700")
	f.gls.OnGetTracking = func(context.Context, string) (*carrier.TrackingResult, error) {
		return nil, carrier.NewError(carrier.GLS, carrier.KindRemoteUnavailable, "down")
	}
	q := startRouter(t, f)

	dead, err := q.Subscribe(context.Background(), tracking.TopicDead)
	require.NoError(t, err)

	require.NoError(t, q.Enqueue(context.Background(), sh.ID))

	select {
	case msg := <-dead:
		msg.Ack()
		var job tracking.Job
		require.NoError(t, json.Unmarshal(msg.Payload, &job))
		assert.Equal(t, sh.ID, job.ShipmentID)
	case <-time.After(5 * time.Second):
		t.Fatal("job did not reach the dead topic")
	}

	assert.Equal(t, 2, f.gls.Calls(mock.OpTracking))
	assert.Equal(t, store.StatusLabelCreated, f.status(t, sh.ID))
}

func TestQueue_MemoryDeliversToSubscriber(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q, err := tracking.NewQueue(tracking.QueueConfig{Backend: tracking.BackendMemory}, otelzap.New(zap.NewNop()))
	require.NoError(t, err)
	defer q.Close()

	jobs, err := q.Subscribe(ctx, tracking.TopicTracking)
	require.NoError(t, err)

	ids := []string{"shp_1", "shp_2", "shp_3"}
	for _, id := range ids {
		require.NoError(t, q.Enqueue(ctx, id))
	}

	var got []string
	for range ids {
		select {
		case msg := <-jobs:
			var job tracking.Job
			require.NoError(t, json.Unmarshal(msg.Payload, &job))
			got = append(got, job.ShipmentID)
			msg.Ack()
		case <-time.After(5 * time.Second):
			t.Fatal("job was not delivered")
		}
	}
	assert.Equal(t, ids, got)
}

func TestNewQueue_Errors(t *testing.T) {
	logger := otelzap.New(zap.NewNop())

	_, err := tracking.NewQueue(tracking.QueueConfig{Backend: "redis"}, logger)
	assert.ErrorContains(t, err, "unknown queue backend")

	_, err = tracking.NewQueue(tracking.QueueConfig{Backend: tracking.BackendKafka}, logger)
	assert.ErrorContains(t, err, "at least one broker")
}
