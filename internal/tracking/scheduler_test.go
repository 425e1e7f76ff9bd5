package tracking_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tournevent/labeler/internal/store"
	"github.com/tournevent/labeler/internal/tracking"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

type recordingQueue struct {
	ids []string
}

func (q *recordingQueue) Enqueue(_ context.Context, id string) error {
	q.ids = append(q.ids, id)
	return nil
}

func TestScheduler_RunOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	created := f.shipment(t, "TN800")
	inTransit := f.shipment(t, "TN801")
	require.NoError(t, f.store.Store.UpdateStatus(ctx, inTransit.ID, []store.Status{store.StatusLabelCreated}, store.StatusInTransit))
	delivered := f.shipment(t, "TN802")
	require.NoError(t, f.store.Store.UpdateStatus(ctx, delivered.ID, []store.Status{store.StatusLabelCreated}, store.StatusDelivered))
	f.shipment(t, "")

	q := &recordingQueue{}
	n, err := tracking.NewScheduler(f.store, q, 0, otelzap.New(zap.NewNop())).RunOnce(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, n)
	assert.ElementsMatch(t, []string{created.ID, inTransit.ID}, q.ids)
}
