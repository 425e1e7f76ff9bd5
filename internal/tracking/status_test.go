package tracking_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/tournevent/labeler/internal/store"
	"github.com/tournevent/labeler/internal/tracking"
	"github.com/tournevent/labeler/pkg/carrier"
)

func TestDeriveStatus(t *testing.T) {
	event := carrier.TrackingEvent{Timestamp: time.Now(), Status: "INTRANSIT", Description: "In transit"}

	tests := []struct {
		name    string
		current store.Status
		res     *carrier.TrackingResult
		want    store.Status
	}{
		{"no events keeps status", store.StatusLabelCreated, &carrier.TrackingResult{}, store.StatusLabelCreated},
		{"nil result keeps status", store.StatusInTransit, nil, store.StatusInTransit},
		{"events mean in transit", store.StatusLabelCreated, &carrier.TrackingResult{Events: []carrier.TrackingEvent{event}}, store.StatusInTransit},
		{"already in transit", store.StatusInTransit, &carrier.TrackingResult{Events: []carrier.TrackingEvent{event, event}}, store.StatusInTransit},
		{"delivered", store.StatusInTransit, &carrier.TrackingResult{Delivered: true, Events: []carrier.TrackingEvent{event}}, store.StatusDelivered},
		{"delivered flag wins without events", store.StatusLabelCreated, &carrier.TrackingResult{Delivered: true}, store.StatusDelivered},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tracking.DeriveStatus(tt.current, tt.res))
		})
	}
}
