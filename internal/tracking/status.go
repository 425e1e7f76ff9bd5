package tracking

import (
	"github.com/tournevent/labeler/internal/store"
	"github.com/tournevent/labeler/pkg/carrier"
)

// DeriveStatus returns the status implied by a tracking result.
// Zero events keep the current status.
func DeriveStatus(current store.Status, res *carrier.TrackingResult) store.Status {
	switch {
	case res == nil:
		return current
	case res.Delivered:
		return store.StatusDelivered
	case len(res.Events) > 0:
		return store.StatusInTransit
	default:
		return current
	}
}
