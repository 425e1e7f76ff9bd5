package shipmondo

import (
	"encoding/base64"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/samber/lo"
	"github.com/tournevent/labeler/pkg/carrier"
)

// terminalStatuses are the broker status codes that mean the parcel reached the recipient.
var terminalStatuses = []string{"delivered", "delivered_pickup"}

// Grams converts kilograms to whole grams.
func Grams(kg float64) int {
	return int(math.Round(kg * 1000))
}

// ToParty maps a canonical address to a Shipmondo party.
func ToParty(partyType string, a carrier.Address) Party {
	return Party{
		Type:        partyType,
		Name:        a.Name,
		Address1:    a.Street,
		PostalCode:  a.Zip,
		City:        a.City,
		CountryCode: a.Country,
		Email:       a.Email,
		Phone:       a.Phone,
	}
}

// ToCreateShipmentRequest builds the broker booking request.
func ToCreateShipmentRequest(req *carrier.ShipmentRequest) *CreateShipmentRequest {
	out := &CreateShipmentRequest{
		ProductCode: req.Product,
		Parties: []Party{
			ToParty(PartySender, req.Sender),
			ToParty(PartyReceiver, req.Recipient),
		},
		Parcels: lo.Map(req.Parcels, func(p carrier.Parcel, _ int) Parcel {
			return Parcel{
				Weight:            Grams(p.Weight),
				Length:            p.Length,
				Width:             p.Width,
				Height:            p.Height,
				InternalReference: p.Reference,
			}
		}),
		Reference: req.Reference,
	}
	if req.PickupPointID != "" {
		out.ServicePoint = &ServicePoint{ID: req.PickupPointID}
	}
	return out
}

// FromShipment extracts the booking result.
// The tracking number is the first parcel's package number, falling back to the first tracking code.
func FromShipment(s *Shipment) (*carrier.ShipmentResult, error) {
	var label []byte
	if s.LabelBase64 != "" {
		decoded, err := base64.StdEncoding.DecodeString(s.LabelBase64)
		if err != nil {
			return nil, carrier.NewError(carrier.Shipmondo, carrier.KindUnexpectedResponse, "label is not valid base64").WithCause(err)
		}
		label = decoded
	}

	trackingNumber := ""
	if len(s.Parcels) > 0 && s.Parcels[0].PkgNo != "" {
		trackingNumber = s.Parcels[0].PkgNo
	} else if len(s.TrackingCodes) > 0 {
		trackingNumber = s.TrackingCodes[0]
	}

	trackingURL, _ := lo.First(s.TrackingLinks)

	return &carrier.ShipmentResult{
		CarrierRef:     strconv.FormatInt(s.ID, 10),
		TrackingNumber: trackingNumber,
		TrackingURL:    trackingURL,
		Label:          label,
	}, nil
}

// DecodeLabel decodes a downloaded label.
func DecodeLabel(resp *LabelsResponse) ([]byte, error) {
	label, err := base64.StdEncoding.DecodeString(resp.Base64)
	if err != nil {
		return nil, carrier.NewError(carrier.Shipmondo, carrier.KindUnexpectedResponse, "label is not valid base64").WithCause(err)
	}
	if len(label) == 0 {
		return nil, carrier.NewError(carrier.Shipmondo, carrier.KindUnexpectedResponse, "label response is empty")
	}
	return label, nil
}

// IsTerminal reports whether a broker status means delivered.
func IsTerminal(status string) bool {
	return lo.Contains(terminalStatuses, status)
}

// FromTrackingResponse converts broker events into an ordered tracking result.
func FromTrackingResponse(trackingNumber string, resp *TrackingResponse) *carrier.TrackingResult {
	events := lo.Map(resp.Events, func(e Event, _ int) carrier.TrackingEvent {
		ts, _ := time.Parse(time.RFC3339, e.Timestamp)
		return carrier.TrackingEvent{
			Timestamp:   ts,
			Status:      e.Status,
			Description: e.Description,
			Location:    e.Location,
		}
	})
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})

	return &carrier.TrackingResult{
		TrackingNumber: trackingNumber,
		Delivered: lo.SomeBy(events, func(e carrier.TrackingEvent) bool {
			return IsTerminal(e.Status)
		}),
		Events: events,
	}
}

// FromPickupPoints converts broker service points.
func FromPickupPoints(points []PickupPoint) []carrier.PickupPoint {
	return lo.Map(points, func(p PickupPoint, _ int) carrier.PickupPoint {
		name := p.CompanyName
		if name == "" {
			name = p.Name
		}
		id := p.ID
		if id == "" {
			id = p.Number
		}
		return carrier.PickupPoint{
			ID:       id,
			Name:     name,
			Street:   p.Address,
			Zip:      p.Zipcode,
			City:     p.City,
			Country:  p.Country,
			Distance: int(math.Round(p.Distance)),
		}
	})
}
