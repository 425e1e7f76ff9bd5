package gls

import (
	"encoding/base64"
	"math"
	"sort"
	"time"

	"github.com/samber/lo"
	"github.com/tournevent/labeler/pkg/carrier"
)

const (
	productShopDelivery = "SHOP_DELIVERY"
	serviceShopDelivery = "ShopDeliveryService"
	eventTimeLayout     = "2006-01-02T15:04:05"
)

// terminalCodes are the status codes that mean the parcel reached the recipient.
var terminalCodes = []string{"DELIVERED", "FINAL_DELIVERY"}

// ============================================================================
// Canonical models -> GLS wire models
// ============================================================================

// Grams converts kilograms to whole grams.
func Grams(kg float64) int {
	return int(math.Round(kg * 1000))
}

// ShipmentDate formats a date the way GLS expects it (YYYYMMDD).
func ShipmentDate(t time.Time) string {
	return t.Format("20060102")
}

// ToAddress maps a canonical address to a GLS address block.
func ToAddress(a carrier.Address) Address {
	return Address{
		Name1:        a.Name,
		Street1:      a.Street,
		ZipCode:      a.Zip,
		City:         a.City,
		CountryCode:  a.Country,
		ContactPhone: a.Phone,
		ContactEmail: a.Email,
	}
}

// ToParcel maps a canonical parcel, attaching the shop delivery service when needed.
func ToParcel(p carrier.Parcel, product, parcelShopID string) Parcel {
	parcel := Parcel{
		Weight:    Grams(p.Weight),
		Reference: p.Reference,
	}
	if product == productShopDelivery && parcelShopID != "" {
		parcel.Services = []Service{{ServiceName: serviceShopDelivery, ParcelShopID: parcelShopID}}
	}
	return parcel
}

// ToShipmentRequest builds the GLS create request for a booking made on date.
func ToShipmentRequest(customerID string, req *carrier.ShipmentRequest, date time.Time) *ShipmentRequest {
	return &ShipmentRequest{
		Customerid:   customerID,
		Shipmentdate: ShipmentDate(date),
		Reference:    req.Reference,
		Addresses: Addresses{
			Delivery: ToAddress(req.Recipient),
		},
		Parcels: lo.Map(req.Parcels, func(p carrier.Parcel, _ int) Parcel {
			return ToParcel(p, req.Product, req.PickupPointID)
		}),
	}
}

// ============================================================================
// GLS wire models -> canonical models
// ============================================================================

// FromShipmentResponse extracts the booking result. The tracking number is the first parcel's number.
func FromShipmentResponse(resp *ShipmentResponse) (*carrier.ShipmentResult, error) {
	if len(resp.Parcels) == 0 {
		return nil, carrier.NewError(carrier.GLS, carrier.KindUnexpectedResponse, "shipment response contains no parcels")
	}

	label, err := base64.StdEncoding.DecodeString(resp.PdfData)
	if err != nil {
		return nil, carrier.NewError(carrier.GLS, carrier.KindUnexpectedResponse, "label is not valid base64").WithCause(err)
	}
	if len(label) == 0 {
		return nil, carrier.NewError(carrier.GLS, carrier.KindUnexpectedResponse, "shipment response contains no label")
	}

	first := resp.Parcels[0]
	return &carrier.ShipmentResult{
		CarrierRef:     resp.ConsignmentID,
		TrackingNumber: first.ParcelNumber,
		TrackingURL:    first.TrackURL,
		Label:          label,
	}, nil
}

// ParseEventTime combines the GLS date and time fields. Unparseable values yield the zero time.
func ParseEventTime(date, clock string) time.Time {
	if clock == "" {
		clock = "00:00:00"
	}
	t, err := time.Parse(eventTimeLayout, date+"T"+clock)
	if err != nil {
		return time.Time{}
	}
	return t
}

// IsTerminal reports whether a GLS status code means delivered.
func IsTerminal(code string) bool {
	return lo.Contains(terminalCodes, code)
}

// FromTrackingResponse converts GLS events into an ordered tracking result.
func FromTrackingResponse(trackingNumber string, resp *TrackingResponse) *carrier.TrackingResult {
	events := lo.Map(resp.Events, func(e Event, _ int) carrier.TrackingEvent {
		return carrier.TrackingEvent{
			Timestamp:   ParseEventTime(e.EventDate, e.EventTime),
			Status:      e.StatusCode,
			Description: e.EventDescription,
			Location:    e.EventLocation,
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

// FromParcelShopResponse converts GLS parcel shops into pickup points.
func FromParcelShopResponse(resp *ParcelShopResponse) []carrier.PickupPoint {
	return lo.Map(resp.ParcelShops, func(ps ParcelShop, _ int) carrier.PickupPoint {
		return carrier.PickupPoint{
			ID:       ps.ParcelShopID,
			Name:     ps.CompanyName,
			Street:   ps.Streetname,
			Zip:      ps.ZipCode,
			City:     ps.CityName,
			Country:  ps.CountryCode,
			Distance: ps.DistanceMeters,
		}
	})
}
