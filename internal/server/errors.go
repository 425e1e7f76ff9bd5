package server

import (
	"encoding/json"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/tournevent/labeler/internal/shipment"
	"github.com/tournevent/labeler/internal/store"
	"github.com/tournevent/labeler/pkg/carrier"
	"go.uber.org/zap"
)

type errorBody struct {
	Error    string          `json:"error"`
	Shipment *store.Shipment `json:"shipment,omitempty"`
}

// statusFor maps an error to its HTTP status and the message shown to the caller.
// Carrier and internal failures get a generic message.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, shipment.ErrValidation), errors.Is(err, shipment.ErrConfiguration):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, shipment.ErrShipmentNotFound):
		return http.StatusNotFound, "shipment not found"
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "tenant not found"
	case errors.Is(err, shipment.ErrLabelNotAvailable):
		return http.StatusNotFound, shipment.ErrLabelNotAvailable.Error()
	case errors.Is(err, shipment.ErrInvalidState), errors.Is(err, store.ErrStaleTransition):
		return http.StatusConflict, errors.UnwrapAll(err).Error()
	case errors.Is(err, carrier.ErrUnknownCarrier):
		return http.StatusBadRequest, "unknown carrier"
	case errors.Is(err, carrier.ErrNotImplemented):
		return http.StatusNotImplemented, "carrier not implemented"
	case errors.Is(err, shipment.ErrLabelFailed):
		return http.StatusBadGateway, shipment.ErrLabelFailed.Error()
	}

	var carrierErr *carrier.Error
	if errors.As(err, &carrierErr) {
		return http.StatusBadGateway, "carrier request failed"
	}
	return http.StatusInternalServerError, "internal error"
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	s.writeErrorWithShipment(w, r, err, nil)
}

func (s *Server) writeErrorWithShipment(w http.ResponseWriter, r *http.Request, err error, sh *store.Shipment) {
	status, msg := statusFor(err)

	log := s.logger.Ctx(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error("Request failed", zap.String("path", r.URL.Path), zap.Int("status", status), zap.Error(err))
	} else {
		log.Info("Request rejected", zap.String("path", r.URL.Path), zap.Int("status", status), zap.Error(err))
	}

	writeJSON(w, status, errorBody{Error: msg, Shipment: sh})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
