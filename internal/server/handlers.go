package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/samber/lo"
	"github.com/tournevent/labeler/internal/shipment"
	"github.com/tournevent/labeler/internal/store"
	"github.com/tournevent/labeler/pkg/carrier"
)

// maxBodyBytes limits create request bodies.
const maxBodyBytes = 1 << 20

type carrierInfo struct {
	Code        carrier.Code `json:"code"`
	Implemented bool         `json:"implemented"`
}

type billingOverview struct {
	FreeLabelsUsed  int                    `json:"freeLabelsUsed"`
	FreeLabelsLimit int                    `json:"freeLabelsLimit"`
	BillingActive   bool                   `json:"billingActive"`
	Records         []*store.BillingRecord `json:"records"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleCarriers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, lo.Map(s.carriers.Codes(), func(code carrier.Code, _ int) carrierInfo {
		return carrierInfo{Code: code, Implemented: s.carriers.Implemented(code)}
	}))
}

func (s *Server) handleProducts(w http.ResponseWriter, r *http.Request, tenantID string) {
	code, ok := parseCarrier(w, r)
	if !ok {
		return
	}
	products, err := s.shipments.Products(r.Context(), tenantID, code)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

func (s *Server) handlePickupPoints(w http.ResponseWriter, r *http.Request, tenantID string) {
	code, ok := parseCarrier(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	points, err := s.shipments.PickupPoints(r.Context(), tenantID, code, q.Get("zip"), q.Get("country"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, points)
}

func (s *Server) handleCreateShipment(w http.ResponseWriter, r *http.Request, tenantID string) {
	var in shipment.CreateInput
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON: " + err.Error()})
		return
	}

	sh, err := s.shipments.Create(r.Context(), tenantID, in)
	if err != nil {
		s.writeErrorWithShipment(w, r, err, sh)
		return
	}
	writeJSON(w, http.StatusCreated, sh)
}

func (s *Server) handleListShipments(w http.ResponseWriter, r *http.Request, tenantID string) {
	q := r.URL.Query()

	f := store.ListFilter{Status: store.Status(q.Get("status"))}
	if f.Status != "" && !lo.Contains(statuses, f.Status) {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "unknown status " + string(f.Status)})
		return
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 || limit > 500 {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "limit must be between 1 and 500"})
			return
		}
		f.Limit = limit
	}

	list, err := s.shipments.List(r.Context(), tenantID, f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if list == nil {
		list = []*store.Shipment{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetShipment(w http.ResponseWriter, r *http.Request, tenantID string) {
	sh, err := s.shipments.Get(r.Context(), tenantID, r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sh)
}

func (s *Server) handleCancelShipment(w http.ResponseWriter, r *http.Request, tenantID string) {
	sh, err := s.shipments.Cancel(r.Context(), tenantID, r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sh)
}

func (s *Server) handleLabel(w http.ResponseWriter, r *http.Request, tenantID string) {
	format, ok := carrier.ParseLabelFormat(r.URL.Query().Get("format"))
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "unknown label format"})
		return
	}

	label, err := s.shipments.Label(r.Context(), tenantID, r.PathValue("id"), format)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	contentType := "application/pdf"
	if format == carrier.LabelZPL {
		contentType = "text/plain; charset=utf-8"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `inline; filename="`+r.PathValue("id")+`.`+labelExtension(format)+`"`)
	w.WriteHeader(http.StatusOK)
	w.Write(label)
}

func (s *Server) handleBilling(w http.ResponseWriter, r *http.Request, tenantID string) {
	ctx := r.Context()

	tenant, err := s.accounts.GetTenant(ctx, tenantID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	records, err := s.accounts.ListBillingRecords(ctx, tenantID, store.DefaultListLimit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if records == nil {
		records = []*store.BillingRecord{}
	}

	writeJSON(w, http.StatusOK, billingOverview{
		FreeLabelsUsed:  tenant.FreeLabelsUsed,
		FreeLabelsLimit: tenant.FreeLabelsLimit,
		BillingActive:   tenant.BillingActive,
		Records:         records,
	})
}

var statuses = []store.Status{
	store.StatusPending,
	store.StatusLabelCreated,
	store.StatusInTransit,
	store.StatusDelivered,
	store.StatusCancelled,
	store.StatusFailed,
}

func parseCarrier(w http.ResponseWriter, r *http.Request) (carrier.Code, bool) {
	code, ok := carrier.ParseCode(r.PathValue("code"))
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "unknown carrier " + r.PathValue("code")})
	}
	return code, ok
}

func labelExtension(format carrier.LabelFormat) string {
	if format == carrier.LabelZPL {
		return "zpl"
	}
	return "pdf"
}
