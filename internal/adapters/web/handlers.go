package web

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"stockroom/internal/app"
	"stockroom/internal/units"
)

// Handler holds the ApplicationService and the route handlers.
type Handler struct {
	svc    app.ApplicationService
	logger *zap.Logger
}

// NewHandler creates and wires the chi router with all routes.
func NewHandler(svc app.ApplicationService, logger *zap.Logger, allowedOrigins string) http.Handler {
	h := &Handler{svc: svc, logger: logger}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logger(logger))
	r.Use(Recoverer(logger))
	r.Use(CORS(allowedOrigins))

	r.Get("/api/health", h.health)

	r.Route("/api/reservations", func(r chi.Router) {
		r.Post("/", h.reserve)
		r.Post("/bulk", h.bulkReserve)
		r.Post("/fulfill-bulk", h.fulfillBulk)
		r.Get("/", h.queryReservations)
		r.Get("/summary", h.summaryByWarehouse)
		r.Get("/{id}", h.getReservation)
		r.Post("/{id}/cancel", h.cancel)
		r.Post("/{id}/fulfill", h.fulfill)
	})

	r.Route("/api/records", func(r chi.Router) {
		r.Get("/", h.listRecords)
		r.Get("/{id}", h.getRecord)
		r.Get("/{id}/availability", h.getAvailability)
		r.Get("/{id}/can-reserve", h.canReserve)
		r.Post("/{id}/adjust", h.adjustStock)
	})

	r.Post("/api/stock/receive", h.receiveStock)

	r.Route("/api/skus/{sku}/rates", func(r chi.Router) {
		r.Put("/", h.setConversionRate)
		r.Get("/", h.getConversionRate)
	})

	return r
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

// idParam parses the {id} URL parameter; 0 and an error response mean the
// handler should return immediately.
func idParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, r, "id must be a positive integer", "VALIDATION_ERROR", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, r, "invalid JSON body: "+err.Error(), "VALIDATION_ERROR", http.StatusBadRequest)
		return false
	}
	return true
}

// ── Reservations ─────────────────────────────────────────────────────────────

func (h *Handler) reserve(w http.ResponseWriter, r *http.Request) {
	var req app.ReserveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	result, err := h.svc.Reserve(r.Context(), req)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(result)
}

func (h *Handler) bulkReserve(w http.ResponseWriter, r *http.Request) {
	var req app.BulkReserveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	result, err := h.svc.BulkReserve(r.Context(), req)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, result)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var req app.CancelRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.svc.Cancel(r.Context(), id, req); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, map[string]string{"status": "cancelled"})
}

func (h *Handler) fulfill(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var req app.FulfillRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.svc.Fulfill(r.Context(), id, req); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, map[string]string{"status": "fulfilled"})
}

func (h *Handler) fulfillBulk(w http.ResponseWriter, r *http.Request) {
	var req app.FulfillBulkRequest
	if !decodeBody(w, r, &req) {
		return
	}
	result, err := h.svc.FulfillBulk(r.Context(), req)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, result)
}

func (h *Handler) getReservation(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	result, err := h.svc.GetReservation(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, result)
}

func (h *Handler) queryReservations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := app.QueryReservationsRequest{
		WarehouseCode: q.Get("warehouse"),
		LocationCode:  q.Get("location"),
		SKU:           q.Get("sku"),
		Status:        q.Get("status"),
		RequestedBy:   q.Get("requested_by"),
		From:          q.Get("from"),
		To:            q.Get("to"),
	}
	if raw := q.Get("record_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, r, "record_id must be an integer", "VALIDATION_ERROR", http.StatusBadRequest)
			return
		}
		req.RecordID = id
	}

	result, err := h.svc.QueryReservations(r.Context(), req)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, result)
}

func (h *Handler) summaryByWarehouse(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.GetSummaryByWarehouse(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// ── Inventory ────────────────────────────────────────────────────────────────

func (h *Handler) getAvailability(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	result, err := h.svc.GetAvailability(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, result)
}

func (h *Handler) canReserve(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	base, err := strconv.ParseInt(r.URL.Query().Get("base"), 10, 64)
	if err != nil {
		writeError(w, r, "base query parameter must be an integer", "VALIDATION_ERROR", http.StatusBadRequest)
		return
	}
	result, err := h.svc.CanReserve(r.Context(), id, base)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, result)
}

func (h *Handler) receiveStock(w http.ResponseWriter, r *http.Request) {
	var req app.ReceiveStockRequest
	if !decodeBody(w, r, &req) {
		return
	}
	result, err := h.svc.ReceiveStock(r.Context(), req)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(result)
}

func (h *Handler) adjustStock(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var req app.AdjustStockRequest
	if !decodeBody(w, r, &req) {
		return
	}
	result, err := h.svc.AdjustStock(r.Context(), id, req)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, result)
}

func (h *Handler) getRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	result, err := h.svc.GetRecord(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, result)
}

func (h *Handler) listRecords(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.ListRecords(r.Context(), r.URL.Query().Get("warehouse"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// ── Conversion rates ─────────────────────────────────────────────────────────

func (h *Handler) setConversionRate(w http.ResponseWriter, r *http.Request) {
	var rates units.Rates
	if !decodeBody(w, r, &rates) {
		return
	}
	rates.SKU = chi.URLParam(r, "sku")
	if err := h.svc.SetConversionRate(r.Context(), rates); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, rates)
}

func (h *Handler) getConversionRate(w http.ResponseWriter, r *http.Request) {
	rates, err := h.svc.GetConversionRate(r.Context(), chi.URLParam(r, "sku"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, rates)
}
