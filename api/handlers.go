/*
handlers.go - HTTP API handlers for the purchasing tool

PURPOSE:
  Exposes the order ledger, the daily list engine and the registries via
  REST API. Handles HTTP request/response, JSON serialization, and
  delegates to the store and the engine.

ENDPOINTS:
  Registries:
    GET    /api/stations                 Active stations
    GET    /api/suppliers                Suppliers (include_inactive=1)
    POST   /api/suppliers                Add or re-activate supplier
    PATCH  /api/suppliers/{id}           Set active
    GET    /api/units                    Unit library (include_inactive=1)
    POST   /api/units                    Add or revive unit
    PATCH  /api/units/{id}               Rename or set active
    DELETE /api/units/{id}               Soft delete

  Orders:
    GET    /api/orders?date=             Order lines of a date
    POST   /api/orders                   One line, or bulk in "items"
    DELETE /api/orders/{id}              Delete order line

  Daily list:
    GET    /api/daily-list?date=         Items + meta (auto_generate=0 skips the snapshot)
    POST   /api/daily-list               Force snapshot
    GET    /api/daily-list/price-units   Price unit options for order_unit

  Receiving:
    POST   /api/receiving                Commit receiving and lock
    POST   /api/receiving/unlock         Unlock

  Reports:
    GET    /api/reports/receiving        date=, or start= and end=

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input (go-playground/validator tags on DTOs)
  3. Call the engine or the store
  4. Serialize response
  5. Map errors to status codes (statusFor)

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input, invalid items, price unit conversion
  - 404: Resource not found
  - 409: Daily list is locked
  - 500: Internal errors

SECURITY NOTE:
  No authentication. The kitchen network is the trust boundary.

SEE ALSO:
  - dto.go:    Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/warp/kitchen-orders/purchasing"
	"github.com/warp/kitchen-orders/store/sqlite"
	"github.com/warp/kitchen-orders/units"
	"go.uber.org/zap"
)

// maxReportDays bounds how many dates a report request snapshots.
const maxReportDays = 92

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store  *sqlite.Store
	Engine *purchasing.Engine

	log      *zap.Logger
	validate *validator.Validate

	// today returns the default business date.
	today func() string
}

// NewHandler creates a new handler. A nil logger disables logging.
func NewHandler(store *sqlite.Store, engine *purchasing.Engine, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		Store:    store,
		Engine:   engine,
		log:      log,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		today:    purchasing.Today,
	}
}

// =============================================================================
// REGISTRY HANDLERS
// =============================================================================

// ListStations returns the active stations.
// GET /api/stations
func (h *Handler) ListStations(w http.ResponseWriter, r *http.Request) {
	stations, err := h.Store.ListStations(r.Context())
	if err != nil {
		h.fail(w, "Failed to list stations", err)
		return
	}

	dtos := make([]StationDTO, len(stations))
	for i, s := range stations {
		dtos[i] = toStationDTO(s)
	}
	writeJSON(w, http.StatusOK, DataResponse{Data: dtos})
}

// ListSuppliers returns suppliers.
// GET /api/suppliers?include_inactive=1
func (h *Handler) ListSuppliers(w http.ResponseWriter, r *http.Request) {
	suppliers, err := h.Store.ListSuppliers(r.Context(), flagParam(r, "include_inactive"))
	if err != nil {
		h.fail(w, "Failed to list suppliers", err)
		return
	}

	dtos := make([]SupplierDTO, len(suppliers))
	for i, s := range suppliers {
		dtos[i] = toSupplierDTO(s)
	}
	writeJSON(w, http.StatusOK, DataResponse{Data: dtos})
}

// CreateSupplier adds a supplier or re-activates an existing one.
// POST /api/suppliers
func (h *Handler) CreateSupplier(w http.ResponseWriter, r *http.Request) {
	var req CreateSupplierRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if !h.check(w, &req) {
		return
	}

	sp, err := h.Store.AddSupplier(r.Context(), req.Name)
	if err != nil {
		h.fail(w, "Failed to add supplier", err)
		return
	}
	writeJSON(w, http.StatusCreated, DataResponse{Data: toSupplierDTO(*sp)})
}

// UpdateSupplier sets a supplier's active flag.
// PATCH /api/suppliers/{id}
func (h *Handler) UpdateSupplier(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var req UpdateSupplierRequest
	if !h.decode(w, r, &req) || !h.check(w, &req) {
		return
	}

	sp, err := h.Store.SetSupplierActive(r.Context(), id, *req.IsActive)
	if err != nil {
		h.fail(w, "Failed to update supplier", err)
		return
	}
	writeJSON(w, http.StatusOK, DataResponse{Data: toSupplierDTO(*sp)})
}

// ListUnits returns the unit library.
// GET /api/units?include_inactive=1
func (h *Handler) ListUnits(w http.ResponseWriter, r *http.Request) {
	list, err := h.Store.ListUnits(r.Context(), flagParam(r, "include_inactive"))
	if err != nil {
		h.fail(w, "Failed to list units", err)
		return
	}

	dtos := make([]UnitDTO, len(list))
	for i, u := range list {
		dtos[i] = toUnitDTO(u)
	}
	writeJSON(w, http.StatusOK, DataResponse{Data: dtos})
}

// CreateUnit adds a unit or revives a deleted one.
// POST /api/units
func (h *Handler) CreateUnit(w http.ResponseWriter, r *http.Request) {
	var req CreateUnitRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if !h.check(w, &req) {
		return
	}

	u, err := h.Store.AddUnit(r.Context(), req.Name)
	if err != nil {
		h.fail(w, "Failed to add unit", err)
		return
	}
	writeJSON(w, http.StatusCreated, DataResponse{Data: toUnitDTO(*u)})
}

// UpdateUnit renames a unit and/or sets its active flag.
// PATCH /api/units/{id}
func (h *Handler) UpdateUnit(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var req UpdateUnitRequest
	if !h.decode(w, r, &req) || !h.check(w, &req) {
		return
	}

	var (
		u   *sqlite.Unit
		err error
	)
	if req.Name != nil {
		if u, err = h.Store.RenameUnit(r.Context(), id, *req.Name); err != nil {
			h.fail(w, "Failed to rename unit", err)
			return
		}
	}
	if req.IsActive != nil {
		if u, err = h.Store.SetUnitActive(r.Context(), id, *req.IsActive); err != nil {
			h.fail(w, "Failed to update unit", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, DataResponse{Data: toUnitDTO(*u)})
}

// DeleteUnit soft-deletes a unit.
// DELETE /api/units/{id}
func (h *Handler) DeleteUnit(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if err := h.Store.SoftDeleteUnit(r.Context(), id); err != nil {
		h.fail(w, "Failed to delete unit", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// =============================================================================
// ORDER HANDLERS
// =============================================================================

// ListOrders returns the order lines of a date.
// GET /api/orders?date=YYYY-MM-DD
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	date, ok := h.dateParam(w, r, "date")
	if !ok {
		return
	}

	lines, err := h.Store.ListOrderLines(r.Context(), date)
	if err != nil {
		h.fail(w, "Failed to list orders", err)
		return
	}

	dtos := make([]OrderLineDTO, len(lines))
	for i, l := range lines {
		dtos[i] = toOrderLineDTO(l)
	}
	writeJSON(w, http.StatusOK, DataResponse{Data: dtos})
}

// CreateOrder stores one order line, or every valid line of a bulk
// submission. Invalid bulk rows are skipped; a bulk with no valid row is
// rejected.
// POST /api/orders
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if !h.decode(w, r, &req) {
		return
	}

	if req.Items != nil {
		var lines []sqlite.NewOrderLine
		for _, in := range req.Items {
			if line, err := h.orderLine(in); err == nil {
				lines = append(lines, line)
			}
		}
		if len(lines) == 0 {
			writeError(w, http.StatusBadRequest, "Missing required fields", nil)
			return
		}
		if len(lines) < len(req.Items) {
			h.log.Warn("skipped invalid order rows",
				zap.Int("submitted", len(req.Items)), zap.Int("accepted", len(lines)))
		}

		ids, err := h.Store.CreateOrderLines(r.Context(), lines)
		if err != nil {
			h.fail(w, "Failed to create orders", err)
			return
		}
		writeJSON(w, http.StatusCreated, DataResponse{Data: map[string][]int64{"ids": ids}})
		return
	}

	line, err := h.orderLine(req.OrderLineInput)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Missing required fields", err)
		return
	}
	id, err := h.Store.CreateOrderLine(r.Context(), line)
	if err != nil {
		h.fail(w, "Failed to create order", err)
		return
	}
	writeJSON(w, http.StatusCreated, DataResponse{Data: map[string]int64{"id": id}})
}

// orderLine trims and validates one submitted line.
func (h *Handler) orderLine(in OrderLineInput) (sqlite.NewOrderLine, error) {
	in.Date = strings.TrimSpace(in.Date)
	in.ItemName = strings.TrimSpace(in.ItemName)
	in.Quantity = strings.TrimSpace(in.Quantity)
	in.Unit = strings.TrimSpace(in.Unit)
	if err := h.validate.Struct(&in); err != nil {
		return sqlite.NewOrderLine{}, err
	}
	if in.Date == "" {
		in.Date = h.today()
	}
	return sqlite.NewOrderLine{
		Date:       in.Date,
		StationID:  in.StationID,
		SupplierID: in.SupplierID,
		ItemName:   in.ItemName,
		Quantity:   in.Quantity,
		Unit:       in.Unit,
		Note:       in.Note,
	}, nil
}

// DeleteOrder removes an order line.
// DELETE /api/orders/{id}
func (h *Handler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if err := h.Store.DeleteOrderLine(r.Context(), id); err != nil {
		h.fail(w, "Failed to delete order", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// =============================================================================
// DAILY LIST HANDLERS
// =============================================================================

// GetDailyList returns the merged lines and lock state of a date. The
// snapshot is refreshed first unless auto_generate=0.
// GET /api/daily-list?date=YYYY-MM-DD
func (h *Handler) GetDailyList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	date, ok := h.dateParam(w, r, "date")
	if !ok {
		return
	}

	if r.URL.Query().Get("auto_generate") != "0" {
		if _, err := h.Engine.GenerateSnapshot(ctx, date); err != nil {
			h.fail(w, "Failed to generate daily list", err)
			return
		}
	}

	items, meta, err := h.dailyList(r, date)
	if err != nil {
		h.fail(w, "Failed to load daily list", err)
		return
	}
	writeJSON(w, http.StatusOK, DataResponse{Data: items, Meta: meta})
}

// GenerateDailyList forces a snapshot and returns the result.
// POST /api/daily-list
func (h *Handler) GenerateDailyList(w http.ResponseWriter, r *http.Request) {
	var req GenerateDailyListRequest
	if !h.decodeOptional(w, r, &req) || !h.check(w, &req) {
		return
	}
	date := req.Date
	if date == "" {
		date = h.today()
	}

	id, err := h.Engine.GenerateSnapshot(r.Context(), date)
	if err != nil {
		h.fail(w, "Failed to generate daily list", err)
		return
	}
	items, meta, err := h.dailyList(r, date)
	if err != nil {
		h.fail(w, "Failed to load daily list", err)
		return
	}
	writeJSON(w, http.StatusCreated, DataResponse{Data: GenerateDailyListResponse{ID: id, Items: items, Meta: meta}})
}

func (h *Handler) dailyList(r *http.Request, date string) ([]DailyListItemDTO, *DailyListMetaDTO, error) {
	items, err := h.Store.DailyListItems(r.Context(), date)
	if err != nil {
		return nil, nil, err
	}
	meta, err := h.Store.DailyListMeta(r.Context(), date)
	if err != nil {
		return nil, nil, err
	}

	dtos := make([]DailyListItemDTO, len(items))
	for i, it := range items {
		dtos[i] = toDailyListItemDTO(it)
	}
	if meta == nil {
		return dtos, nil, nil
	}
	m := toMetaDTO(*meta)
	return dtos, &m, nil
}

// PriceUnitOptions lists the units a price may be entered in for a line.
// GET /api/daily-list/price-units?order_unit=斤
func (h *Handler) PriceUnitOptions(w http.ResponseWriter, r *http.Request) {
	library, err := h.Store.UnitNames(r.Context())
	if err != nil {
		h.fail(w, "Failed to list units", err)
		return
	}
	options := units.PriceUnitOptions(r.URL.Query().Get("order_unit"), library)
	writeJSON(w, http.StatusOK, DataResponse{Data: options})
}

// =============================================================================
// RECEIVING HANDLERS
// =============================================================================

// CommitReceiving refreshes the snapshot, then stores the batch and locks
// the date in one transaction.
// POST /api/receiving
func (h *Handler) CommitReceiving(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req ReceivingRequest
	if !h.decode(w, r, &req) || !h.check(w, &req) {
		return
	}
	date := req.Date
	if date == "" {
		date = h.today()
	}

	if _, err := h.Engine.GenerateSnapshot(ctx, date); err != nil {
		h.fail(w, "Failed to generate daily list", err)
		return
	}
	if err := h.Engine.CommitReceiving(ctx, date, req.entries()); err != nil {
		h.fail(w, "Failed to save receiving", err)
		return
	}

	meta, err := h.Engine.Meta(ctx, date)
	if err != nil {
		h.fail(w, "Failed to load daily list", err)
		return
	}
	writeJSON(w, http.StatusOK, OKResponse{OK: true, Meta: toMetaDTO(meta)})
}

// UnlockReceiving clears the lock of a date.
// POST /api/receiving/unlock
func (h *Handler) UnlockReceiving(w http.ResponseWriter, r *http.Request) {
	var req UnlockRequest
	if !h.decodeOptional(w, r, &req) || !h.check(w, &req) {
		return
	}
	date := req.Date
	if date == "" {
		date = h.today()
	}

	meta, err := h.Engine.Unlock(r.Context(), date)
	if err != nil {
		h.fail(w, "Failed to unlock daily list", err)
		return
	}
	writeJSON(w, http.StatusOK, OKResponse{OK: true, Meta: toMetaDTO(meta)})
}

// =============================================================================
// REPORT HANDLERS
// =============================================================================

// ReceivingReport returns the receiving rows of a date or a date range.
// Every date in the range is snapshotted first.
// GET /api/reports/receiving?date=  or  ?start=&end=
func (h *Handler) ReceivingReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	start, end := q.Get("start"), q.Get("end")
	if start == "" || end == "" {
		date, ok := h.dateParam(w, r, "date")
		if !ok {
			return
		}
		start, end = date, date
	}

	dates, err := dateRange(start, end)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date range", err)
		return
	}

	for _, d := range dates {
		if _, err := h.Engine.GenerateSnapshot(ctx, d); err != nil {
			h.fail(w, "Failed to generate daily list", err)
			return
		}
	}

	rows, err := h.Store.ReceivingReport(ctx, dates[0], dates[len(dates)-1])
	if err != nil {
		h.fail(w, "Failed to build report", err)
		return
	}

	dtos := make([]ReceivingReportRowDTO, len(rows))
	for i, row := range rows {
		dtos[i] = toReportRowDTO(row)
	}
	writeJSON(w, http.StatusOK, DataResponse{Data: dtos})
}

// dateRange expands start..end into ascending calendar dates. A reversed
// pair is swapped.
func dateRange(start, end string) ([]string, error) {
	from, err := time.Parse(purchasing.DateLayout, start)
	if err != nil {
		return nil, fmt.Errorf("%w: start %q", purchasing.ErrMalformedInput, start)
	}
	to, err := time.Parse(purchasing.DateLayout, end)
	if err != nil {
		return nil, fmt.Errorf("%w: end %q", purchasing.ErrMalformedInput, end)
	}
	if to.Before(from) {
		from, to = to, from
	}
	if days := int(to.Sub(from).Hours()/24) + 1; days > maxReportDays {
		return nil, fmt.Errorf("%w: range of %d days exceeds %d", purchasing.ErrMalformedInput, days, maxReportDays)
	}

	var dates []string
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d.Format(purchasing.DateLayout))
	}
	return dates, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var verrs validator.ValidationErrors
	switch {
	case purchasing.IsNotFound(err):
		return http.StatusNotFound
	case purchasing.IsConflict(err):
		return http.StatusConflict
	case purchasing.IsClientError(err), errors.As(err, &verrs):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err with its mapped status. Server errors are logged and
// their details withheld.
func (h *Handler) fail(w http.ResponseWriter, message string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error(message, zap.Error(err))
		writeError(w, status, message, nil)
		return
	}
	writeError(w, status, message, err)
}

// decode reads a required JSON body.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

// decodeOptional reads a JSON body that may be absent.
func (h *Handler) decodeOptional(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

// check runs the validator tags of req.
func (h *Handler) check(w http.ResponseWriter, req any) bool {
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return false
	}
	return true
}

// dateParam reads a YYYY-MM-DD query parameter, defaulting to today.
func (h *Handler) dateParam(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	date := strings.TrimSpace(r.URL.Query().Get(name))
	if date == "" {
		return h.today(), true
	}
	if err := purchasing.ValidateDate(date); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return "", false
	}
	return date, true
}

func idParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid id", err)
		return 0, false
	}
	return id, true
}

func flagParam(r *http.Request, name string) bool {
	v := r.URL.Query().Get(name)
	return v == "1" || v == "true"
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
