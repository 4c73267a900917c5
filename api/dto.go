/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Field names are
  snake_case, matching the columns the purchasing UI already reads.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Registries:  StationDTO, SupplierDTO, UnitDTO and their requests
  Orders:      OrderLineDTO, CreateOrderRequest, OrderLineInput
  Daily list:  DailyListItemDTO, DailyListMetaDTO, GenerateDailyListRequest
  Receiving:   ReceivingRequest, ReceivingItemInput, UnlockRequest
  Reports:     ReceivingReportRowDTO

VALIDATION:
  Request types carry go-playground/validator tags; handlers call
  h.validate.Struct() after decoding.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/kitchen-orders/purchasing"
	"github.com/warp/kitchen-orders/store/sqlite"
)

// =============================================================================
// ENVELOPES
// =============================================================================

// DataResponse wraps list and object payloads.
type DataResponse struct {
	Data any `json:"data"`
	Meta any `json:"meta,omitempty"`
}

// OKResponse is returned by state-changing daily list calls.
type OKResponse struct {
	OK   bool             `json:"ok"`
	Meta DailyListMetaDTO `json:"meta"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// REGISTRIES
// =============================================================================

// StationDTO represents a station in API responses.
type StationDTO struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	IsActive bool   `json:"is_active"`
}

// SupplierDTO represents a supplier in API responses.
type SupplierDTO struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	IsActive bool   `json:"is_active"`
}

// CreateSupplierRequest is the request body for adding a supplier.
type CreateSupplierRequest struct {
	Name string `json:"name" validate:"required"`
}

// UpdateSupplierRequest is the request body for toggling a supplier.
type UpdateSupplierRequest struct {
	IsActive *bool `json:"is_active" validate:"required"`
}

// UnitDTO represents a unit library entry.
type UnitDTO struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	IsActive bool   `json:"is_active"`
}

// CreateUnitRequest is the request body for adding a unit.
type CreateUnitRequest struct {
	Name string `json:"name" validate:"required"`
}

// UpdateUnitRequest renames a unit or toggles it. At least one field is required.
type UpdateUnitRequest struct {
	Name     *string `json:"name" validate:"required_without=IsActive"`
	IsActive *bool   `json:"is_active" validate:"required_without=Name"`
}

func toStationDTO(s sqlite.Station) StationDTO {
	return StationDTO{ID: s.ID, Name: s.Name, IsActive: s.IsActive}
}

func toSupplierDTO(s sqlite.Supplier) SupplierDTO {
	return SupplierDTO{ID: s.ID, Name: s.Name, IsActive: s.IsActive}
}

func toUnitDTO(u sqlite.Unit) UnitDTO {
	return UnitDTO{ID: u.ID, Name: u.Name, IsActive: u.IsActive}
}

// =============================================================================
// ORDERS
// =============================================================================

// OrderLineDTO represents an order line in API responses.
type OrderLineDTO struct {
	ID           int64  `json:"id"`
	Date         string `json:"date"`
	StationID    int64  `json:"station_id"`
	StationName  string `json:"station_name"`
	SupplierID   int64  `json:"supplier_id"`
	SupplierName string `json:"supplier_name"`
	ItemName     string `json:"item_name"`
	Quantity     string `json:"quantity"`
	Unit         string `json:"unit"`
	Note         string `json:"note"`
	CreatedAt    string `json:"created_at"`
}

// OrderLineInput is one order line as a station submits it. Date defaults to today.
type OrderLineInput struct {
	Date       string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	StationID  int64  `json:"station_id" validate:"required,gt=0"`
	SupplierID int64  `json:"supplier_id" validate:"required,gt=0"`
	ItemName   string `json:"item_name" validate:"required"`
	Quantity   string `json:"quantity" validate:"required"`
	Unit       string `json:"unit" validate:"required"`
	Note       string `json:"note"`
}

// CreateOrderRequest is either a single line or a bulk submission in Items.
type CreateOrderRequest struct {
	OrderLineInput
	Items []OrderLineInput `json:"items"`
}

func toOrderLineDTO(v sqlite.OrderLineView) OrderLineDTO {
	return OrderLineDTO{
		ID:           v.ID,
		Date:         v.Date,
		StationID:    v.StationID,
		StationName:  v.StationName,
		SupplierID:   v.SupplierID,
		SupplierName: v.SupplierName,
		ItemName:     v.ItemName,
		Quantity:     v.Quantity,
		Unit:         v.Unit,
		Note:         v.Note,
		CreatedAt:    v.CreatedAt.Format(time.RFC3339),
	}
}

// =============================================================================
// DAILY LIST
// =============================================================================

// DailyListMetaDTO represents a list's lock state.
type DailyListMetaDTO struct {
	ID       int64   `json:"id"`
	Date     string  `json:"date"`
	LockedAt *string `json:"locked_at"`
	IsLocked bool    `json:"is_locked"`
}

// DailyListItemDTO is a merged line with its receiving data, if any.
type DailyListItemDTO struct {
	ID            int64           `json:"id"`
	DailyListID   int64           `json:"daily_list_id"`
	SupplierID    int64           `json:"supplier_id"`
	SupplierName  string          `json:"supplier_name"`
	ItemName      string          `json:"item_name"`
	Unit          string          `json:"unit"`
	TotalQuantity decimal.Decimal `json:"total_quantity"`
	SourceCount   int             `json:"source_count"`
	ReceivingDTO
}

// ReceivingDTO holds the receiving columns of a line. All are null until
// the line is received.
type ReceivingDTO struct {
	QualityOK      *bool               `json:"quality_ok"`
	UnitPrice      decimal.NullDecimal `json:"unit_price"`
	InputUnitPrice decimal.NullDecimal `json:"input_unit_price"`
	PriceUnit      *string             `json:"price_unit"`
	ReceiveNote    string              `json:"receive_note"`
	ReceivedAt     *string             `json:"received_at"`
}

// GenerateDailyListRequest forces a snapshot. Date defaults to today.
type GenerateDailyListRequest struct {
	Date string `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

// GenerateDailyListResponse is the payload of a forced snapshot.
type GenerateDailyListResponse struct {
	ID    int64              `json:"id"`
	Items []DailyListItemDTO `json:"items"`
	Meta  *DailyListMetaDTO  `json:"meta"`
}

func toMetaDTO(m purchasing.DailyListMeta) DailyListMetaDTO {
	dto := DailyListMetaDTO{ID: m.ID, Date: m.Date, IsLocked: m.IsLocked}
	if m.LockedAt != nil {
		s := m.LockedAt.Format(time.RFC3339)
		dto.LockedAt = &s
	}
	return dto
}

func toDailyListItemDTO(it sqlite.DailyListItem) DailyListItemDTO {
	dto := DailyListItemDTO{
		ID:            it.ID,
		DailyListID:   it.DailyListID,
		SupplierID:    it.SupplierID,
		SupplierName:  it.SupplierName,
		ItemName:      it.ItemName,
		Unit:          it.Unit,
		TotalQuantity: it.TotalQuantity,
		SourceCount:   it.SourceCount,
	}
	dto.ReceivingDTO = toReceivingDTO(it.Receiving)
	return dto
}

func toReceivingDTO(rec *purchasing.ReceivingRecord) ReceivingDTO {
	if rec == nil {
		return ReceivingDTO{}
	}
	ok := rec.QualityOK
	at := rec.ReceivedAt.Format(time.RFC3339)
	dto := ReceivingDTO{
		QualityOK:      &ok,
		UnitPrice:      rec.UnitPrice,
		InputUnitPrice: rec.InputUnitPrice,
		ReceiveNote:    rec.ReceiveNote,
		ReceivedAt:     &at,
	}
	if rec.PriceUnit != "" {
		pu := rec.PriceUnit
		dto.PriceUnit = &pu
	}
	return dto
}

// =============================================================================
// RECEIVING
// =============================================================================

// OptionalPrice is a nullable decimal that also treats "" as absent, the way
// an empty price field is posted by the receiving form.
type OptionalPrice struct {
	decimal.NullDecimal
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *OptionalPrice) UnmarshalJSON(b []byte) error {
	trimmed := bytes.TrimSpace(b)
	if bytes.Equal(trimmed, []byte("null")) || bytes.Equal(trimmed, []byte(`""`)) {
		p.NullDecimal = decimal.NullDecimal{}
		return nil
	}
	return p.NullDecimal.UnmarshalJSON(trimmed)
}

// MarshalJSON implements json.Marshaler.
func (p OptionalPrice) MarshalJSON() ([]byte, error) {
	if !p.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(p.Decimal)
}

// ReceivingItemInput is the operator's input for one line.
type ReceivingItemInput struct {
	DailyListItemID int64         `json:"daily_list_item_id" validate:"required,gt=0"`
	QualityOK       bool          `json:"quality_ok"`
	InputUnitPrice  OptionalPrice `json:"input_unit_price"`
	PriceUnit       string        `json:"price_unit"`
	ReceiveNote     string        `json:"receive_note"`
}

// ReceivingRequest commits a receiving batch. Date defaults to today.
type ReceivingRequest struct {
	Date  string               `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Items []ReceivingItemInput `json:"items" validate:"required,min=1,dive"`
}

// UnlockRequest unlocks a date. Date defaults to today.
type UnlockRequest struct {
	Date string `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

func (r ReceivingRequest) entries() []purchasing.ReceivingEntry {
	out := make([]purchasing.ReceivingEntry, len(r.Items))
	for i, it := range r.Items {
		out[i] = purchasing.ReceivingEntry{
			DailyListItemID: it.DailyListItemID,
			QualityOK:       it.QualityOK,
			InputUnitPrice:  it.InputUnitPrice.NullDecimal,
			PriceUnit:       it.PriceUnit,
			ReceiveNote:     it.ReceiveNote,
		}
	}
	return out
}

// =============================================================================
// REPORTS
// =============================================================================

// ReceivingReportRowDTO is one row of the receiving export.
type ReceivingReportRowDTO struct {
	Date          string          `json:"date"`
	SupplierName  string          `json:"supplier_name"`
	ItemName      string          `json:"item_name"`
	Unit          string          `json:"unit"`
	TotalQuantity decimal.Decimal `json:"total_quantity"`
	ReceivingDTO
	Amount decimal.NullDecimal `json:"amount"`
	Status string              `json:"status"`
}

func toReportRowDTO(r sqlite.ReceivingReportRow) ReceivingReportRowDTO {
	dto := ReceivingReportRowDTO{
		Date:          r.Date,
		SupplierName:  r.SupplierName,
		ItemName:      r.ItemName,
		Unit:          r.Unit,
		TotalQuantity: r.TotalQuantity,
		ReceivingDTO:  toReceivingDTO(r.Receiving),
		Amount:        r.Amount,
		Status:        r.Status,
	}
	return dto
}
