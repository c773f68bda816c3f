package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/holdings/internal/domain"
	"github.com/alanyoungcy/holdings/internal/ledger"
)

// EntryService defines the methods that the entry handler requires.
type EntryService interface {
	Record(ctx context.Context, positionID string, p ledger.EntryParams) (domain.LedgerEntry, error)
	Delete(ctx context.Context, entryID string) ([]domain.LedgerEntry, error)
	List(ctx context.Context, positionID string, opts domain.ListOpts) ([]domain.LedgerEntry, error)
}

// EntryHandler serves ledger entry endpoints.
type EntryHandler struct {
	entries EntryService
	logger  *slog.Logger
}

// NewEntryHandler creates an EntryHandler with the given service and logger.
func NewEntryHandler(entries EntryService, logger *slog.Logger) *EntryHandler {
	return &EntryHandler{
		entries: entries,
		logger:  logger,
	}
}

type entryResponse struct {
	ID            string           `json:"id"`
	PositionID    string           `json:"position_id"`
	Direction     string           `json:"direction"`
	Reason        string           `json:"reason"`
	Quantity      decimal.Decimal  `json:"quantity"`
	UnitPrice     decimal.Decimal  `json:"unit_price"`
	TotalValue    decimal.Decimal  `json:"total_value"`
	Fee           *decimal.Decimal `json:"fee,omitempty"`
	FeeType       *string          `json:"fee_type,omitempty"`
	LinkedEntryID *string          `json:"linked_entry_id,omitempty"`
	Notes         string           `json:"notes,omitempty"`
	OccurredAt    time.Time        `json:"occurred_at"`
	CreatedAt     time.Time        `json:"created_at"`
	DeletedAt     *time.Time       `json:"deleted_at,omitempty"`
}

func toEntryResponse(e domain.LedgerEntry) entryResponse {
	resp := entryResponse{
		ID:            e.ID,
		PositionID:    e.PositionID,
		Direction:     string(e.Direction),
		Reason:        string(e.Reason),
		Quantity:      e.Quantity,
		UnitPrice:     e.UnitPrice,
		TotalValue:    e.TotalValue,
		Fee:           e.Fee,
		LinkedEntryID: e.LinkedEntryID,
		Notes:         e.Notes,
		OccurredAt:    e.OccurredAt,
		CreatedAt:     e.CreatedAt,
		DeletedAt:     e.DeletedAt,
	}
	if e.FeeType != nil {
		ft := string(*e.FeeType)
		resp.FeeType = &ft
	}
	return resp
}

func toEntryResponses(entries []domain.LedgerEntry) []entryResponse {
	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toEntryResponse(e))
	}
	return out
}

type entriesResponse struct {
	Entries []entryResponse `json:"entries"`
}

// ListEntries returns one page of a position's ledger, newest first.
// GET /api/positions/{id}/entries?limit=50&offset=0
func (h *EntryHandler) ListEntries(w http.ResponseWriter, r *http.Request) {
	entries, err := h.entries.List(r.Context(), pathParam(r, "id"), parseListOpts(r))
	if err != nil {
		writeDomainError(w, r, h.logger, "list entries", err)
		return
	}
	writeJSON(w, http.StatusOK, entriesResponse{Entries: toEntryResponses(entries)})
}

type recordEntryRequest struct {
	Reason     domain.Reason    `json:"reason"`
	Quantity   decimal.Decimal  `json:"quantity"`
	UnitPrice  decimal.Decimal  `json:"unit_price"`
	Fee        *decimal.Decimal `json:"fee"`
	FeeType    *domain.FeeType  `json:"fee_type"`
	OccurredAt time.Time        `json:"occurred_at"`
	Notes      string           `json:"notes"`
}

// RecordEntry appends one entry to a position's ledger. An outflow larger
// than the available balance is answered with 409 and the available amount.
// POST /api/positions/{id}/entries
func (h *EntryHandler) RecordEntry(w http.ResponseWriter, r *http.Request) {
	var req recordEntryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	entry, err := h.entries.Record(r.Context(), pathParam(r, "id"), ledger.EntryParams{
		Reason:     req.Reason,
		Quantity:   req.Quantity,
		UnitPrice:  req.UnitPrice,
		Fee:        req.Fee,
		FeeType:    req.FeeType,
		OccurredAt: req.OccurredAt,
		Notes:      req.Notes,
	})
	if err != nil {
		writeDomainError(w, r, h.logger, "record entry", err)
		return
	}
	writeJSON(w, http.StatusCreated, toEntryResponse(entry))
}

// DeleteEntry soft-deletes an entry and its linked partner.
// DELETE /api/entries/{id}
func (h *EntryHandler) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.entries.Delete(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, h.logger, "delete entry", err)
		return
	}
	writeJSON(w, http.StatusOK, entriesResponse{Entries: toEntryResponses(deleted)})
}
