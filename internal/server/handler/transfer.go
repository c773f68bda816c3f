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

// TransferService defines the methods that the transfer handler requires.
type TransferService interface {
	Transfer(ctx context.Context, req ledger.TransferRequest) (ledger.Pair, error)
	Exchange(ctx context.Context, req ledger.ExchangeRequest) (ledger.Pair, error)
}

// TransferHandler serves transfer and exchange endpoints.
type TransferHandler struct {
	transfers TransferService
	logger    *slog.Logger
}

// NewTransferHandler creates a TransferHandler with the given service and logger.
func NewTransferHandler(transfers TransferService, logger *slog.Logger) *TransferHandler {
	return &TransferHandler{
		transfers: transfers,
		logger:    logger,
	}
}

type pairResponse struct {
	Source entryResponse `json:"source"`
	Target entryResponse `json:"target"`
}

type transferRequest struct {
	SourcePositionID string           `json:"source_position_id"`
	TargetPositionID string           `json:"target_position_id"`
	Quantity         decimal.Decimal  `json:"quantity"`
	UnitPrice        *decimal.Decimal `json:"unit_price"`
	Fee              *decimal.Decimal `json:"fee"`
	FeeType          *domain.FeeType  `json:"fee_type"`
	OccurredAt       time.Time        `json:"occurred_at"`
	Notes            string           `json:"notes"`
}

// CreateTransfer moves a quantity of one asset between two positions.
// POST /api/transfers
func (h *TransferHandler) CreateTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	pair, err := h.transfers.Transfer(r.Context(), ledger.TransferRequest{
		SourcePositionID: req.SourcePositionID,
		TargetPositionID: req.TargetPositionID,
		Quantity:         req.Quantity,
		UnitPrice:        req.UnitPrice,
		OccurredAt:       req.OccurredAt,
		Fee:              req.Fee,
		FeeType:          req.FeeType,
		Notes:            req.Notes,
	})
	if err != nil {
		writeDomainError(w, r, h.logger, "transfer", err)
		return
	}
	writeJSON(w, http.StatusCreated, pairResponse{
		Source: toEntryResponse(pair.Source),
		Target: toEntryResponse(pair.Target),
	})
}

type exchangeRequest struct {
	SourcePositionID string           `json:"source_position_id"`
	TargetPositionID string           `json:"target_position_id"`
	SourceQuantity   decimal.Decimal  `json:"source_quantity"`
	TargetQuantity   decimal.Decimal  `json:"target_quantity"`
	ExchangeRate     decimal.Decimal  `json:"exchange_rate"`
	Fee              *decimal.Decimal `json:"fee"`
	FeeType          *domain.FeeType  `json:"fee_type"`
	OccurredAt       time.Time        `json:"occurred_at"`
	Notes            string           `json:"notes"`
}

// CreateExchange converts one asset into another.
// POST /api/exchanges
func (h *TransferHandler) CreateExchange(w http.ResponseWriter, r *http.Request) {
	var req exchangeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	pair, err := h.transfers.Exchange(r.Context(), ledger.ExchangeRequest{
		SourcePositionID: req.SourcePositionID,
		TargetPositionID: req.TargetPositionID,
		SourceQuantity:   req.SourceQuantity,
		TargetQuantity:   req.TargetQuantity,
		ExchangeRate:     req.ExchangeRate,
		OccurredAt:       req.OccurredAt,
		Fee:              req.Fee,
		FeeType:          req.FeeType,
		Notes:            req.Notes,
	})
	if err != nil {
		writeDomainError(w, r, h.logger, "exchange", err)
		return
	}
	writeJSON(w, http.StatusCreated, pairResponse{
		Source: toEntryResponse(pair.Source),
		Target: toEntryResponse(pair.Target),
	})
}
