package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/holdings/internal/domain"
	"github.com/alanyoungcy/holdings/internal/service"
)

// PositionService defines the methods that the position handler requires.
type PositionService interface {
	Open(ctx context.Context, key domain.PositionKey) (domain.Position, error)
	Metrics(ctx context.Context, positionID string) (domain.PositionMetrics, error)
	List(ctx context.Context, ownerID string) ([]service.PositionView, error)
	Summary(ctx context.Context, ownerID, venueID string) (domain.Summary, error)
}

// PositionHandler serves position, metrics and summary endpoints.
type PositionHandler struct {
	positions PositionService
	logger    *slog.Logger
}

// NewPositionHandler creates a PositionHandler with the given service and logger.
func NewPositionHandler(positions PositionService, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{
		positions: positions,
		logger:    logger,
	}
}

type positionResponse struct {
	ID            string                  `json:"id"`
	OwnerID       string                  `json:"owner_id"`
	AssetID       string                  `json:"asset_id"`
	VenueID       string                  `json:"venue_id"`
	GoalID        *string                 `json:"goal_id,omitempty"`
	Quantity      decimal.Decimal         `json:"quantity"`
	AverageCost   decimal.Decimal         `json:"average_cost"`
	TotalInvested decimal.Decimal         `json:"total_invested"`
	Generation    int64                   `json:"generation"`
	UpdatedAt     time.Time               `json:"updated_at"`
	Metrics       *domain.PositionMetrics `json:"metrics,omitempty"`
}

func toPositionResponse(p domain.Position) positionResponse {
	return positionResponse{
		ID:            p.ID,
		OwnerID:       p.OwnerID,
		AssetID:       p.AssetID,
		VenueID:       p.VenueID,
		GoalID:        p.GoalID,
		Quantity:      p.Quantity,
		AverageCost:   p.AverageCost,
		TotalInvested: p.TotalInvested,
		Generation:    p.Generation,
		UpdatedAt:     p.UpdatedAt,
	}
}

type listPositionsResponse struct {
	Positions []positionResponse `json:"positions"`
}

// ListPositions returns an owner's positions with their metrics.
// GET /api/positions?owner=...
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	owner := strings.TrimSpace(r.URL.Query().Get("owner"))
	if owner == "" {
		writeError(w, http.StatusBadRequest, "owner query parameter required")
		return
	}

	views, err := h.positions.List(r.Context(), owner)
	if err != nil {
		writeDomainError(w, r, h.logger, "list positions", err)
		return
	}

	resp := listPositionsResponse{Positions: make([]positionResponse, 0, len(views))}
	for _, v := range views {
		p := toPositionResponse(v.Position)
		m := v.Metrics
		p.Metrics = &m
		resp.Positions = append(resp.Positions, p)
	}
	writeJSON(w, http.StatusOK, resp)
}

type openPositionRequest struct {
	OwnerID string  `json:"owner_id"`
	AssetID string  `json:"asset_id"`
	VenueID string  `json:"venue_id"`
	GoalID  *string `json:"goal_id"`
}

// OpenPosition returns the position for an identity tuple, creating it when
// it does not exist yet.
// POST /api/positions
func (h *PositionHandler) OpenPosition(w http.ResponseWriter, r *http.Request) {
	var req openPositionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	pos, err := h.positions.Open(r.Context(), domain.PositionKey{
		OwnerID: req.OwnerID,
		AssetID: req.AssetID,
		VenueID: req.VenueID,
		GoalID:  req.GoalID,
	})
	if err != nil {
		writeDomainError(w, r, h.logger, "open position", err)
		return
	}
	writeJSON(w, http.StatusOK, toPositionResponse(pos))
}

// GetMetrics values one position at the latest known price.
// GET /api/positions/{id}/metrics
func (h *PositionHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	m, err := h.positions.Metrics(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, h.logger, "position metrics", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// GetSummary aggregates an owner's positions, optionally for one venue.
// GET /api/summary?owner=...&venue=...
func (h *PositionHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	owner := strings.TrimSpace(q.Get("owner"))
	if owner == "" {
		writeError(w, http.StatusBadRequest, "owner query parameter required")
		return
	}

	summary, err := h.positions.Summary(r.Context(), owner, strings.TrimSpace(q.Get("venue")))
	if err != nil {
		writeDomainError(w, r, h.logger, "summary", err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
