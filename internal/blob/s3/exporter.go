package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/holdings/internal/domain"
)

const jsonlContentType = "application/x-ndjson"

// PositionLister pages through every position.
type PositionLister interface {
	ListAll(ctx context.Context, opts domain.ListOpts) ([]domain.Position, error)
}

// LedgerLister reads the live ledger of one position.
type LedgerLister interface {
	List(ctx context.Context, positionID string) ([]domain.LedgerEntry, error)
}

// ExportConfig tunes an Exporter.
type ExportConfig struct {
	// Prefix is the key prefix under which ledgers are written.
	Prefix string
	// MultipartThreshold is the body size above which the multipart manager
	// is used. It doubles as the part size.
	MultipartThreshold int64
	// Concurrency bounds parallel position exports.
	Concurrency int
	// PageSize is the number of positions fetched per query.
	PageSize int
}

// ExportReport counts what one export run did.
type ExportReport struct {
	Exported int64 `json:"exported"`
	Skipped  int64 `json:"skipped"`
	Pruned   int64 `json:"pruned"`
}

// Exporter writes each position's ledger to object storage as JSONL, one file
// per ledger generation:
//
//	ledger/{owner}/{position}/g0000000042.jsonl
//
// A generation that already exists is skipped, and older generations of the
// same position are removed once the new one is written.
type Exporter struct {
	writer    domain.BlobWriter
	reader    domain.BlobReader
	positions PositionLister
	entries   LedgerLister
	audit     domain.AuditStore
	cfg       ExportConfig
	logger    *slog.Logger
}

// NewExporter creates an Exporter.
func NewExporter(
	writer domain.BlobWriter,
	reader domain.BlobReader,
	positions PositionLister,
	entries LedgerLister,
	audit domain.AuditStore,
	cfg ExportConfig,
	logger *slog.Logger,
) *Exporter {
	if cfg.Prefix == "" {
		cfg.Prefix = "ledger"
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.PageSize < 1 {
		cfg.PageSize = 500
	}
	return &Exporter{
		writer:    writer,
		reader:    reader,
		positions: positions,
		entries:   entries,
		audit:     audit,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "export")),
	}
}

// ExportAll exports every position whose current generation has not been
// written yet. The first failure cancels the run.
func (e *Exporter) ExportAll(ctx context.Context) (ExportReport, error) {
	var exported, skipped, pruned atomic.Int64
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)

	for offset := 0; ; offset += e.cfg.PageSize {
		page, err := e.positions.ListAll(gctx, domain.ListOpts{Limit: e.cfg.PageSize, Offset: offset})
		if err != nil {
			if werr := g.Wait(); werr != nil {
				return ExportReport{}, werr
			}
			return ExportReport{}, fmt.Errorf("s3blob: export: list positions: %w", err)
		}
		for _, p := range page {
			g.Go(func() error {
				wrote, removed, err := e.exportPosition(gctx, p)
				if err != nil {
					return err
				}
				if wrote {
					exported.Add(1)
				} else {
					skipped.Add(1)
				}
				pruned.Add(int64(removed))
				return nil
			})
		}
		if len(page) < e.cfg.PageSize {
			break
		}
	}

	if err := g.Wait(); err != nil {
		return ExportReport{}, err
	}

	report := ExportReport{
		Exported: exported.Load(),
		Skipped:  skipped.Load(),
		Pruned:   pruned.Load(),
	}

	if err := e.audit.Log(ctx, "export.completed", map[string]any{
		"prefix":   e.cfg.Prefix,
		"exported": report.Exported,
		"skipped":  report.Skipped,
		"pruned":   report.Pruned,
	}); err != nil {
		return report, fmt.Errorf("s3blob: export audit log: %w", err)
	}

	e.logger.InfoContext(ctx, "export: completed",
		slog.Int64("exported", report.Exported),
		slog.Int64("skipped", report.Skipped),
		slog.Int64("pruned", report.Pruned),
		slog.Duration("elapsed", time.Since(start)),
	)
	return report, nil
}

// exportPosition writes one position's ledger unless its generation is
// already stored. Empty ledgers are skipped.
func (e *Exporter) exportPosition(ctx context.Context, p domain.Position) (bool, int, error) {
	key := ExportPath(e.cfg.Prefix, p)

	exists, err := e.reader.Exists(ctx, key)
	if err != nil {
		return false, 0, fmt.Errorf("s3blob: export %s: %w", p.ID, err)
	}
	if exists {
		return false, 0, nil
	}

	ledger, err := e.entries.List(ctx, p.ID)
	if err != nil {
		return false, 0, fmt.Errorf("s3blob: export %s: list ledger: %w", p.ID, err)
	}
	if len(ledger) == 0 {
		return false, 0, nil
	}

	records := make([]exportRecord, len(ledger))
	for i, entry := range ledger {
		records[i] = toExportRecord(p, entry)
	}
	buf, err := marshalJSONL(records)
	if err != nil {
		return false, 0, fmt.Errorf("s3blob: export %s: marshal: %w", p.ID, err)
	}

	if t := e.cfg.MultipartThreshold; t > 0 && int64(len(buf)) > t {
		err = e.writer.PutMultipart(ctx, key, bytes.NewReader(buf), jsonlContentType)
	} else {
		err = e.writer.Put(ctx, key, bytes.NewReader(buf), jsonlContentType)
	}
	if err != nil {
		return false, 0, fmt.Errorf("s3blob: export %s: upload: %w", p.ID, err)
	}

	removed, err := e.prune(ctx, p, key)
	if err != nil {
		// The new generation is stored; stale files are retried next run.
		e.logger.WarnContext(ctx, "export: prune failed",
			slog.String("position_id", p.ID),
			slog.String("error", err.Error()),
		)
	}

	e.logger.DebugContext(ctx, "export: position written",
		slog.String("position_id", p.ID),
		slog.Int64("generation", p.Generation),
		slog.Int("entries", len(ledger)),
		slog.String("path", key),
	)
	return true, removed, nil
}

// prune deletes every stored generation of p other than keep.
func (e *Exporter) prune(ctx context.Context, p domain.Position, keep string) (int, error) {
	infos, err := e.reader.List(ctx, positionPrefix(e.cfg.Prefix, p))
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, info := range infos {
		if info.Path == keep || !strings.HasSuffix(info.Path, ".jsonl") {
			continue
		}
		if err := e.reader.Delete(ctx, info.Path); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// ExportPath is the object key of a position's current ledger generation.
func ExportPath(prefix string, p domain.Position) string {
	return positionPrefix(prefix, p) + fmt.Sprintf("g%010d.jsonl", p.Generation)
}

func positionPrefix(prefix string, p domain.Position) string {
	return path.Join(prefix, p.OwnerID, p.ID) + "/"
}

// exportRecord is the JSONL line written for one ledger entry.
type exportRecord struct {
	PositionID    string           `json:"position_id"`
	OwnerID       string           `json:"owner_id"`
	AssetID       string           `json:"asset_id"`
	VenueID       string           `json:"venue_id"`
	GoalID        *string          `json:"goal_id,omitempty"`
	EntryID       string           `json:"entry_id"`
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
}

func toExportRecord(p domain.Position, e domain.LedgerEntry) exportRecord {
	r := exportRecord{
		PositionID:    p.ID,
		OwnerID:       p.OwnerID,
		AssetID:       p.AssetID,
		VenueID:       p.VenueID,
		GoalID:        p.GoalID,
		EntryID:       e.ID,
		Direction:     string(e.Direction),
		Reason:        string(e.Reason),
		Quantity:      e.Quantity,
		UnitPrice:     e.UnitPrice,
		TotalValue:    e.TotalValue,
		Fee:           e.Fee,
		LinkedEntryID: e.LinkedEntryID,
		Notes:         e.Notes,
		OccurredAt:    e.OccurredAt.UTC(),
		CreatedAt:     e.CreatedAt.UTC(),
	}
	if e.FeeType != nil {
		ft := string(*e.FeeType)
		r.FeeType = &ft
	}
	return r
}

// marshalJSONL serialises a slice of values as newline-delimited JSON (JSONL).
// Each element is marshalled as a single compact JSON line followed by '\n'.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
