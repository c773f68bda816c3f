package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/smithy-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/holdings/internal/domain"
)

type memBlobs struct {
	mu        sync.Mutex
	objects   map[string][]byte
	types     map[string]string
	multipart []string
	putErr    error
}

func newMemBlobs() *memBlobs {
	return &memBlobs{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memBlobs) Put(_ context.Context, p string, data io.Reader, contentType string) error {
	if m.putErr != nil {
		return m.putErr
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[p] = b
	m.types[p] = contentType
	return nil
}

func (m *memBlobs) PutMultipart(ctx context.Context, p string, data io.Reader, contentType string) error {
	m.mu.Lock()
	m.multipart = append(m.multipart, p)
	m.mu.Unlock()
	return m.Put(ctx, p, data, contentType)
}

func (m *memBlobs) Exists(_ context.Context, p string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[p]
	return ok, nil
}

func (m *memBlobs) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.BlobInfo
	for k, v := range m.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, domain.BlobInfo{Path: k, Size: int64(len(v))})
		}
	}
	return out, nil
}

func (m *memBlobs) Delete(_ context.Context, p string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, p)
	return nil
}

func (m *memBlobs) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.objects))
	for k := range m.objects {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

type stubPositions []domain.Position

func (s stubPositions) ListAll(_ context.Context, opts domain.ListOpts) ([]domain.Position, error) {
	if opts.Offset >= len(s) {
		return nil, nil
	}
	end := min(opts.Offset+opts.Limit, len(s))
	return s[opts.Offset:end], nil
}

type stubLedgers map[string][]domain.LedgerEntry

func (s stubLedgers) List(_ context.Context, id string) ([]domain.LedgerEntry, error) {
	return s[id], nil
}

type stubAudit struct {
	mu     sync.Mutex
	events []string
	detail []map[string]any
}

func (a *stubAudit) Log(_ context.Context, event string, detail map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
	a.detail = append(a.detail, detail)
	return nil
}

func (a *stubAudit) List(context.Context, domain.AuditFilter) ([]domain.AuditEntry, error) {
	return nil, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func entry(id, pos string, qty string) domain.LedgerEntry {
	q := decimal.RequireFromString(qty)
	return domain.LedgerEntry{
		ID:         id,
		PositionID: pos,
		Direction:  domain.FlowInflow,
		Reason:     domain.ReasonPurchase,
		Quantity:   q,
		UnitPrice:  decimal.NewFromInt(10),
		TotalValue: q.Mul(decimal.NewFromInt(10)),
		OccurredAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestExportAll(t *testing.T) {
	blobs := newMemBlobs()
	audit := &stubAudit{}
	positions := stubPositions{
		{ID: "p1", OwnerID: "alice", AssetID: "acme", VenueID: "broker", Generation: 3},
		{ID: "p2", OwnerID: "alice", AssetID: "usd", VenueID: "bank", Generation: 1},
		{ID: "p3", OwnerID: "bob", AssetID: "acme", VenueID: "broker", Generation: 7},
	}
	ledgers := stubLedgers{
		"p1": {entry("e1", "p1", "2"), entry("e2", "p1", "0.5")},
		"p3": {entry("e3", "p3", "1")},
	}

	// A stale generation of p1 is pruned once g3 is written.
	stale := "ledger/alice/p1/g0000000002.jsonl"
	require.NoError(t, blobs.Put(context.Background(), stale, strings.NewReader("{}\n"), ""))

	exp := NewExporter(blobs, blobs, positions, ledgers, audit, ExportConfig{PageSize: 2, Concurrency: 2}, quietLogger())
	report, err := exp.ExportAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, ExportReport{Exported: 2, Skipped: 1, Pruned: 1}, report)
	assert.Equal(t, []string{
		"ledger/alice/p1/g0000000003.jsonl",
		"ledger/bob/p3/g0000000007.jsonl",
	}, blobs.keys())
	assert.Equal(t, []string{"export.completed"}, audit.events)

	sc := bufio.NewScanner(bytes.NewReader(blobs.objects["ledger/alice/p1/g0000000003.jsonl"]))
	var lines []map[string]any
	for sc.Scan() {
		var line map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &line))
		lines = append(lines, line)
	}
	require.Len(t, lines, 2)
	assert.Equal(t, "e1", lines[0]["entry_id"])
	assert.Equal(t, "alice", lines[0]["owner_id"])
	assert.Equal(t, "2", lines[0]["quantity"])
	assert.Equal(t, "purchase", lines[0]["reason"])
	assert.NotContains(t, lines[0], "fee")

	// A second run finds every generation already stored.
	report, err = exp.ExportAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ExportReport{Exported: 0, Skipped: 3}, report)
}

func TestExportMultipartThreshold(t *testing.T) {
	blobs := newMemBlobs()
	positions := stubPositions{{ID: "p1", OwnerID: "o", Generation: 1}}
	ledgers := stubLedgers{"p1": {entry("e1", "p1", "1")}}

	exp := NewExporter(blobs, blobs, positions, ledgers, &stubAudit{}, ExportConfig{MultipartThreshold: 10}, quietLogger())
	_, err := exp.ExportAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"ledger/o/p1/g0000000001.jsonl"}, blobs.multipart)
	assert.Equal(t, "application/x-ndjson", blobs.types["ledger/o/p1/g0000000001.jsonl"])
}

func TestExportUploadFailure(t *testing.T) {
	blobs := newMemBlobs()
	blobs.putErr = errors.New("bucket gone")
	positions := stubPositions{{ID: "p1", OwnerID: "o", Generation: 1}}
	ledgers := stubLedgers{"p1": {entry("e1", "p1", "1")}}
	audit := &stubAudit{}

	exp := NewExporter(blobs, blobs, positions, ledgers, audit, ExportConfig{}, quietLogger())
	_, err := exp.ExportAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket gone")
	assert.Empty(t, audit.events)
}

func TestExportPath(t *testing.T) {
	p := domain.Position{ID: "pos-1", OwnerID: "owner", Generation: 42}
	assert.Equal(t, "exports/owner/pos-1/g0000000042.jsonl", ExportPath("exports", p))
	assert.Equal(t, "exports/owner/pos-1/g0000000042.jsonl", ExportPath("exports/", p))
}

func TestNormaliseEndpoint(t *testing.T) {
	assert.Equal(t, "https://s3.example.com", normaliseEndpoint("https://s3.example.com", false))
	assert.Equal(t, "http://s3.internal", normaliseEndpoint("s3.internal", false))
	assert.Equal(t, "https://s3.internal", normaliseEndpoint("s3.internal", true))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(&smithy.GenericAPIError{Code: "NotFound"}))
	assert.True(t, isNotFound(fmt.Errorf("head: %w", &smithy.GenericAPIError{Code: "NoSuchKey"})))
	assert.False(t, isNotFound(&smithy.GenericAPIError{Code: "AccessDenied"}))
	assert.False(t, isNotFound(errors.New("connection reset")))
	assert.False(t, isNotFound(nil))
}
