package service

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/holdings/internal/domain"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type memPositions struct {
	mu   sync.Mutex
	rows map[string]domain.Position
}

func newMemPositions(ps ...domain.Position) *memPositions {
	m := &memPositions{rows: map[string]domain.Position{}}
	for _, p := range ps {
		m.rows[p.ID] = p
	}
	return m
}

func (m *memPositions) GetByID(_ context.Context, id string) (domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.rows[id]
	if !ok {
		return domain.Position{}, domain.ErrNotFound
	}
	return p, nil
}

func (m *memPositions) GetOrCreate(_ context.Context, key domain.PositionKey) (domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.rows {
		if p.OwnerID == key.OwnerID && p.AssetID == key.AssetID && p.VenueID == key.VenueID &&
			goal(p.GoalID) == goal(key.GoalID) {
			return p, nil
		}
	}
	p := domain.Position{ID: uuid.NewString(), OwnerID: key.OwnerID, AssetID: key.AssetID, VenueID: key.VenueID, GoalID: key.GoalID}
	m.rows[p.ID] = p
	return p, nil
}

func goal(g *string) string {
	if g == nil {
		return ""
	}
	return *g
}

func (m *memPositions) list(keep func(domain.Position) bool) []domain.Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Position
	for _, p := range m.rows {
		if keep(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *memPositions) ListByOwner(_ context.Context, ownerID string) ([]domain.Position, error) {
	return m.list(func(p domain.Position) bool { return p.OwnerID == ownerID }), nil
}

func (m *memPositions) ListByVenue(_ context.Context, ownerID, venueID string) ([]domain.Position, error) {
	return m.list(func(p domain.Position) bool { return p.OwnerID == ownerID && p.VenueID == venueID }), nil
}

func (m *memPositions) ListAll(_ context.Context, opts domain.ListOpts) ([]domain.Position, error) {
	all := m.list(func(domain.Position) bool { return true })
	if opts.Offset >= len(all) {
		return nil, nil
	}
	all = all[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(all) {
		all = all[:opts.Limit]
	}
	return all, nil
}

func (m *memPositions) UpdateSnapshot(_ context.Context, id string, snap domain.PositionSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.rows[id]
	if !ok {
		return domain.ErrNotFound
	}
	p.Quantity, p.AverageCost, p.TotalInvested = snap.Quantity, snap.AverageCost, snap.TotalInvested
	m.rows[id] = p
	return nil
}

func (m *memPositions) bump(id string) {
	p := m.rows[id]
	p.Generation++
	m.rows[id] = p
}

type memAssets map[string]domain.Asset

func (m memAssets) GetByID(_ context.Context, id string) (domain.Asset, error) {
	a, ok := m[id]
	if !ok {
		return domain.Asset{}, domain.ErrNotFound
	}
	return a, nil
}

func (m memAssets) Upsert(_ context.Context, a domain.Asset) error {
	m[a.ID] = a
	return nil
}

// memEntries serialises every write under one mutex, standing in for the
// row locks of the real store.
type memEntries struct {
	mu        sync.Mutex
	rows      map[string]domain.LedgerEntry
	positions *memPositions
}

func newMemEntries(positions *memPositions) *memEntries {
	return &memEntries{rows: map[string]domain.LedgerEntry{}, positions: positions}
}

func (m *memEntries) live(positionID string) []domain.LedgerEntry {
	var out []domain.LedgerEntry
	for _, e := range m.rows {
		if e.PositionID == positionID && !e.Deleted() {
			out = append(out, e)
		}
	}
	domain.SortEntries(out)
	return out
}

func (m *memEntries) List(_ context.Context, positionID string) ([]domain.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live(positionID), nil
}

func (m *memEntries) ListPage(_ context.Context, positionID string, opts domain.ListOpts) ([]domain.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.live(positionID)
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}
	if opts.Offset >= len(all) {
		return nil, nil
	}
	all = all[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(all) {
		all = all[:opts.Limit]
	}
	return all, nil
}

func (m *memEntries) GetByID(_ context.Context, id string) (domain.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.rows[id]
	if !ok || e.Deleted() {
		return domain.LedgerEntry{}, domain.ErrNotFound
	}
	return e, nil
}

func (m *memEntries) Create(ctx context.Context, e domain.LedgerEntry, check domain.LedgerCheck) (domain.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.positions.GetByID(ctx, e.PositionID); err != nil {
		return domain.LedgerEntry{}, err
	}
	if check != nil {
		if err := check(m.live(e.PositionID)); err != nil {
			return domain.LedgerEntry{}, err
		}
	}
	e.CreatedAt = time.Now().UTC()
	m.rows[e.ID] = e
	m.positions.mu.Lock()
	m.positions.bump(e.PositionID)
	m.positions.mu.Unlock()
	return e, nil
}

func (m *memEntries) CreatePair(ctx context.Context, first, second domain.LedgerEntry, check domain.LedgerCheck) (domain.LedgerEntry, domain.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range []string{first.PositionID, second.PositionID} {
		if _, err := m.positions.GetByID(ctx, id); err != nil {
			return domain.LedgerEntry{}, domain.LedgerEntry{}, err
		}
	}
	if check != nil {
		if err := check(m.live(first.PositionID)); err != nil {
			return domain.LedgerEntry{}, domain.LedgerEntry{}, err
		}
	}
	now := time.Now().UTC()
	first.CreatedAt, second.CreatedAt = now, now
	m.rows[first.ID], m.rows[second.ID] = first, second
	m.positions.mu.Lock()
	m.positions.bump(first.PositionID)
	m.positions.bump(second.PositionID)
	m.positions.mu.Unlock()
	return first, second, nil
}

func (m *memEntries) SoftDelete(_ context.Context, id string, check domain.LedgerCheck) ([]domain.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.rows[id]
	if !ok || e.Deleted() {
		return nil, domain.ErrNotFound
	}
	ids := []string{id}
	if e.LinkedEntryID != nil {
		ids = append(ids, *e.LinkedEntryID)
	}
	now := time.Now().UTC()
	var out []domain.LedgerEntry
	before := map[string]domain.LedgerEntry{}
	for _, i := range ids {
		row, ok := m.rows[i]
		if !ok || row.Deleted() {
			continue
		}
		before[i] = row
		row.DeletedAt = &now
		m.rows[i] = row
		out = append(out, row)
	}
	if check != nil {
		for _, e := range out {
			if err := check(m.live(e.PositionID)); err != nil {
				for i, row := range before {
					m.rows[i] = row
				}
				return nil, err
			}
		}
	}
	return out, nil
}

type fakeLocks struct {
	mu       sync.Mutex
	held     map[string]bool
	acquired []string
}

func newFakeLocks() *fakeLocks { return &fakeLocks{held: map[string]bool{}} }

func (f *fakeLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held[key] {
		return nil, domain.ErrLockHeld
	}
	f.held[key] = true
	f.acquired = append(f.acquired, key)
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.held, key)
	}, nil
}

type recordingBus struct {
	mu       sync.Mutex
	payloads [][]byte
}

func (b *recordingBus) Publish(_ context.Context, _ string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.payloads = append(b.payloads, payload)
	return nil
}

func (b *recordingBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return make(chan []byte), nil
}

type recordingAudit struct {
	mu     sync.Mutex
	events []string
}

func (a *recordingAudit) Log(_ context.Context, event string, _ map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
	return nil
}

func (a *recordingAudit) List(context.Context, domain.AuditFilter) ([]domain.AuditEntry, error) {
	return nil, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []domain.LedgerEvent
}

func (n *recordingNotifier) NotifyEvent(_ context.Context, ev domain.LedgerEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return nil
}

func (n *recordingNotifier) names() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, ev := range n.events {
		out = append(out, ev.Event)
	}
	return out
}

type staticPrices map[string]decimal.Decimal

func (p staticPrices) LatestPrice(_ context.Context, assetID string) (*decimal.Decimal, error) {
	v, ok := p[assetID]
	if !ok {
		return nil, nil
	}
	return &v, nil
}
