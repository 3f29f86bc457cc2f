package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rl1809/scrap-lifecycle/internal/core/domain"
	"github.com/rl1809/scrap-lifecycle/internal/port"
)

// MemoryAdapter keeps lots and the audit log in process. Transactions work on
// a copy of the state that replaces the original only on success.
type MemoryAdapter struct {
	mu    sync.Mutex
	state memState
	now   func() time.Time
}

type memState struct {
	lots         map[int64]domain.InventoryLot
	itemIDs      map[string]int64
	updates      []domain.LifecycleUpdate
	nextLotID    int64
	nextUpdateID int64
}

func NewMemoryAdapter(now func() time.Time) *MemoryAdapter {
	if now == nil {
		now = time.Now
	}
	return &MemoryAdapter{
		state: memState{
			lots:    make(map[int64]domain.InventoryLot),
			itemIDs: make(map[string]int64),
		},
		now: now,
	}
}

var _ port.Store = (*MemoryAdapter)(nil)

func (m *MemoryAdapter) WithinTx(ctx context.Context, fn port.TxFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	work := m.state.clone()
	tx := &memTx{st: &work, now: m.now}
	if err := fn(ctx, tx, tx); err != nil {
		return err
	}
	m.state = work
	return nil
}

func (m *MemoryAdapter) GetLot(ctx context.Context, id int64) (*domain.InventoryLot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tx().GetLot(ctx, id)
}

func (m *MemoryAdapter) UpdateLot(ctx context.Context, id int64, expectedVersion int, patch domain.LotPatch) (*domain.InventoryLot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tx().UpdateLot(ctx, id, expectedVersion, patch)
}

func (m *MemoryAdapter) CreateLot(ctx context.Context, lot domain.NewLot) (*domain.InventoryLot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tx().CreateLot(ctx, lot)
}

func (m *MemoryAdapter) ListLots(ctx context.Context) ([]domain.InventoryLot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tx().ListLots(ctx)
}

func (m *MemoryAdapter) Append(ctx context.Context, entry domain.LifecycleUpdate) (*domain.LifecycleUpdate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tx().Append(ctx, entry)
}

func (m *MemoryAdapter) ListAll(ctx context.Context) ([]domain.LifecycleUpdate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tx().ListAll(ctx)
}

func (m *MemoryAdapter) ListByInventory(ctx context.Context, inventoryID int64) ([]domain.LifecycleUpdate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tx().ListByInventory(ctx, inventoryID)
}

func (m *MemoryAdapter) CountSince(ctx context.Context, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tx().CountSince(ctx, since)
}

func (m *MemoryAdapter) Close() error { return nil }

func (m *MemoryAdapter) tx() *memTx {
	return &memTx{st: &m.state, now: m.now}
}

func (s memState) clone() memState {
	out := memState{
		lots:         make(map[int64]domain.InventoryLot, len(s.lots)),
		itemIDs:      make(map[string]int64, len(s.itemIDs)),
		updates:      make([]domain.LifecycleUpdate, len(s.updates)),
		nextLotID:    s.nextLotID,
		nextUpdateID: s.nextUpdateID,
	}
	for id, lot := range s.lots {
		out.lots[id] = lot.Clone()
	}
	for k, v := range s.itemIDs {
		out.itemIDs[k] = v
	}
	copy(out.updates, s.updates)
	return out
}

// memTx implements the repositories over a state the caller has locked.
type memTx struct {
	st  *memState
	now func() time.Time
}

func (t *memTx) GetLot(ctx context.Context, id int64) (*domain.InventoryLot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	lot, ok := t.st.lots[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := lot.Clone()
	return &out, nil
}

func (t *memTx) UpdateLot(ctx context.Context, id int64, expectedVersion int, patch domain.LotPatch) (*domain.InventoryLot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	lot, ok := t.st.lots[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if lot.Version != expectedVersion {
		return nil, port.ErrOptimisticLock
	}

	patch.Apply(&lot)
	lot.Version++
	lot.UpdatedAt = t.now().UTC()
	t.st.lots[id] = lot

	out := lot.Clone()
	return &out, nil
}

func (t *memTx) CreateLot(ctx context.Context, in domain.NewLot) (*domain.InventoryLot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, dup := t.st.itemIDs[in.ItemID]; dup {
		return nil, domain.InvalidArgument("itemId %q already exists", in.ItemID)
	}

	t.st.nextLotID++
	now := t.now().UTC()
	lot := domain.InventoryLot{
		ID:             t.st.nextLotID,
		ItemID:         in.ItemID,
		MetalType:      in.MetalType,
		Grade:          in.Grade,
		Quantity:       in.Quantity,
		Unit:           in.Unit,
		LifecycleStage: domain.StageCollection,
		Status:         domain.StatusAvailable,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	t.st.lots[lot.ID] = lot
	t.st.itemIDs[lot.ItemID] = lot.ID

	out := lot.Clone()
	return &out, nil
}

func (t *memTx) ListLots(ctx context.Context) ([]domain.InventoryLot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]domain.InventoryLot, 0, len(t.st.lots))
	for _, lot := range t.st.lots {
		out = append(out, lot.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memTx) Append(ctx context.Context, entry domain.LifecycleUpdate) (*domain.LifecycleUpdate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.st.nextUpdateID++
	entry.ID = t.st.nextUpdateID
	entry.UpdatedAt = t.now().UTC()
	t.st.updates = append(t.st.updates, entry)

	out := entry
	return &out, nil
}

func (t *memTx) ListAll(ctx context.Context) ([]domain.LifecycleUpdate, error) {
	return t.filter(ctx, func(domain.LifecycleUpdate) bool { return true })
}

func (t *memTx) ListByInventory(ctx context.Context, inventoryID int64) ([]domain.LifecycleUpdate, error) {
	return t.filter(ctx, func(e domain.LifecycleUpdate) bool { return e.InventoryID == inventoryID })
}

func (t *memTx) CountSince(ctx context.Context, since time.Time) (int, error) {
	entries, err := t.filter(ctx, func(e domain.LifecycleUpdate) bool { return !e.UpdatedAt.Before(since) })
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

func (t *memTx) filter(ctx context.Context, keep func(domain.LifecycleUpdate) bool) ([]domain.LifecycleUpdate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]domain.LifecycleUpdate, 0)
	for _, e := range t.st.updates {
		if keep(e) {
			out = append(out, e)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

// sortNewestFirst orders by updated_at descending, newest id first on ties.
func sortNewestFirst(entries []domain.LifecycleUpdate) {
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].UpdatedAt.Equal(entries[j].UpdatedAt) {
			return entries[i].UpdatedAt.After(entries[j].UpdatedAt)
		}
		return entries[i].ID > entries[j].ID
	})
}
