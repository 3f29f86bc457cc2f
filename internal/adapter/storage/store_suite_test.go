package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/scrap-lifecycle/internal/core/domain"
	"github.com/rl1809/scrap-lifecycle/internal/port"
)

var baseTime = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: baseTime}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type storeFactory func(t *testing.T, clock *testClock) port.Store

func stagePtr(s domain.Stage) *domain.Stage    { return &s }
func statusPtr(s domain.Status) *domain.Status { return &s }
func strPtr(s string) *string                  { return &s }

func copperLot(itemID string) domain.NewLot {
	return domain.NewLot{
		ItemID:    itemID,
		MetalType: "copper",
		Grade:     "#1 bare bright",
		Quantity:  decimal.RequireFromString("1250.500"),
		Unit:      "kg",
	}
}

// runStoreSuite checks the behaviour every port.Store implementation shares.
func runStoreSuite(t *testing.T, newStore storeFactory) {
	ctx := context.Background()

	t.Run("create lot starts at collection", func(t *testing.T) {
		store := newStore(t, newTestClock())

		lot, err := store.CreateLot(ctx, copperLot("LOT-1"))
		require.NoError(t, err)
		assert.Positive(t, lot.ID)
		assert.Equal(t, domain.StageCollection, lot.LifecycleStage)
		assert.Equal(t, domain.StatusAvailable, lot.Status)
		assert.Equal(t, 0, lot.Version)
		assert.Nil(t, lot.Barcode)
		assert.Nil(t, lot.BatchNumber)

		got, err := store.GetLot(ctx, lot.ID)
		require.NoError(t, err)
		assert.Equal(t, "LOT-1", got.ItemID)
		assert.Equal(t, "copper", got.MetalType)
		assert.True(t, got.Quantity.Equal(decimal.RequireFromString("1250.5")), "quantity %s", got.Quantity)
		assert.True(t, got.CreatedAt.Equal(baseTime))
	})

	t.Run("duplicate item id is rejected", func(t *testing.T) {
		store := newStore(t, newTestClock())

		_, err := store.CreateLot(ctx, copperLot("LOT-DUP"))
		require.NoError(t, err)

		_, err = store.CreateLot(ctx, copperLot("LOT-DUP"))
		assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	})

	t.Run("missing lot", func(t *testing.T) {
		store := newStore(t, newTestClock())

		_, err := store.GetLot(ctx, 987654)
		assert.ErrorIs(t, err, domain.ErrNotFound)

		_, err = store.UpdateLot(ctx, 987654, 0, domain.LotPatch{Status: statusPtr(domain.StatusSold)})
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("update merges only present fields", func(t *testing.T) {
		clock := newTestClock()
		store := newStore(t, clock)

		lot, err := store.CreateLot(ctx, copperLot("LOT-MERGE"))
		require.NoError(t, err)

		clock.Advance(time.Minute)
		lot, err = store.UpdateLot(ctx, lot.ID, lot.Version, domain.LotPatch{Barcode: strPtr("BC-100")})
		require.NoError(t, err)
		assert.Equal(t, 1, lot.Version)

		lot, err = store.UpdateLot(ctx, lot.ID, lot.Version, domain.LotPatch{
			LifecycleStage:  stagePtr(domain.StageSorting),
			InspectionNotes: strPtr("mixed with brass"),
		})
		require.NoError(t, err)

		assert.Equal(t, domain.StageSorting, lot.LifecycleStage)
		assert.Equal(t, domain.StatusAvailable, lot.Status)
		require.NotNil(t, lot.Barcode)
		assert.Equal(t, "BC-100", *lot.Barcode)
		require.NotNil(t, lot.InspectionNotes)
		assert.Equal(t, "mixed with brass", *lot.InspectionNotes)
		assert.Equal(t, 2, lot.Version)
		assert.True(t, lot.UpdatedAt.Equal(baseTime.Add(time.Minute)))
	})

	t.Run("stale version conflicts", func(t *testing.T) {
		store := newStore(t, newTestClock())

		lot, err := store.CreateLot(ctx, copperLot("LOT-CAS"))
		require.NoError(t, err)

		_, err = store.UpdateLot(ctx, lot.ID, 0, domain.LotPatch{Status: statusPtr(domain.StatusReserved)})
		require.NoError(t, err)

		_, err = store.UpdateLot(ctx, lot.ID, 0, domain.LotPatch{Status: statusPtr(domain.StatusSold)})
		assert.ErrorIs(t, err, port.ErrOptimisticLock)

		got, err := store.GetLot(ctx, lot.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusReserved, got.Status)
	})

	t.Run("audit log lists newest first", func(t *testing.T) {
		clock := newTestClock()
		store := newStore(t, clock)

		a, err := store.CreateLot(ctx, copperLot("LOT-A"))
		require.NoError(t, err)
		b, err := store.CreateLot(ctx, copperLot("LOT-B"))
		require.NoError(t, err)

		first, err := store.Append(ctx, domain.LifecycleUpdate{
			InventoryID: a.ID,
			NewStage:    domain.StageCollection,
			UpdatedBy:   3,
		})
		require.NoError(t, err)
		assert.Positive(t, first.ID)
		assert.True(t, first.UpdatedAt.Equal(baseTime))

		for _, st := range []domain.Stage{domain.StageSorting, domain.StageCleaning} {
			clock.Advance(time.Minute)
			_, err := store.Append(ctx, domain.NewLifecycleUpdate(a.ID, domain.StageCollection,
				domain.LotPatch{LifecycleStage: stagePtr(st), BatchNumber: strPtr("B-7")}, 3))
			require.NoError(t, err)
		}
		clock.Advance(time.Minute)
		_, err = store.Append(ctx, domain.NewLifecycleUpdate(b.ID, domain.StageCollection,
			domain.LotPatch{Status: statusPtr(domain.StatusReserved)}, 4))
		require.NoError(t, err)

		history, err := store.ListByInventory(ctx, a.ID)
		require.NoError(t, err)
		require.Len(t, history, 3)
		assert.Equal(t, domain.StageCleaning, history[0].NewStage)
		assert.Equal(t, domain.StageSorting, history[1].NewStage)
		assert.Equal(t, domain.StageCollection, history[2].NewStage)

		oldest := history[2]
		assert.Nil(t, oldest.PreviousStage)
		assert.Nil(t, oldest.Status)
		assert.Nil(t, oldest.BatchNumber)
		require.NotNil(t, history[0].BatchNumber)
		assert.Equal(t, "B-7", *history[0].BatchNumber)

		all, err := store.ListAll(ctx)
		require.NoError(t, err)
		require.Len(t, all, 4)
		assert.Equal(t, b.ID, all[0].InventoryID)
		require.NotNil(t, all[0].Status)
		assert.Equal(t, domain.StatusReserved, *all[0].Status)
		assert.Equal(t, int64(4), all[0].UpdatedBy)

		again, err := store.ListAll(ctx)
		require.NoError(t, err)
		assert.Equal(t, all, again)
	})

	t.Run("count since includes boundary", func(t *testing.T) {
		clock := newTestClock()
		store := newStore(t, clock)

		lot, err := store.CreateLot(ctx, copperLot("LOT-WINDOW"))
		require.NoError(t, err)

		week := 7 * 24 * time.Hour
		for _, at := range []time.Time{baseTime.Add(-week - 24*time.Hour), baseTime.Add(-week)} {
			clock.Set(at)
			_, err := store.Append(ctx, domain.LifecycleUpdate{InventoryID: lot.ID, NewStage: domain.StageSorting, UpdatedBy: 1})
			require.NoError(t, err)
		}

		n, err := store.CountSince(ctx, baseTime.Add(-week))
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		n, err = store.CountSince(ctx, baseTime.Add(-30*24*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	t.Run("transaction rolls back both writes", func(t *testing.T) {
		store := newStore(t, newTestClock())

		lot, err := store.CreateLot(ctx, copperLot("LOT-TX"))
		require.NoError(t, err)

		boom := errors.New("audit write failed")
		err = store.WithinTx(ctx, func(ctx context.Context, lots port.LotRepository, audit port.AuditLog) error {
			if _, err := lots.UpdateLot(ctx, lot.ID, lot.Version, domain.LotPatch{LifecycleStage: stagePtr(domain.StageMelting)}); err != nil {
				return err
			}
			if _, err := audit.Append(ctx, domain.LifecycleUpdate{InventoryID: lot.ID, NewStage: domain.StageMelting, UpdatedBy: 1}); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)

		got, err := store.GetLot(ctx, lot.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StageCollection, got.LifecycleStage)
		assert.Equal(t, 0, got.Version)

		history, err := store.ListByInventory(ctx, lot.ID)
		require.NoError(t, err)
		assert.Empty(t, history)
	})

	t.Run("transaction commits both writes", func(t *testing.T) {
		store := newStore(t, newTestClock())

		lot, err := store.CreateLot(ctx, copperLot("LOT-TX-OK"))
		require.NoError(t, err)

		err = store.WithinTx(ctx, func(ctx context.Context, lots port.LotRepository, audit port.AuditLog) error {
			if _, err := lots.UpdateLot(ctx, lot.ID, lot.Version, domain.LotPatch{LifecycleStage: stagePtr(domain.StageMelting)}); err != nil {
				return err
			}
			_, err := audit.Append(ctx, domain.LifecycleUpdate{InventoryID: lot.ID, NewStage: domain.StageMelting, UpdatedBy: 1})
			return err
		})
		require.NoError(t, err)

		got, err := store.GetLot(ctx, lot.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StageMelting, got.LifecycleStage)

		history, err := store.ListByInventory(ctx, lot.ID)
		require.NoError(t, err)
		assert.Len(t, history, 1)
	})

	t.Run("list lots by id", func(t *testing.T) {
		store := newStore(t, newTestClock())

		for _, id := range []string{"LOT-X", "LOT-Y", "LOT-Z"} {
			_, err := store.CreateLot(ctx, copperLot(id))
			require.NoError(t, err)
		}

		lots, err := store.ListLots(ctx)
		require.NoError(t, err)
		require.Len(t, lots, 3)
		assert.Equal(t, "LOT-X", lots[0].ItemID)
		assert.Equal(t, "LOT-Z", lots[2].ItemID)
	})
}
