package storage

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/scrap-lifecycle/internal/core/domain"
	"github.com/rl1809/scrap-lifecycle/internal/port"
)

func TestMemoryAdapter(t *testing.T) {
	runStoreSuite(t, func(t *testing.T, clock *testClock) port.Store {
		return NewMemoryAdapter(clock.Now)
	})
}

func TestMemoryAdapter_ReturnedLotIsACopy(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryAdapter(newTestClock().Now)

	lot, err := m.CreateLot(ctx, copperLot("LOT-COPY"))
	require.NoError(t, err)

	updated, err := m.UpdateLot(ctx, lot.ID, 0, domain.LotPatch{Barcode: strPtr("BC-1")})
	require.NoError(t, err)
	*updated.Barcode = "tampered"
	updated.LifecycleStage = domain.StageDistribution

	got, err := m.GetLot(ctx, lot.ID)
	require.NoError(t, err)
	assert.Equal(t, "BC-1", *got.Barcode)
	assert.Equal(t, domain.StageCollection, got.LifecycleStage)
}

func TestMemoryAdapter_CanceledContext(t *testing.T) {
	m := NewMemoryAdapter(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.CreateLot(ctx, copperLot("LOT-CTX"))
	assert.ErrorIs(t, err, context.Canceled)

	_, err = m.ListAll(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryAdapter_ConcurrentTransactions(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryAdapter(nil)

	lot, err := m.CreateLot(ctx, copperLot("LOT-RACE"))
	require.NoError(t, err)

	const workers = 50
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.WithinTx(ctx, func(ctx context.Context, lots port.LotRepository, audit port.AuditLog) error {
				cur, err := lots.GetLot(ctx, lot.ID)
				if err != nil {
					return err
				}
				if _, err := lots.UpdateLot(ctx, cur.ID, cur.Version, domain.LotPatch{}); err != nil {
					return err
				}
				_, err = audit.Append(ctx, domain.LifecycleUpdate{InventoryID: cur.ID, NewStage: cur.LifecycleStage, UpdatedBy: 1})
				return err
			})
		}()
	}
	wg.Wait()

	got, err := m.GetLot(ctx, lot.ID)
	require.NoError(t, err)
	assert.Equal(t, workers, got.Version)

	history, err := m.ListByInventory(ctx, lot.ID)
	require.NoError(t, err)
	assert.Len(t, history, workers)
}
