package port

import (
	"context"
	"time"

	"github.com/rl1809/scrap-lifecycle/internal/core/domain"
)

type LotRepository interface {
	// GetLot retrieves a lot by id, returns domain.ErrNotFound if absent
	GetLot(ctx context.Context, id int64) (*domain.InventoryLot, error)

	// UpdateLot merges patch into the lot if its version still equals expectedVersion.
	// Returns ErrOptimisticLock on a stale version and domain.ErrNotFound if absent.
	UpdateLot(ctx context.Context, id int64, expectedVersion int, patch domain.LotPatch) (*domain.InventoryLot, error)

	// CreateLot inserts a lot at stage collection with status available
	CreateLot(ctx context.Context, lot domain.NewLot) (*domain.InventoryLot, error)

	// ListLots returns every lot ordered by id
	ListLots(ctx context.Context) ([]domain.InventoryLot, error)
}

// AuditLog is append-only: there is deliberately no way to change or remove an entry.
type AuditLog interface {
	// Append assigns id and timestamp and stores the entry
	Append(ctx context.Context, entry domain.LifecycleUpdate) (*domain.LifecycleUpdate, error)

	// ListAll returns every entry, most recent first
	ListAll(ctx context.Context) ([]domain.LifecycleUpdate, error)

	// ListByInventory returns the entries of one lot, most recent first
	ListByInventory(ctx context.Context, inventoryID int64) ([]domain.LifecycleUpdate, error)

	// CountSince counts entries with updated_at >= since
	CountSince(ctx context.Context, since time.Time) (int, error)
}

// TxFunc runs against repositories bound to a single transaction.
type TxFunc func(ctx context.Context, lots LotRepository, audit AuditLog) error

type UnitOfWork interface {
	// WithinTx commits if fn returns nil and rolls back otherwise
	WithinTx(ctx context.Context, fn TxFunc) error
}

type Store interface {
	LotRepository
	AuditLog
	UnitOfWork
	Close() error
}
