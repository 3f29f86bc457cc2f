package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"

	"github.com/rl1809/scrap-lifecycle/internal/core/domain"
	"github.com/rl1809/scrap-lifecycle/internal/port"
)

const lotColumns = `id, item_id, metal_type, grade, quantity, unit, lifecycle_stage, status,
	barcode, qr_code, batch_number, inspection_notes, version, created_at, updated_at`

const updateColumns = `id, inventory_id, previous_stage, new_stage, status,
	barcode, qr_code, batch_number, inspection_notes, updated_by, updated_at`

// SQLAdapter stores lots and their audit log in MySQL, Postgres or SQLite.
type SQLAdapter struct {
	*sqlRepo
	db *sql.DB
}

func NewSQLAdapter(db *sql.DB, dialect Dialect, now func() time.Time) *SQLAdapter {
	if now == nil {
		now = time.Now
	}
	return &SQLAdapter{
		sqlRepo: &sqlRepo{q: db, dialect: dialect, now: now},
		db:      db,
	}
}

var _ port.Store = (*SQLAdapter)(nil)

func (a *SQLAdapter) WithinTx(ctx context.Context, fn port.TxFunc) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	repo := &sqlRepo{q: tx, dialect: a.dialect, now: a.now}
	if err := fn(ctx, repo, repo); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (a *SQLAdapter) Close() error {
	return a.db.Close()
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// sqlRepo runs queries against either the pool or a transaction.
type sqlRepo struct {
	q       querier
	dialect Dialect
	now     func() time.Time
}

func (r *sqlRepo) GetLot(ctx context.Context, id int64) (*domain.InventoryLot, error) {
	row := r.q.QueryRowContext(ctx, r.rebind(`SELECT `+lotColumns+` FROM inventory_lots WHERE id = ?`), id)

	lot, err := scanLot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query lot: %w", err)
	}
	return lot, nil
}

func (r *sqlRepo) UpdateLot(ctx context.Context, id int64, expectedVersion int, patch domain.LotPatch) (*domain.InventoryLot, error) {
	sets := make([]string, 0, 8)
	args := make([]any, 0, 10)

	if patch.LifecycleStage != nil {
		sets = append(sets, "lifecycle_stage = ?")
		args = append(args, string(*patch.LifecycleStage))
	}
	if patch.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*patch.Status))
	}
	if patch.Barcode != nil {
		sets = append(sets, "barcode = ?")
		args = append(args, *patch.Barcode)
	}
	if patch.QRCode != nil {
		sets = append(sets, "qr_code = ?")
		args = append(args, *patch.QRCode)
	}
	if patch.BatchNumber != nil {
		sets = append(sets, "batch_number = ?")
		args = append(args, *patch.BatchNumber)
	}
	if patch.InspectionNotes != nil {
		sets = append(sets, "inspection_notes = ?")
		args = append(args, *patch.InspectionNotes)
	}
	sets = append(sets, "version = version + 1", "updated_at = ?")
	args = append(args, r.now().UTC(), id, expectedVersion)

	result, err := r.q.ExecContext(ctx, r.rebind(`
		UPDATE inventory_lots
		SET `+strings.Join(sets, ", ")+`
		WHERE id = ? AND version = ?`), args...)
	if err != nil {
		return nil, fmt.Errorf("update lot: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update lot: %w", err)
	}
	if rows == 0 {
		if _, err := r.GetLot(ctx, id); err != nil {
			return nil, err
		}
		return nil, port.ErrOptimisticLock
	}

	return r.GetLot(ctx, id)
}

func (r *sqlRepo) CreateLot(ctx context.Context, in domain.NewLot) (*domain.InventoryLot, error) {
	now := r.now().UTC()
	query := `
		INSERT INTO inventory_lots
			(item_id, metal_type, grade, quantity, unit, lifecycle_stage, status, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`
	args := []any{
		in.ItemID, in.MetalType, in.Grade, in.Quantity, in.Unit,
		string(domain.StageCollection), string(domain.StatusAvailable), now, now,
	}

	id, err := r.insert(ctx, query, args...)
	if isUniqueViolation(err) {
		return nil, domain.InvalidArgument("itemId %q already exists", in.ItemID)
	}
	if err != nil {
		return nil, fmt.Errorf("insert lot: %w", err)
	}
	return r.GetLot(ctx, id)
}

func (r *sqlRepo) ListLots(ctx context.Context) ([]domain.InventoryLot, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+lotColumns+` FROM inventory_lots ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query lots: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]domain.InventoryLot, 0)
	for rows.Next() {
		lot, err := scanLot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lot: %w", err)
		}
		out = append(out, *lot)
	}
	return out, rows.Err()
}

func (r *sqlRepo) Append(ctx context.Context, entry domain.LifecycleUpdate) (*domain.LifecycleUpdate, error) {
	entry.UpdatedAt = r.now().UTC()

	var prev, status any
	if entry.PreviousStage != nil {
		prev = string(*entry.PreviousStage)
	}
	if entry.Status != nil {
		status = string(*entry.Status)
	}

	id, err := r.insert(ctx, `
		INSERT INTO lifecycle_updates
			(inventory_id, previous_stage, new_stage, status, barcode, qr_code, batch_number, inspection_notes, updated_by, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.InventoryID, prev, string(entry.NewStage), status,
		nullable(entry.Barcode), nullable(entry.QRCode), nullable(entry.BatchNumber), nullable(entry.InspectionNotes),
		entry.UpdatedBy, entry.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert lifecycle update: %w", err)
	}

	entry.ID = id
	return &entry, nil
}

func (r *sqlRepo) ListAll(ctx context.Context) ([]domain.LifecycleUpdate, error) {
	return r.queryUpdates(ctx, `SELECT `+updateColumns+` FROM lifecycle_updates ORDER BY updated_at DESC, id DESC`)
}

func (r *sqlRepo) ListByInventory(ctx context.Context, inventoryID int64) ([]domain.LifecycleUpdate, error) {
	return r.queryUpdates(ctx, `SELECT `+updateColumns+` FROM lifecycle_updates
		WHERE inventory_id = ? ORDER BY updated_at DESC, id DESC`, inventoryID)
}

func (r *sqlRepo) CountSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := r.q.QueryRowContext(ctx, r.rebind(`SELECT COUNT(*) FROM lifecycle_updates WHERE updated_at >= ?`), since.UTC()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count lifecycle updates: %w", err)
	}
	return n, nil
}

func (r *sqlRepo) queryUpdates(ctx context.Context, query string, args ...any) ([]domain.LifecycleUpdate, error) {
	rows, err := r.q.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query lifecycle updates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]domain.LifecycleUpdate, 0)
	for rows.Next() {
		var (
			e                         domain.LifecycleUpdate
			prev, status              sql.NullString
			barcode, qr, batch, notes sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.InventoryID, &prev, &e.NewStage, &status,
			&barcode, &qr, &batch, &notes, &e.UpdatedBy, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan lifecycle update: %w", err)
		}
		if prev.Valid {
			s := domain.Stage(prev.String)
			e.PreviousStage = &s
		}
		if status.Valid {
			s := domain.Status(status.String)
			e.Status = &s
		}
		e.Barcode = fromNull(barcode)
		e.QRCode = fromNull(qr)
		e.BatchNumber = fromNull(batch)
		e.InspectionNotes = fromNull(notes)
		e.UpdatedAt = e.UpdatedAt.UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// insert runs an INSERT and returns the new row id. Postgres has no
// LastInsertId, so the id comes back through RETURNING there.
func (r *sqlRepo) insert(ctx context.Context, query string, args ...any) (int64, error) {
	if r.dialect == DialectPostgres {
		var id int64
		err := r.q.QueryRowContext(ctx, r.rebind(query+` RETURNING id`), args...).Scan(&id)
		return id, err
	}

	result, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// rebind turns ? placeholders into $n for Postgres.
func (r *sqlRepo) rebind(query string) string {
	if r.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLot(row rowScanner) (*domain.InventoryLot, error) {
	var (
		lot                       domain.InventoryLot
		stage                     sql.NullString
		barcode, qr, batch, notes sql.NullString
	)
	err := row.Scan(&lot.ID, &lot.ItemID, &lot.MetalType, &lot.Grade, &lot.Quantity, &lot.Unit,
		&stage, &lot.Status, &barcode, &qr, &batch, &notes, &lot.Version, &lot.CreatedAt, &lot.UpdatedAt)
	if err != nil {
		return nil, err
	}
	lot.LifecycleStage = domain.Stage(stage.String)
	lot.Barcode = fromNull(barcode)
	lot.QRCode = fromNull(qr)
	lot.BatchNumber = fromNull(batch)
	lot.InspectionNotes = fromNull(notes)
	lot.CreatedAt = lot.CreatedAt.UTC()
	lot.UpdatedAt = lot.UpdatedAt.UTC()
	return &lot, nil
}

func fromNull(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		// SQLITE_CONSTRAINT_UNIQUE, SQLITE_CONSTRAINT_PRIMARYKEY
		return liteErr.Code() == 2067 || liteErr.Code() == 1555
	}
	return false
}
