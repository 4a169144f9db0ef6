/*
Package sqlite provides the SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements consign.Store and consign.TxStore on database/sql. In
  production, the same patterns apply to PostgreSQL - only minor SQL
  dialect differences.

TRANSACTIONS:
  WithTx opens one database transaction and hands the workflows a Store
  view bound to it. The connection is opened with _txlock=immediate so
  write transactions take the write lock up front: two workflows racing
  for the same batch or balance serialize at BEGIN, not at COMMIT.

RELATIVE UPDATES:
  Quantity changes go through a guarded relative UPDATE:

    UPDATE stock_batches SET remaining = remaining + ?
    WHERE id = ? AND remaining + ? >= 0

  so a decrement can never be lost to a read-modify-write race and can
  never drive remaining negative. The cash balance is a decimal string,
  so it is adjusted read-then-write - safe under the immediate write
  transaction.

MONEY & TIME:
  Amounts are stored as decimal strings (shopspring/decimal round-trips
  exactly). Timestamps are RFC3339; batch release dates are stored at day
  granularity ("2006-01-02").

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - consign/store.go: Interface definitions
  - consign/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/lapak/consignment-engine/consign"
)

const dayFormat = "2006-01-02"

// Store implements consign.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.Mutex // serializes WithTx; sqlite allows one writer at a time
	conn
}

// New opens (or creates) the database at dbPath. Use ":memory:" for an
// in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_txlock=immediate&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection: sqlite has a single writer anyway, and ":memory:"
	// databases are per-connection.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, conn: conn{q: db}}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sellers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS admins (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS stock_batches (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		item_id INTEGER NOT NULL REFERENCES items(id),
		price TEXT NOT NULL,
		cost TEXT NOT NULL,
		remaining INTEGER NOT NULL CHECK (remaining >= 0),
		date TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_stock_batches_date ON stock_batches(date);
	CREATE INDEX IF NOT EXISTS idx_stock_batches_item ON stock_batches(item_id);

	CREATE TABLE IF NOT EXISTS acquisitions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		seller_id INTEGER NOT NULL REFERENCES sellers(id),
		admin_id INTEGER NOT NULL REFERENCES admins(id),
		note TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_acquisitions_seller ON acquisitions(seller_id);
	CREATE INDEX IF NOT EXISTS idx_acquisitions_status ON acquisitions(status);

	CREATE TABLE IF NOT EXISTS line_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		acquisition_id INTEGER NOT NULL REFERENCES acquisitions(id),
		batch_id INTEGER NOT NULL REFERENCES stock_batches(id),
		qty INTEGER NOT NULL CHECK (qty > 0),
		unit_price TEXT NOT NULL,
		total TEXT NOT NULL,
		deposited_at TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_line_items_acquisition ON line_items(acquisition_id);
	CREATE INDEX IF NOT EXISTS idx_line_items_batch ON line_items(batch_id);

	-- Append-only ledger; the only delete path is the guarded manual-entry
	-- delete in the Ledger component.
	CREATE TABLE IF NOT EXISTS ledger_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		line_item_id INTEGER REFERENCES line_items(id),
		title TEXT NOT NULL,
		kind TEXT NOT NULL CHECK (kind IN ('INCOME', 'EXPENSE')),
		amount TEXT NOT NULL,
		note TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_ledger_entries_created ON ledger_entries(created_at);

	-- Singleton row: the running cash balance ("saldo").
	CREATE TABLE IF NOT EXISTS cash_balance (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		balance TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// WithTx executes fn within one database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(consign.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&conn{q: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

// =============================================================================
// CONNECTION VIEW - all row operations, usable on *sql.DB or *sql.Tx
// =============================================================================

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type conn struct {
	q dbtx
}

func now() string { return time.Now().UTC().Format(time.RFC3339) }

// --- item catalog ---

func (c *conn) CreateItem(ctx context.Context, name string) (consign.Item, error) {
	createdAt := time.Now().UTC()
	res, err := c.q.ExecContext(ctx,
		`INSERT INTO items (name, created_at) VALUES (?, ?)`,
		name, createdAt.Format(time.RFC3339))
	if err != nil {
		return consign.Item{}, fmt.Errorf("failed to create item: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return consign.Item{}, err
	}
	return consign.Item{ID: int(id), Name: name, CreatedAt: createdAt}, nil
}

func (c *conn) GetItem(ctx context.Context, id int) (*consign.Item, error) {
	var (
		it      consign.Item
		created string
	)
	err := c.q.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM items WHERE id = ?`, id,
	).Scan(&it.ID, &it.Name, &created)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	it.CreatedAt, _ = time.Parse(time.RFC3339, created)
	return &it, nil
}

func (c *conn) ListItems(ctx context.Context) ([]consign.Item, error) {
	rows, err := c.q.QueryContext(ctx, `SELECT id, name, created_at FROM items ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	var out []consign.Item
	for rows.Next() {
		var (
			it      consign.Item
			created string
		)
		if err := rows.Scan(&it.ID, &it.Name, &created); err != nil {
			return nil, err
		}
		it.CreatedAt, _ = time.Parse(time.RFC3339, created)
		out = append(out, it)
	}
	return out, rows.Err()
}

// --- identity ---

func (c *conn) CreateSeller(ctx context.Context, name string) (consign.Seller, error) {
	createdAt := time.Now().UTC()
	res, err := c.q.ExecContext(ctx,
		`INSERT INTO sellers (name, created_at) VALUES (?, ?)`,
		name, createdAt.Format(time.RFC3339))
	if err != nil {
		return consign.Seller{}, fmt.Errorf("failed to create seller: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return consign.Seller{}, err
	}
	return consign.Seller{ID: int(id), Name: name, CreatedAt: createdAt}, nil
}

func (c *conn) CreateAdmin(ctx context.Context, name string) (consign.Admin, error) {
	createdAt := time.Now().UTC()
	res, err := c.q.ExecContext(ctx,
		`INSERT INTO admins (name, created_at) VALUES (?, ?)`,
		name, createdAt.Format(time.RFC3339))
	if err != nil {
		return consign.Admin{}, fmt.Errorf("failed to create admin: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return consign.Admin{}, err
	}
	return consign.Admin{ID: int(id), Name: name, CreatedAt: createdAt}, nil
}

func (c *conn) ListSellers(ctx context.Context) ([]consign.Seller, error) {
	rows, err := c.q.QueryContext(ctx, `SELECT id, name, created_at FROM sellers ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sellers: %w", err)
	}
	defer rows.Close()

	var out []consign.Seller
	for rows.Next() {
		var (
			s       consign.Seller
			created string
		)
		if err := rows.Scan(&s.ID, &s.Name, &created); err != nil {
			return nil, err
		}
		s.CreatedAt, _ = time.Parse(time.RFC3339, created)
		out = append(out, s)
	}
	return out, rows.Err()
}

func (c *conn) ListAdmins(ctx context.Context) ([]consign.Admin, error) {
	rows, err := c.q.QueryContext(ctx, `SELECT id, name, created_at FROM admins ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list admins: %w", err)
	}
	defer rows.Close()

	var out []consign.Admin
	for rows.Next() {
		var (
			a       consign.Admin
			created string
		)
		if err := rows.Scan(&a.ID, &a.Name, &created); err != nil {
			return nil, err
		}
		a.CreatedAt, _ = time.Parse(time.RFC3339, created)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (c *conn) SellerExists(ctx context.Context, id int) (bool, error) {
	var n int
	err := c.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM sellers WHERE id = ?`, id).Scan(&n)
	return n > 0, err
}

func (c *conn) AdminExists(ctx context.Context, id int) (bool, error) {
	var n int
	err := c.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM admins WHERE id = ?`, id).Scan(&n)
	return n > 0, err
}

// --- stock batches ---

func (c *conn) CreateBatch(ctx context.Context, b consign.StockBatch) (consign.StockBatch, error) {
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	res, err := c.q.ExecContext(ctx, `
		INSERT INTO stock_batches (item_id, price, cost, remaining, date, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		b.ItemID, b.Price.String(), b.Cost.String(), b.Remaining,
		b.Date.UTC().Format(dayFormat), b.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return consign.StockBatch{}, fmt.Errorf("failed to create batch: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return consign.StockBatch{}, err
	}
	b.ID = int(id)
	return b, nil
}

const batchColumns = `id, item_id, price, cost, remaining, date, created_at`

func scanBatch(row interface{ Scan(...any) error }) (*consign.StockBatch, error) {
	var (
		b             consign.StockBatch
		price, cost   string
		date, created string
	)
	if err := row.Scan(&b.ID, &b.ItemID, &price, &cost, &b.Remaining, &date, &created); err != nil {
		return nil, err
	}
	var err error
	if b.Price, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("bad price %q: %w", price, err)
	}
	if b.Cost, err = decimal.NewFromString(cost); err != nil {
		return nil, fmt.Errorf("bad cost %q: %w", cost, err)
	}
	b.Date, _ = time.Parse(dayFormat, date)
	b.CreatedAt, _ = time.Parse(time.RFC3339, created)
	return &b, nil
}

func (c *conn) GetBatch(ctx context.Context, id int) (*consign.StockBatch, error) {
	row := c.q.QueryRowContext(ctx,
		`SELECT `+batchColumns+` FROM stock_batches WHERE id = ?`, id)
	b, err := scanBatch(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get batch: %w", err)
	}
	return b, nil
}

func (c *conn) UpdateBatchPricing(ctx context.Context, id int, price, cost decimal.Decimal) error {
	res, err := c.q.ExecContext(ctx,
		`UPDATE stock_batches SET price = ?, cost = ? WHERE id = ?`,
		price.String(), cost.String(), id)
	if err != nil {
		return fmt.Errorf("failed to update batch: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &consign.NotFoundError{Entity: "stock batch", IDs: []int{id}}
	}
	return nil
}

func (c *conn) AdjustBatchRemaining(ctx context.Context, id int, delta int) error {
	// Guarded relative update: no read-modify-write, no negative stock.
	res, err := c.q.ExecContext(ctx, `
		UPDATE stock_batches SET remaining = remaining + ?
		WHERE id = ? AND remaining + ? >= 0`,
		delta, id, delta)
	if err != nil {
		return fmt.Errorf("failed to adjust batch remaining: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	var remaining int
	err = c.q.QueryRowContext(ctx, `SELECT remaining FROM stock_batches WHERE id = ?`, id).Scan(&remaining)
	if err == sql.ErrNoRows {
		return &consign.NotFoundError{Entity: "stock batch", IDs: []int{id}}
	}
	if err != nil {
		return err
	}
	return &consign.InsufficientStockError{BatchID: id, Remaining: remaining, Requested: -delta}
}

func (c *conn) DeleteBatch(ctx context.Context, id int) error {
	res, err := c.q.ExecContext(ctx, `DELETE FROM stock_batches WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete batch: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &consign.NotFoundError{Entity: "stock batch", IDs: []int{id}}
	}
	return nil
}

func (c *conn) queryBatches(ctx context.Context, query string, args ...any) ([]consign.StockBatch, error) {
	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query batches: %w", err)
	}
	defer rows.Close()

	var out []consign.StockBatch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func (c *conn) ListBatchesByDate(ctx context.Context, day time.Time) ([]consign.StockBatch, error) {
	return c.queryBatches(ctx,
		`SELECT `+batchColumns+` FROM stock_batches WHERE date = ? ORDER BY id`,
		day.UTC().Format(dayFormat))
}

func (c *conn) ListBatchesInRange(ctx context.Context, from, to time.Time) ([]consign.StockBatch, error) {
	return c.queryBatches(ctx,
		`SELECT `+batchColumns+` FROM stock_batches WHERE date >= ? AND date <= ? ORDER BY id`,
		from.UTC().Format(dayFormat), to.UTC().Format(dayFormat))
}

func (c *conn) BatchHasLineItems(ctx context.Context, id int) (bool, error) {
	var n int
	err := c.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM line_items WHERE batch_id = ?`, id).Scan(&n)
	return n > 0, err
}

func (c *conn) BatchAllocationStats(ctx context.Context, id int) (int, int, error) {
	var taken int
	if err := c.q.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(qty), 0) FROM line_items WHERE batch_id = ?`, id).Scan(&taken); err != nil {
		return 0, 0, err
	}
	var depositors int
	err := c.q.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT a.seller_id)
		FROM line_items li
		JOIN acquisitions a ON a.id = li.acquisition_id
		WHERE li.batch_id = ? AND li.deposited_at IS NOT NULL`, id).Scan(&depositors)
	return taken, depositors, err
}

// --- acquisitions ---

func (c *conn) CreateAcquisition(ctx context.Context, a consign.Acquisition, lines []consign.LineItem) (consign.Acquisition, error) {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	res, err := c.q.ExecContext(ctx, `
		INSERT INTO acquisitions (seller_id, admin_id, note, status, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		a.SellerID, a.AdminID, a.Note, string(a.Status), a.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return consign.Acquisition{}, fmt.Errorf("failed to create acquisition: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return consign.Acquisition{}, err
	}
	a.ID = int(id)
	a.Lines = nil

	for _, li := range lines {
		if li.CreatedAt.IsZero() {
			li.CreatedAt = a.CreatedAt
		}
		res, err := c.q.ExecContext(ctx, `
			INSERT INTO line_items (acquisition_id, batch_id, qty, unit_price, total, deposited_at, created_at)
			VALUES (?, ?, ?, ?, ?, NULL, ?)`,
			a.ID, li.BatchID, li.Qty, li.UnitPrice.String(), li.Total.String(),
			li.CreatedAt.Format(time.RFC3339))
		if err != nil {
			return consign.Acquisition{}, fmt.Errorf("failed to create line item: %w", err)
		}
		lineID, err := res.LastInsertId()
		if err != nil {
			return consign.Acquisition{}, err
		}
		li.ID = int(lineID)
		li.AcquisitionID = a.ID
		a.Lines = append(a.Lines, li)
	}
	return a, nil
}

const acquisitionColumns = `id, seller_id, admin_id, note, status, created_at`

func scanAcquisition(row interface{ Scan(...any) error }) (*consign.Acquisition, error) {
	var (
		a               consign.Acquisition
		status, created string
	)
	if err := row.Scan(&a.ID, &a.SellerID, &a.AdminID, &a.Note, &status, &created); err != nil {
		return nil, err
	}
	a.Status = consign.DepositStatus(status)
	a.CreatedAt, _ = time.Parse(time.RFC3339, created)
	return &a, nil
}

func (c *conn) GetAcquisition(ctx context.Context, id int) (*consign.Acquisition, error) {
	row := c.q.QueryRowContext(ctx,
		`SELECT `+acquisitionColumns+` FROM acquisitions WHERE id = ?`, id)
	a, err := scanAcquisition(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get acquisition: %w", err)
	}
	a.Lines, err = c.ListLineItemsByAcquisition(ctx, a.ID)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (c *conn) ListAcquisitionsBySeller(ctx context.Context, sellerID int) ([]consign.Acquisition, error) {
	rows, err := c.q.QueryContext(ctx,
		`SELECT `+acquisitionColumns+` FROM acquisitions WHERE seller_id = ? ORDER BY id`, sellerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list acquisitions: %w", err)
	}
	defer rows.Close()

	var out []consign.Acquisition
	for rows.Next() {
		a, err := scanAcquisition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if out[i].Lines, err = c.ListLineItemsByAcquisition(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (c *conn) ListPendingAcquisitions(ctx context.Context) ([]consign.Acquisition, error) {
	rows, err := c.q.QueryContext(ctx, `
		SELECT `+acquisitionColumns+` FROM acquisitions
		WHERE status IN (?, ?)
		ORDER BY id`,
		string(consign.StatusNoneDeposited), string(consign.StatusPartiallyDeposited))
	if err != nil {
		return nil, fmt.Errorf("failed to list pending acquisitions: %w", err)
	}
	defer rows.Close()

	var out []consign.Acquisition
	for rows.Next() {
		a, err := scanAcquisition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Lines, err = c.queryLineItems(ctx, `
			SELECT `+lineItemColumns+` FROM line_items
			WHERE acquisition_id = ? AND deposited_at IS NULL
			ORDER BY id`, out[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (c *conn) SetAcquisitionStatus(ctx context.Context, id int, status consign.DepositStatus) error {
	res, err := c.q.ExecContext(ctx,
		`UPDATE acquisitions SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("failed to set acquisition status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &consign.NotFoundError{Entity: "acquisition", IDs: []int{id}}
	}
	return nil
}

func (c *conn) DeleteAcquisition(ctx context.Context, id int) error {
	res, err := c.q.ExecContext(ctx, `DELETE FROM acquisitions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete acquisition: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &consign.NotFoundError{Entity: "acquisition", IDs: []int{id}}
	}
	return nil
}

// --- line items ---

const lineItemColumns = `id, acquisition_id, batch_id, qty, unit_price, total, deposited_at, created_at`

func scanLineItem(row interface{ Scan(...any) error }) (*consign.LineItem, error) {
	var (
		li               consign.LineItem
		unitPrice, total string
		deposited        sql.NullString
		created          string
	)
	if err := row.Scan(&li.ID, &li.AcquisitionID, &li.BatchID, &li.Qty, &unitPrice, &total, &deposited, &created); err != nil {
		return nil, err
	}
	var err error
	if li.UnitPrice, err = decimal.NewFromString(unitPrice); err != nil {
		return nil, fmt.Errorf("bad unit price %q: %w", unitPrice, err)
	}
	if li.Total, err = decimal.NewFromString(total); err != nil {
		return nil, fmt.Errorf("bad total %q: %w", total, err)
	}
	if deposited.Valid {
		t, _ := time.Parse(time.RFC3339, deposited.String)
		li.DepositedAt = &t
	}
	li.CreatedAt, _ = time.Parse(time.RFC3339, created)
	return &li, nil
}

func (c *conn) queryLineItems(ctx context.Context, query string, args ...any) ([]consign.LineItem, error) {
	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query line items: %w", err)
	}
	defer rows.Close()

	var out []consign.LineItem
	for rows.Next() {
		li, err := scanLineItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *li)
	}
	return out, rows.Err()
}

func (c *conn) GetLineItem(ctx context.Context, id int) (*consign.LineItem, error) {
	row := c.q.QueryRowContext(ctx,
		`SELECT `+lineItemColumns+` FROM line_items WHERE id = ?`, id)
	li, err := scanLineItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get line item: %w", err)
	}
	return li, nil
}

func (c *conn) GetLineItems(ctx context.Context, ids []int) ([]consign.LineItem, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return c.queryLineItems(ctx,
		`SELECT `+lineItemColumns+` FROM line_items WHERE id IN (`+placeholders+`) ORDER BY id`,
		args...)
}

func (c *conn) ListLineItemsByAcquisition(ctx context.Context, acquisitionID int) ([]consign.LineItem, error) {
	return c.queryLineItems(ctx,
		`SELECT `+lineItemColumns+` FROM line_items WHERE acquisition_id = ? ORDER BY id`,
		acquisitionID)
}

func (c *conn) LatestLineItemID(ctx context.Context, sellerID, batchID int) (int, error) {
	var id int
	err := c.q.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(li.id), 0)
		FROM line_items li
		JOIN acquisitions a ON a.id = li.acquisition_id
		WHERE a.seller_id = ? AND li.batch_id = ?`,
		sellerID, batchID).Scan(&id)
	return id, err
}

func (c *conn) MarkLineItemDeposited(ctx context.Context, id int, at time.Time) error {
	// deposited_at IS NULL keeps the once-only guarantee authoritative at
	// the row level.
	res, err := c.q.ExecContext(ctx,
		`UPDATE line_items SET deposited_at = ? WHERE id = ? AND deposited_at IS NULL`,
		at.UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("failed to mark line item deposited: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	li, err := c.GetLineItem(ctx, id)
	if err != nil {
		return err
	}
	if li == nil {
		return &consign.NotFoundError{Entity: "line item", IDs: []int{id}}
	}
	return &consign.ConflictError{Msg: "line items already deposited", IDs: []int{id}}
}

func (c *conn) UpdateLineItemQty(ctx context.Context, id int, qty int, total decimal.Decimal) error {
	res, err := c.q.ExecContext(ctx,
		`UPDATE line_items SET qty = ?, total = ? WHERE id = ?`,
		qty, total.String(), id)
	if err != nil {
		return fmt.Errorf("failed to update line item: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &consign.NotFoundError{Entity: "line item", IDs: []int{id}}
	}
	return nil
}

func (c *conn) DeleteLineItem(ctx context.Context, id int) error {
	res, err := c.q.ExecContext(ctx, `DELETE FROM line_items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete line item: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &consign.NotFoundError{Entity: "line item", IDs: []int{id}}
	}
	return nil
}

// --- ledger ---

const entryColumns = `id, line_item_id, title, kind, amount, note, created_at`

func scanEntry(row interface{ Scan(...any) error }) (*consign.LedgerEntry, error) {
	var (
		e        consign.LedgerEntry
		lineItem sql.NullInt64
		kind     string
		amount   string
		created  string
	)
	if err := row.Scan(&e.ID, &lineItem, &e.Title, &kind, &amount, &e.Note, &created); err != nil {
		return nil, err
	}
	if lineItem.Valid {
		id := int(lineItem.Int64)
		e.LineItemID = &id
	}
	e.Kind = consign.EntryKind(kind)
	var err error
	if e.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("bad amount %q: %w", amount, err)
	}
	e.CreatedAt, _ = time.Parse(time.RFC3339, created)
	return &e, nil
}

func (c *conn) AppendEntry(ctx context.Context, e consign.LedgerEntry) (consign.LedgerEntry, error) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	var lineItem any
	if e.LineItemID != nil {
		lineItem = *e.LineItemID
	}
	res, err := c.q.ExecContext(ctx, `
		INSERT INTO ledger_entries (line_item_id, title, kind, amount, note, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		lineItem, e.Title, string(e.Kind), e.Amount.String(), e.Note,
		e.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return consign.LedgerEntry{}, fmt.Errorf("failed to append ledger entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return consign.LedgerEntry{}, err
	}
	e.ID = int(id)
	return e, nil
}

func (c *conn) GetEntry(ctx context.Context, id int) (*consign.LedgerEntry, error) {
	row := c.q.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM ledger_entries WHERE id = ?`, id)
	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger entry: %w", err)
	}
	return e, nil
}

func (c *conn) LatestEntry(ctx context.Context) (*consign.LedgerEntry, error) {
	row := c.q.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM ledger_entries ORDER BY id DESC LIMIT 1`)
	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest ledger entry: %w", err)
	}
	return e, nil
}

func (c *conn) queryEntries(ctx context.Context, query string, args ...any) ([]consign.LedgerEntry, error) {
	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger entries: %w", err)
	}
	defer rows.Close()

	var out []consign.LedgerEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (c *conn) ListEntries(ctx context.Context, page, pageSize int) ([]consign.LedgerEntry, error) {
	return c.queryEntries(ctx,
		`SELECT `+entryColumns+` FROM ledger_entries ORDER BY id DESC LIMIT ? OFFSET ?`,
		pageSize, (page-1)*pageSize)
}

func (c *conn) ListEntriesInRange(ctx context.Context, from, to time.Time) ([]consign.LedgerEntry, error) {
	return c.queryEntries(ctx, `
		SELECT `+entryColumns+` FROM ledger_entries
		WHERE created_at >= ? AND created_at <= ?
		ORDER BY id DESC`,
		from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339))
}

func (c *conn) DeleteEntry(ctx context.Context, id int) error {
	res, err := c.q.ExecContext(ctx, `DELETE FROM ledger_entries WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete ledger entry: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &consign.NotFoundError{Entity: "ledger entry", IDs: []int{id}}
	}
	return nil
}

// --- cash balance ---

func (c *conn) ensureBalance(ctx context.Context) error {
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO cash_balance (id, balance, updated_at) VALUES (1, '0', ?)
		ON CONFLICT (id) DO NOTHING`, now())
	return err
}

func (c *conn) GetBalance(ctx context.Context) (consign.CashBalance, error) {
	if err := c.ensureBalance(ctx); err != nil {
		return consign.CashBalance{}, fmt.Errorf("failed to init balance: %w", err)
	}
	var (
		balance string
		updated string
	)
	err := c.q.QueryRowContext(ctx,
		`SELECT balance, updated_at FROM cash_balance WHERE id = 1`).Scan(&balance, &updated)
	if err != nil {
		return consign.CashBalance{}, fmt.Errorf("failed to get balance: %w", err)
	}
	b, err := decimal.NewFromString(balance)
	if err != nil {
		return consign.CashBalance{}, fmt.Errorf("bad balance %q: %w", balance, err)
	}
	t, _ := time.Parse(time.RFC3339, updated)
	return consign.CashBalance{Balance: b, UpdatedAt: t}, nil
}

func (c *conn) AddToBalance(ctx context.Context, delta decimal.Decimal) (consign.CashBalance, error) {
	// The balance is a decimal string, so the adjustment is read-then-
	// write. Safe under _txlock=immediate: write transactions hold the
	// write lock from BEGIN.
	cur, err := c.GetBalance(ctx)
	if err != nil {
		return consign.CashBalance{}, err
	}
	next := consign.CashBalance{Balance: cur.Balance.Add(delta), UpdatedAt: time.Now().UTC()}
	_, err = c.q.ExecContext(ctx,
		`UPDATE cash_balance SET balance = ?, updated_at = ? WHERE id = 1`,
		next.Balance.String(), next.UpdatedAt.Format(time.RFC3339))
	if err != nil {
		return consign.CashBalance{}, fmt.Errorf("failed to update balance: %w", err)
	}
	return next, nil
}
