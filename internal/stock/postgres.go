package stock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSheetStore persists monthly sheets in Postgres. Serialization per
// sheet is a row lock on the stock_sheets row; the non-negative re-check runs
// inside the same transaction.
type PostgresSheetStore struct {
	Pool *pgxpool.Pool
	Now  func() time.Time
}

func (s *PostgresSheetStore) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// AppendEntries implements SheetStore.
func (s *PostgresSheetStore) AppendEntries(ctx context.Context, key SheetKey, entries []Entry, check func(Sheet) error) (Sheet, error) {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Sheet{}, fmt.Errorf("begin: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	opening, lastSeq, err := lockSheet(ctx, tx, key)
	if err != nil {
		return Sheet{}, err
	}
	sheet, err := loadEntries(ctx, tx, key, opening)
	if err != nil {
		return Sheet{}, err
	}
	if check != nil {
		if err := check(sheet); err != nil {
			return Sheet{}, err
		}
	}
	for _, e := range entries {
		if e.IdemKey != "" && sheet.HasIdemKey(e.IdemKey) {
			continue
		}
		lastSeq++
		e.Seq = lastSeq
		if e.EntryID == uuid.Nil {
			e.EntryID = uuid.New()
		}
		if e.Timestamp.IsZero() {
			e.Timestamp = s.now()
		}
		_, err := tx.Exec(ctx, `
INSERT INTO stock_entries (id, tenant_id, product_id, year, month, seq, ts,
  kind, delta, reason, order_ref, idem_key)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
			e.EntryID, key.TenantID, key.ProductID, key.Month.Year, int(key.Month.Month),
			e.Seq, e.Timestamp, string(e.Kind), e.Delta, e.Reason, e.OrderRef, e.IdemKey)
		if err != nil {
			return Sheet{}, fmt.Errorf("insert entry: %w", err)
		}
		sheet.Entries = append(sheet.Entries, e)
	}
	_, err = tx.Exec(ctx, `
UPDATE stock_sheets SET last_seq = $5
WHERE tenant_id = $1 AND product_id = $2 AND year = $3 AND month = $4`,
		key.TenantID, key.ProductID, key.Month.Year, int(key.Month.Month), lastSeq)
	if err != nil {
		return Sheet{}, fmt.Errorf("bump sheet seq: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Sheet{}, fmt.Errorf("commit: %w", err)
	}
	return sheet, nil
}

// lockSheet locks the sheet row, creating it first when missing with an
// opening balance equal to the previous month's closing.
func lockSheet(ctx context.Context, tx pgx.Tx, key SheetKey) (opening float64, lastSeq int64, err error) {
	const sel = `
SELECT opening::float8, last_seq FROM stock_sheets
WHERE tenant_id = $1 AND product_id = $2 AND year = $3 AND month = $4
FOR UPDATE`
	err = tx.QueryRow(ctx, sel, key.TenantID, key.ProductID, key.Month.Year, int(key.Month.Month)).
		Scan(&opening, &lastSeq)
	if err == nil {
		return opening, lastSeq, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, 0, fmt.Errorf("lock sheet: %w", err)
	}

	var prevClosing float64
	err = tx.QueryRow(ctx, `
SELECT s.opening::float8 + COALESCE((
  SELECT SUM(e.delta)::float8 FROM stock_entries e
  WHERE e.tenant_id = s.tenant_id AND e.product_id = s.product_id
    AND e.year = s.year AND e.month = s.month
), 0)
FROM stock_sheets s
WHERE s.tenant_id = $1 AND s.product_id = $2
  AND (s.year, s.month) < ($3, $4)
ORDER BY s.year DESC, s.month DESC
LIMIT 1`, key.TenantID, key.ProductID, key.Month.Year, int(key.Month.Month)).
		Scan(&prevClosing)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return 0, 0, fmt.Errorf("previous closing: %w", err)
	}

	_, err = tx.Exec(ctx, `
INSERT INTO stock_sheets (tenant_id, product_id, year, month, opening, last_seq)
VALUES ($1,$2,$3,$4,$5,0)
ON CONFLICT (tenant_id, product_id, year, month) DO NOTHING`,
		key.TenantID, key.ProductID, key.Month.Year, int(key.Month.Month), prevClosing)
	if err != nil {
		return 0, 0, fmt.Errorf("create sheet: %w", err)
	}
	err = tx.QueryRow(ctx, sel, key.TenantID, key.ProductID, key.Month.Year, int(key.Month.Month)).
		Scan(&opening, &lastSeq)
	if err != nil {
		return 0, 0, fmt.Errorf("relock sheet: %w", err)
	}
	return opening, lastSeq, nil
}

func loadEntries(ctx context.Context, q interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}, key SheetKey, opening float64) (Sheet, error) {
	rows, err := q.Query(ctx, `
SELECT id, seq, ts, kind, delta::float8, reason, order_ref, idem_key
FROM stock_entries
WHERE tenant_id = $1 AND product_id = $2 AND year = $3 AND month = $4
ORDER BY seq`, key.TenantID, key.ProductID, key.Month.Year, int(key.Month.Month))
	if err != nil {
		return Sheet{}, fmt.Errorf("load entries: %w", err)
	}
	defer rows.Close()
	sheet := Sheet{Key: key, Opening: opening}
	for rows.Next() {
		var e Entry
		var kind string
		if err := rows.Scan(&e.EntryID, &e.Seq, &e.Timestamp, &kind, &e.Delta,
			&e.Reason, &e.OrderRef, &e.IdemKey); err != nil {
			return Sheet{}, fmt.Errorf("scan entry: %w", err)
		}
		e.Kind = EntryKind(kind)
		sheet.Entries = append(sheet.Entries, e)
	}
	return sheet, rows.Err()
}

// Get implements SheetStore.
func (s *PostgresSheetStore) Get(ctx context.Context, key SheetKey) (Sheet, bool, error) {
	var opening float64
	err := s.Pool.QueryRow(ctx, `
SELECT opening::float8 FROM stock_sheets
WHERE tenant_id = $1 AND product_id = $2 AND year = $3 AND month = $4`,
		key.TenantID, key.ProductID, key.Month.Year, int(key.Month.Month)).
		Scan(&opening)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Sheet{}, false, nil
		}
		return Sheet{}, false, fmt.Errorf("load sheet: %w", err)
	}
	sheet, err := loadEntries(ctx, s.Pool, key, opening)
	if err != nil {
		return Sheet{}, false, err
	}
	return sheet, true, nil
}

// Latest implements SheetStore.
func (s *PostgresSheetStore) Latest(ctx context.Context, tenantID string, productID uuid.UUID) (Sheet, bool, error) {
	var key SheetKey
	var month int
	var opening float64
	key.TenantID, key.ProductID = tenantID, productID
	err := s.Pool.QueryRow(ctx, `
SELECT year, month, opening::float8 FROM stock_sheets
WHERE tenant_id = $1 AND product_id = $2
ORDER BY year DESC, month DESC
LIMIT 1`, tenantID, productID).Scan(&key.Month.Year, &month, &opening)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Sheet{}, false, nil
		}
		return Sheet{}, false, fmt.Errorf("latest sheet: %w", err)
	}
	key.Month.Month = time.Month(month)
	sheet, err := loadEntries(ctx, s.Pool, key, opening)
	if err != nil {
		return Sheet{}, false, err
	}
	return sheet, true, nil
}

// HasEntries implements SheetStore.
func (s *PostgresSheetStore) HasEntries(ctx context.Context, tenantID string, idemKey string) (bool, error) {
	if idemKey == "" {
		return false, nil
	}
	var exists bool
	err := s.Pool.QueryRow(ctx, `
SELECT EXISTS (
  SELECT 1 FROM stock_entries WHERE tenant_id = $1 AND idem_key = $2
)`, tenantID, idemKey).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check idem key: %w", err)
	}
	return exists, nil
}
