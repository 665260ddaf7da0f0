package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PostgresStore persists orders as a single row per order with the line
// items, totals and audit trail as jsonb documents. Line-level updates always
// rewrite the whole order, which keeps the snapshot semantics trivial.
type PostgresStore struct {
	Pool *pgxpool.Pool
}

// Create implements Store.
func (s *PostgresStore) Create(ctx context.Context, o Order) error {
	items, totals, audit, err := encodeOrder(o)
	if err != nil {
		return err
	}
	_, err = s.Pool.Exec(ctx, `
INSERT INTO orders (id, tenant_id, channel, customer_name, customer_phone,
  status, items, totals, grand_total, audit, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9::numeric,$10,$11,$12)`,
		o.ID, o.TenantID, string(o.Channel), o.CustomerName, o.CustomerPhone,
		string(o.Status), items, totals, o.Totals.GrandTotal.String(), audit,
		o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, tenantID string, id uuid.UUID) (Order, error) {
	row := s.Pool.QueryRow(ctx, `
SELECT id, tenant_id, channel, customer_name, customer_phone, status,
  items, totals, audit, created_at, updated_at
FROM orders
WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrNotFound
		}
		return Order{}, err
	}
	return o, nil
}

// Update implements Store.
func (s *PostgresStore) Update(ctx context.Context, o Order) error {
	items, totals, audit, err := encodeOrder(o)
	if err != nil {
		return err
	}
	tag, err := s.Pool.Exec(ctx, `
UPDATE orders SET status = $3, items = $4, totals = $5,
  grand_total = $6::numeric, audit = $7, updated_at = $8
WHERE tenant_id = $1 AND id = $2`,
		o.TenantID, o.ID, string(o.Status), items, totals,
		o.Totals.GrandTotal.String(), audit, o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// List implements Store.
func (s *PostgresStore) List(ctx context.Context, tenantID string, from, to time.Time) ([]Order, error) {
	rows, err := s.Pool.Query(ctx, `
SELECT id, tenant_id, channel, customer_name, customer_phone, status,
  items, totals, audit, created_at, updated_at
FROM orders
WHERE tenant_id = $1
  AND ($2::timestamptz IS NULL OR created_at >= $2)
  AND ($3::timestamptz IS NULL OR created_at <= $3)
ORDER BY created_at`, tenantID, nullableTime(from), nullableTime(to))
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()
	out := make([]Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// Stats implements Store. Revenue excludes cancelled orders; counts include
// them when requested. Failed orders never count.
func (s *PostgresStore) Stats(ctx context.Context, q StatsQuery) ([]ChannelStat, error) {
	rows, err := s.Pool.Query(ctx, `
SELECT channel, COUNT(*),
  COALESCE(SUM(grand_total) FILTER (WHERE status <> 'cancelled'), 0)::text
FROM orders
WHERE tenant_id = $1
  AND status <> 'failed'
  AND (status <> 'cancelled' OR $2)
  AND ($3::timestamptz IS NULL OR created_at >= $3)
  AND ($4::timestamptz IS NULL OR created_at <= $4)
  AND ($5 = '' OR channel = $5)
GROUP BY channel
ORDER BY channel`,
		q.TenantID, q.IncludeCancelled, nullableTime(q.From), nullableTime(q.To), string(q.Channel))
	if err != nil {
		return nil, fmt.Errorf("aggregate orders: %w", err)
	}
	defer rows.Close()
	out := make([]ChannelStat, 0)
	for rows.Next() {
		var stat ChannelStat
		var channel, sum string
		if err := rows.Scan(&channel, &stat.Count, &sum); err != nil {
			return nil, fmt.Errorf("scan stats row: %w", err)
		}
		stat.Channel = Channel(channel)
		stat.SumGrandTotal, err = decimal.NewFromString(sum)
		if err != nil {
			return nil, fmt.Errorf("parse revenue sum: %w", err)
		}
		out = append(out, stat)
	}
	return out, rows.Err()
}

func encodeOrder(o Order) (items, totals, audit []byte, err error) {
	if items, err = json.Marshal(o.Items); err != nil {
		return nil, nil, nil, fmt.Errorf("encode items: %w", err)
	}
	if totals, err = json.Marshal(o.Totals); err != nil {
		return nil, nil, nil, fmt.Errorf("encode totals: %w", err)
	}
	if audit, err = json.Marshal(o.Audit); err != nil {
		return nil, nil, nil, fmt.Errorf("encode audit: %w", err)
	}
	return items, totals, audit, nil
}

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	var channel, status string
	var items, totals, audit []byte
	err := row.Scan(&o.ID, &o.TenantID, &channel, &o.CustomerName, &o.CustomerPhone,
		&status, &items, &totals, &audit, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return Order{}, err
	}
	o.Channel = Channel(channel)
	o.Status = Status(status)
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return Order{}, fmt.Errorf("decode items: %w", err)
	}
	if err := json.Unmarshal(totals, &o.Totals); err != nil {
		return Order{}, fmt.Errorf("decode totals: %w", err)
	}
	if err := json.Unmarshal(audit, &o.Audit); err != nil {
		return Order{}, fmt.Errorf("decode audit: %w", err)
	}
	return o, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
