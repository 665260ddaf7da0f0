package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-canteen/internal/pricing"
	"github.com/noah-isme/backend-canteen/internal/unit"
)

// PostgresStore persists products and combos in Postgres. Numeric columns are
// selected as text and parsed into decimals to keep arithmetic exact.
type PostgresStore struct {
	Pool *pgxpool.Pool
}

const productColumns = `id, tenant_id, name, quantity_text, quantity_value, quantity_unit,
size_label, no_qty, stock_unit, selling_price::text, tax_rate::text, gst_type,
discount_pct::text, active, available, created_at, updated_at`

// GetProduct returns a product within the tenant.
func (s *PostgresStore) GetProduct(ctx context.Context, tenantID string, id uuid.UUID) (Product, error) {
	row := s.Pool.QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE tenant_id = $1 AND id = $2`,
		tenantID, id)
	return scanProduct(row)
}

// ListProducts returns all products for the tenant.
func (s *PostgresStore) ListProducts(ctx context.Context, tenantID string) ([]Product, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT `+productColumns+` FROM products WHERE tenant_id = $1 ORDER BY name`,
		tenantID)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()
	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SaveProduct inserts or replaces a product.
func (s *PostgresStore) SaveProduct(ctx context.Context, p Product) error {
	_, err := s.Pool.Exec(ctx, `
INSERT INTO products (id, tenant_id, name, quantity_text, quantity_value, quantity_unit,
  size_label, no_qty, stock_unit, selling_price, tax_rate, gst_type, discount_pct,
  active, available, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10::numeric,$11::numeric,$12,$13::numeric,$14,$15,now(),now())
ON CONFLICT (id) DO UPDATE SET
  name = EXCLUDED.name, quantity_text = EXCLUDED.quantity_text,
  quantity_value = EXCLUDED.quantity_value, quantity_unit = EXCLUDED.quantity_unit,
  size_label = EXCLUDED.size_label, no_qty = EXCLUDED.no_qty,
  stock_unit = EXCLUDED.stock_unit, selling_price = EXCLUDED.selling_price,
  tax_rate = EXCLUDED.tax_rate, gst_type = EXCLUDED.gst_type,
  discount_pct = EXCLUDED.discount_pct, active = EXCLUDED.active,
  available = EXCLUDED.available, updated_at = now()`,
		p.ID, p.TenantID, p.Name, p.QuantityText, p.QuantityVal, p.QuantityUnit,
		p.SizeLabel, p.NoQty, string(p.StockUnit), p.SellingPrice.String(),
		p.TaxRate.String(), string(p.GSTType), p.DiscountPct.String(),
		p.Active, p.Available)
	if err != nil {
		return fmt.Errorf("save product: %w", err)
	}
	return nil
}

// GetCombo returns a combo within the tenant.
func (s *PostgresStore) GetCombo(ctx context.Context, tenantID string, id uuid.UUID) (Combo, error) {
	row := s.Pool.QueryRow(ctx, `
SELECT id, tenant_id, name, components, selling_price::text, tax_rate::text,
  gst_type, discount_pct::text, active, created_at, updated_at
FROM combos WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	return scanCombo(row)
}

// ListCombos returns all combos for the tenant.
func (s *PostgresStore) ListCombos(ctx context.Context, tenantID string) ([]Combo, error) {
	rows, err := s.Pool.Query(ctx, `
SELECT id, tenant_id, name, components, selling_price::text, tax_rate::text,
  gst_type, discount_pct::text, active, created_at, updated_at
FROM combos WHERE tenant_id = $1 ORDER BY name`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list combos: %w", err)
	}
	defer rows.Close()
	var out []Combo
	for rows.Next() {
		c, err := scanCombo(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SaveCombo inserts or replaces a combo.
func (s *PostgresStore) SaveCombo(ctx context.Context, c Combo) error {
	components, err := json.Marshal(c.Components)
	if err != nil {
		return fmt.Errorf("encode components: %w", err)
	}
	_, err = s.Pool.Exec(ctx, `
INSERT INTO combos (id, tenant_id, name, components, selling_price, tax_rate,
  gst_type, discount_pct, active, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5::numeric,$6::numeric,$7,$8::numeric,$9,now(),now())
ON CONFLICT (id) DO UPDATE SET
  name = EXCLUDED.name, components = EXCLUDED.components,
  selling_price = EXCLUDED.selling_price, tax_rate = EXCLUDED.tax_rate,
  gst_type = EXCLUDED.gst_type, discount_pct = EXCLUDED.discount_pct,
  active = EXCLUDED.active, updated_at = now()`,
		c.ID, c.TenantID, c.Name, components, c.SellingPrice.String(),
		c.TaxRate.String(), string(c.GSTType), c.DiscountPct.String(), c.Active)
	if err != nil {
		return fmt.Errorf("save combo: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (Product, error) {
	var (
		p                              Product
		stockUnit, gstType             string
		sellingPrice, taxRate, discPct string
	)
	err := row.Scan(&p.ID, &p.TenantID, &p.Name, &p.QuantityText, &p.QuantityVal,
		&p.QuantityUnit, &p.SizeLabel, &p.NoQty, &stockUnit, &sellingPrice,
		&taxRate, &gstType, &discPct, &p.Active, &p.Available, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrNotFound
		}
		return Product{}, fmt.Errorf("scan product: %w", err)
	}
	p.StockUnit = unit.Dimension(stockUnit)
	p.GSTType = pricing.GSTType(gstType)
	if p.SellingPrice, err = decimal.NewFromString(sellingPrice); err != nil {
		return Product{}, fmt.Errorf("parse selling price: %w", err)
	}
	if p.TaxRate, err = decimal.NewFromString(taxRate); err != nil {
		return Product{}, fmt.Errorf("parse tax rate: %w", err)
	}
	if p.DiscountPct, err = decimal.NewFromString(discPct); err != nil {
		return Product{}, fmt.Errorf("parse discount: %w", err)
	}
	return p, nil
}

func scanCombo(row rowScanner) (Combo, error) {
	var (
		c                              Combo
		components                     []byte
		gstType                        string
		sellingPrice, taxRate, discPct string
	)
	err := row.Scan(&c.ID, &c.TenantID, &c.Name, &components, &sellingPrice,
		&taxRate, &gstType, &discPct, &c.Active, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Combo{}, ErrNotFound
		}
		return Combo{}, fmt.Errorf("scan combo: %w", err)
	}
	if err := json.Unmarshal(components, &c.Components); err != nil {
		return Combo{}, fmt.Errorf("decode components: %w", err)
	}
	c.GSTType = pricing.GSTType(gstType)
	if c.SellingPrice, err = decimal.NewFromString(sellingPrice); err != nil {
		return Combo{}, fmt.Errorf("parse selling price: %w", err)
	}
	if c.TaxRate, err = decimal.NewFromString(taxRate); err != nil {
		return Combo{}, fmt.Errorf("parse tax rate: %w", err)
	}
	if c.DiscountPct, err = decimal.NewFromString(discPct); err != nil {
		return Combo{}, fmt.Errorf("parse discount: %w", err)
	}
	return c, nil
}
