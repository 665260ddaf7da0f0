package catalog

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-canteen/internal/pricing"
	"github.com/noah-isme/backend-canteen/internal/unit"
)

// Product is a sellable canteen item scoped to one tenant. Pricing fields are
// snapshotted onto order lines at placement time.
type Product struct {
	ID           uuid.UUID        `json:"id"`
	TenantID     string           `json:"tenantId"`
	Name         string           `json:"name"`
	QuantityText string           `json:"quantityText"`
	QuantityVal  float64          `json:"quantityValue"`
	QuantityUnit string           `json:"quantityUnit"`
	SizeLabel    string           `json:"sizeLabel"`
	NoQty        float64          `json:"noQty"`
	StockUnit    unit.Dimension   `json:"stockUnit"`
	SellingPrice decimal.Decimal  `json:"sellingPrice"`
	TaxRate      decimal.Decimal  `json:"taxRate"`
	GSTType      pricing.GSTType  `json:"gstType"`
	DiscountPct  decimal.Decimal  `json:"discountPercentage"`
	Active       bool             `json:"active"`
	Available    bool             `json:"available"`
	CreatedAt    time.Time        `json:"createdAt"`
	UpdatedAt    time.Time        `json:"updatedAt"`
}

// UnitQuantity parses the product's unit descriptor.
func (p Product) UnitQuantity() unit.Quantity {
	return unit.Parse(unit.Descriptor{
		QuantityText:  p.QuantityText,
		QuantityValue: p.QuantityVal,
		QuantityUnit:  p.QuantityUnit,
		SizeLabel:     p.SizeLabel,
	})
}

// Consumption returns how much stock orderQty units of this product consume
// in the product's stock dimension.
func (p Product) Consumption(orderQty float64) (float64, error) {
	return unit.Consumption(p.UnitQuantity(), p.NoQty, orderQty, p.StockUnit)
}

// Sellable reports whether the parsed descriptor can serve the stock unit.
func (p Product) Sellable() bool {
	_, err := p.Consumption(1)
	return err == nil
}

// ComboComponent is one entry of a combo offer.
type ComboComponent struct {
	ProductID        uuid.UUID `json:"productId"`
	QuantityPerCombo float64   `json:"quantityPerCombo"`
}

// Combo is a multi-product offer with its own pricing.
type Combo struct {
	ID           uuid.UUID        `json:"id"`
	TenantID     string           `json:"tenantId"`
	Name         string           `json:"name"`
	Components   []ComboComponent `json:"components"`
	SellingPrice decimal.Decimal  `json:"sellingPrice"`
	TaxRate      decimal.Decimal  `json:"taxRate"`
	GSTType      pricing.GSTType  `json:"gstType"`
	DiscountPct  decimal.Decimal  `json:"discountPercentage"`
	Active       bool             `json:"active"`
	CreatedAt    time.Time        `json:"createdAt"`
	UpdatedAt    time.Time        `json:"updatedAt"`
}
