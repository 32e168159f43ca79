// Package catalog holds the parts and counterparties invoices refer to.
package catalog

import (
	"time"

	"github.com/shopspring/decimal"
)

// Unit of measure for a part.
type Unit string

const (
	UnitPieces Unit = "PCS"
	UnitSet    Unit = "SET"
	UnitLitre  Unit = "LTR"
	UnitKilo   Unit = "KG"
	UnitMetre  Unit = "MTR"
	UnitBox    Unit = "BOX"
)

// Valid reports whether u is a known unit.
func (u Unit) Valid() bool {
	switch u {
	case UnitPieces, UnitSet, UnitLitre, UnitKilo, UnitMetre, UnitBox:
		return true
	}
	return false
}

// Part is a sellable and purchasable item. PartNumber is the immutable business key.
type Part struct {
	ID         int64           `json:"id"`
	PartNumber string          `json:"partNumber"`
	Name       string          `json:"name"`
	HSNCode    string          `json:"hsnCode"`
	GSTPercent decimal.Decimal `json:"gstPercent"`
	Unit       Unit            `json:"unit"`
	MRP        decimal.Decimal `json:"mrp"`
	RTL        decimal.Decimal `json:"rtl"`
	Barcode    *string         `json:"barcode,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// PartyKind distinguishes customers from suppliers.
type PartyKind string

const (
	KindCustomer PartyKind = "customer"
	KindSupplier PartyKind = "supplier"
)

// Party is a customer or a supplier.
type Party struct {
	ID        int64     `json:"id"`
	Kind      PartyKind `json:"kind"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Email     string    `json:"email,omitempty"`
	Address   string    `json:"address"`
	GSTIN     string    `json:"gstin,omitempty"`
	State     string    `json:"state"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ListFilter narrows catalog listings.
type ListFilter struct {
	Search string
	Limit  int
	Offset int
}
