package invoice

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/partsdesk/partsdesk/internal/shared"
)

// Decimal places stored by the invoice and ledger columns.
const (
	quantityScale = 3
	moneyScale    = 2
	percentScale  = 2
)

// checkScale rejects values the NUMERIC columns would round on write.
func checkScale(field string, v decimal.Decimal, places int32) error {
	if v.Equal(v.Round(places)) {
		return nil
	}
	return shared.NewValidationError(field, fmt.Sprintf("must have at most %d decimal places", places))
}
