package invoice

import (
	"context"
	"fmt"
	"regexp"

	"github.com/partsdesk/partsdesk/internal/shared"
)

// maxNumberProbes bounds how many sequence values are skipped over numbers
// that callers already assigned by hand.
const maxNumberProbes = 1000

var numberPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9/_-]{0,39}$`)

// FormatNumber renders the sequential number, e.g. SAL-2026-007.
func FormatNumber(t Type, year, seq int) string {
	return fmt.Sprintf("%s-%04d-%03d", t.Prefix(), year, seq)
}

func validNumber(n string) bool {
	return numberPattern.MatchString(n)
}

// nextFreeNumber advances the (type, year) sequence until the formatted number
// is not already used. The skipped values stay consumed.
func nextFreeNumber(ctx context.Context, tx TxRepository, t Type, year int) (string, error) {
	for i := 0; i < maxNumberProbes; i++ {
		seq, err := tx.NextSequence(ctx, t, year)
		if err != nil {
			return "", err
		}
		number := FormatNumber(t, year, seq)
		taken, err := tx.NumberTaken(ctx, t, number)
		if err != nil {
			return "", err
		}
		if !taken {
			return number, nil
		}
	}
	return "", shared.NewConflictError("invoice sequence", fmt.Sprintf("%s-%d", t.Prefix(), year), "no free number found")
}
