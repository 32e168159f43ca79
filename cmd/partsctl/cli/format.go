package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/partsdesk/partsdesk/internal/inventory"
	"github.com/partsdesk/partsdesk/internal/report"
)

// Rupees prints amounts with Indian digit grouping.
type Rupees struct {
	printer *message.Printer
}

// NewRupees builds a formatter for tag. An empty tag means en-IN.
func NewRupees(tag string) (Rupees, error) {
	if tag == "" {
		tag = "en-IN"
	}
	lang, err := language.Parse(tag)
	if err != nil {
		return Rupees{}, fmt.Errorf("locale %q: %w", tag, err)
	}
	return Rupees{printer: message.NewPrinter(lang)}, nil
}

// Format renders d with two decimals.
func (r Rupees) Format(d decimal.Decimal) string {
	f, _ := d.Round(2).Float64()
	return r.printer.Sprint(number.Decimal(f, number.Scale(2)))
}

// RenderProfitAndLoss writes a P&L statement as an aligned table.
func RenderProfitAndLoss(w io.Writer, pl report.ProfitAndLoss, money Rupees) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	rows := []struct {
		label string
		value string
	}{
		{"Sales invoices", fmt.Sprint(pl.Sales.Count)},
		{"Sales (taxable)", money.Format(pl.Sales.Taxable)},
		{"Purchase invoices", fmt.Sprint(pl.Purchases.Count)},
		{"Purchases (taxable)", money.Format(pl.Purchases.Taxable)},
		{"Gross profit", money.Format(pl.GrossProfit)},
		{"Output GST", money.Format(pl.OutputGST)},
		{"Input GST", money.Format(pl.InputGST)},
		{"Net GST payable", money.Format(pl.NetGSTPayable)},
	}
	if _, err := fmt.Fprintf(w, "Profit and loss %s to %s\n", pl.From, pl.To); err != nil {
		return err
	}
	for _, row := range rows {
		if _, err := fmt.Fprintf(tw, "%s\t%s\t\n", row.label, row.value); err != nil {
			return err
		}
	}
	return tw.Flush()
}

// RenderDiscrepancies lists parts whose balance differs from the ledger.
func RenderDiscrepancies(w io.Writer, found []inventory.Discrepancy) error {
	if len(found) == 0 {
		_, err := fmt.Fprintln(w, "stock balances match the ledger")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PART\tBALANCE\tLEDGER\tDIFF")
	for _, d := range found {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", d.PartID, d.Balance, d.LedgerSum, d.Balance.Sub(d.LedgerSum))
	}
	return tw.Flush()
}
