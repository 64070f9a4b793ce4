package engine

import (
	"fmt"
	"text/tabwriter"

	"github.com/dvloznov/pocketsync/internal/currency"
	"github.com/dvloznov/pocketsync/internal/domain"
)

// printTable writes the dry-run preview of txs.
func (e *Engine) printTable(txs []*domain.Transaction, code string) error {
	if e.Out == nil {
		return nil
	}
	w := tabwriter.NewWriter(e.Out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "Provider ID\tPayee\tAmount\tDate")
	for _, t := range txs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", t.ExternalRef, t.Payee, currency.FromLowestUnit(t.Amount, code), t.Date)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("printing dry run table: %w", err)
	}
	return nil
}
