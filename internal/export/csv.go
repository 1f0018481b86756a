// Package export writes the ledger out for use in other tools.
package export

import (
	"bufio"
	"fmt"
	"io"

	"budgeteer/internal/core"
)

// Header is the first CSV line.
const Header = "ID,Date,Category,Description,Amount"

// FileName is the suggested download name.
const FileName = "budget_data.csv"

// WriteCSV writes one row per transaction in ledger order. Fields are not
// quoted or escaped, so a comma inside a description or category shifts
// the columns of that row; readers of existing exports rely on this exact
// layout.
func WriteCSV(w io.Writer, txs []core.Transaction) error {
	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintln(bw, Header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, tx := range txs {
		if _, err := fmt.Fprintln(bw, Row(tx)); err != nil {
			return fmt.Errorf("write csv row %d: %w", tx.ID, err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// Row formats tx the way WriteCSV does, without the newline.
func Row(tx core.Transaction) string {
	return fmt.Sprintf("%d,%s,%s,%s,%s",
		tx.ID, tx.Date.USString(), tx.Category, tx.Description, tx.Amount.Decimal().String())
}
