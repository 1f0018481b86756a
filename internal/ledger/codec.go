package ledger

import (
	"encoding/json"
	"fmt"

	"budgeteer/internal/core"
)

// record is the stored shape of a transaction. The description lives under
// "text" so ledgers saved by the browser version load unchanged.
type record struct {
	ID       int64      `json:"id"`
	Text     string     `json:"text"`
	Amount   core.Money `json:"amount"`
	Category string     `json:"category"`
	Date     core.Date  `json:"date"`
}

func encodeTransactions(txs []core.Transaction) (string, error) {
	records := make([]record, len(txs))
	for i, tx := range txs {
		records[i] = record{
			ID:       tx.ID,
			Text:     tx.Description,
			Amount:   tx.Amount,
			Category: tx.Category,
			Date:     tx.Date,
		}
	}
	b, err := json.Marshal(records)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeTransactions(raw string) ([]core.Transaction, error) {
	var records []record
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		return nil, fmt.Errorf("decode transactions: %w", err)
	}
	txs := make([]core.Transaction, 0, len(records))
	seen := make(map[int64]struct{}, len(records))
	for _, r := range records {
		if _, dup := seen[r.ID]; dup {
			return nil, fmt.Errorf("duplicate transaction id %d", r.ID)
		}
		seen[r.ID] = struct{}{}
		txs = append(txs, core.Transaction{
			ID:          r.ID,
			Description: r.Text,
			Amount:      r.Amount,
			Category:    r.Category,
			Date:        r.Date,
		})
	}
	return txs, nil
}

func decodeLimit(raw string) (core.Money, error) {
	limit, err := core.ParseAmount(raw)
	if err != nil {
		return core.Money{}, err
	}
	if err := core.ValidateLimit(limit); err != nil {
		return core.Money{}, err
	}
	return limit, nil
}
