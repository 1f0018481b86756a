package core

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string `json:"name"`
	Label  string `json:"label"`
	Amount Money  `json:"amount"`
}
