package core

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string `json:"name"`
	Amount Money  `json:"amount"`
}

// Balance is the income/expense summary of one month.
type Balance struct {
	TotalIncome   Money `json:"total_income"`
	TotalExpenses Money `json:"total_expenses"`
	Available     Money `json:"available"`
	Installments  int   `json:"installments"`
}
