package model

// BudgetStats holds budget tracking and forecast data for the current month.
type BudgetStats struct {
	CustomBudget      *float64
	CurrentSpend      float64
	ProjectedMonthly  float64
	DaysRemaining     int
	BudgetUsedPercent float64
}
