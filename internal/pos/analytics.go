package pos

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/NEXESMISSION/KESTI-sub002/internal/storage"
)

// Analytics computes dashboard figures from the sales and expense tables.
type Analytics struct {
	db *sql.DB
}

func NewAnalytics(db *sql.DB) *Analytics {
	return &Analytics{db: db}
}

// DashboardData is the payload the dashboard endpoint returns.
type DashboardData struct {
	From             time.Time                 `json:"from"`
	To               time.Time                 `json:"to"`
	RevenueCents     int64                     `json:"revenue_cents"`
	ExpenseCents     int64                     `json:"expense_cents"`
	NetCents         int64                     `json:"net_cents"`
	SalesCount       int64                     `json:"sales_count"`
	AverageSaleCents int64                     `json:"average_sale_cents"`
	DailySummary     []storage.SalesSummaryRow `json:"daily_summary"`
	TopProducts      []storage.TopProductRow   `json:"top_products"`
}

// Dashboard aggregates one profile's activity over [from, to).
func (a *Analytics) Dashboard(profileID string, from, to time.Time) (*DashboardData, error) {
	if !to.After(from) {
		return nil, fmt.Errorf("invalid range: %s to %s", from, to)
	}

	daily, err := storage.GetSalesSummary(a.db, profileID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to load sales summary: %w", err)
	}

	var revenue, count int64
	for _, row := range daily {
		revenue += row.RevenueCents
		count += row.SalesCount
	}

	expenses, err := storage.GetExpenseTotal(a.db, profileID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to load expense total: %w", err)
	}

	top, err := storage.GetTopProducts(a.db, profileID, from, to, 10)
	if err != nil {
		return nil, fmt.Errorf("failed to load top products: %w", err)
	}

	data := &DashboardData{
		From:         from,
		To:           to,
		RevenueCents: revenue,
		ExpenseCents: expenses,
		NetCents:     revenue - expenses,
		SalesCount:   count,
		DailySummary: daily,
		TopProducts:  top,
	}
	if count > 0 {
		data.AverageSaleCents = revenue / count
	}

	return data, nil
}
