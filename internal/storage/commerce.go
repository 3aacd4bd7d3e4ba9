package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

func CreateProduct(db *sql.DB, product *Product) error {
	query := `INSERT INTO products (id, profile_id, name, category, price_cents, cost_cents,
		stock, unit, image_url, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := db.Exec(query, product.ID, product.ProfileID, product.Name, product.Category,
		product.PriceCents, product.CostCents, product.Stock, product.Unit, product.ImageURL,
		product.IsActive, product.CreatedAt, product.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}
	return nil
}

func GetProduct(db *sql.DB, profileID, productID string) (*Product, error) {
	query := `SELECT id, profile_id, name, category, price_cents, cost_cents, stock, unit,
		image_url, is_active, created_at, updated_at
		FROM products WHERE id = ? AND profile_id = ?`

	var p Product
	err := db.QueryRow(query, productID, profileID).Scan(&p.ID, &p.ProfileID, &p.Name, &p.Category,
		&p.PriceCents, &p.CostCents, &p.Stock, &p.Unit, &p.ImageURL, &p.IsActive,
		&p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("product not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return &p, nil
}

func ListProducts(db *sql.DB, profileID string, includeInactive bool) ([]*Product, error) {
	query := `SELECT id, profile_id, name, category, price_cents, cost_cents, stock, unit,
		image_url, is_active, created_at, updated_at
		FROM products WHERE profile_id = ?`
	if !includeInactive {
		query += ` AND is_active = 1`
	}
	query += ` ORDER BY name`

	rows, err := db.Query(query, profileID)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	var products []*Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.ProfileID, &p.Name, &p.Category, &p.PriceCents, &p.CostCents,
			&p.Stock, &p.Unit, &p.ImageURL, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, &p)
	}

	return products, rows.Err()
}

func UpdateProduct(db *sql.DB, product *Product) error {
	result, err := db.Exec(`UPDATE products SET name = ?, category = ?, price_cents = ?, cost_cents = ?,
		stock = ?, unit = ?, image_url = ?, is_active = ? WHERE id = ? AND profile_id = ?`,
		product.Name, product.Category, product.PriceCents, product.CostCents, product.Stock,
		product.Unit, product.ImageURL, product.IsActive, product.ID, product.ProfileID)
	if err != nil {
		return fmt.Errorf("failed to update product: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check product update: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("product not found")
	}
	return nil
}

func DeleteProduct(db *sql.DB, profileID, productID string) error {
	// soft delete, sale_items keep a denormalized product_name
	result, err := db.Exec(`UPDATE products SET is_active = 0 WHERE id = ? AND profile_id = ?`,
		productID, profileID)
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check product delete: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("product not found")
	}
	return nil
}

// CreateSale inserts a sale header with its line items and decrements stock
// in one serializable transaction. Line totals and the header total are
// recomputed server-side; caller-supplied totals are ignored.
func CreateSale(ctx context.Context, db *Database, sale *Sale) error {
	if len(sale.Items) == 0 {
		return fmt.Errorf("sale requires at least one item")
	}

	tx, err := db.BeginSerializableTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	if sale.ID == "" {
		sale.ID = uuid.New().String()
	}
	sale.CreatedAt = now

	var total int64
	for i := range sale.Items {
		item := &sale.Items[i]

		var priceCents int64
		var name string
		var stock float64
		err := tx.QueryRow(`SELECT name, price_cents, stock FROM products WHERE id = ? AND profile_id = ? AND is_active = 1`,
			item.ProductID, sale.ProfileID).Scan(&name, &priceCents, &stock)
		if err == sql.ErrNoRows {
			return fmt.Errorf("product %s not found", item.ProductID)
		}
		if err != nil {
			return fmt.Errorf("failed to look up product: %w", err)
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("quantity must be positive for product %s", item.ProductID)
		}

		item.ID = uuid.New().String()
		item.SaleID = sale.ID
		item.ProductName = name
		item.UnitPriceCents = priceCents
		item.LineTotalCents = int64(float64(priceCents)*item.Quantity + 0.5)
		total += item.LineTotalCents

		if _, err := tx.Exec(`UPDATE products SET stock = stock - ? WHERE id = ?`,
			item.Quantity, item.ProductID); err != nil {
			return fmt.Errorf("failed to decrement stock: %w", err)
		}
	}
	sale.TotalCents = total

	if _, err := tx.Exec(`INSERT INTO sales (id, profile_id, device_id, total_cents, payment_method, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		sale.ID, sale.ProfileID, sale.DeviceID, sale.TotalCents, sale.PaymentMethod, sale.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert sale: %w", err)
	}

	for _, item := range sale.Items {
		if _, err := tx.Exec(`INSERT INTO sale_items (id, sale_id, product_id, product_name, unit_price_cents, quantity, line_total_cents)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			item.ID, item.SaleID, item.ProductID, item.ProductName, item.UnitPriceCents,
			item.Quantity, item.LineTotalCents); err != nil {
			return fmt.Errorf("failed to insert sale item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit sale: %w", err)
	}
	return nil
}

func GetSale(db *sql.DB, profileID, saleID string) (*Sale, error) {
	var s Sale
	err := db.QueryRow(`SELECT id, profile_id, device_id, total_cents, payment_method, created_at
		FROM sales WHERE id = ? AND profile_id = ?`, saleID, profileID).
		Scan(&s.ID, &s.ProfileID, &s.DeviceID, &s.TotalCents, &s.PaymentMethod, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("sale not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sale: %w", err)
	}

	rows, err := db.Query(`SELECT id, sale_id, product_id, product_name, unit_price_cents, quantity, line_total_cents
		FROM sale_items WHERE sale_id = ?`, saleID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sale items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item SaleItem
		if err := rows.Scan(&item.ID, &item.SaleID, &item.ProductID, &item.ProductName,
			&item.UnitPriceCents, &item.Quantity, &item.LineTotalCents); err != nil {
			return nil, fmt.Errorf("failed to scan sale item: %w", err)
		}
		s.Items = append(s.Items, item)
	}

	return &s, rows.Err()
}

func ListSales(db *sql.DB, profileID string, from, to time.Time, limit int) ([]*Sale, error) {
	if limit <= 0 || limit > 1000 {
		limit = 200
	}

	rows, err := db.Query(`SELECT id, profile_id, device_id, total_cents, payment_method, created_at
		FROM sales WHERE profile_id = ? AND created_at >= ? AND created_at < ?
		ORDER BY created_at DESC LIMIT ?`, profileID, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sales: %w", err)
	}
	defer rows.Close()

	var sales []*Sale
	for rows.Next() {
		var s Sale
		if err := rows.Scan(&s.ID, &s.ProfileID, &s.DeviceID, &s.TotalCents, &s.PaymentMethod, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan sale: %w", err)
		}
		sales = append(sales, &s)
	}

	return sales, rows.Err()
}

func DeleteSale(db *sql.DB, profileID, saleID string) error {
	result, err := db.Exec(`DELETE FROM sales WHERE id = ? AND profile_id = ?`, saleID, profileID)
	if err != nil {
		return fmt.Errorf("failed to delete sale: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check sale delete: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("sale not found")
	}
	return nil
}

func CreateExpense(db *sql.DB, expense *Expense) error {
	_, err := db.Exec(`INSERT INTO expenses (id, profile_id, description, category, amount_cents, incurred_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		expense.ID, expense.ProfileID, expense.Description, expense.Category,
		expense.AmountCents, expense.IncurredAt, expense.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create expense: %w", err)
	}
	return nil
}

func ListExpenses(db *sql.DB, profileID string, from, to time.Time) ([]*Expense, error) {
	rows, err := db.Query(`SELECT id, profile_id, description, category, amount_cents, incurred_at, created_at
		FROM expenses WHERE profile_id = ? AND incurred_at >= ? AND incurred_at < ?
		ORDER BY incurred_at DESC`, profileID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list expenses: %w", err)
	}
	defer rows.Close()

	var expenses []*Expense
	for rows.Next() {
		var e Expense
		if err := rows.Scan(&e.ID, &e.ProfileID, &e.Description, &e.Category, &e.AmountCents,
			&e.IncurredAt, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan expense: %w", err)
		}
		expenses = append(expenses, &e)
	}

	return expenses, rows.Err()
}

func DeleteExpense(db *sql.DB, profileID, expenseID string) error {
	result, err := db.Exec(`DELETE FROM expenses WHERE id = ? AND profile_id = ?`, expenseID, profileID)
	if err != nil {
		return fmt.Errorf("failed to delete expense: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check expense delete: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("expense not found")
	}
	return nil
}

func RecordAnalyticsEvent(db *sql.DB, profileID, eventType string, details map[string]interface{}) error {
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		detailsJSON = []byte("{}")
	}

	_, err = db.Exec(`INSERT INTO analytics_events (id, profile_id, event_type, details, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		uuid.New().String(), profileID, eventType, string(detailsJSON), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record analytics event: %w", err)
	}
	return nil
}

// PurgeHistoryBefore deletes sales, expenses and analytics events older than
// the cutoff for a single profile. Used by the retention sweeper and manual
// history clears.
func PurgeHistoryBefore(db *sql.DB, profileID string, cutoff time.Time) (salesDeleted, expensesDeleted, eventsDeleted int64, err error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, 0, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM sale_items WHERE sale_id IN
		(SELECT id FROM sales WHERE profile_id = ? AND created_at < ?)`, profileID, cutoff); err != nil {
		return 0, 0, 0, fmt.Errorf("failed to purge sale items: %w", err)
	}

	salesResult, err := tx.Exec(`DELETE FROM sales WHERE profile_id = ? AND created_at < ?`, profileID, cutoff)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("failed to purge sales: %w", err)
	}

	expensesResult, err := tx.Exec(`DELETE FROM expenses WHERE profile_id = ? AND incurred_at < ?`, profileID, cutoff)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("failed to purge expenses: %w", err)
	}

	eventsResult, err := tx.Exec(`DELETE FROM analytics_events WHERE profile_id = ? AND created_at < ?`, profileID, cutoff)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("failed to purge analytics events: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, 0, fmt.Errorf("failed to commit purge: %w", err)
	}

	salesDeleted, _ = salesResult.RowsAffected()
	expensesDeleted, _ = expensesResult.RowsAffected()
	eventsDeleted, _ = eventsResult.RowsAffected()
	return salesDeleted, expensesDeleted, eventsDeleted, nil
}

// SalesSummaryRow aggregates revenue for one calendar day.
type SalesSummaryRow struct {
	Day          string `json:"day"`
	SalesCount   int64  `json:"sales_count"`
	RevenueCents int64  `json:"revenue_cents"`
}

func GetSalesSummary(db *sql.DB, profileID string, from, to time.Time) ([]SalesSummaryRow, error) {
	rows, err := db.Query(`SELECT DATE(created_at), COUNT(*), COALESCE(SUM(total_cents), 0)
		FROM sales WHERE profile_id = ? AND created_at >= ? AND created_at < ?
		GROUP BY DATE(created_at) ORDER BY DATE(created_at)`, profileID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query sales summary: %w", err)
	}
	defer rows.Close()

	var summary []SalesSummaryRow
	for rows.Next() {
		var row SalesSummaryRow
		if err := rows.Scan(&row.Day, &row.SalesCount, &row.RevenueCents); err != nil {
			return nil, fmt.Errorf("failed to scan summary row: %w", err)
		}
		summary = append(summary, row)
	}

	return summary, rows.Err()
}

// TopProductRow ranks a product by revenue across a date range.
type TopProductRow struct {
	ProductID    string  `json:"product_id"`
	ProductName  string  `json:"product_name"`
	Quantity     float64 `json:"quantity"`
	RevenueCents int64   `json:"revenue_cents"`
}

func GetTopProducts(db *sql.DB, profileID string, from, to time.Time, limit int) ([]TopProductRow, error) {
	if limit <= 0 || limit > 50 {
		limit = 10
	}

	rows, err := db.Query(`SELECT si.product_id, si.product_name, SUM(si.quantity), SUM(si.line_total_cents)
		FROM sale_items si JOIN sales s ON s.id = si.sale_id
		WHERE s.profile_id = ? AND s.created_at >= ? AND s.created_at < ?
		GROUP BY si.product_id, si.product_name
		ORDER BY SUM(si.line_total_cents) DESC LIMIT ?`, profileID, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top products: %w", err)
	}
	defer rows.Close()

	var top []TopProductRow
	for rows.Next() {
		var row TopProductRow
		if err := rows.Scan(&row.ProductID, &row.ProductName, &row.Quantity, &row.RevenueCents); err != nil {
			return nil, fmt.Errorf("failed to scan top product row: %w", err)
		}
		top = append(top, row)
	}

	return top, rows.Err()
}

func GetExpenseTotal(db *sql.DB, profileID string, from, to time.Time) (int64, error) {
	var total int64
	err := db.QueryRow(`SELECT COALESCE(SUM(amount_cents), 0) FROM expenses
		WHERE profile_id = ? AND incurred_at >= ? AND incurred_at < ?`, profileID, from, to).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to query expense total: %w", err)
	}
	return total, nil
}
