package storage

import (
	"database/sql"
	"fmt"
	"time"
)

var migrations = []string{
	// core account and session tables
	`CREATE TABLE IF NOT EXISTS profiles (
		id TEXT PRIMARY KEY,
		email TEXT UNIQUE NOT NULL,
		business_name TEXT NOT NULL,
		password_hash BLOB NOT NULL,
		role TEXT NOT NULL DEFAULT 'business_user' CHECK (role IN ('super_admin', 'business_user')),
		is_suspended BOOLEAN NOT NULL DEFAULT 0,
		suspension_message TEXT NOT NULL DEFAULT '',
		subscription_ends_at TIMESTAMP,
		pin_hash BLOB,
		auto_clear_enabled BOOLEAN NOT NULL DEFAULT 0,
		auto_clear_days INTEGER NOT NULL DEFAULT 90 CHECK (auto_clear_days > 0),
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		is_active BOOLEAN NOT NULL DEFAULT 1,
		last_login TIMESTAMP,
		failed_login_attempts INTEGER NOT NULL DEFAULT 0,
		locked_until TIMESTAMP
	)`,

	// one active device per profile, enforced by the unique constraint
	`CREATE TABLE IF NOT EXISTS active_devices (
		id TEXT PRIMARY KEY,
		profile_id TEXT NOT NULL UNIQUE,
		device_id TEXT NOT NULL,
		device_name TEXT NOT NULL DEFAULT '',
		user_agent TEXT NOT NULL DEFAULT '',
		ip_address TEXT NOT NULL DEFAULT '',
		last_active TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (profile_id) REFERENCES profiles(id) ON DELETE CASCADE
	)`,

	// catalog
	`CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		profile_id TEXT NOT NULL,
		name TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		price_cents INTEGER NOT NULL CHECK (price_cents >= 0),
		cost_cents INTEGER NOT NULL DEFAULT 0 CHECK (cost_cents >= 0),
		stock REAL NOT NULL DEFAULT 0,
		unit TEXT NOT NULL DEFAULT 'item',
		image_url TEXT NOT NULL DEFAULT '',
		is_active BOOLEAN NOT NULL DEFAULT 1,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (profile_id) REFERENCES profiles(id) ON DELETE CASCADE
	)`,

	// sales header and lines
	`CREATE TABLE IF NOT EXISTS sales (
		id TEXT PRIMARY KEY,
		profile_id TEXT NOT NULL,
		device_id TEXT NOT NULL DEFAULT '',
		total_cents INTEGER NOT NULL CHECK (total_cents >= 0),
		payment_method TEXT NOT NULL DEFAULT 'cash' CHECK (payment_method IN ('cash', 'card', 'credit', 'other')),
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (profile_id) REFERENCES profiles(id) ON DELETE CASCADE
	)`,

	`CREATE TABLE IF NOT EXISTS sale_items (
		id TEXT PRIMARY KEY,
		sale_id TEXT NOT NULL,
		product_id TEXT NOT NULL,
		product_name TEXT NOT NULL,
		unit_price_cents INTEGER NOT NULL CHECK (unit_price_cents >= 0),
		quantity REAL NOT NULL CHECK (quantity > 0),
		line_total_cents INTEGER NOT NULL CHECK (line_total_cents >= 0),
		FOREIGN KEY (sale_id) REFERENCES sales(id) ON DELETE CASCADE
	)`,

	// expenses
	`CREATE TABLE IF NOT EXISTS expenses (
		id TEXT PRIMARY KEY,
		profile_id TEXT NOT NULL,
		description TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		amount_cents INTEGER NOT NULL CHECK (amount_cents >= 0),
		incurred_at TIMESTAMP NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (profile_id) REFERENCES profiles(id) ON DELETE CASCADE
	)`,

	// analytics and audit trails
	`CREATE TABLE IF NOT EXISTS analytics_events (
		id TEXT PRIMARY KEY,
		profile_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		details TEXT NOT NULL DEFAULT '{}',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS audit_logs (
		id TEXT PRIMARY KEY,
		profile_id TEXT NOT NULL DEFAULT '',
		action TEXT NOT NULL,
		details TEXT NOT NULL DEFAULT '{}',
		ip_address TEXT NOT NULL DEFAULT '',
		user_agent TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,

	// indexes
	`CREATE INDEX IF NOT EXISTS idx_profiles_email ON profiles(email)`,
	`CREATE INDEX IF NOT EXISTS idx_active_devices_profile ON active_devices(profile_id)`,
	`CREATE INDEX IF NOT EXISTS idx_products_profile ON products(profile_id, is_active)`,
	`CREATE INDEX IF NOT EXISTS idx_sales_profile_created ON sales(profile_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_sale_items_sale ON sale_items(sale_id)`,
	`CREATE INDEX IF NOT EXISTS idx_expenses_profile_incurred ON expenses(profile_id, incurred_at)`,
	`CREATE INDEX IF NOT EXISTS idx_analytics_profile_created ON analytics_events(profile_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_logs_profile_created ON audit_logs(profile_id, created_at)`,

	// keep updated_at honest
	`CREATE TRIGGER IF NOT EXISTS trg_profiles_updated_at
		AFTER UPDATE ON profiles
		BEGIN
			UPDATE profiles SET updated_at = CURRENT_TIMESTAMP WHERE id = NEW.id;
		END`,

	`CREATE TRIGGER IF NOT EXISTS trg_products_updated_at
		AFTER UPDATE ON products
		BEGIN
			UPDATE products SET updated_at = CURRENT_TIMESTAMP WHERE id = NEW.id;
		END`,
}

func RunMigrations(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	var currentVersion int
	err := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	if currentVersion >= len(migrations) {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin migration transaction: %w", err)
	}
	defer tx.Rollback()

	for i := currentVersion; i < len(migrations); i++ {
		version := i + 1
		if _, err := tx.Exec(migrations[i]); err != nil {
			return fmt.Errorf("migration %d failed: %w", version, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations (version) VALUES (?)`, version); err != nil {
			return fmt.Errorf("failed to record migration %d: %w", version, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migrations: %w", err)
	}

	return nil
}

type MigrationInfo struct {
	Version   int       `json:"version"`
	AppliedAt time.Time `json:"applied_at"`
}

func GetMigrationStatus(db *sql.DB) ([]MigrationInfo, int, error) {
	rows, err := db.Query(`SELECT version, applied_at FROM schema_migrations ORDER BY version`)
	if err != nil {
		return nil, len(migrations), fmt.Errorf("failed to query migration status: %w", err)
	}
	defer rows.Close()

	var applied []MigrationInfo
	for rows.Next() {
		var info MigrationInfo
		if err := rows.Scan(&info.Version, &info.AppliedAt); err != nil {
			return nil, len(migrations), fmt.Errorf("failed to scan migration row: %w", err)
		}
		applied = append(applied, info)
	}

	return applied, len(migrations), rows.Err()
}
