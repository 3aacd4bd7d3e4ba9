package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

func CreateProfile(db *sql.DB, profile *Profile) error {
	query := `INSERT INTO profiles (id, email, business_name, password_hash, role, is_suspended,
		suspension_message, subscription_ends_at, pin_hash, auto_clear_enabled, auto_clear_days,
		created_at, updated_at, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := db.Exec(query, profile.ID, profile.Email, profile.BusinessName, profile.PasswordHash,
		profile.Role, profile.IsSuspended, profile.SuspensionMessage, profile.SubscriptionEndsAt,
		profile.PINHash, profile.AutoClearEnabled, profile.AutoClearDays,
		profile.CreatedAt, profile.UpdatedAt, profile.IsActive)
	if err != nil {
		return fmt.Errorf("failed to create profile: %w", err)
	}

	return nil
}

func GetProfile(db *sql.DB, profileID string) (*Profile, error) {
	query := `SELECT id, email, business_name, password_hash, role, is_suspended, suspension_message,
		subscription_ends_at, pin_hash, auto_clear_enabled, auto_clear_days, created_at, updated_at,
		is_active, last_login, failed_login_attempts, locked_until
		FROM profiles WHERE id = ?`

	return scanProfile(db.QueryRow(query, profileID))
}

func GetProfileByEmail(db *sql.DB, email string) (*Profile, error) {
	query := `SELECT id, email, business_name, password_hash, role, is_suspended, suspension_message,
		subscription_ends_at, pin_hash, auto_clear_enabled, auto_clear_days, created_at, updated_at,
		is_active, last_login, failed_login_attempts, locked_until
		FROM profiles WHERE email = ? AND is_active = 1`

	return scanProfile(db.QueryRow(query, email))
}

func scanProfile(row *sql.Row) (*Profile, error) {
	var p Profile
	err := row.Scan(&p.ID, &p.Email, &p.BusinessName, &p.PasswordHash, &p.Role, &p.IsSuspended,
		&p.SuspensionMessage, &p.SubscriptionEndsAt, &p.PINHash, &p.AutoClearEnabled,
		&p.AutoClearDays, &p.CreatedAt, &p.UpdatedAt, &p.IsActive, &p.LastLogin,
		&p.FailedLoginAttempts, &p.LockedUntil)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("profile not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return &p, nil
}

func ListProfiles(db *sql.DB) ([]*Profile, error) {
	query := `SELECT id, email, business_name, password_hash, role, is_suspended, suspension_message,
		subscription_ends_at, pin_hash, auto_clear_enabled, auto_clear_days, created_at, updated_at,
		is_active, last_login, failed_login_attempts, locked_until
		FROM profiles ORDER BY created_at DESC`

	rows, err := db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	defer rows.Close()

	var profiles []*Profile
	for rows.Next() {
		var p Profile
		err := rows.Scan(&p.ID, &p.Email, &p.BusinessName, &p.PasswordHash, &p.Role, &p.IsSuspended,
			&p.SuspensionMessage, &p.SubscriptionEndsAt, &p.PINHash, &p.AutoClearEnabled,
			&p.AutoClearDays, &p.CreatedAt, &p.UpdatedAt, &p.IsActive, &p.LastLogin,
			&p.FailedLoginAttempts, &p.LockedUntil)
		if err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		profiles = append(profiles, &p)
	}

	return profiles, rows.Err()
}

func UpdateProfileLastLogin(db *sql.DB, profileID string) error {
	_, err := db.Exec(`UPDATE profiles SET last_login = ?, failed_login_attempts = 0, locked_until = NULL WHERE id = ?`,
		time.Now().UTC(), profileID)
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	return nil
}

func RecordFailedLogin(db *sql.DB, profileID string, maxAttempts int, lockout time.Duration) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var attempts int
	if err := tx.QueryRow(`SELECT failed_login_attempts FROM profiles WHERE id = ?`, profileID).Scan(&attempts); err != nil {
		return fmt.Errorf("failed to read login attempts: %w", err)
	}

	attempts++
	var lockedUntil *time.Time
	if attempts >= maxAttempts {
		t := time.Now().UTC().Add(lockout)
		lockedUntil = &t
	}

	if _, err := tx.Exec(`UPDATE profiles SET failed_login_attempts = ?, locked_until = ? WHERE id = ?`,
		attempts, lockedUntil, profileID); err != nil {
		return fmt.Errorf("failed to record login attempt: %w", err)
	}

	return tx.Commit()
}

// SetSuspension flips the suspension flag. The enforcement pollers pick the
// change up on their next cycle; no push notification is involved.
func SetSuspension(db *sql.DB, profileID string, suspended bool, message string) error {
	result, err := db.Exec(`UPDATE profiles SET is_suspended = ?, suspension_message = ? WHERE id = ?`,
		suspended, message, profileID)
	if err != nil {
		return fmt.Errorf("failed to update suspension: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check suspension update: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("profile not found")
	}
	return nil
}

func SetSubscriptionEnd(db *sql.DB, profileID string, endsAt *time.Time) error {
	result, err := db.Exec(`UPDATE profiles SET subscription_ends_at = ? WHERE id = ?`, endsAt, profileID)
	if err != nil {
		return fmt.Errorf("failed to update subscription: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check subscription update: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("profile not found")
	}
	return nil
}

func UpdateProfileSettings(db *sql.DB, profileID, businessName string, autoClearEnabled bool, autoClearDays int) error {
	_, err := db.Exec(`UPDATE profiles SET business_name = ?, auto_clear_enabled = ?, auto_clear_days = ? WHERE id = ?`,
		businessName, autoClearEnabled, autoClearDays, profileID)
	if err != nil {
		return fmt.Errorf("failed to update settings: %w", err)
	}
	return nil
}

// UpdateProfilePassword replaces the password hash and clears any lockout so
// the owner can sign in immediately after an admin reset.
func UpdateProfilePassword(db *sql.DB, profileID string, passwordHash []byte) error {
	result, err := db.Exec(`UPDATE profiles SET password_hash = ?, failed_login_attempts = 0, locked_until = NULL
		WHERE id = ?`, passwordHash, profileID)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check password update: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("profile not found")
	}
	return nil
}

func UpdateProfilePIN(db *sql.DB, profileID string, pinHash []byte) error {
	_, err := db.Exec(`UPDATE profiles SET pin_hash = ? WHERE id = ?`, pinHash, profileID)
	if err != nil {
		return fmt.Errorf("failed to update pin: %w", err)
	}
	return nil
}

func DeactivateProfile(db *sql.DB, profileID string) error {
	_, err := db.Exec(`UPDATE profiles SET is_active = 0 WHERE id = ?`, profileID)
	if err != nil {
		return fmt.Errorf("failed to deactivate profile: %w", err)
	}
	return nil
}

// RegisterDeviceSession implements evict-and-replace registration. The same
// device re-registering only refreshes last_active; a different device
// replaces the existing row and the previous holder is reported as kicked.
func RegisterDeviceSession(ctx context.Context, db *Database, profileID string, session *DeviceSession) (*RegisterResult, error) {
	tx, err := db.BeginSerializableTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var existing DeviceSession
	err = tx.QueryRow(`SELECT id, device_id, device_name FROM active_devices WHERE profile_id = ?`, profileID).
		Scan(&existing.ID, &existing.DeviceID, &existing.DeviceName)

	now := time.Now().UTC()

	switch {
	case err == sql.ErrNoRows:
		if err := insertDeviceSession(tx, profileID, session, now); err != nil {
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("failed to commit registration: %w", err)
		}
		return &RegisterResult{Action: RegisterActionRegistered}, nil

	case err != nil:
		return nil, fmt.Errorf("failed to check existing session: %w", err)

	case existing.DeviceID == session.DeviceID:
		_, err := tx.Exec(`UPDATE active_devices SET last_active = ?, user_agent = ?, ip_address = ? WHERE id = ?`,
			now, session.UserAgent, session.IPAddress, existing.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to refresh session: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("failed to commit refresh: %w", err)
		}
		return &RegisterResult{Action: RegisterActionAlreadyRegistered}, nil

	default:
		if _, err := tx.Exec(`DELETE FROM active_devices WHERE id = ?`, existing.ID); err != nil {
			return nil, fmt.Errorf("failed to evict previous session: %w", err)
		}
		if err := insertDeviceSession(tx, profileID, session, now); err != nil {
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("failed to commit replacement: %w", err)
		}
		return &RegisterResult{
			Action:           RegisterActionKickedRegistered,
			Kicked:           true,
			KickedDeviceID:   existing.DeviceID,
			KickedDeviceName: existing.DeviceName,
		}, nil
	}
}

func insertDeviceSession(tx *sql.Tx, profileID string, session *DeviceSession, now time.Time) error {
	if session.ID == "" {
		session.ID = uuid.New().String()
	}
	_, err := tx.Exec(`INSERT INTO active_devices (id, profile_id, device_id, device_name, user_agent, ip_address, last_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID, profileID, session.DeviceID, session.DeviceName, session.UserAgent,
		session.IPAddress, now, now)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

func GetDeviceSession(db *sql.DB, profileID string) (*DeviceSession, error) {
	query := `SELECT id, profile_id, device_id, device_name, user_agent, ip_address, last_active, created_at
		FROM active_devices WHERE profile_id = ?`

	var s DeviceSession
	err := db.QueryRow(query, profileID).Scan(&s.ID, &s.ProfileID, &s.DeviceID, &s.DeviceName,
		&s.UserAgent, &s.IPAddress, &s.LastActive, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get device session: %w", err)
	}
	return &s, nil
}

// DeviceSessionExists reports whether deviceID currently holds the single
// session slot for the profile.
func DeviceSessionExists(db *sql.DB, profileID, deviceID string) (bool, error) {
	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM active_devices WHERE profile_id = ? AND device_id = ?`,
		profileID, deviceID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check device session: %w", err)
	}
	return count > 0, nil
}

func TouchDeviceActivity(db *sql.DB, profileID, deviceID string) error {
	_, err := db.Exec(`UPDATE active_devices SET last_active = ? WHERE profile_id = ? AND device_id = ?`,
		time.Now().UTC(), profileID, deviceID)
	if err != nil {
		return fmt.Errorf("failed to touch device activity: %w", err)
	}
	return nil
}

func RemoveDeviceSession(db *sql.DB, profileID string) error {
	_, err := db.Exec(`DELETE FROM active_devices WHERE profile_id = ?`, profileID)
	if err != nil {
		return fmt.Errorf("failed to remove device session: %w", err)
	}
	return nil
}

// RemoveDeviceByID frees the session slot only when the given device holds
// it, reporting whether a row was removed.
func RemoveDeviceByID(db *sql.DB, profileID, deviceID string) (bool, error) {
	result, err := db.Exec(`DELETE FROM active_devices WHERE profile_id = ? AND device_id = ?`,
		profileID, deviceID)
	if err != nil {
		return false, fmt.Errorf("failed to remove device: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check device removal: %w", err)
	}
	return affected > 0, nil
}

func LogAuditEvent(db *sql.DB, profileID, action string, details map[string]interface{}) error {
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		detailsJSON = []byte("{}")
	}

	_, err = db.Exec(`INSERT INTO audit_logs (id, profile_id, action, details, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		uuid.New().String(), profileID, action, string(detailsJSON), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to log audit event: %w", err)
	}
	return nil
}

func GetAuditLogs(db *sql.DB, profileID string, limit int) ([]*AuditLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	rows, err := db.Query(`SELECT id, profile_id, action, details, ip_address, user_agent, created_at
		FROM audit_logs WHERE profile_id = ? ORDER BY created_at DESC LIMIT ?`, profileID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}
	defer rows.Close()

	var logs []*AuditLog
	for rows.Next() {
		var log AuditLog
		var detailsJSON string
		if err := rows.Scan(&log.ID, &log.ProfileID, &log.Action, &detailsJSON,
			&log.IPAddress, &log.UserAgent, &log.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		if err := json.Unmarshal([]byte(detailsJSON), &log.Details); err != nil {
			log.Details = map[string]interface{}{}
		}
		logs = append(logs, &log)
	}

	return logs, rows.Err()
}
