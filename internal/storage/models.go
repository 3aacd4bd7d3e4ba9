package storage

import (
	"time"
)

const (
	RoleSuperAdmin   = "super_admin"
	RoleBusinessUser = "business_user"
)

type Profile struct {
	ID                  string     `json:"id" db:"id"`
	Email               string     `json:"email" db:"email"`
	BusinessName        string     `json:"business_name" db:"business_name"`
	PasswordHash        []byte     `json:"-" db:"password_hash"`
	Role                string     `json:"role" db:"role"`
	IsSuspended         bool       `json:"is_suspended" db:"is_suspended"`
	SuspensionMessage   string     `json:"suspension_message" db:"suspension_message"`
	SubscriptionEndsAt  *time.Time `json:"subscription_ends_at" db:"subscription_ends_at"`
	PINHash             []byte     `json:"-" db:"pin_hash"`
	AutoClearEnabled    bool       `json:"auto_clear_enabled" db:"auto_clear_enabled"`
	AutoClearDays       int        `json:"auto_clear_days" db:"auto_clear_days"`
	CreatedAt           time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at" db:"updated_at"`
	IsActive            bool       `json:"is_active" db:"is_active"`
	LastLogin           *time.Time `json:"last_login" db:"last_login"`
	FailedLoginAttempts int        `json:"-" db:"failed_login_attempts"`
	LockedUntil         *time.Time `json:"-" db:"locked_until"`
}

// DeviceSession is the single-active-session record. At most one row exists
// per profile; registering a different device replaces the previous row.
type DeviceSession struct {
	ID         string    `json:"id" db:"id"`
	ProfileID  string    `json:"profile_id" db:"profile_id"`
	DeviceID   string    `json:"device_id" db:"device_id"`
	DeviceName string    `json:"device_name" db:"device_name"`
	UserAgent  string    `json:"user_agent" db:"user_agent"`
	IPAddress  string    `json:"ip_address" db:"ip_address"`
	LastActive time.Time `json:"last_active" db:"last_active"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

const (
	RegisterActionRegistered        = "registered"
	RegisterActionAlreadyRegistered = "already_registered"
	RegisterActionKickedRegistered  = "kicked_and_registered"
)

// RegisterResult reports what the evict-and-replace registration did,
// including the identity of a kicked device when one was evicted.
type RegisterResult struct {
	Action           string `json:"action"`
	Kicked           bool   `json:"kicked"`
	KickedDeviceID   string `json:"kicked_device_id,omitempty"`
	KickedDeviceName string `json:"kicked_device_name,omitempty"`
}

type Product struct {
	ID         string    `json:"id" db:"id"`
	ProfileID  string    `json:"profile_id" db:"profile_id"`
	Name       string    `json:"name" db:"name"`
	Category   string    `json:"category" db:"category"`
	PriceCents int64     `json:"price_cents" db:"price_cents"`
	CostCents  int64     `json:"cost_cents" db:"cost_cents"`
	Stock      float64   `json:"stock" db:"stock"`
	Unit       string    `json:"unit" db:"unit"`
	ImageURL   string    `json:"image_url" db:"image_url"`
	IsActive   bool      `json:"is_active" db:"is_active"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

type Sale struct {
	ID            string     `json:"id" db:"id"`
	ProfileID     string     `json:"profile_id" db:"profile_id"`
	DeviceID      string     `json:"device_id" db:"device_id"`
	TotalCents    int64      `json:"total_cents" db:"total_cents"`
	PaymentMethod string     `json:"payment_method" db:"payment_method"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	Items         []SaleItem `json:"items,omitempty" db:"-"`
}

type SaleItem struct {
	ID             string  `json:"id" db:"id"`
	SaleID         string  `json:"sale_id" db:"sale_id"`
	ProductID      string  `json:"product_id" db:"product_id"`
	ProductName    string  `json:"product_name" db:"product_name"`
	UnitPriceCents int64   `json:"unit_price_cents" db:"unit_price_cents"`
	Quantity       float64 `json:"quantity" db:"quantity"`
	LineTotalCents int64   `json:"line_total_cents" db:"line_total_cents"`
}

type Expense struct {
	ID          string    `json:"id" db:"id"`
	ProfileID   string    `json:"profile_id" db:"profile_id"`
	Description string    `json:"description" db:"description"`
	Category    string    `json:"category" db:"category"`
	AmountCents int64     `json:"amount_cents" db:"amount_cents"`
	IncurredAt  time.Time `json:"incurred_at" db:"incurred_at"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

type AnalyticsEvent struct {
	ID        string                 `json:"id" db:"id"`
	ProfileID string                 `json:"profile_id" db:"profile_id"`
	EventType string                 `json:"event_type" db:"event_type"`
	Details   map[string]interface{} `json:"details" db:"details"`
	CreatedAt time.Time              `json:"created_at" db:"created_at"`
}

type AuditLog struct {
	ID        string                 `json:"id" db:"id"`
	ProfileID string                 `json:"profile_id" db:"profile_id"`
	Action    string                 `json:"action" db:"action"`
	Details   map[string]interface{} `json:"details" db:"details"`
	IPAddress string                 `json:"ip_address" db:"ip_address"`
	UserAgent string                 `json:"user_agent" db:"user_agent"`
	CreatedAt time.Time              `json:"created_at" db:"created_at"`
}
