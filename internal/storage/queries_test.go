package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
)

func testDB(t *testing.T) *Database {
	t.Helper()

	db, err := NewDatabase(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := RunMigrations(db.DB); err != nil {
		t.Fatalf("running migrations: %v", err)
	}
	return db
}

func testProfile(t *testing.T, db *Database) *Profile {
	t.Helper()

	now := time.Now().UTC()
	profile := &Profile{
		ID:            uuid.New().String(),
		Email:         uuid.New().String() + "@example.com",
		BusinessName:  "Test Shop",
		PasswordHash:  []byte("hash"),
		Role:          RoleBusinessUser,
		AutoClearDays: 90,
		CreatedAt:     now,
		UpdatedAt:     now,
		IsActive:      true,
	}
	if err := CreateProfile(db.DB, profile); err != nil {
		t.Fatalf("creating profile: %v", err)
	}
	return profile
}

func TestRegisterDeviceSessionLifecycle(t *testing.T) {
	db := testDB(t)
	profile := testProfile(t, db)
	ctx := context.Background()

	first := &DeviceSession{DeviceID: "device-a", DeviceName: "Front counter"}
	result, err := RegisterDeviceSession(ctx, db, profile.ID, first)
	if err != nil {
		t.Fatalf("first registration: %v", err)
	}
	if result.Action != RegisterActionRegistered || result.Kicked {
		t.Fatalf("first registration result = %+v", result)
	}

	// same device again refreshes, no eviction
	result, err = RegisterDeviceSession(ctx, db, profile.ID, &DeviceSession{DeviceID: "device-a"})
	if err != nil {
		t.Fatalf("re-registration: %v", err)
	}
	if result.Action != RegisterActionAlreadyRegistered || result.Kicked {
		t.Fatalf("re-registration result = %+v", result)
	}

	// different device evicts the first
	result, err = RegisterDeviceSession(ctx, db, profile.ID, &DeviceSession{DeviceID: "device-b", DeviceName: "Back office"})
	if err != nil {
		t.Fatalf("replacement registration: %v", err)
	}
	if result.Action != RegisterActionKickedRegistered || !result.Kicked {
		t.Fatalf("replacement result = %+v", result)
	}
	if result.KickedDeviceID != "device-a" || result.KickedDeviceName != "Front counter" {
		t.Errorf("kicked device = %q (%q)", result.KickedDeviceID, result.KickedDeviceName)
	}

	exists, err := DeviceSessionExists(db.DB, profile.ID, "device-a")
	if err != nil {
		t.Fatal(err)
	}
	if exists {
		t.Error("evicted device still holds the slot")
	}

	exists, err = DeviceSessionExists(db.DB, profile.ID, "device-b")
	if err != nil {
		t.Fatal(err)
	}
	if !exists {
		t.Error("new device does not hold the slot")
	}

	session, err := GetDeviceSession(db.DB, profile.ID)
	if err != nil {
		t.Fatal(err)
	}
	if session == nil || session.DeviceID != "device-b" {
		t.Fatalf("active session = %+v", session)
	}

	if err := RemoveDeviceSession(db.DB, profile.ID); err != nil {
		t.Fatal(err)
	}
	session, err = GetDeviceSession(db.DB, profile.ID)
	if err != nil {
		t.Fatal(err)
	}
	if session != nil {
		t.Error("session survived removal")
	}
}

func TestRegisterDeviceSessionIsolatedPerProfile(t *testing.T) {
	db := testDB(t)
	alice := testProfile(t, db)
	bob := testProfile(t, db)
	ctx := context.Background()

	if _, err := RegisterDeviceSession(ctx, db, alice.ID, &DeviceSession{DeviceID: "device-a"}); err != nil {
		t.Fatal(err)
	}
	result, err := RegisterDeviceSession(ctx, db, bob.ID, &DeviceSession{DeviceID: "device-b"})
	if err != nil {
		t.Fatal(err)
	}
	if result.Kicked {
		t.Error("registering for one profile evicted another profile's device")
	}

	exists, err := DeviceSessionExists(db.DB, alice.ID, "device-a")
	if err != nil {
		t.Fatal(err)
	}
	if !exists {
		t.Error("alice's session disappeared")
	}
}

func TestCreateSaleComputesTotalsAndStock(t *testing.T) {
	db := testDB(t)
	profile := testProfile(t, db)
	ctx := context.Background()

	now := time.Now().UTC()
	coffee := &Product{
		ID: uuid.New().String(), ProfileID: profile.ID, Name: "Coffee",
		PriceCents: 350, Stock: 100, Unit: "item", IsActive: true,
		CreatedAt: now, UpdatedAt: now,
	}
	beans := &Product{
		ID: uuid.New().String(), ProfileID: profile.ID, Name: "Beans",
		PriceCents: 1200, Stock: 10, Unit: "kg", IsActive: true,
		CreatedAt: now, UpdatedAt: now,
	}
	for _, p := range []*Product{coffee, beans} {
		if err := CreateProduct(db.DB, p); err != nil {
			t.Fatal(err)
		}
	}

	sale := &Sale{
		ProfileID:     profile.ID,
		DeviceID:      "device-a",
		PaymentMethod: "cash",
		// fraudulent client-supplied total should be ignored
		TotalCents: 1,
		Items: []SaleItem{
			{ProductID: coffee.ID, Quantity: 2},
			{ProductID: beans.ID, Quantity: 0.5},
		},
	}

	if err := CreateSale(ctx, db, sale); err != nil {
		t.Fatalf("creating sale: %v", err)
	}

	// 2 * 350 + 0.5 * 1200 = 1300
	if sale.TotalCents != 1300 {
		t.Errorf("total = %d, want 1300", sale.TotalCents)
	}

	stored, err := GetSale(db.DB, profile.ID, sale.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.TotalCents != 1300 || len(stored.Items) != 2 {
		t.Errorf("stored sale = total %d with %d items", stored.TotalCents, len(stored.Items))
	}

	updated, err := GetProduct(db.DB, profile.ID, coffee.ID)
	if err != nil {
		t.Fatal(err)
	}
	if updated.Stock != 98 {
		t.Errorf("coffee stock = %v, want 98", updated.Stock)
	}
}

func TestCreateSaleRejectsUnknownProduct(t *testing.T) {
	db := testDB(t)
	profile := testProfile(t, db)

	sale := &Sale{
		ProfileID: profile.ID,
		Items:     []SaleItem{{ProductID: "no-such-product", Quantity: 1}},
	}
	if err := CreateSale(context.Background(), db, sale); err == nil {
		t.Fatal("expected error for unknown product")
	}

	sales, err := ListSales(db.DB, profile.ID, time.Now().Add(-time.Hour), time.Now().Add(time.Hour), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(sales) != 0 {
		t.Error("failed sale left rows behind")
	}
}

func TestPurgeHistoryBefore(t *testing.T) {
	db := testDB(t)
	profile := testProfile(t, db)
	ctx := context.Background()

	now := time.Now().UTC()
	product := &Product{
		ID: uuid.New().String(), ProfileID: profile.ID, Name: "Tea",
		PriceCents: 200, Stock: 50, Unit: "item", IsActive: true,
		CreatedAt: now, UpdatedAt: now,
	}
	if err := CreateProduct(db.DB, product); err != nil {
		t.Fatal(err)
	}

	old := &Sale{ProfileID: profile.ID, PaymentMethod: "cash",
		Items: []SaleItem{{ProductID: product.ID, Quantity: 1}}}
	if err := CreateSale(ctx, db, old); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(`UPDATE sales SET created_at = ? WHERE id = ?`,
		now.AddDate(0, 0, -100), old.ID); err != nil {
		t.Fatal(err)
	}

	recent := &Sale{ProfileID: profile.ID, PaymentMethod: "cash",
		Items: []SaleItem{{ProductID: product.ID, Quantity: 1}}}
	if err := CreateSale(ctx, db, recent); err != nil {
		t.Fatal(err)
	}

	expense := &Expense{
		ID: uuid.New().String(), ProfileID: profile.ID, Description: "Rent",
		AmountCents: 5000, IncurredAt: now.AddDate(0, 0, -100), CreatedAt: now,
	}
	if err := CreateExpense(db.DB, expense); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		if err := RecordAnalyticsEvent(db.DB, profile.ID, "sale_created", nil); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := db.Exec(`UPDATE analytics_events SET created_at = ? WHERE id IN
		(SELECT id FROM analytics_events WHERE profile_id = ? LIMIT 1)`,
		now.AddDate(0, 0, -100), profile.ID); err != nil {
		t.Fatal(err)
	}

	salesDeleted, expensesDeleted, eventsDeleted, err := PurgeHistoryBefore(db.DB, profile.ID, now.AddDate(0, 0, -90))
	if err != nil {
		t.Fatal(err)
	}
	if salesDeleted != 1 || expensesDeleted != 1 || eventsDeleted != 1 {
		t.Errorf("purged %d sales, %d expenses, %d events, want 1 each",
			salesDeleted, expensesDeleted, eventsDeleted)
	}

	if _, err := GetSale(db.DB, profile.ID, recent.ID); err != nil {
		t.Errorf("recent sale was purged: %v", err)
	}
	if _, err := GetSale(db.DB, profile.ID, old.ID); err == nil {
		t.Error("old sale survived the purge")
	}

	var remaining int
	if err := db.QueryRow(`SELECT COUNT(*) FROM analytics_events WHERE profile_id = ?`,
		profile.ID).Scan(&remaining); err != nil {
		t.Fatal(err)
	}
	if remaining != 1 {
		t.Errorf("analytics events remaining = %d, want 1", remaining)
	}
}

func TestSalesSummaryAndTopProducts(t *testing.T) {
	db := testDB(t)
	profile := testProfile(t, db)
	ctx := context.Background()

	now := time.Now().UTC()
	product := &Product{
		ID: uuid.New().String(), ProfileID: profile.ID, Name: "Sandwich",
		PriceCents: 800, Stock: 50, Unit: "item", IsActive: true,
		CreatedAt: now, UpdatedAt: now,
	}
	if err := CreateProduct(db.DB, product); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		sale := &Sale{ProfileID: profile.ID, PaymentMethod: "cash",
			Items: []SaleItem{{ProductID: product.ID, Quantity: 1}}}
		if err := CreateSale(ctx, db, sale); err != nil {
			t.Fatal(err)
		}
	}

	from, to := now.Add(-time.Hour), now.Add(time.Hour)

	summary, err := GetSalesSummary(db.DB, profile.ID, from, to)
	if err != nil {
		t.Fatal(err)
	}
	var revenue int64
	for _, row := range summary {
		revenue += row.RevenueCents
	}
	if revenue != 2400 {
		t.Errorf("summary revenue = %d, want 2400", revenue)
	}

	top, err := GetTopProducts(db.DB, profile.ID, from, to, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(top) != 1 || top[0].RevenueCents != 2400 || top[0].Quantity != 3 {
		t.Errorf("top products = %+v", top)
	}
}

func TestSuspensionAndSubscriptionUpdates(t *testing.T) {
	db := testDB(t)
	profile := testProfile(t, db)

	if err := SetSuspension(db.DB, profile.ID, true, "Payment overdue"); err != nil {
		t.Fatal(err)
	}
	got, err := GetProfile(db.DB, profile.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.IsSuspended || got.SuspensionMessage != "Payment overdue" {
		t.Errorf("profile after suspension = %+v", got)
	}

	ends := time.Now().UTC().AddDate(0, 1, 0).Truncate(time.Second)
	if err := SetSubscriptionEnd(db.DB, profile.ID, &ends); err != nil {
		t.Fatal(err)
	}
	got, err = GetProfile(db.DB, profile.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.SubscriptionEndsAt == nil || !got.SubscriptionEndsAt.Equal(ends) {
		t.Errorf("subscription_ends_at = %v, want %v", got.SubscriptionEndsAt, ends)
	}

	if err := SetSubscriptionEnd(db.DB, profile.ID, nil); err != nil {
		t.Fatal(err)
	}
	got, err = GetProfile(db.DB, profile.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.SubscriptionEndsAt != nil {
		t.Error("clearing subscription end did not stick")
	}

	if err := SetSuspension(db.DB, "missing", true, ""); err == nil {
		t.Error("expected error for unknown profile")
	}
}
