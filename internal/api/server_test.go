package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/NEXESMISSION/KESTI-sub002/internal/storage"
	"github.com/NEXESMISSION/KESTI-sub002/internal/utils"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func testServer(t *testing.T) (*Server, *storage.Database) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := storage.NewDatabase(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := storage.RunMigrations(db.DB); err != nil {
		t.Fatalf("running migrations: %v", err)
	}

	config := &utils.Config{}
	config.Server.Mode = "development"
	config.Security.JWTSecret = testSecret
	config.Security.TokenValidity = time.Hour
	config.Security.RateLimitRequests = 1000
	config.Security.RateLimitWindow = time.Minute
	config.Security.MaxLoginAttempts = 5
	config.Security.LockoutDuration = time.Minute

	logger := utils.NewLogger("error", "text", "stdout")
	return NewServer(db, logger, config), db
}

func createAccount(t *testing.T, db *storage.Database, role string) (*storage.Profile, string) {
	t.Helper()

	hash, err := utils.HashPassword("Sup3rSecret!")
	if err != nil {
		t.Fatal(err)
	}

	now := time.Now().UTC()
	profile := &storage.Profile{
		ID:            uuid.New().String(),
		Email:         uuid.New().String() + "@example.com",
		BusinessName:  "Test Shop",
		PasswordHash:  hash,
		Role:          role,
		AutoClearDays: 90,
		CreatedAt:     now,
		UpdatedAt:     now,
		IsActive:      true,
	}
	if err := storage.CreateProfile(db.DB, profile); err != nil {
		t.Fatal(err)
	}

	token, err := utils.GenerateJWT(profile.ID, profile.Email, profile.Role, testSecret, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return profile, token
}

func doJSON(t *testing.T, router http.Handler, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestDeviceRegistrationEvictsPreviousDevice(t *testing.T) {
	server, db := testServer(t)
	router := server.Router()
	_, token := createAccount(t, db, storage.RoleBusinessUser)

	w := doJSON(t, router, http.MethodPost, "/api/v1/devices/register", token,
		map[string]string{"device_id": "device-a", "device_name": "Counter"})
	if w.Code != http.StatusOK {
		t.Fatalf("first register = %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, http.MethodPost, "/api/v1/devices/register", token,
		map[string]string{"device_id": "device-b"})
	if w.Code != http.StatusOK {
		t.Fatalf("second register = %d: %s", w.Code, w.Body.String())
	}

	var result storage.RegisterResult
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatal(err)
	}
	if result.Action != storage.RegisterActionKickedRegistered || result.KickedDeviceID != "device-a" {
		t.Fatalf("result = %+v", result)
	}

	w = doJSON(t, router, http.MethodGet, "/api/v1/devices/authorized?device_id=device-a", token, nil)
	var check struct {
		Authorized bool `json:"authorized"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &check); err != nil {
		t.Fatal(err)
	}
	if check.Authorized {
		t.Error("evicted device still reports authorized")
	}

	w = doJSON(t, router, http.MethodGet, "/api/v1/devices/authorized?device_id=device-b", token, nil)
	if err := json.Unmarshal(w.Body.Bytes(), &check); err != nil {
		t.Fatal(err)
	}
	if !check.Authorized {
		t.Error("new device reports unauthorized")
	}
}

func TestSuspendedAccountIsGated(t *testing.T) {
	server, db := testServer(t)
	router := server.Router()
	profile, token := createAccount(t, db, storage.RoleBusinessUser)

	w := doJSON(t, router, http.MethodGet, "/api/v1/products", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("products before suspension = %d", w.Code)
	}

	if err := storage.SetSuspension(db.DB, profile.ID, true, "Payment overdue"); err != nil {
		t.Fatal(err)
	}

	w = doJSON(t, router, http.MethodGet, "/api/v1/products", token, nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("products after suspension = %d, want 403", w.Code)
	}

	var resp utils.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Code != "ACCOUNT_SUSPENDED" || resp.Redirect != "/suspended" {
		t.Errorf("gate response = %+v", resp)
	}

	// status stays reachable so the client can learn why it is blocked
	w = doJSON(t, router, http.MethodGet, "/api/v1/profile/status", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status while suspended = %d, want 200", w.Code)
	}
	var status struct {
		Decision struct {
			Verdict string `json:"verdict"`
			Message string `json:"message"`
		} `json:"decision"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatal(err)
	}
	if status.Decision.Verdict != "suspended" || status.Decision.Message != "Payment overdue" {
		t.Errorf("status decision = %+v", status.Decision)
	}

	// device routes stay reachable too, enforcement keeps polling
	w = doJSON(t, router, http.MethodGet, "/api/v1/devices/authorized?device_id=device-a", token, nil)
	if w.Code != http.StatusOK {
		t.Errorf("devices route while suspended = %d, want 200", w.Code)
	}
}

func TestExpiredSubscriptionIsGated(t *testing.T) {
	server, db := testServer(t)
	router := server.Router()
	profile, token := createAccount(t, db, storage.RoleBusinessUser)

	past := time.Now().UTC().Add(-time.Hour)
	if err := storage.SetSubscriptionEnd(db.DB, profile.ID, &past); err != nil {
		t.Fatal(err)
	}

	w := doJSON(t, router, http.MethodGet, "/api/v1/sales", token, nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("sales with expired subscription = %d, want 403", w.Code)
	}

	var resp utils.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Code != "SUBSCRIPTION_EXPIRED" || resp.Redirect != "/subscription-expired" {
		t.Errorf("gate response = %+v", resp)
	}
}

func TestAdminRoutesRequireSuperAdmin(t *testing.T) {
	server, db := testServer(t)
	router := server.Router()
	_, userToken := createAccount(t, db, storage.RoleBusinessUser)
	_, adminToken := createAccount(t, db, storage.RoleSuperAdmin)

	w := doJSON(t, router, http.MethodGet, "/api/v1/admin/businesses", userToken, nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("business user reached admin route, code = %d", w.Code)
	}

	w = doJSON(t, router, http.MethodGet, "/api/v1/admin/businesses", adminToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("admin list = %d: %s", w.Code, w.Body.String())
	}
}

func TestAdminSuspendFlow(t *testing.T) {
	server, db := testServer(t)
	router := server.Router()
	target, targetToken := createAccount(t, db, storage.RoleBusinessUser)
	_, adminToken := createAccount(t, db, storage.RoleSuperAdmin)

	w := doJSON(t, router, http.MethodPut, "/api/v1/admin/businesses/"+target.ID+"/suspension", adminToken,
		map[string]interface{}{"suspended": true, "message": "Unpaid invoice"})
	if w.Code != http.StatusOK {
		t.Fatalf("suspend = %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, http.MethodGet, "/api/v1/products", targetToken, nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("suspended target not gated, code = %d", w.Code)
	}

	w = doJSON(t, router, http.MethodPut, "/api/v1/admin/businesses/"+target.ID+"/suspension", adminToken,
		map[string]interface{}{"suspended": false})
	if w.Code != http.StatusOK {
		t.Fatalf("unsuspend = %d", w.Code)
	}

	w = doJSON(t, router, http.MethodGet, "/api/v1/products", targetToken, nil)
	if w.Code != http.StatusOK {
		t.Errorf("unsuspended target still gated, code = %d", w.Code)
	}
}

func TestLoginAndSaleFlow(t *testing.T) {
	server, db := testServer(t)
	router := server.Router()
	profile, _ := createAccount(t, db, storage.RoleBusinessUser)

	w := doJSON(t, router, http.MethodPost, "/api/v1/auth/login", "",
		map[string]string{"email": profile.Email, "password": "Sup3rSecret!"})
	if w.Code != http.StatusOK {
		t.Fatalf("login = %d: %s", w.Code, w.Body.String())
	}
	var login struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &login); err != nil {
		t.Fatal(err)
	}
	if login.Token == "" {
		t.Fatal("login returned no token")
	}

	w = doJSON(t, router, http.MethodPost, "/api/v1/products", login.Token,
		map[string]interface{}{"name": "Espresso", "price_cents": 300, "stock": 10})
	if w.Code != http.StatusCreated {
		t.Fatalf("create product = %d: %s", w.Code, w.Body.String())
	}
	var product storage.Product
	if err := json.Unmarshal(w.Body.Bytes(), &product); err != nil {
		t.Fatal(err)
	}

	w = doJSON(t, router, http.MethodPost, "/api/v1/sales", login.Token,
		map[string]interface{}{
			"payment_method": "card",
			"items":          []map[string]interface{}{{"product_id": product.ID, "quantity": 2}},
		})
	if w.Code != http.StatusCreated {
		t.Fatalf("create sale = %d: %s", w.Code, w.Body.String())
	}
	var sale storage.Sale
	if err := json.Unmarshal(w.Body.Bytes(), &sale); err != nil {
		t.Fatal(err)
	}
	if sale.TotalCents != 600 {
		t.Errorf("sale total = %d, want 600", sale.TotalCents)
	}

	w = doJSON(t, router, http.MethodGet, "/api/v1/analytics/dashboard", login.Token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("dashboard = %d: %s", w.Code, w.Body.String())
	}
	var dashboard struct {
		RevenueCents int64 `json:"revenue_cents"`
		SalesCount   int64 `json:"sales_count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &dashboard); err != nil {
		t.Fatal(err)
	}
	if dashboard.RevenueCents != 600 || dashboard.SalesCount != 1 {
		t.Errorf("dashboard = %+v", dashboard)
	}
}

func TestDeviceListAndRemove(t *testing.T) {
	server, db := testServer(t)
	router := server.Router()
	_, token := createAccount(t, db, storage.RoleBusinessUser)

	w := doJSON(t, router, http.MethodPost, "/api/v1/devices/register", token,
		map[string]string{"device_id": "device-a", "device_name": "Counter"})
	if w.Code != http.StatusOK {
		t.Fatalf("register = %d: %s", w.Code, w.Body.String())
	}

	var list struct {
		Devices []storage.DeviceSession `json:"devices"`
	}
	w = doJSON(t, router, http.MethodGet, "/api/v1/devices", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list = %d: %s", w.Code, w.Body.String())
	}
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if len(list.Devices) != 1 || list.Devices[0].DeviceID != "device-a" {
		t.Fatalf("devices = %+v", list.Devices)
	}

	var removal struct {
		Removed bool `json:"removed"`
	}
	w = doJSON(t, router, http.MethodDelete, "/api/v1/devices/device-b", token, nil)
	if err := json.Unmarshal(w.Body.Bytes(), &removal); err != nil {
		t.Fatal(err)
	}
	if removal.Removed {
		t.Error("removing an unregistered device reported removed")
	}

	w = doJSON(t, router, http.MethodDelete, "/api/v1/devices/device-a", token, nil)
	if err := json.Unmarshal(w.Body.Bytes(), &removal); err != nil {
		t.Fatal(err)
	}
	if !removal.Removed {
		t.Error("removing the registered device reported not removed")
	}

	w = doJSON(t, router, http.MethodGet, "/api/v1/devices", token, nil)
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if len(list.Devices) != 0 {
		t.Errorf("devices after removal = %+v", list.Devices)
	}
}

func TestSaleVoidRequiresPIN(t *testing.T) {
	server, db := testServer(t)
	router := server.Router()
	profile, token := createAccount(t, db, storage.RoleBusinessUser)

	pinHash, err := utils.HashPIN("4321")
	if err != nil {
		t.Fatal(err)
	}
	if err := storage.UpdateProfilePIN(db.DB, profile.ID, pinHash); err != nil {
		t.Fatal(err)
	}

	w := doJSON(t, router, http.MethodPost, "/api/v1/products", token,
		map[string]interface{}{"name": "Latte", "price_cents": 450, "stock": 5})
	if w.Code != http.StatusCreated {
		t.Fatalf("create product = %d: %s", w.Code, w.Body.String())
	}
	var product storage.Product
	if err := json.Unmarshal(w.Body.Bytes(), &product); err != nil {
		t.Fatal(err)
	}

	w = doJSON(t, router, http.MethodPost, "/api/v1/sales", token,
		map[string]interface{}{
			"items": []map[string]interface{}{{"product_id": product.ID, "quantity": 1}},
		})
	if w.Code != http.StatusCreated {
		t.Fatalf("create sale = %d: %s", w.Code, w.Body.String())
	}
	var sale storage.Sale
	if err := json.Unmarshal(w.Body.Bytes(), &sale); err != nil {
		t.Fatal(err)
	}

	w = doJSON(t, router, http.MethodDelete, "/api/v1/sales/"+sale.ID, token, nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("void without PIN = %d, want 403", w.Code)
	}

	w = doJSON(t, router, http.MethodDelete, "/api/v1/sales/"+sale.ID, token,
		map[string]string{"pin": "9999"})
	if w.Code != http.StatusForbidden {
		t.Fatalf("void with wrong PIN = %d, want 403", w.Code)
	}

	w = doJSON(t, router, http.MethodDelete, "/api/v1/sales/"+sale.ID, token,
		map[string]string{"pin": "4321"})
	if w.Code != http.StatusOK {
		t.Fatalf("void with correct PIN = %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, http.MethodGet, "/api/v1/sales/"+sale.ID, token, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("voided sale still readable, code = %d", w.Code)
	}
}

func TestTokenRefresh(t *testing.T) {
	server, db := testServer(t)
	router := server.Router()
	_, token := createAccount(t, db, storage.RoleBusinessUser)

	w := doJSON(t, router, http.MethodPost, "/api/v1/auth/refresh", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("refresh = %d: %s", w.Code, w.Body.String())
	}
	var refreshed struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &refreshed); err != nil {
		t.Fatal(err)
	}
	if refreshed.Token == "" {
		t.Fatal("refresh returned no token")
	}

	w = doJSON(t, router, http.MethodGet, "/api/v1/products", refreshed.Token, nil)
	if w.Code != http.StatusOK {
		t.Errorf("refreshed token rejected, code = %d", w.Code)
	}
}

func TestAdminResetsPassword(t *testing.T) {
	server, db := testServer(t)
	router := server.Router()
	target, _ := createAccount(t, db, storage.RoleBusinessUser)
	_, adminToken := createAccount(t, db, storage.RoleSuperAdmin)

	w := doJSON(t, router, http.MethodPost, "/api/v1/admin/businesses/"+target.ID+"/reset-password", adminToken,
		map[string]string{"new_password": "N3wPassword!"})
	if w.Code != http.StatusOK {
		t.Fatalf("reset = %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, http.MethodPost, "/api/v1/auth/login", "",
		map[string]string{"email": target.Email, "password": "Sup3rSecret!"})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("old password still accepted, code = %d", w.Code)
	}

	w = doJSON(t, router, http.MethodPost, "/api/v1/auth/login", "",
		map[string]string{"email": target.Email, "password": "N3wPassword!"})
	if w.Code != http.StatusOK {
		t.Errorf("new password rejected, code = %d: %s", w.Code, w.Body.String())
	}
}

func TestContactFormReachableWhileBlocked(t *testing.T) {
	relay := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer relay.Close()

	server, db := testServer(t)
	server.config.Contact.RelayURL = relay.URL
	server.config.Contact.Timeout = 5 * time.Second
	router := server.Router()

	w := doJSON(t, router, http.MethodPost, "/api/v1/contact", "",
		map[string]string{"name": "Visitor", "email": "visitor@example.com",
			"subject": "Pricing", "message": "How much per terminal?"})
	if w.Code != http.StatusAccepted {
		t.Fatalf("anonymous contact = %d: %s", w.Code, w.Body.String())
	}

	profile, token := createAccount(t, db, storage.RoleBusinessUser)
	if err := storage.SetSuspension(db.DB, profile.ID, true, "Payment overdue"); err != nil {
		t.Fatal(err)
	}

	w = doJSON(t, router, http.MethodPost, "/api/v1/contact", token,
		map[string]string{"subject": "Suspension", "message": "Please reinstate my account."})
	if w.Code != http.StatusAccepted {
		t.Fatalf("suspended account contact = %d: %s", w.Code, w.Body.String())
	}
}

func TestWrongCredentialsRejected(t *testing.T) {
	server, db := testServer(t)
	router := server.Router()
	profile, _ := createAccount(t, db, storage.RoleBusinessUser)

	w := doJSON(t, router, http.MethodPost, "/api/v1/auth/login", "",
		map[string]string{"email": profile.Email, "password": "wrong"})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("bad password = %d, want 401", w.Code)
	}

	w = doJSON(t, router, http.MethodPost, "/api/v1/auth/login", "",
		map[string]string{"email": "nobody@example.com", "password": "whatever"})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unknown account = %d, want 401", w.Code)
	}
}

func TestUnauthenticatedRequestsRejected(t *testing.T) {
	server, _ := testServer(t)
	router := server.Router()

	for _, path := range []string{
		"/api/v1/products",
		"/api/v1/sales",
		"/api/v1/devices",
		"/api/v1/profile/status",
		"/api/v1/admin/businesses",
	} {
		w := doJSON(t, router, http.MethodGet, path, "", nil)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s without token = %d, want 401", path, w.Code)
		}
	}
}
