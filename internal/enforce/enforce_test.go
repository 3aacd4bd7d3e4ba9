package enforce

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/NEXESMISSION/KESTI-sub002/internal/utils"
)

func testLogger() utils.Logger {
	return utils.NewLogger("error", "text", "stdout")
}

func TestLocalDeviceIDStable(t *testing.T) {
	dir := t.TempDir()

	first, err := LocalDeviceID(dir)
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	if first == UnknownDevice {
		t.Fatal("first call returned unknown device")
	}

	second, err := LocalDeviceID(dir)
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if second != first {
		t.Errorf("identity changed between calls: %q then %q", first, second)
	}
}

func TestLocalDeviceIDUnwritableDir(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("permission checks do not apply to root")
	}

	dir := t.TempDir()
	if err := os.Chmod(dir, 0o500); err != nil {
		t.Fatal(err)
	}
	defer os.Chmod(dir, 0o700)

	id, err := LocalDeviceID(filepath.Join(dir, "state"))
	if err == nil {
		t.Fatal("expected error for unwritable state dir")
	}
	if id != UnknownDevice {
		t.Errorf("id = %q, want unknown device sentinel", id)
	}
}

func TestIsDeviceAuthorizedFailOpenOnTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "token", "device-1", testLogger())
	client.http.SetRetryCount(0)

	authorized, err := client.IsDeviceAuthorized(context.Background())
	if err == nil {
		t.Fatal("expected error from 500 response")
	}
	if !authorized {
		t.Error("transport failure must not revoke authorization")
	}
}

func TestIsDeviceAuthorizedServerVerdict(t *testing.T) {
	var authorized atomic.Bool
	authorized.Store(true)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/devices/authorized" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("device_id"); got != "device-1" {
			t.Errorf("device_id = %q", got)
		}
		json.NewEncoder(w).Encode(map[string]bool{"authorized": authorized.Load()})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "token", "device-1", testLogger())

	ok, err := client.IsDeviceAuthorized(context.Background())
	if err != nil || !ok {
		t.Fatalf("authorized = %v, err = %v", ok, err)
	}

	authorized.Store(false)
	ok, err = client.IsDeviceAuthorized(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("server said no, client said yes")
	}
}

func TestEnforcerSignsOutOnEviction(t *testing.T) {
	var authorized atomic.Bool
	authorized.Store(true)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]bool{"authorized": authorized.Load()})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "token", "device-1", testLogger())

	var mu sync.Mutex
	var gotRedirect, gotReason string
	signedOut := make(chan struct{})

	enforcer := NewEnforcer(client, testLogger(), 20*time.Millisecond,
		func(redirect, reason string) {
			mu.Lock()
			gotRedirect, gotReason = redirect, reason
			mu.Unlock()
			close(signedOut)
		})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	enforcer.Start(ctx)
	defer enforcer.Stop()

	if state := enforcer.State(); state != StateEnforcing {
		t.Fatalf("state = %q, want %q", state, StateEnforcing)
	}

	authorized.Store(false)

	select {
	case <-signedOut:
	case <-time.After(2 * time.Second):
		t.Fatal("sign-out callback never fired")
	}

	mu.Lock()
	defer mu.Unlock()
	if gotRedirect != "/login?reason=device_limit_exceeded" {
		t.Errorf("redirect = %q", gotRedirect)
	}
	if gotReason != "device_limit_exceeded" {
		t.Errorf("reason = %q", gotReason)
	}
	if state := enforcer.State(); state != StateInactive {
		t.Errorf("state after sign-out = %q, want %q", state, StateInactive)
	}
}

func TestEnforcerStaysActiveThroughOutage(t *testing.T) {
	var failing atomic.Bool

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if failing.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(map[string]bool{"authorized": true})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "token", "device-1", testLogger())
	client.http.SetRetryCount(0)

	enforcer := NewEnforcer(client, testLogger(), 10*time.Millisecond,
		func(redirect, reason string) {
			t.Error("sign-out fired during transport outage")
		})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	enforcer.Start(ctx)
	failing.Store(true)
	time.Sleep(100 * time.Millisecond)
	enforcer.Stop()

	if state := enforcer.State(); state != StateInactive {
		t.Errorf("state after stop = %q, want %q", state, StateInactive)
	}
}

func TestEnforcerHeartbeatsWhileAuthorized(t *testing.T) {
	var heartbeats atomic.Int64

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/devices/heartbeat":
			heartbeats.Add(1)
			json.NewEncoder(w).Encode(map[string]bool{"ok": true})
		default:
			json.NewEncoder(w).Encode(map[string]bool{"authorized": true})
		}
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "token", "device-1", testLogger())

	enforcer := NewEnforcer(client, testLogger(), 10*time.Millisecond,
		func(redirect, reason string) {
			t.Error("sign-out fired for an authorized device")
		})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	enforcer.Start(ctx)
	time.Sleep(100 * time.Millisecond)
	enforcer.Stop()

	if heartbeats.Load() == 0 {
		t.Error("no heartbeat sent despite successful authorization checks")
	}
}

func TestStatusGateDebounce(t *testing.T) {
	var calls atomic.Int64

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"decision": map[string]interface{}{"verdict": "allowed", "allowed": true},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "token", "device-1", testLogger())
	gate := NewStatusGate(client, testLogger(), 200*time.Millisecond, 3)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if decision := gate.Check(ctx); !decision.Allowed {
			t.Fatal("expected allowed")
		}
	}

	if n := calls.Load(); n != 1 {
		t.Errorf("backend called %d times inside debounce window, want 1", n)
	}

	time.Sleep(250 * time.Millisecond)
	gate.Check(ctx)
	if n := calls.Load(); n != 2 {
		t.Errorf("backend called %d times after window elapsed, want 2", n)
	}
}

func TestStatusGateDebouncesFailedChecks(t *testing.T) {
	var calls atomic.Int64

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "token", "device-1", testLogger())
	client.http.SetRetryCount(0)
	gate := NewStatusGate(client, testLogger(), 200*time.Millisecond, 10)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if decision := gate.Check(ctx); !decision.Allowed {
			t.Fatal("failed checks must fail open")
		}
	}

	if n := calls.Load(); n != 1 {
		t.Errorf("backend called %d times inside debounce window, want 1", n)
	}
}

func TestStatusGateBlocksOnVerdict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"decision": map[string]interface{}{
				"verdict":  "suspended",
				"allowed":  false,
				"redirect": "/suspended",
				"message":  "Account suspended",
			},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "token", "device-1", testLogger())
	gate := NewStatusGate(client, testLogger(), time.Millisecond, 3)

	decision := gate.Check(context.Background())
	if decision.Allowed {
		t.Fatal("expected block")
	}
	if decision.Redirect != "/suspended" {
		t.Errorf("redirect = %q", decision.Redirect)
	}
	if decision.Message != "Account suspended" {
		t.Errorf("message = %q", decision.Message)
	}
}

func TestStatusGateBreakerTripsAndResets(t *testing.T) {
	var calls atomic.Int64

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "token", "device-1", testLogger())
	client.http.SetRetryCount(0)
	gate := NewStatusGate(client, testLogger(), time.Nanosecond, 3)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if decision := gate.Check(ctx); !decision.Allowed {
			t.Fatal("failures must fail open")
		}
	}

	if !gate.Tripped() {
		t.Fatal("breaker should have tripped after 3 failures")
	}
	if n := calls.Load(); n != 3 {
		t.Errorf("backend called %d times, want exactly 3 before tripping", n)
	}

	gate.Reset()
	if gate.Tripped() {
		t.Error("reset did not clear the breaker")
	}
	gate.Check(ctx)
	if n := calls.Load(); n != 4 {
		t.Errorf("backend not consulted after reset, calls = %d", n)
	}
}
