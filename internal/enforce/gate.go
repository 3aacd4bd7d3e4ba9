package enforce

import (
	"context"
	"sync"
	"time"

	"github.com/NEXESMISSION/KESTI-sub002/internal/pos"
	"github.com/NEXESMISSION/KESTI-sub002/internal/utils"
)

// GateDecision tells the caller whether to render the requested screen or
// redirect to a blocking page.
type GateDecision struct {
	Allowed  bool
	Redirect string
	Message  string
}

var allowDecision = GateDecision{Allowed: true}

// StatusGate is the client-side account gate. It wraps FetchAccountStatus
// with a debounce window, so screen-to-screen navigation reuses the last
// verdict, and a failure breaker that stops checking after repeated
// transport errors instead of trapping the user behind a dead backend.
//
// Fail-open is deliberate and applies only to errors: a successful response
// saying suspended or expired always blocks.
type StatusGate struct {
	client      *Client
	logger      utils.Logger
	debounce    time.Duration
	maxFailures int

	mu           sync.Mutex
	lastDecision GateDecision
	lastChecked  time.Time
	failures     int
	tripped      bool
}

func NewStatusGate(client *Client, logger utils.Logger, debounce time.Duration, maxFailures int) *StatusGate {
	if debounce <= 0 {
		debounce = time.Second
	}
	if maxFailures <= 0 {
		maxFailures = 3
	}
	return &StatusGate{
		client:       client,
		logger:       logger,
		debounce:     debounce,
		maxFailures:  maxFailures,
		lastDecision: allowDecision,
	}
}

// Check returns the current access decision, consulting the backend at most
// once per debounce window.
func (g *StatusGate) Check(ctx context.Context) GateDecision {
	g.mu.Lock()
	if g.tripped {
		g.mu.Unlock()
		return allowDecision
	}
	if time.Since(g.lastChecked) < g.debounce {
		decision := g.lastDecision
		g.mu.Unlock()
		return decision
	}
	// stamp the attempt, not the outcome: failed checks debounce too
	g.lastChecked = time.Now()
	g.mu.Unlock()

	status, err := g.client.FetchAccountStatus(ctx)

	g.mu.Lock()
	defer g.mu.Unlock()

	if err != nil {
		g.failures++
		g.logger.Warn("status check failed", "failures", g.failures, "error", err)
		if g.failures >= g.maxFailures {
			g.tripped = true
			g.logger.Error("status gate disabled after repeated failures", "failures", g.failures)
		}
		g.lastDecision = allowDecision
		return allowDecision
	}

	g.failures = 0

	if status.Decision.Allowed {
		g.lastDecision = allowDecision
	} else {
		redirect := status.Decision.Redirect
		if redirect == "" {
			redirect = pos.RedirectSuspended
		}
		g.lastDecision = GateDecision{
			Allowed:  false,
			Redirect: redirect,
			Message:  status.Decision.Message,
		}
	}

	return g.lastDecision
}

// Reset clears the breaker and cached verdict, for use after a re-login or
// a connectivity change.
func (g *StatusGate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures = 0
	g.tripped = false
	g.lastChecked = time.Time{}
	g.lastDecision = allowDecision
}

// Tripped reports whether the breaker has given up checking.
func (g *StatusGate) Tripped() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.tripped
}
