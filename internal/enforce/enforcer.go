package enforce

import (
	"context"
	"sync"
	"time"

	"github.com/NEXESMISSION/KESTI-sub002/internal/pos"
	"github.com/NEXESMISSION/KESTI-sub002/internal/utils"
)

// Enforcer states. ENFORCING means the loop is polling; INACTIVE means the
// terminal is on a screen where enforcement does not apply (login, pairing)
// or has been signed out.
const (
	StateInactive  = "INACTIVE"
	StateEnforcing = "ENFORCING"
)

// SignOutFunc is invoked exactly once when the terminal loses its session
// slot. The redirect is where the UI should land.
type SignOutFunc func(redirect, reason string)

// Enforcer runs the periodic device-authorization check for one terminal.
type Enforcer struct {
	client   *Client
	logger   utils.Logger
	interval time.Duration
	signOut  SignOutFunc

	mu       sync.Mutex
	state    string
	stopCh   chan struct{}
	stopOnce *sync.Once
	wg       sync.WaitGroup
}

func NewEnforcer(client *Client, logger utils.Logger, interval time.Duration, signOut SignOutFunc) *Enforcer {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Enforcer{
		client:   client,
		logger:   logger,
		interval: interval,
		signOut:  signOut,
		state:    StateInactive,
	}
}

func (e *Enforcer) State() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Start begins polling. An immediate check runs before the first tick so a
// terminal that was kicked while offline locks on launch, not 30 seconds in.
func (e *Enforcer) Start(ctx context.Context) {
	e.mu.Lock()
	if e.state == StateEnforcing {
		e.mu.Unlock()
		return
	}
	e.state = StateEnforcing
	e.stopCh = make(chan struct{})
	e.stopOnce = &sync.Once{}
	stopCh := e.stopCh
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		if !e.CheckNow(ctx) {
			return
		}

		ticker := time.NewTicker(e.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				e.setInactive()
				return
			case <-stopCh:
				return
			case <-ticker.C:
				if !e.CheckNow(ctx) {
					return
				}
			}
		}
	}()
}

// Stop halts polling without signing out, for leaving enforced screens.
func (e *Enforcer) Stop() {
	e.mu.Lock()
	stopCh := e.stopCh
	stopOnce := e.stopOnce
	e.state = StateInactive
	e.mu.Unlock()

	if stopCh == nil {
		return
	}
	stopOnce.Do(func() {
		close(stopCh)
	})
	e.wg.Wait()
}

// CheckNow performs one authorization check, refreshing the heartbeat when
// the device is still authorized. It returns false when the terminal has been
// evicted and the sign-out callback fired.
func (e *Enforcer) CheckNow(ctx context.Context) bool {
	authorized, err := e.client.IsDeviceAuthorized(ctx)
	if err != nil {
		// transport trouble, stay signed in and try again next tick
		e.logger.Warn("authorization check errored, staying active", "error", err)
		return true
	}

	if authorized {
		e.client.UpdateDeviceActivity(ctx)
		return true
	}

	e.logger.Info("device lost session slot, signing out", "device_id", e.client.DeviceID())
	e.setInactive()
	if e.signOut != nil {
		e.signOut(pos.RedirectDeviceKicked, "device_limit_exceeded")
	}
	return false
}

func (e *Enforcer) setInactive() {
	e.mu.Lock()
	e.state = StateInactive
	e.mu.Unlock()
}
