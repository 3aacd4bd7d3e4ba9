// The agent runs on a POS terminal next to the UI. It establishes the
// terminal's device identity, claims the account's single session slot and
// then polls the backend so the terminal locks itself when it is kicked,
// suspended or out of subscription.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/NEXESMISSION/KESTI-sub002/internal/enforce"
	"github.com/NEXESMISSION/KESTI-sub002/internal/utils"
)

func main() {
	var (
		baseURL    = flag.String("server", "http://localhost:8080", "backend base URL")
		email      = flag.String("email", "", "account email")
		password   = flag.String("password", "", "account password (or AGENT_PASSWORD env)")
		deviceName = flag.String("name", "", "human-readable device name")
		stateDir   = flag.String("state-dir", defaultStateDir(), "directory for the persistent device identity")
	)
	flag.Parse()

	if *email == "" {
		log.Fatal("missing -email")
	}
	pass := *password
	if pass == "" {
		pass = os.Getenv("AGENT_PASSWORD")
	}
	if pass == "" {
		log.Fatal("missing -password (or AGENT_PASSWORD)")
	}

	config, err := utils.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger := utils.NewLogger(config.Logging.Level, config.Logging.Format, config.Logging.Output)

	deviceID, err := enforce.LocalDeviceID(*stateDir)
	if err != nil {
		logger.Fatal("Failed to establish device identity", "error", err)
	}
	logger.Info("Device identity ready", "device_id", deviceID)

	token, err := login(*baseURL, *email, pass)
	if err != nil {
		logger.Fatal("Login failed", "error", err)
	}

	client := enforce.NewClient(*baseURL, token, deviceID, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	name := *deviceName
	if name == "" {
		name, _ = os.Hostname()
	}

	result, err := client.RegisterCurrentDevice(ctx, name)
	if err != nil {
		logger.Fatal("Device registration failed", "error", err)
	}
	logger.Info("Device registered", "action", result.Action)
	if result.Kicked {
		logger.Info("Previous device evicted",
			"device_id", result.KickedDeviceID,
			"device_name", result.KickedDeviceName)
	}

	gate := enforce.NewStatusGate(client, logger,
		config.Session.DebounceWindow, config.Session.MaxCheckFailures)

	if decision := gate.Check(ctx); !decision.Allowed {
		logger.Fatal("Account is blocked", "redirect", decision.Redirect, "message", decision.Message)
	}

	done := make(chan struct{})
	enforcer := enforce.NewEnforcer(client, logger, config.Session.CheckInterval,
		func(redirect, reason string) {
			logger.Warn("Signed out", "redirect", redirect, "reason", reason)
			close(done)
		})
	enforcer.Start(ctx)

	logger.Info("Enforcement active",
		"check_interval", config.Session.CheckInterval.String(),
		"state", enforcer.State())

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("Shutting down")
		enforcer.Stop()
	case <-done:
		// evicted by another device, nothing left to stop
	}
}

func login(baseURL, email, password string) (string, error) {
	var result struct {
		Token string `json:"token"`
	}
	resp, err := resty.New().
		SetTimeout(10 * time.Second).
		R().
		SetBody(map[string]string{"email": email, "password": password}).
		SetResult(&result).
		Post(baseURL + "/api/v1/auth/login")
	if err != nil {
		return "", err
	}
	if resp.IsError() {
		return "", fmt.Errorf("login rejected: %s", resp.Status())
	}
	return result.Token, nil
}

func defaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".kesti-agent"
	}
	return home + "/.kesti-agent"
}
