package enforce

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/NEXESMISSION/KESTI-sub002/internal/storage"
	"github.com/NEXESMISSION/KESTI-sub002/internal/utils"
)

// Client talks to the backend's device and profile endpoints on behalf of
// one terminal.
type Client struct {
	http     *resty.Client
	deviceID string
	logger   utils.Logger
}

func NewClient(baseURL, token, deviceID string, logger utils.Logger) *Client {
	http := resty.New().
		SetBaseURL(baseURL).
		SetAuthToken(token).
		SetTimeout(10*time.Second).
		SetHeader("Accept", "application/json").
		// decode responses even when a proxy strips the Content-Type header
		OnBeforeRequest(func(_ *resty.Client, r *resty.Request) error {
			r.ForceContentType("application/json")
			return nil
		})

	return &Client{http: http, deviceID: deviceID, logger: logger}
}

func (c *Client) DeviceID() string {
	return c.deviceID
}

// SetToken swaps the bearer token after a re-login.
func (c *Client) SetToken(token string) {
	c.http.SetAuthToken(token)
}

// RegisterCurrentDevice claims the session slot for this terminal.
func (c *Client) RegisterCurrentDevice(ctx context.Context, deviceName string) (*storage.RegisterResult, error) {
	if c.deviceID == UnknownDevice {
		return nil, fmt.Errorf("no device identity")
	}

	var result storage.RegisterResult
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"device_id": c.deviceID, "device_name": deviceName}).
		SetResult(&result).
		Post("/api/v1/devices/register")
	if err != nil {
		return nil, fmt.Errorf("register request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("register rejected: %s", resp.Status())
	}

	return &result, nil
}

// IsDeviceAuthorized reports whether this terminal still holds the session
// slot. Transport failures return authorized=true with the error: a flaky
// network must not sign out a working terminal, only an explicit server
// verdict may.
func (c *Client) IsDeviceAuthorized(ctx context.Context) (bool, error) {
	if c.deviceID == UnknownDevice {
		return false, nil
	}

	var result struct {
		Authorized bool `json:"authorized"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("device_id", c.deviceID).
		SetResult(&result).
		Get("/api/v1/devices/authorized")
	if err != nil {
		return true, fmt.Errorf("authorization check failed: %w", err)
	}
	if resp.StatusCode() >= 500 {
		return true, fmt.Errorf("authorization check failed: %s", resp.Status())
	}
	if resp.IsError() {
		// 4xx is a policy answer, not a transport failure
		return false, nil
	}

	return result.Authorized, nil
}

// UpdateDeviceActivity sends a heartbeat. Failures are logged and swallowed.
func (c *Client) UpdateDeviceActivity(ctx context.Context) {
	if c.deviceID == UnknownDevice {
		return
	}

	_, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"device_id": c.deviceID}).
		Post("/api/v1/devices/heartbeat")
	if err != nil {
		c.logger.Debug("heartbeat failed", "error", err)
	}
}

// AccountStatus is the access verdict the status endpoint returns.
type AccountStatus struct {
	Decision struct {
		Verdict  string `json:"verdict"`
		Allowed  bool   `json:"allowed"`
		Redirect string `json:"redirect"`
		Message  string `json:"message"`
	} `json:"decision"`
	BusinessName       string     `json:"business_name"`
	SubscriptionEndsAt *time.Time `json:"subscription_ends_at"`
}

func (c *Client) FetchAccountStatus(ctx context.Context) (*AccountStatus, error) {
	var status AccountStatus
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&status).
		Get("/api/v1/profile/status")
	if err != nil {
		return nil, fmt.Errorf("status request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("status request rejected: %s", resp.Status())
	}

	return &status, nil
}
