package inverter

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// maxResponseSize bounds CGI response reads. The records are well under
// 1 KiB; anything larger means we are not talking to an inverter.
const maxResponseSize = 64 * 1024

// StatusError reports a non-200 response from the stick.
type StatusError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("inverter: %s returned %s", e.URL, e.Status)
}

// Client reads the inverter's CGI endpoints over plain HTTP with basic
// auth. The stick has no TLS and a single hardcoded account.
type Client struct {
	stateURL  string
	deviceURL string
	username  string
	password  string
	client    *http.Client
	logger    *zap.Logger
}

// New creates a Client for the stick at ip.
func New(ip, username, password string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		stateURL:  "http://" + ip + "/inverter.cgi",
		deviceURL: "http://" + ip + "/moniter.cgi",
		username:  username,
		password:  password,
		client: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// ReadState fetches and parses the current inverter reading.
func (c *Client) ReadState(ctx context.Context) (*State, error) {
	body, err := c.get(ctx, c.stateURL)
	if err != nil {
		return nil, err
	}

	st, err := ParseState(body)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("Inverter reading",
		zap.String("serial", st.SerialNumber),
		zap.Int("power_w", st.PowerNow),
		zap.Float64("yield_today_kwh", st.YieldToday),
		zap.Float64("temperature_c", st.Temperature))

	return st, nil
}

// ReadDevice fetches and parses the data logger's WiFi status.
func (c *Client) ReadDevice(ctx context.Context) (*DeviceInfo, error) {
	body, err := c.get(ctx, c.deviceURL)
	if err != nil {
		return nil, err
	}
	return ParseDevice(body)
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(c.username, c.password)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("inverter request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode, Status: resp.Status}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return body, nil
}
