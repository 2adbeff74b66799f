package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"
)

const (
	statesPath    = "/api/states/{entityId}"
	servicePath   = "/api/services/switch/{service}"
	healthPath    = "/api/"
	directSetPath = "/rpc/Switch.Set"

	// maxErrorBody caps how much of an error response is kept for logs.
	maxErrorBody = 256

	defaultTimeout     = 5 * time.Second
	defaultMaxFailures = 5
	defaultOpenFor     = 30 * time.Second
)

// Logger defines the logging interface used by the client.
type Logger interface {
	Warn(msg string, args ...any)
	Info(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}
func (noopLogger) Info(string, ...any) {}

// Config holds hub client settings.
type Config struct {
	// BaseURL is the hub root, e.g. "http://homeassistant.local:8123".
	BaseURL string

	// Token is sent as "Authorization: Bearer <token>" when non-empty.
	Token string

	// Timeout bounds every call, including direct device calls.
	Timeout time.Duration

	// BreakerMaxFailures consecutive hub failures open the breaker.
	BreakerMaxFailures int

	// BreakerOpenFor is how long the breaker rejects calls before probing.
	BreakerOpenFor time.Duration

	Logger Logger
}

// Client talks to the automation hub's REST API and to smart outlets that
// expose a local RPC endpoint.
//
// Calls are never retried; the control loop simply tries again next cycle.
// A circuit breaker in front of the hub makes calls fail fast during an
// outage so a cycle over many projects stays short.
//
// All methods are safe for concurrent use.
type Client struct {
	hub     *resty.Client
	direct  *resty.Client
	breaker *gobreaker.CircuitBreaker
	logger  Logger
}

// stateResponse is the subset of the hub's entity state document we use.
type stateResponse struct {
	EntityID string `json:"entity_id"`
	State    string `json:"state"`
}

// New creates a hub client.
func New(cfg Config) (*Client, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: base URL %q", ErrInvalidConfig, cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.BreakerMaxFailures <= 0 {
		cfg.BreakerMaxFailures = defaultMaxFailures
	}
	if cfg.BreakerOpenFor <= 0 {
		cfg.BreakerOpenFor = defaultOpenFor
	}
	if cfg.Logger == nil {
		cfg.Logger = noopLogger{}
	}

	hubClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(0).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if cfg.Token != "" {
		hubClient.SetAuthToken(cfg.Token)
	}

	directClient := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(0).
		SetHeader("Accept", "application/json")

	c := &Client{
		hub:    hubClient,
		direct: directClient,
		logger: cfg.Logger,
	}

	maxFailures := uint32(cfg.BreakerMaxFailures) //nolint:gosec // validated positive above
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "automation-hub",
		Timeout: cfg.BreakerOpenFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || clientFault(err) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("hub breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	return c, nil
}

// ReadEntityState returns the raw state string of a hub entity.
// Any failure wraps ErrHubUnavailable.
func (c *Client) ReadEntityState(ctx context.Context, entityID string) (string, error) {
	var state stateResponse
	err := c.guard(func() error {
		resp, err := c.hub.R().
			SetContext(ctx).
			SetPathParam("entityId", entityID).
			Get(statesPath)
		if err != nil {
			return err
		}
		if err := checkStatus(resp); err != nil {
			return err
		}
		if err := json.Unmarshal(resp.Body(), &state); err != nil {
			return fmt.Errorf("decoding state: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: reading %s: %w", ErrHubUnavailable, entityID, err)
	}
	return state.State, nil
}

// InvokeSwitch asks the hub to turn a switch entity on or off.
// Any failure wraps ErrHubUnavailable.
func (c *Client) InvokeSwitch(ctx context.Context, entityID string, on bool) error {
	service := "turn_off"
	if on {
		service = "turn_on"
	}

	err := c.guard(func() error {
		resp, err := c.hub.R().
			SetContext(ctx).
			SetPathParam("service", service).
			SetBody(map[string]string{"entity_id": entityID}).
			Post(servicePath)
		if err != nil {
			return err
		}
		return checkStatus(resp)
	})
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrHubUnavailable, service, entityID, err)
	}
	return nil
}

// InvokeDirectSwitch switches a smart outlet through its local RPC endpoint,
// bypassing the hub. Any failure wraps ErrDeviceUnavailable.
func (c *Client) InvokeDirectSwitch(ctx context.Context, address string, on bool) error {
	resp, err := c.direct.R().
		SetContext(ctx).
		SetQueryParam("id", "0").
		SetQueryParam("on", strconv.FormatBool(on)).
		Get("http://" + address + directSetPath)
	if err == nil {
		err = checkStatus(resp)
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrDeviceUnavailable, address, err)
	}
	return nil
}

// HealthCheck verifies the hub API answers. It bypasses the breaker so a
// health probe never changes breaker state.
func (c *Client) HealthCheck(ctx context.Context) error {
	resp, err := c.hub.R().SetContext(ctx).Get(healthPath)
	if err == nil {
		err = checkStatus(resp)
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrHubUnavailable, err)
	}
	return nil
}

// BreakerState reports the breaker state ("closed", "half-open", "open").
func (c *Client) BreakerState() string {
	return c.breaker.State().String()
}

// guard runs fn through the breaker.
func (c *Client) guard(fn func() error) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	return err
}

func checkStatus(resp *resty.Response) error {
	if resp.IsSuccess() {
		return nil
	}
	body := resp.String()
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return &StatusError{Code: resp.StatusCode(), Body: body}
}
