package ecobee

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"codeberg.org/mutker/thermopoll/internal/errors"
	"codeberg.org/mutker/thermopoll/internal/logger"
	"codeberg.org/mutker/thermopoll/internal/transport"
)

// selectionJSON requests the runtime, extended runtime and sensor blocks for
// one thermostat. Settings and weather are fetched nowhere; outdoor
// conditions come from the dedicated weather vendor.
const selectionJSON = `{"selection":{"selectionType":"thermostats","selectionMatch":%q,` +
	`"includeRuntime":true,"includeExtendedRuntime":true,"includeSettings":false,` +
	`"includeSensors":true,"includeWeather":false}}`

// Client fetches per-thermostat snapshots. A token is obtained from the
// manager on every call; the client never caches one.
type Client struct {
	manager *Manager
	httpc   *transport.Client
	baseURL string
}

type ClientOption func(*Client)

// WithClientBaseURL overrides the vendor endpoint, used by tests.
func WithClientBaseURL(u string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

func NewClient(manager *Manager, httpc *transport.Client, opts ...ClientOption) *Client {
	c := &Client{
		manager: manager,
		httpc:   httpc,
		baseURL: DefaultBaseURL,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Fetch returns the raw snapshot for one thermostat. A 401 forces a single
// token refresh and one re-issue; any other non-success surfaces as an
// upstream error carrying the status and thermostat id.
func (c *Client) Fetch(ctx context.Context, thermostatID string) (*Thermostat, error) {
	errFactory := errors.New()

	resp, err := c.get(ctx, thermostatID)
	if transport.StatusOf(err) == http.StatusUnauthorized {
		logger.Debug().Str("thermostat_id", thermostatID).Msg("Vendor rejected token; refreshing once")
		c.manager.Invalidate()
		resp, err = c.get(ctx, thermostatID)
	}
	if err != nil {
		if status := transport.StatusOf(err); status != 0 {
			return nil, errFactory.Wrap(ErrUpstreamStatus, err).WithData(struct {
				ThermostatID string
				Status       int
			}{thermostatID, status})
		}
		return nil, errFactory.Wrap(ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	payload := struct {
		ThermostatList []Thermostat `json:"thermostatList"`
	}{}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, errFactory.Wrap(ErrResponseDecode, err)
	}
	if len(payload.ThermostatList) == 0 {
		return nil, errFactory.WithData(ErrMissingThermostat, thermostatID)
	}

	return &payload.ThermostatList[0], nil
}

func (c *Client) get(ctx context.Context, thermostatID string) (*http.Response, error) {
	token, err := c.manager.Token(ctx)
	if err != nil {
		return nil, err
	}

	selection := fmt.Sprintf(selectionJSON, thermostatID)
	endpoint := c.baseURL + "/1/thermostat?json=" + url.QueryEscape(selection)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json;charset=UTF-8")
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)

	return c.httpc.Do(req)
}
