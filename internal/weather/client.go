package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"codeberg.org/mutker/thermopoll/internal/errors"
	"codeberg.org/mutker/thermopoll/internal/transport"
)

const (
	DefaultBaseURL = "https://api.openweathermap.org"

	// Imperial keeps the weather temperatures in the same unit family as
	// the thermostat metrics.
	units = "imperial"
)

// Observation is the decoded current-conditions snapshot for the configured
// location.
type Observation struct {
	Timestamp  time.Time
	Temp       float64
	FeelsLike  float64
	Pressure   float64
	Humidity   float64
	DewPoint   float64
	UVI        float64
	Clouds     float64
	Visibility float64
	WindSpeed  float64
	WindDeg    float64
	WindGust   float64
	MoonPhase  float64
}

// Client talks to the weather vendor. Observations are keyed by the
// configured latitude/longitude, not per thermostat.
type Client struct {
	apiKey    string
	latitude  float64
	longitude float64
	httpc     *transport.Client
	baseURL   string
}

type Option func(*Client)

// WithBaseURL overrides the vendor endpoint, used by tests.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

func NewClient(apiKey string, latitude, longitude float64, httpc *transport.Client, opts ...Option) *Client {
	c := &Client{
		apiKey:    apiKey,
		latitude:  latitude,
		longitude: longitude,
		httpc:     httpc,
		baseURL:   DefaultBaseURL,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

type oneCallResponse struct {
	Current struct {
		Dt         int64   `json:"dt"`
		Temp       float64 `json:"temp"`
		FeelsLike  float64 `json:"feels_like"`
		Pressure   float64 `json:"pressure"`
		Humidity   float64 `json:"humidity"`
		DewPoint   float64 `json:"dew_point"`
		UVI        float64 `json:"uvi"`
		Clouds     float64 `json:"clouds"`
		Visibility float64 `json:"visibility"`
		WindSpeed  float64 `json:"wind_speed"`
		WindDeg    float64 `json:"wind_deg"`
		WindGust   float64 `json:"wind_gust"`
	} `json:"current"`
	Daily []struct {
		MoonPhase float64 `json:"moon_phase"`
	} `json:"daily"`
}

// Current fetches the current outdoor conditions.
func (c *Client) Current(ctx context.Context) (*Observation, error) {
	errFactory := errors.New()

	endpoint := fmt.Sprintf("%s/data/3.0/onecall?%s", c.baseURL, c.query(nil).Encode())
	resp, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload := oneCallResponse{}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, errFactory.Wrap(ErrResponseDecode, err)
	}

	obs := &Observation{
		Timestamp:  time.Unix(payload.Current.Dt, 0).UTC(),
		Temp:       payload.Current.Temp,
		FeelsLike:  payload.Current.FeelsLike,
		Pressure:   payload.Current.Pressure,
		Humidity:   payload.Current.Humidity,
		DewPoint:   payload.Current.DewPoint,
		UVI:        payload.Current.UVI,
		Clouds:     payload.Current.Clouds,
		Visibility: payload.Current.Visibility,
		WindSpeed:  payload.Current.WindSpeed,
		WindDeg:    payload.Current.WindDeg,
		WindGust:   payload.Current.WindGust,
	}
	if len(payload.Daily) > 0 {
		obs.MoonPhase = payload.Daily[0].MoonPhase
	}

	return obs, nil
}

// DailyPrecipitation fetches the cumulative precipitation total for the
// given date (YYYY-MM-DD).
func (c *Client) DailyPrecipitation(ctx context.Context, date string) (float64, error) {
	errFactory := errors.New()

	endpoint := fmt.Sprintf("%s/data/3.0/onecall/day_summary?%s", c.baseURL, c.query(url.Values{"date": {date}}).Encode())
	resp, err := c.get(ctx, endpoint)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	payload := struct {
		Precipitation struct {
			Total float64 `json:"total"`
		} `json:"precipitation"`
	}{}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, errFactory.Wrap(ErrResponseDecode, err)
	}

	return payload.Precipitation.Total, nil
}

func (c *Client) query(extra url.Values) url.Values {
	q := url.Values{
		"lat":   {fmt.Sprintf("%v", c.latitude)},
		"lon":   {fmt.Sprintf("%v", c.longitude)},
		"appid": {c.apiKey},
		"units": {units},
	}
	for key, values := range extra {
		q[key] = values
	}

	return q
}

func (c *Client) get(ctx context.Context, endpoint string) (*http.Response, error) {
	errFactory := errors.New()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errFactory.Wrap(ErrFetchFailed, err)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		if status := transport.StatusOf(err); status != 0 {
			return nil, errFactory.Wrap(ErrUpstreamStatus, err).WithData(status)
		}
		return nil, errFactory.Wrap(ErrFetchFailed, err)
	}

	return resp, nil
}
