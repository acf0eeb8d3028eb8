package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
)

// Query constants. The service covers Colorado resorts in imperial units.
const (
	Region = "CO"
	Nation = "US"
	Units  = "imperial"

	DefaultBaseURL = "https://api.openweathermap.org/data/2.5/weather"
)

var (
	// ErrUpstreamStatus means the upstream answered with a non-success code.
	ErrUpstreamStatus = errors.New("upstream returned non-success status")
	// ErrMissingField means a success response lacked a required field.
	ErrMissingField = errors.New("upstream response missing field")
	// ErrCircuitOpen means the breaker is rejecting requests.
	ErrCircuitOpen = errors.New("circuit breaker open")
)

// ClientConfig controls the upstream client.
type ClientConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	// BreakerFailures consecutive failures trip the breaker.
	BreakerFailures uint32
	// BreakerCooldown is how long the breaker stays open.
	BreakerCooldown time.Duration
}

// Client fetches current conditions from OpenWeather.
type Client struct {
	http    *http.Client
	baseURL string
	apiKey  string
	breaker *gobreaker.CircuitBreaker
}

// NewClient builds a Client. A nil httpClient gets one with cfg.Timeout.
func NewClient(httpClient *http.Client, cfg ClientConfig) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("openweather api key is not configured")
	}
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	cooldown := cfg.BreakerCooldown
	if cooldown <= 0 {
		cooldown = time.Minute
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "openweather",
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			// A city the upstream does not know is an answer, not an outage.
			return err == nil || errors.Is(err, ErrUpstreamStatus) || errors.Is(err, ErrMissingField)
		},
	})
	return &Client{
		http:    httpClient,
		baseURL: base,
		apiKey:  strings.TrimSpace(cfg.APIKey),
		breaker: breaker,
	}, nil
}

// Current returns the normalized conditions for place.
func (c *Client) Current(ctx context.Context, place string) (Report, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.fetch(ctx, place)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return Report{}, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
		}
		return Report{}, err
	}
	report, ok := result.(Report)
	if !ok {
		return Report{}, fmt.Errorf("unexpected result type from circuit breaker")
	}
	return report, nil
}

// RequestURL builds the upstream URL for place.
func (c *Client) RequestURL(place string) string {
	values := url.Values{}
	values.Set("q", fmt.Sprintf("%s,%s,%s", place, Region, Nation))
	values.Set("appid", c.apiKey)
	values.Set("units", Units)
	return c.baseURL + "?" + values.Encode()
}

func (c *Client) fetch(ctx context.Context, place string) (Report, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.RequestURL(place), nil)
	if err != nil {
		return Report{}, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return Report{}, fmt.Errorf("call openweather: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Report{}, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return Report{}, fmt.Errorf("openweather unavailable: http %d", resp.StatusCode)
	}
	var payload currentPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return Report{}, fmt.Errorf("%w: http %d", ErrUpstreamStatus, resp.StatusCode)
		}
		return Report{}, fmt.Errorf("%w: decode body: %v", ErrMissingField, err)
	}
	if payload.Cod == nil || *payload.Cod != http.StatusOK || resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Report{}, fmt.Errorf("%w: cod %s, http %d, message %q",
			ErrUpstreamStatus, payload.Cod, resp.StatusCode, payload.Message)
	}
	return payload.report()
}

// currentPayload mirrors the fields used from /data/2.5/weather. Pointers
// distinguish an absent field from a zero value.
type currentPayload struct {
	Cod     *statusCode `json:"cod"`
	Message string      `json:"message"`
	Name    *string     `json:"name"`
	Sys     *struct {
		Country *string `json:"country"`
	} `json:"sys"`
	Main *struct {
		Temp     *float64 `json:"temp"`
		Humidity *float64 `json:"humidity"`
	} `json:"main"`
	Weather []struct {
		Main *string `json:"main"`
	} `json:"weather"`
}

func (p currentPayload) report() (Report, error) {
	switch {
	case p.Name == nil || *p.Name == "":
		return Report{}, fmt.Errorf("%w: name", ErrMissingField)
	case p.Sys == nil || p.Sys.Country == nil || *p.Sys.Country == "":
		return Report{}, fmt.Errorf("%w: sys.country", ErrMissingField)
	case p.Main == nil || p.Main.Temp == nil:
		return Report{}, fmt.Errorf("%w: main.temp", ErrMissingField)
	case p.Main.Humidity == nil:
		return Report{}, fmt.Errorf("%w: main.humidity", ErrMissingField)
	case len(p.Weather) == 0 || p.Weather[0].Main == nil || *p.Weather[0].Main == "":
		return Report{}, fmt.Errorf("%w: weather[0].main", ErrMissingField)
	}
	return Report{
		City:        *p.Name,
		Country:     *p.Sys.Country,
		Temperature: *p.Main.Temp,
		Condition:   *p.Weather[0].Main,
		Humidity:    int(math.Round(*p.Main.Humidity)),
	}, nil
}

// statusCode accepts both 200 and "404"; OpenWeather uses either depending
// on the outcome.
type statusCode int

func (s *statusCode) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(strings.TrimSpace(string(data)), `"`)
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("parse cod %s: %w", data, err)
	}
	*s = statusCode(n)
	return nil
}

func (s *statusCode) String() string {
	if s == nil {
		return "<missing>"
	}
	return strconv.Itoa(int(*s))
}
