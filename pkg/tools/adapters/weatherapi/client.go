// Package weatherapi calls the WeatherAPI.com current-conditions endpoint.
package weatherapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const defaultBaseURL = "http://api.weatherapi.com/v1"

// Conditions is the normalized current-weather answer for one city.
type Conditions struct {
	City       string
	Country    string
	TempC      float64
	FeelsLikeC float64
	Humidity   int
	Condition  string
	WindKPH    float64
}

type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func NewClient(apiKey, baseURL string, httpClient *http.Client) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		apiKey:     strings.TrimSpace(apiKey),
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

func (c *Client) Configured() bool {
	return c != nil && c.apiKey != ""
}

// Current fetches current conditions for a city. City names are passed
// through verbatim; WeatherAPI resolves localized spellings, though English
// names resolve most reliably.
func (c *Client) Current(ctx context.Context, city string) (*Conditions, error) {
	if !c.Configured() {
		return nil, fmt.Errorf("weather api key is not configured")
	}
	city = strings.TrimSpace(city)
	if city == "" {
		return nil, fmt.Errorf("city is required")
	}

	query := url.Values{}
	query.Set("key", c.apiKey)
	query.Set("q", city)
	query.Set("aqi", "no")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/current.json?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
		return nil, fmt.Errorf("weatherapi error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var decoded struct {
		Location struct {
			Name    string `json:"name"`
			Country string `json:"country"`
		} `json:"location"`
		Current struct {
			TempC      float64 `json:"temp_c"`
			FeelsLikeC float64 `json:"feelslike_c"`
			Humidity   int     `json:"humidity"`
			WindKPH    float64 `json:"wind_kph"`
			Condition  struct {
				Text string `json:"text"`
			} `json:"condition"`
		} `json:"current"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if strings.TrimSpace(decoded.Location.Name) == "" {
		return nil, fmt.Errorf("weatherapi returned no location for %q", city)
	}

	return &Conditions{
		City:       decoded.Location.Name,
		Country:    decoded.Location.Country,
		TempC:      decoded.Current.TempC,
		FeelsLikeC: decoded.Current.FeelsLikeC,
		Humidity:   decoded.Current.Humidity,
		Condition:  decoded.Current.Condition.Text,
		WindKPH:    decoded.Current.WindKPH,
	}, nil
}
