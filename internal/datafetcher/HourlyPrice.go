/*
Hourly closes for the vault's pair from the CryptoCompare histohour endpoint.

The series only seeds the volatility oracle at startup, so a failed fetch is
never fatal to the caller: it falls back to live observations.
*/

package datafetcher

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

	"github.com/elys-network/alm/internal/logger"
	"github.com/elys-network/alm/internal/types"
)

var priceLogger = logger.GetForComponent("price_retriever")

var (
	ErrInvalidPriceData = errors.New("invalid price data received")
	ErrInsufficientData = errors.New("insufficient price data")
	ErrAPIConfiguration = errors.New("API configuration error")
)

const (
	DefaultBaseURL = "https://min-api.cryptocompare.com/data/v2/histohour"
	DefaultRetries = 3
	DefaultTimeout = 30 * time.Second

	// histohour caps limit at 2000 points per call
	MaxHours = 2000
)

type cryptoCompareResponse struct {
	Response   string `json:"Response"`
	Message    string `json:"Message"`
	HasWarning bool   `json:"HasWarning"`
	Data       struct {
		TimeFrom int64          `json:"TimeFrom"`
		TimeTo   int64          `json:"TimeTo"`
		Data     []hourlyCandle `json:"Data"`
	} `json:"Data"`
}

type hourlyCandle struct {
	Time       int64   `json:"time"`
	Close      float64 `json:"close"`
	High       float64 `json:"high"`
	Low        float64 `json:"low"`
	Open       float64 `json:"open"`
	VolumeFrom float64 `json:"volumefrom"`
	VolumeTo   float64 `json:"volumeto"`
}

// HourlyPriceFetcher retrieves hourly closes of Base quoted in Quote.
type HourlyPriceFetcher struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
	Retries int
	// Backoff is multiplied by the attempt number between retries.
	Backoff time.Duration
}

// NewHourlyPriceFetcher returns a fetcher against the public endpoint.
func NewHourlyPriceFetcher(apiKey string) (*HourlyPriceFetcher, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrAPIConfiguration)
	}
	return &HourlyPriceFetcher{
		BaseURL: DefaultBaseURL,
		APIKey:  apiKey,
		Client:  &http.Client{Timeout: DefaultTimeout},
		Retries: DefaultRetries,
		Backoff: time.Second,
	}, nil
}

// Fetch returns the last hours hourly closes of base/quote in chronological order.
func (f *HourlyPriceFetcher) Fetch(ctx context.Context, base, quote string, hours int) ([]types.PriceData, error) {
	base = strings.TrimSpace(strings.ToUpper(base))
	quote = strings.TrimSpace(strings.ToUpper(quote))
	if base == "" || quote == "" {
		return nil, fmt.Errorf("%w: empty symbol in %q/%q", ErrAPIConfiguration, base, quote)
	}
	if hours < 2 || hours > MaxHours {
		return nil, fmt.Errorf("%w: hours must be in [2, %d], got %d", ErrAPIConfiguration, MaxHours, hours)
	}
	pair := base + "/" + quote

	endpoint, err := f.requestURL(base, quote, hours)
	if err != nil {
		return nil, err
	}
	client := f.Client
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	retries := f.Retries
	if retries < 1 {
		retries = 1
	}

	var lastErr error
retry:
	for attempt := 1; attempt <= retries; attempt++ {
		priceLogger.Debug().
			Str("pair", pair).
			Int("attempt", attempt).
			Int("maxRetries", retries).
			Msg("Making API request")

		result, err := f.fetchOnce(ctx, client, endpoint, pair, hours)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break retry
		}
		priceLogger.Warn().
			Err(err).
			Str("pair", pair).
			Int("attempt", attempt).
			Msg("Price request failed, will retry if attempts remain")

		if attempt < retries {
			select {
			case <-ctx.Done():
				lastErr = ctx.Err()
				break retry
			case <-time.After(time.Duration(attempt) * f.Backoff):
			}
		}
	}

	priceLogger.Error().
		Err(lastErr).
		Str("pair", pair).
		Int("maxRetries", retries).
		Msg("All retry attempts failed")
	return nil, fmt.Errorf("failed to fetch price data for %s after %d attempts: %w", pair, retries, lastErr)
}

func (f *HourlyPriceFetcher) requestURL(base, quote string, hours int) (string, error) {
	baseURL := f.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAPIConfiguration, err)
	}
	q := u.Query()
	q.Set("fsym", base)
	q.Set("tsym", quote)
	// The endpoint returns limit+1 candles.
	q.Set("limit", strconv.Itoa(hours-1))
	q.Set("api_key", f.APIKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (f *HourlyPriceFetcher) fetchOnce(ctx context.Context, client *http.Client, endpoint, pair string, hours int) ([]types.PriceData, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", pair, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed for %s: %w", pair, err)
	}
	defer resp.Body.Close()
	return processAPIResponse(resp, pair, hours)
}

func processAPIResponse(resp *http.Response, pair string, hours int) ([]types.PriceData, error) {
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned status %d for %s", resp.StatusCode, pair)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body for %s: %w", pair, err)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("empty response body for %s", pair)
	}

	var parsed cryptoCompareResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse JSON response for %s: %w", pair, err)
	}
	if parsed.Response != "Success" {
		return nil, fmt.Errorf("API error for %s: %s - %s", pair, parsed.Response, parsed.Message)
	}
	if parsed.HasWarning {
		priceLogger.Warn().
			Str("pair", pair).
			Int("dataPointCount", len(parsed.Data.Data)).
			Str("message", parsed.Message).
			Msg("API returned warning but has data - continuing")
	}

	candles := parsed.Data.Data
	if len(candles) < hours {
		return nil, fmt.Errorf("%w for %s: received %d hours, required %d", ErrInsufficientData, pair, len(candles), hours)
	}

	priceData := make([]types.PriceData, 0, len(candles))
	for i, c := range candles {
		if err := validatePriceDataPoint(c, pair); err != nil {
			return nil, fmt.Errorf("%w: point %d: %v", ErrInvalidPriceData, i, err)
		}
		priceData = append(priceData, types.PriceData{
			Timestamp: time.Unix(c.Time, 0).UTC(),
			Price:     c.Close,
		})
	}

	if err := validateTimeSequence(priceData, pair); err != nil {
		return nil, err
	}
	if len(priceData) > hours {
		priceData = priceData[len(priceData)-hours:]
	}

	priceLogger.Info().
		Str("pair", pair).
		Int("dataPoints", len(priceData)).
		Time("oldestData", priceData[0].Timestamp).
		Time("newestData", priceData[len(priceData)-1].Timestamp).
		Msg("Successfully retrieved and validated price data")
	return priceData, nil
}

// validatePriceDataPoint rejects candles that are not finite, not positive or internally inconsistent.
func validatePriceDataPoint(c hourlyCandle, pair string) error {
	if c.Time <= 0 {
		return fmt.Errorf("invalid timestamp for %s: %d", pair, c.Time)
	}

	prices := []struct {
		value float64
		name  string
	}{
		{c.Close, "close"},
		{c.High, "high"},
		{c.Low, "low"},
		{c.Open, "open"},
	}
	for _, price := range prices {
		if math.IsNaN(price.value) || math.IsInf(price.value, 0) {
			return fmt.Errorf("%s price for %s is not finite: %f", price.name, pair, price.value)
		}
		if price.value <= 0 {
			return fmt.Errorf("%s price for %s must be positive: %f", price.name, pair, price.value)
		}
	}

	if c.High < c.Low {
		return fmt.Errorf("high price (%f) cannot be less than low price (%f) for %s", c.High, c.Low, pair)
	}
	if c.Close < c.Low || c.Close > c.High {
		return fmt.Errorf("close price (%f) must be between low (%f) and high (%f) for %s", c.Close, c.Low, c.High, pair)
	}

	// Open may sit outside the candle's own range, but not by more than half the mid price.
	mid := (c.High + c.Low) / 2.0
	tolerance := mid * 0.5
	if c.Open < mid-tolerance || c.Open > mid+tolerance {
		return fmt.Errorf("open price (%f) is unreasonably far from trading range [%f-%f] for %s",
			c.Open, c.Low, c.High, pair)
	}

	for _, volume := range []float64{c.VolumeFrom, c.VolumeTo} {
		if math.IsNaN(volume) || math.IsInf(volume, 0) || volume < 0 {
			return fmt.Errorf("volume for %s must be finite and non-negative: %f", pair, volume)
		}
	}
	return nil
}

// validateTimeSequence requires strictly increasing timestamps. Gaps outside
// 30 to 90 minutes are logged, not rejected.
func validateTimeSequence(priceData []types.PriceData, pair string) error {
	if len(priceData) < 2 {
		return fmt.Errorf("%w: cannot validate sequence for %s", ErrInsufficientData, pair)
	}
	gaps := 0
	for i := 1; i < len(priceData); i++ {
		diff := priceData[i].Timestamp.Sub(priceData[i-1].Timestamp)
		if diff <= 0 {
			return fmt.Errorf("%w: data points not in chronological order for %s at index %d", ErrInvalidPriceData, pair, i)
		}
		if diff < 30*time.Minute || diff > 90*time.Minute {
			gaps++
		}
	}
	if gaps > 0 {
		priceLogger.Warn().
			Str("pair", pair).
			Int("irregularGaps", gaps).
			Msg("Price series has irregular spacing")
	}
	return nil
}
