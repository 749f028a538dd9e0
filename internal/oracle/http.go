package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	interfaces "github.com/sheikh-saqib/portfolio-order-ledger/internal/interfaces"
	"github.com/sheikh-saqib/portfolio-order-ledger/internal/models"
	"github.com/sheikh-saqib/portfolio-order-ledger/internal/retry"
	"golang.org/x/time/rate"
)

// HTTPConfig holds settings for the HTTP price feed client.
type HTTPConfig struct {
	// BaseURL of the feed. Quotes are read from GET {BaseURL}/prices?pair=BASE/QUOTE.
	BaseURL string

	// Timeout bounds one GetPrice call including retries.
	Timeout time.Duration

	// MaxAge rejects quotes older than this. Zero disables the check.
	MaxAge time.Duration

	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// RateLimitPerMin caps outgoing requests.
	RateLimitPerMin int

	Logger     *slog.Logger
	HTTPClient *http.Client
}

// HTTPConfigDefaults returns a config with default values.
func HTTPConfigDefaults() HTTPConfig {
	return HTTPConfig{
		Timeout:         time.Second,
		MaxAge:          30 * time.Second,
		MaxRetries:      2,
		InitialBackoff:  50 * time.Millisecond,
		MaxBackoff:      250 * time.Millisecond,
		RateLimitPerMin: 600,
		Logger:          slog.Default(),
	}
}

// HTTPOracle reads quotes from an HTTP price feed.
type HTTPOracle struct {
	config      HTTPConfig
	httpClient  *http.Client
	logger      *slog.Logger
	limiter     *rate.Limiter
	retryConfig retry.Config
	now         func() time.Time
}

// quoteResponse is the feed's wire format. Price is a decimal string.
type quoteResponse struct {
	TradingPair string    `json:"trading_pair"`
	Price       string    `json:"price"`
	AsOf        time.Time `json:"as_of"`
}

// NewHTTPOracle creates a feed client.
func NewHTTPOracle(config HTTPConfig) (*HTTPOracle, error) {
	if config.BaseURL == "" {
		return nil, errors.New("BaseURL is required")
	}
	applyDefaults(&config, HTTPConfigDefaults())

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}

	rps := float64(config.RateLimitPerMin) / 60.0
	return &HTTPOracle{
		config:     config,
		httpClient: httpClient,
		logger:     config.Logger.With("component", "http-oracle"),
		limiter:    rate.NewLimiter(rate.Limit(rps), config.RateLimitPerMin/60+1),
		retryConfig: retry.Config{
			MaxRetries:     config.MaxRetries,
			InitialBackoff: config.InitialBackoff,
			MaxBackoff:     config.MaxBackoff,
			BackoffFactor:  2.0,
		},
		now: time.Now,
	}, nil
}

func applyDefaults(config *HTTPConfig, defaults HTTPConfig) {
	if config.Timeout == 0 {
		config.Timeout = defaults.Timeout
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = defaults.MaxRetries
	}
	if config.InitialBackoff == 0 {
		config.InitialBackoff = defaults.InitialBackoff
	}
	if config.MaxBackoff == 0 {
		config.MaxBackoff = defaults.MaxBackoff
	}
	if config.RateLimitPerMin == 0 {
		config.RateLimitPerMin = defaults.RateLimitPerMin
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}
}

// GetPrice fetches the current quote for pair. Every failure is reported as
// models.ErrPriceUnavailable.
func (o *HTTPOracle) GetPrice(ctx context.Context, pair string) (models.PriceQuote, error) {
	ctx, cancel := context.WithTimeout(ctx, o.config.Timeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/prices?%s", o.config.BaseURL, url.Values{"pair": {pair}}.Encode())

	isRetryable := func(err error) bool {
		var nonRetryable *nonRetryableError
		return !errors.As(err, &nonRetryable)
	}
	onRetry := func(attempt int, err error, backoff time.Duration) {
		o.logger.Warn("price request failed, retrying",
			"pair", pair,
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)
	}

	resp, err := retry.Do(ctx, o.retryConfig, isRetryable, onRetry, func() (quoteResponse, error) {
		if err := o.limiter.Wait(ctx); err != nil {
			return quoteResponse{}, &nonRetryableError{err: fmt.Errorf("rate limiter: %w", err)}
		}
		return o.fetch(ctx, endpoint)
	})
	if err != nil {
		return models.PriceQuote{}, fmt.Errorf("%w: %s: %v", models.ErrPriceUnavailable, pair, err)
	}

	quote, err := o.toQuote(pair, resp)
	if err != nil {
		return models.PriceQuote{}, fmt.Errorf("%w: %s: %v", models.ErrPriceUnavailable, pair, err)
	}
	return quote, nil
}

func (o *HTTPOracle) fetch(ctx context.Context, endpoint string) (quoteResponse, error) {
	var result quoteResponse

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return result, &nonRetryableError{err: fmt.Errorf("creating request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return result, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			o.logger.Warn("failed to close response body", "error", closeErr)
		}
	}()

	if resp.StatusCode == http.StatusTooManyRequests {
		return result, fmt.Errorf("rate limited (HTTP 429)")
	}
	if resp.StatusCode >= 500 {
		return result, fmt.Errorf("server error (HTTP %d)", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return result, fmt.Errorf("reading response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return result, &nonRetryableError{err: fmt.Errorf("client error (HTTP %d): %s", resp.StatusCode, string(body))}
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return result, &nonRetryableError{err: fmt.Errorf("parsing response: %w", err)}
	}
	return result, nil
}

func (o *HTTPOracle) toQuote(pair string, resp quoteResponse) (models.PriceQuote, error) {
	if resp.TradingPair != "" && resp.TradingPair != pair {
		return models.PriceQuote{}, fmt.Errorf("feed answered for %s", resp.TradingPair)
	}
	quote, err := parseQuote(pair, resp.Price, resp.AsOf)
	if err != nil {
		return models.PriceQuote{}, err
	}
	if quote.AsOf.IsZero() {
		quote.AsOf = o.now().UTC()
	}
	if stale(quote, o.config.MaxAge, o.now()) {
		return models.PriceQuote{}, fmt.Errorf("quote from %s is older than %s", quote.AsOf.Format(time.RFC3339), o.config.MaxAge)
	}
	return quote, nil
}

// nonRetryableError wraps errors that should not be retried.
type nonRetryableError struct {
	err error
}

func (e *nonRetryableError) Error() string {
	return e.err.Error()
}

func (e *nonRetryableError) Unwrap() error {
	return e.err
}

var _ interfaces.PriceOracle = (*HTTPOracle)(nil)
