package adapter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/MrRuperto3/TAO-App/internal/circuitbreaker"
	"github.com/MrRuperto3/TAO-App/internal/config"
	apperrors "github.com/MrRuperto3/TAO-App/internal/errors"
	"github.com/MrRuperto3/TAO-App/internal/logging"
	"github.com/MrRuperto3/TAO-App/internal/observability"
	"github.com/MrRuperto3/TAO-App/internal/ratelimit"
	"github.com/MrRuperto3/TAO-App/internal/retry"
)

// ProviderTaostats names the upstream in errors, logs and metrics
const ProviderTaostats = "taostats"

const maxResponseBytes = 8 << 20

// Endpoint names used for quota accounting and metrics
const (
	EndpointPrice  = "price"
	EndpointAcct   = "account"
	EndpointStakes = "stake_balance"
	EndpointPool   = "dtao_pool"
	EndpointSubnet = "subnet"
)

var endpointPaths = map[string]string{
	EndpointPrice:  "/api/price/latest/v1",
	EndpointAcct:   "/api/account/latest/v1",
	EndpointStakes: "/api/dtao/stake_balance/latest/v1",
	EndpointPool:   "/api/dtao/pool/latest/v1",
	EndpointSubnet: "/api/subnet/latest/v1",
}

// QuotaWaiter admits a request against a quota shared with other processes
type QuotaWaiter interface {
	Wait(ctx context.Context, endpoint string, priority ratelimit.Priority) error
}

// TaostatsClient fetches wallet and subnet data from the Taostats REST API.
// Every request passes the local rate limiter, the optional shared quota,
// the circuit breaker and retry with backoff.
type TaostatsClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
	breaker *circuitbreaker.CircuitBreaker
	retry   *retry.RetryConfig
	quota   QuotaWaiter
	metrics *observability.Metrics
}

// Option customizes a TaostatsClient
type Option func(*TaostatsClient)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *TaostatsClient) { c.client = hc }
}

// WithRetryConfig replaces the default retry policy
func WithRetryConfig(rc *retry.RetryConfig) Option {
	return func(c *TaostatsClient) { c.retry = rc }
}

// WithQuota makes every request wait on a shared quota
func WithQuota(q QuotaWaiter) Option {
	return func(c *TaostatsClient) { c.quota = q }
}

// WithMetrics records upstream outcomes and breaker state
func WithMetrics(m *observability.Metrics) Option {
	return func(c *TaostatsClient) { c.metrics = m }
}

// WithBreaker replaces the default circuit breaker
func WithBreaker(cb *circuitbreaker.CircuitBreaker) Option {
	return func(c *TaostatsClient) { c.breaker = cb }
}

// NewTaostatsClient creates a client from configuration
func NewTaostatsClient(cfg *config.TaostatsConfig, opts ...Option) *TaostatsClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}

	c := &TaostatsClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		retry:   retry.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.breaker == nil {
		bc := circuitbreaker.DefaultConfig(ProviderTaostats)
		metrics := c.metrics
		bc.OnStateChange = func(name string, to circuitbreaker.State) {
			metrics.SetBreakerState(name, string(to))
		}
		c.breaker = circuitbreaker.NewCircuitBreaker(bc)
	}
	c.metrics.SetBreakerState(c.breaker.Name(), string(c.breaker.State()))

	return c
}

// Breaker exposes the breaker for health reporting
func (c *TaostatsClient) Breaker() *circuitbreaker.CircuitBreaker {
	return c.breaker
}

// NewSession starts a run whose responses are memoized in a fresh FetchCache
func (c *TaostatsClient) NewSession() *Session {
	return &Session{client: c, cache: NewFetchCache()}
}

// get fetches one endpoint, going through the cache when one is given
func (c *TaostatsClient) get(ctx context.Context, cache *FetchCache, endpoint string, query url.Values, priority ratelimit.Priority) ([]byte, error) {
	path, ok := endpointPaths[endpoint]
	if !ok {
		return nil, fmt.Errorf("unknown taostats endpoint %q", endpoint)
	}
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	fetch := func() ([]byte, error) {
		return c.fetchWithRetry(ctx, endpoint, target, priority)
	}
	if cache == nil {
		return fetch()
	}
	return cache.Do(target, fetch)
}

func (c *TaostatsClient) fetchWithRetry(ctx context.Context, endpoint, target string, priority ratelimit.Priority) ([]byte, error) {
	log := logging.FromContext(ctx).WithFields(map[string]interface{}{
		"provider": ProviderTaostats,
		"endpoint": endpoint,
	})
	ctx = logging.WithLogger(ctx, log)

	var body []byte
	err := retry.Do(ctx, c.retry, func(ctx context.Context, attempt int) error {
		if c.quota != nil {
			if err := c.quota.Wait(ctx, endpoint, priority); err != nil {
				return fmt.Errorf("taostats quota: %w", err)
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		return c.breaker.Execute(ctx, func() error {
			b, err := c.do(ctx, endpoint, target)
			if err != nil {
				return err
			}
			body = b
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (c *TaostatsClient) do(ctx context.Context, endpoint, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, apperrors.NewProviderError(ProviderTaostats, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.metrics.UpstreamResult(endpoint, "error")
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			return nil, apperrors.NewProviderTimeoutError(ProviderTaostats, err)
		}
		return nil, apperrors.NewProviderError(ProviderTaostats, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		c.metrics.UpstreamResult(endpoint, "rate_limited")
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return nil, apperrors.NewProviderRateLimitError(ProviderTaostats, parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()))
	case resp.StatusCode >= 400:
		c.metrics.UpstreamResult(endpoint, "error")
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return nil, apperrors.NewProviderStatusError(ProviderTaostats, resp.StatusCode, req.URL.Path)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		c.metrics.UpstreamResult(endpoint, "error")
		return nil, apperrors.NewProviderError(ProviderTaostats, err)
	}

	c.metrics.UpstreamResult(endpoint, "ok")
	return body, nil
}

// parseRetryAfter accepts delta-seconds or an HTTP date; anything else is zero
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
