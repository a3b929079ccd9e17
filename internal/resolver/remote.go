package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"github.com/bavix/scanbridge/internal/catalog"
	"github.com/bavix/scanbridge/internal/version"
)

const (
	defaultBreakerMaxFailures uint32        = 5
	defaultBreakerTimeout     time.Duration = 30 * time.Second
	defaultBreakerInterval    time.Duration = 60 * time.Second
	defaultRemoteTimeout      time.Duration = 3 * time.Second

	maxRemoteBody = 1 << 20
)

var (
	errRemoteStatus  = errors.New("unexpected remote status")
	errRemoteProduct = errors.New("remote product has no name")
	errRemoteURL     = errors.New("remote url must be http or https")
)

// BreakerConfig configures the circuit breaker in front of the remote service.
type BreakerConfig struct {
	MaxFailures uint32
	Timeout     time.Duration
	Interval    time.Duration
}

// HTTPRemote fetches products from GET {base}/{code}. 404 is a miss.
type HTTPRemote struct {
	base    string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[*catalog.Product]
}

// NewHTTPRemote creates a remote lookup against base. A nil client gets a
// default one with a short timeout.
func NewHTTPRemote(base string, client *http.Client, cfg BreakerConfig, log zerolog.Logger) (*HTTPRemote, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse remote url: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: %s", errRemoteURL, base)
	}

	if client == nil {
		client = &http.Client{Timeout: defaultRemoteTimeout}
	}

	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultBreakerMaxFailures
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultBreakerTimeout
	}

	interval := cfg.Interval
	if interval == 0 {
		interval = defaultBreakerInterval
	}

	cb := gobreaker.NewCircuitBreaker[*catalog.Product](gobreaker.Settings{
		Name:        "product-remote",
		MaxRequests: 1,
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("circuit breaker state change")
		},
	})

	return &HTTPRemote{base: strings.TrimRight(base, "/"), client: client, breaker: cb}, nil
}

// Lookup implements Remote.
func (r *HTTPRemote) Lookup(ctx context.Context, code string) (*catalog.Product, error) {
	p, err := r.breaker.Execute(func() (*catalog.Product, error) {
		return r.fetch(ctx, code)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("product remote circuit open: %w", err)
		}

		return nil, err
	}

	return p, nil
}

// State returns the breaker state for monitoring.
func (r *HTTPRemote) State() gobreaker.State {
	return r.breaker.State()
}

func (r *HTTPRemote) fetch(ctx context.Context, code string) (*catalog.Product, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.base+"/"+url.PathEscape(code), nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("remote lookup %s: %w", code, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil //nolint:nilnil // a miss is not an error
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("%w: %d", errRemoteStatus, resp.StatusCode)
	}

	var p catalog.Product
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxRemoteBody)).Decode(&p); err != nil {
		return nil, fmt.Errorf("decode remote product %s: %w", code, err)
	}

	if strings.TrimSpace(p.Name) == "" {
		return nil, fmt.Errorf("%w: %s", errRemoteProduct, code)
	}

	if p.Code == "" {
		p.Code = code
	}

	if p.Currency == "" {
		p.Currency = catalog.DefaultCurrency
	}

	return &p, nil
}
