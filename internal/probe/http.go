package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/roach88/payconfirm/internal/confirm"
)

// maxErrorBody caps how much of an error response is kept for diagnostics.
const maxErrorBody = 512

// defaultTimeout bounds a probe made through the default client.
const defaultTimeout = 10 * time.Second

// HTTPProber queries GET {baseURL}/confirmations/{identifier}.
//
// Response mapping:
//   - 200: JSON body decoded into confirm.Result
//   - 404: Result{Confirmed: false}, the backend has not recorded it yet
//   - anything else: *StatusError
type HTTPProber struct {
	baseURL string
	client  *resty.Client
	logger  *slog.Logger
}

// HTTPOption configures an HTTPProber.
type HTTPOption func(*HTTPProber)

// WithClient overrides the default resty client. The client is used as is;
// its timeout and retry settings are the caller's.
func WithClient(c *resty.Client) HTTPOption {
	return func(p *HTTPProber) {
		p.client = c
	}
}

// WithLogger sets the logger used for debug output.
func WithLogger(l *slog.Logger) HTTPOption {
	return func(p *HTTPProber) {
		p.logger = l
	}
}

// NewHTTPProber creates a prober rooted at baseURL.
func NewHTTPProber(baseURL string, opts ...HTTPOption) (*HTTPProber, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse probe url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("parse probe url: unsupported scheme %q", u.Scheme)
	}

	p := &HTTPProber{
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.client == nil {
		p.client = resty.New().SetTimeout(defaultTimeout)
	}
	return p, nil
}

// Probe implements Prober.
func (p *HTTPProber) Probe(ctx context.Context, identifier string) (confirm.Result, error) {
	resp, err := p.client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetPathParam("identifier", identifier).
		Get(p.baseURL + "/confirmations/{identifier}")
	if err != nil {
		return confirm.Result{}, fmt.Errorf("probe %s: %w", identifier, err)
	}

	switch resp.StatusCode() {
	case http.StatusOK:
		var res confirm.Result
		if err := json.Unmarshal(resp.Body(), &res); err != nil {
			return confirm.Result{}, fmt.Errorf("decode probe response: %w", err)
		}
		p.logger.Debug("probe answered",
			"identifier", identifier,
			"confirmed", res.Confirmed,
			"target", res.Target,
		)
		return res, nil

	case http.StatusNotFound:
		return confirm.Result{}, nil

	default:
		body := resp.Body()
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return confirm.Result{}, &StatusError{
			StatusCode: resp.StatusCode(),
			Body:       strings.TrimSpace(string(body)),
		}
	}
}
