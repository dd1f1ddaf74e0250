package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/teranos/anvil/errors"
	"github.com/teranos/anvil/internal/httpclient"
	"github.com/teranos/anvil/version"
)

// maxErrorBody bounds how much of a failed response is read for its message
const maxErrorBody = 64 << 10

// HTTPOptions configures an HTTPService
type HTTPOptions struct {
	URL       string // e.g. https://normalize.cancervariants.org/variation
	Normalize bool
	Timeout   time.Duration
	// Limiter is shared by every worker's service so the rate is process-wide; nil = unlimited
	Limiter *rate.Limiter
	Logger  *zap.SugaredLogger
}

// HTTPService calls the variation normalization REST API
type HTTPService struct {
	endpoint  string
	normalize bool
	client    *httpclient.Client
	limiter   *rate.Limiter
	logger    *zap.SugaredLogger
}

// NewLimiter returns a limiter for perSecond requests, or nil for unlimited
func NewLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

// NewHTTPService validates the base URL and builds a client
func NewHTTPService(opts HTTPOptions) (*HTTPService, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	client := httpclient.New(httpclient.Options{
		Timeout:   opts.Timeout,
		UserAgent: version.UserAgent(),
	})
	base, err := client.ValidateURL(opts.URL)
	if err != nil {
		return nil, errors.WithHint(
			errors.Wrapf(err, "translator.url %q", opts.URL),
			"set translator.url to the normalization service base, ending in /variation",
		)
	}
	return &HTTPService{
		endpoint:  strings.TrimSuffix(base.String(), "/") + "/translate_from",
		normalize: opts.Normalize,
		client:    client,
		limiter:   opts.Limiter,
		logger:    opts.Logger,
	}, nil
}

type translateResponse struct {
	Variation *Allele  `json:"variation"`
	Warnings  []string `json:"warnings"`
}

// Translate implements Service
func (s *HTTPService) Translate(ctx context.Context, expression string, format Format) (*Allele, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, errors.Wrap(err, "rate limiter")
		}
	}

	q := url.Values{}
	q.Set("variation", expression)
	q.Set("fmt", string(format))
	q.Set("normalize", strconv.FormatBool(s.normalize))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "build translate request")
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.Wrapf(errors.ErrServiceUnavailable, "translate %s: %v", expression, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return nil, errors.Wrapf(errors.ErrServiceUnavailable, "translate %s: HTTP %d", expression, resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, NewTranslationError(expression, format, errorMessage(resp))
	}

	var body translateResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, errors.Wrapf(errors.ErrServiceUnavailable, "decode translate response for %s: %v", expression, err)
	}

	s.logger.Debugw("Translated",
		"expression", expression,
		"format", string(format),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if len(body.Warnings) > 0 {
		return nil, NewTranslationError(expression, format, strings.Join(body.Warnings, "; "))
	}
	if body.Variation == nil || body.Variation.ID == "" {
		return nil, NewTranslationError(expression, format, fmt.Sprintf("no variation returned for %s", expression))
	}
	return body.Variation, nil
}

// errorMessage extracts FastAPI's {"detail": ...} or falls back to the status text
func errorMessage(resp *http.Response) string {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var detail struct {
		Detail json.RawMessage `json:"detail"`
	}
	if json.Unmarshal(data, &detail) == nil && len(detail.Detail) > 0 {
		var s string
		if json.Unmarshal(detail.Detail, &s) == nil {
			return s
		}
		return string(detail.Detail)
	}
	if msg := strings.TrimSpace(string(data)); msg != "" {
		return msg
	}
	return fmt.Sprintf("HTTP %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
}
