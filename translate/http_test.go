package translate

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/anvil/errors"
)

func newNormalizer(t *testing.T, handler http.HandlerFunc) (*HTTPService, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	svc, err := NewHTTPService(HTTPOptions{
		URL:     server.URL + "/variation",
		Timeout: 5 * time.Second,
		Logger:  zaptest.NewLogger(t).Sugar(),
	})
	require.NoError(t, err)
	return svc, server
}

func TestHTTPService_Success(t *testing.T) {
	svc, _ := newNormalizer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/variation/translate_from", r.URL.Path)
		assert.Equal(t, "1-10330-CCCCTAACCCTAACCCTAACCCTACCCTAACCCTAACCCTAACCCTAACCCTAA-C", r.URL.Query().Get("variation"))
		assert.Equal(t, "gnomad", r.URL.Query().Get("fmt"))
		assert.Equal(t, "false", r.URL.Query().Get("normalize"))
		assert.Contains(t, r.Header.Get("User-Agent"), "anvil/")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"query": "x",
			"warnings": [],
			"variation": {
				"id": "ga4gh:VA.hsmiVXP8GUYEO7_2RcaaoqVVxxhWL8eR",
				"type": "Allele",
				"digest": "hsmiVXP8GUYEO7_2RcaaoqVVxxhWL8eR",
				"location": {"type": "SequenceLocation", "start": 10329, "end": 10383},
				"state": {"type": "ReferenceLengthExpression", "length": 1}
			}
		}`))
	})

	allele, err := svc.Translate(context.Background(),
		"1-10330-CCCCTAACCCTAACCCTAACCCTACCCTAACCCTAACCCTAACCCTAACCCTAA-C", FormatGnomad)
	require.NoError(t, err)
	assert.Equal(t, "ga4gh:VA.hsmiVXP8GUYEO7_2RcaaoqVVxxhWL8eR", allele.ID)
	assert.Equal(t, "Allele", allele.Type)
	assert.JSONEq(t, `{"type": "SequenceLocation", "start": 10329, "end": 10383}`, string(allele.Location))
}

func TestHTTPService_Warnings(t *testing.T) {
	svc, _ := newNormalizer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"warnings": ["Unable to translate 1-1-X-A to gnomad"], "variation": null}`))
	})

	_, err := svc.Translate(context.Background(), "1-1-X-A", FormatGnomad)
	require.Error(t, err)
	assert.True(t, IsTranslationError(err))
	assert.Equal(t, "Unable to translate 1-1-X-A to gnomad", err.Error())
}

func TestHTTPService_ClientErrorIsTranslationError(t *testing.T) {
	svc, _ := newNormalizer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"detail": "fmt must be one of gnomad, hgvs, spdi, beacon"}`))
	})

	_, err := svc.Translate(context.Background(), "x", Format("bogus"))
	require.Error(t, err)
	assert.True(t, IsTranslationError(err))
	assert.Equal(t, "fmt must be one of gnomad, hgvs, spdi, beacon", err.Error())
}

func TestHTTPService_ServerErrorIsUnavailable(t *testing.T) {
	svc, _ := newNormalizer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := svc.Translate(context.Background(), "1-100-A-T", FormatGnomad)
	require.Error(t, err)
	assert.False(t, IsTranslationError(err))
	assert.True(t, errors.IsServiceUnavailableError(err))
}

func TestHTTPService_RateLimited(t *testing.T) {
	var calls atomic.Int64
	svc, _ := newNormalizer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"variation": {"id": "ga4gh:VA.x"}}`))
	})
	svc.limiter = NewLimiter(10)

	start := time.Now()
	for i := 0; i < 15; i++ {
		_, err := svc.Translate(context.Background(), "1-100-A-T", FormatGnomad)
		require.NoError(t, err)
	}
	// burst of 10, then 5 more at 10/s
	assert.GreaterOrEqual(t, time.Since(start), 400*time.Millisecond)
	assert.Equal(t, int64(15), calls.Load())
}

func TestHTTPService_Cancelled(t *testing.T) {
	svc, _ := newNormalizer(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := svc.Translate(ctx, "1-100-A-T", FormatGnomad)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestNewHTTPService_BadURL(t *testing.T) {
	_, err := NewHTTPService(HTTPOptions{URL: "ftp://example.org/variation"})
	require.Error(t, err)
	assert.NotEmpty(t, errors.GetAllHints(err))
	assert.Nil(t, NewLimiter(0))
}
