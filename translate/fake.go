package translate

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teranos/anvil/errors"
)

// FakeService is an in-process Service for tests and dry runs. IDs are a
// deterministic digest of the expression, so repeated runs agree.
type FakeService struct {
	// Latency is slept before every answer
	Latency time.Duration
	// Reject maps expression -> message returned as a TranslationError
	Reject map[string]string
	// Unavailable makes every call fail with ErrServiceUnavailable
	Unavailable bool
	// Panic makes a call for this expression panic
	Panic string

	mu    sync.Mutex
	seen  map[string]int
	calls atomic.Int64
}

// FakeID returns the identifier FakeService produces for an expression
func FakeID(expression string, format Format) string {
	sum := sha256.Sum256([]byte(CacheKey(expression, format)))
	return "ga4gh:VA." + base64.RawURLEncoding.EncodeToString(sum[:24])
}

// Translate implements Service
func (f *FakeService) Translate(ctx context.Context, expression string, format Format) (*Allele, error) {
	f.calls.Add(1)
	f.mu.Lock()
	if f.seen == nil {
		f.seen = map[string]int{}
	}
	f.seen[expression]++
	f.mu.Unlock()

	if f.Latency > 0 {
		select {
		case <-time.After(f.Latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.Panic != "" && expression == f.Panic {
		panic("fake service exploded on " + expression)
	}
	if f.Unavailable {
		return nil, errors.Wrap(errors.ErrServiceUnavailable, "fake service down")
	}
	if msg, ok := f.Reject[expression]; ok {
		return nil, NewTranslationError(expression, format, msg)
	}
	id := FakeID(expression, format)
	return &Allele{ID: id, Type: "Allele", Digest: id[len("ga4gh:VA."):]}, nil
}

// Calls returns how many times Translate ran
func (f *FakeService) Calls() int64 {
	return f.calls.Load()
}

// Seen returns how many times expression was requested
func (f *FakeService) Seen(expression string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seen[expression]
}
