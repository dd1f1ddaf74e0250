package metakb

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/anvil/errors"
	qtest "github.com/teranos/anvil/internal/testing"
)

const civic = `{
  "studies": [
    {"id": "civic.eid:2997", "variant": {"id": "civic.mpid:33", "definingContext": {"id": "ga4gh:VA.fIeN3g9AhhlaUyVHWL1QfJ8I8cbS5pY-"}}},
    {"id": "civic.eid:1409", "members": [{"id": "ga4gh:VA.ad8LAfxDmJbTjP-O3KTcJ8VMt-OOqwUo"}, {"id": 42}]}
  ],
  "variations": [{"id": "ga4gh:VA.fIeN3g9AhhlaUyVHWL1QfJ8I8cbS5pY-", "type": "Allele"}]
}`

const moa = `[{"id": "moa.assertion:71", "nested": [[{"id": "ga4gh:VA.j4XnsLZcdzDIYa5pvvXM7t1wn9OITr0L"}]]}]`

func writeCorpus(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	qtest.WriteFile(t, dir, "civic_cdm.json", civic)
	qtest.WriteFile(t, dir, "moa_cdm.json", moa)
	qtest.WriteFile(t, dir, "README.txt", `{"id": "ga4gh:VA.ignored"}`)
	return dir
}

func TestIDs_Recursive(t *testing.T) {
	dir := writeCorpus(t)

	var ids []string
	require.NoError(t, IDs(context.Background(), dir, func(id string) error {
		ids = append(ids, id)
		return nil
	}))

	sort.Strings(ids)
	assert.Equal(t, []string{
		"ga4gh:VA.ad8LAfxDmJbTjP-O3KTcJ8VMt-OOqwUo",
		"ga4gh:VA.fIeN3g9AhhlaUyVHWL1QfJ8I8cbS5pY-",
		"ga4gh:VA.fIeN3g9AhhlaUyVHWL1QfJ8I8cbS5pY-",
		"ga4gh:VA.j4XnsLZcdzDIYa5pvvXM7t1wn9OITr0L",
	}, ids)
}

func TestIDs_Errors(t *testing.T) {
	t.Run("empty corpus", func(t *testing.T) {
		err := IDs(context.Background(), t.TempDir(), func(string) error { return nil })
		require.Error(t, err)
		assert.True(t, errors.IsNotFoundError(err))
	})

	t.Run("malformed file", func(t *testing.T) {
		dir := t.TempDir()
		qtest.WriteFile(t, dir, "bad.json", `{"id": "ga4gh:VA.x", "studies": [`)
		err := IDs(context.Background(), dir, func(string) error { return nil })
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bad.json")
	})

	t.Run("callback error stops", func(t *testing.T) {
		stop := errors.New("stop")
		n := 0
		err := IDs(context.Background(), writeCorpus(t), func(string) error {
			n++
			return stop
		})
		assert.True(t, errors.Is(err, stop))
		assert.Equal(t, 1, n)
	})
}

func TestProxy_BuildThenReuse(t *testing.T) {
	corpus := writeCorpus(t)
	cacheDir := filepath.Join(t.TempDir(), "cache")
	logger := zaptest.NewLogger(t).Sugar()

	p, err := Open(context.Background(), corpus, cacheDir, Options{Logger: logger})
	require.NoError(t, err)

	n, err := p.Len()
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	assert.True(t, p.Get("ga4gh:VA.fIeN3g9AhhlaUyVHWL1QfJ8I8cbS5pY-"))
	assert.True(t, p.Get("ga4gh:VA.j4XnsLZcdzDIYa5pvvXM7t1wn9OITr0L"))
	assert.False(t, p.Get("ga4gh:VA.unknown"))
	assert.False(t, p.Get("civic.eid:2997"))

	hits, misses := p.Stats()
	assert.Equal(t, int64(2), hits)
	assert.Equal(t, int64(2), misses)
	require.NoError(t, p.Close())

	// corpus gone: the existing store is reused without touching it
	require.NoError(t, os.Remove(filepath.Join(corpus, "moa_cdm.json")))
	p, err = Open(context.Background(), corpus, cacheDir, Options{Logger: logger})
	require.NoError(t, err)
	defer p.Close()
	assert.True(t, p.Get("ga4gh:VA.j4XnsLZcdzDIYa5pvvXM7t1wn9OITr0L"))
}

func TestProxy_Rebuild(t *testing.T) {
	corpus := writeCorpus(t)
	cacheDir := filepath.Join(t.TempDir(), "cache")

	p, err := Open(context.Background(), corpus, cacheDir, Options{})
	require.NoError(t, err)
	require.NoError(t, p.Close())

	require.NoError(t, os.Remove(filepath.Join(corpus, "moa_cdm.json")))
	p, err = Open(context.Background(), corpus, cacheDir, Options{Rebuild: true})
	require.NoError(t, err)
	defer p.Close()

	assert.False(t, p.Get("ga4gh:VA.j4XnsLZcdzDIYa5pvvXM7t1wn9OITr0L"))
}

func TestProxy_FailedBuildLeavesNoCache(t *testing.T) {
	cacheDir := filepath.Join(t.TempDir(), "cache")

	_, err := Open(context.Background(), t.TempDir(), cacheDir, Options{})
	require.Error(t, err)

	_, statErr := os.Stat(cacheDir)
	assert.True(t, os.IsNotExist(statErr))
}

func writeLargeCorpus(t *testing.T, n int) (string, []string) {
	t.Helper()
	ids := make([]string, n)
	var b strings.Builder
	b.WriteString(`{"variations": [`)
	for i := range ids {
		ids[i] = fmt.Sprintf("ga4gh:VA.large%06d", i)
		if i > 0 {
			b.WriteString(",")
		}
		fmt.Fprintf(&b, `{"id": %q}`, ids[i])
	}
	b.WriteString("]}")
	dir := t.TempDir()
	qtest.WriteFile(t, dir, "civic_cdm.json", b.String())
	return dir, ids
}

func TestProxy_ConcurrentOpenSeesCompleteStore(t *testing.T) {
	corpus, ids := writeLargeCorpus(t, 20_000)

	for round := 0; round < 3; round++ {
		cacheDir := filepath.Join(t.TempDir(), "metakb")

		var wg sync.WaitGroup
		errs := make(chan error, 4)
		for g := 0; g < 4; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				p, err := Open(context.Background(), corpus, cacheDir, Options{})
				if err != nil {
					errs <- err
					return
				}
				defer p.Close()
				n, err := p.Len()
				if err != nil {
					errs <- err
					return
				}
				if n != len(ids) {
					errs <- fmt.Errorf("opened store with %d of %d ids", n, len(ids))
					return
				}
				for i := 0; i < len(ids); i += 397 {
					if !p.Get(ids[i]) {
						errs <- fmt.Errorf("missing %s", ids[i])
						return
					}
				}
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			t.Errorf("round %d: %v", round, err)
		}

		// only the finished store remains next to the cache directory
		entries, err := os.ReadDir(filepath.Dir(cacheDir))
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	}
}

func TestProxy_FailedRebuildKeepsStore(t *testing.T) {
	corpus := writeCorpus(t)
	cacheDir := filepath.Join(t.TempDir(), "cache")

	p, err := Open(context.Background(), corpus, cacheDir, Options{})
	require.NoError(t, err)
	require.NoError(t, p.Close())

	_, err = Open(context.Background(), t.TempDir(), cacheDir, Options{Rebuild: true})
	require.Error(t, err)

	p, err = Open(context.Background(), corpus, cacheDir, Options{})
	require.NoError(t, err)
	defer p.Close()
	assert.True(t, p.Get("ga4gh:VA.j4XnsLZcdzDIYa5pvvXM7t1wn9OITr0L"))
}

func zipOf(t *testing.T, name, content string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(name)
	require.NoError(t, err)
	_, err = w.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestDownload(t *testing.T) {
	archives := map[string][]byte{
		"/cdm/civic_cdm.json.zip": zipOf(t, "civic_cdm.json", civic),
		"/cdm/moa_cdm.json.zip":   zipOf(t, "moa_cdm.json", moa),
	}
	var requests atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := archives[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		if r.Method == http.MethodGet {
			requests.Add(1)
		}
		w.Header().Set("Content-Type", "application/zip")
		w.Write(body)
	}))
	defer srv.Close()

	dir := filepath.Join(t.TempDir(), "metakb")
	urls := []string{srv.URL + "/cdm/civic_cdm.json.zip", srv.URL + "/cdm/moa_cdm.json.zip"}

	require.NoError(t, Download(context.Background(), dir, urls, srv.Client(), zaptest.NewLogger(t).Sugar()))

	files, err := CorpusFiles(dir)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "civic_cdm.json", filepath.Base(files[0]))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "scratch directories removed")

	// present corpus: no further requests
	before := requests.Load()
	require.NoError(t, Download(context.Background(), dir, urls, srv.Client(), nil))
	assert.Equal(t, before, requests.Load())
}

func TestDownload_NoURLs(t *testing.T) {
	err := Download(context.Background(), filepath.Join(t.TempDir(), "none"), nil, nil, nil)
	require.Error(t, err)
	assert.True(t, errors.IsNotFoundError(err))
}
