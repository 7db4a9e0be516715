package media

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"Canvas-Auto-Quiz-Backend/internal/model"
	"Canvas-Auto-Quiz-Backend/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchAllDownloadsEachURLOnce(t *testing.T) {
	var (
		mu   sync.Mutex
		hits = map[string]int{}
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits[r.URL.Path]++
		mu.Unlock()
		_, _ = w.Write([]byte("img-bytes"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	shared := &model.MediaRef{SourceURL: srv.URL + "/shared.png", LocalPath: filepath.Join(dir, "q_1_0.png")}
	other := &model.MediaRef{SourceURL: srv.URL + "/other.png", LocalPath: filepath.Join(dir, "q_2_0.png")}

	// 去重发生在抽取层：同一URL只有一个 MediaRef，这里自然只下载一次
	refs := map[string]*model.MediaRef{
		shared.SourceURL: shared,
		other.SourceURL:  other,
	}

	f := NewFetcher(session.New(nil), 4, 5)
	results := f.FetchAll(refs)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.NoError(t, r.Err)
	}

	assert.Equal(t, 1, hits["/shared.png"])
	assert.Equal(t, 1, hits["/other.png"])

	assert.True(t, shared.Fetched)
	assert.True(t, other.Fetched)
	data, err := os.ReadFile(shared.LocalPath)
	require.NoError(t, err)
	assert.Equal(t, "img-bytes", string(data))
}

func TestFetchAllFailureIsNonFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/bad.png" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	good := &model.MediaRef{SourceURL: srv.URL + "/good.png", LocalPath: filepath.Join(dir, "good.png")}
	bad := &model.MediaRef{SourceURL: srv.URL + "/bad.png", LocalPath: filepath.Join(dir, "bad.png")}

	f := NewFetcher(session.New(nil), 2, 5)
	results := f.FetchAll(map[string]*model.MediaRef{
		good.SourceURL: good,
		bad.SourceURL:  bad,
	})
	require.Len(t, results, 2)

	assert.True(t, good.Fetched)
	assert.False(t, bad.Fetched)
	failCount := 0
	for _, r := range results {
		if r.Err != nil {
			failCount++
			assert.Same(t, bad, r.Ref)
		}
	}
	assert.Equal(t, 1, failCount)
}

func TestFetchAllEmptyInput(t *testing.T) {
	f := NewFetcher(session.New(nil), 2, 5)
	assert.Nil(t, f.FetchAll(nil))
}
