package download_test

import (
	"archive/zip"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/birkland/millstone"
	"github.com/birkland/millstone/download"
	"github.com/birkland/millstone/metadata"
	"github.com/stretchr/testify/require"
)

type server struct {
	*httptest.Server
	hits atomic.Int64
}

func serve(t *testing.T, h http.HandlerFunc) *server {
	s := &server{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/redirect" {
			s.hits.Add(1)
		}
		h(w, r)
	}))
	t.Cleanup(s.Close)
	return s
}

func zipBytes(t *testing.T, name, content string) []byte {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(name)
	require.NoError(t, err)
	_, err = w.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func emptyZip(t *testing.T) []byte {
	var buf bytes.Buffer
	require.NoError(t, zip.NewWriter(&buf).Close())
	return buf.Bytes()
}

func TestFetch(t *testing.T) {
	s := serve(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/csv")
		w.Write([]byte("x,y\n1,2\n"))
	})

	dest := filepath.Join(t.TempDir(), "abcd1234-points.csv")
	c := download.New(download.Config{})

	p, err := c.Fetch(context.Background(), s.URL+"/points.csv", dest)
	require.NoError(t, err)
	require.Equal(t, dest, p)
	require.EqualValues(t, 1, c.Fetched())

	content, err := os.ReadFile(p)
	require.NoError(t, err)
	require.Equal(t, "x,y\n1,2\n", string(content))

	rec, err := metadata.Read(dest)
	require.NoError(t, err)
	require.Equal(t, s.URL+"/points.csv", rec.URL)
	require.Equal(t, "text/csv", rec.Headers["content-type"])

	_, err = os.Stat(dest + download.TempSuffix)
	require.True(t, os.IsNotExist(err))

	// Warm
	p, err = download.New(download.Config{}).Fetch(context.Background(), s.URL+"/points.csv", dest)
	require.NoError(t, err)
	require.Equal(t, dest, p)
	require.EqualValues(t, 1, s.hits.Load())
}

func TestFetchConcurrent(t *testing.T) {
	release := make(chan struct{})
	s := serve(t, func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.Write([]byte("payload"))
	})

	dest := filepath.Join(t.TempDir(), "abcd1234-data.json")
	c := download.New(download.Config{Workers: 2})

	var wg sync.WaitGroup
	paths := make([]string, 10)
	errs := make([]error, 10)
	for i := range paths {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			paths[i], errs[i] = c.Fetch(context.Background(), s.URL+"/data.json", dest)
		}(i)
	}

	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := range paths {
		require.NoError(t, errs[i])
		require.Equal(t, dest, paths[i])
	}
	require.EqualValues(t, 1, s.hits.Load())
	require.EqualValues(t, 1, c.Fetched())
}

func TestFetchSharedError(t *testing.T) {
	release := make(chan struct{})
	s := serve(t, func(w http.ResponseWriter, r *http.Request) {
		<-release
		http.Error(w, "nope", http.StatusInternalServerError)
	})

	dest := filepath.Join(t.TempDir(), "abcd1234-data.json")
	c := download.New(download.Config{})

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.Fetch(context.Background(), s.URL+"/data.json", dest)
		}(i)
	}

	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	for _, err := range errs {
		require.True(t, millstone.IsKind(err, millstone.Download), "%v", err)
		require.Equal(t, errs[0], err)
	}
	require.EqualValues(t, 1, s.hits.Load())

	_, err := os.Stat(dest)
	require.True(t, os.IsNotExist(err))
}

func TestFetchNotFound(t *testing.T) {
	s := serve(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	dest := filepath.Join(t.TempDir(), "abcd1234-missing.csv")
	_, err := download.New(download.Config{}).Fetch(context.Background(), s.URL+"/missing.csv", dest)
	require.True(t, millstone.IsKind(err, millstone.Download), "%v", err)
	require.Contains(t, err.Error(), s.URL+"/missing.csv")
	require.Contains(t, err.Error(), "404")

	_, err = os.Stat(dest)
	require.True(t, os.IsNotExist(err))
}

func TestFetchInvalidURL(t *testing.T) {
	_, err := download.New(download.Config{}).Fetch(context.Background(), "not a url", filepath.Join(t.TempDir(), "x"))
	require.True(t, millstone.IsKind(err, millstone.InvalidURL), "%v", err)
}

func TestFetchCorruptZip(t *testing.T) {
	payload := zipBytes(t, "points.csv", "x,y")
	s := serve(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	})

	dir := filepath.Join(t.TempDir(), "abcd1234-points")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	dest := filepath.Join(dir, "abcd1234-points.zip")

	for _, corrupt := range [][]byte{nil, []byte("PK"), emptyZip(t)} {
		require.NoError(t, os.WriteFile(dest, corrupt, 0o644))

		before := s.hits.Load()
		p, err := download.New(download.Config{}).Fetch(context.Background(), s.URL+"/points.zip", dest)
		require.NoError(t, err)
		require.Equal(t, dest, p)
		require.Equal(t, before+1, s.hits.Load())

		content, err := os.ReadFile(dest)
		require.NoError(t, err)
		require.Equal(t, payload, content)
	}

	_, err := download.New(download.Config{}).Fetch(context.Background(), s.URL+"/points.zip", dest)
	require.NoError(t, err)
	require.EqualValues(t, 3, s.hits.Load())
}

func TestFetchExtensionless(t *testing.T) {
	s := serve(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Disposition", `attachment; filename="export.csv"`)
		w.Write([]byte("x,y"))
	})

	dest := filepath.Join(t.TempDir(), "abcd1234-export", "abcd1234-export")
	p, err := download.New(download.Config{}).Fetch(context.Background(), s.URL+"/export", dest)
	require.NoError(t, err)
	require.Equal(t, dest+".csv", p)
	require.FileExists(t, p)
	require.NoFileExists(t, dest)

	p, err = download.New(download.Config{}).Fetch(context.Background(), s.URL+"/export", dest)
	require.NoError(t, err)
	require.Equal(t, dest+".csv", p)
	require.EqualValues(t, 1, s.hits.Load())
}

func TestFetchRedirect(t *testing.T) {
	s := serve(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/redirect" {
			http.Redirect(w, r, "/files/data.geojson", http.StatusFound)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write([]byte(`{"type":"FeatureCollection","features":[]}`))
	})

	dest := filepath.Join(t.TempDir(), "abcd1234-redirect", "abcd1234-redirect")
	p, err := download.New(download.Config{}).Fetch(context.Background(), s.URL+"/redirect", dest)
	require.NoError(t, err)
	require.Equal(t, dest+".geojson", p)

	rec, err := metadata.Read(dest)
	require.NoError(t, err)
	require.Equal(t, s.URL+"/files/data.geojson", rec.URL)
}

func TestKey(t *testing.T) {
	a, err := download.Key("http://example.com/Cle%CC%81ment.zip", "/cache/x")
	require.NoError(t, err)
	b, err := download.Key("http://example.com/Cle\u0301ment.zip", "/cache/x")
	require.NoError(t, err)
	require.Equal(t, a, b)

	c, err := download.Key("http://example.com/Cle%CC%81ment.zip", "/cache/y")
	require.NoError(t, err)
	require.NotEqual(t, a, c)
}

func TestRefresh(t *testing.T) {
	var body atomic.Value
	body.Store("old")
	s := serve(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body.Load().(string)))
	})

	dest := filepath.Join(t.TempDir(), "abcd1234-data.csv")
	c := download.New(download.Config{})
	ctx, cancel := context.WithCancel(context.Background())

	_, err := c.Fetch(ctx, s.URL+"/data.csv", dest)
	require.NoError(t, err)

	require.False(t, c.Refresh(ctx, s.URL+"/data.csv", dest, time.Hour))

	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(dest, old, old))
	body.Store("new")

	require.True(t, c.Refresh(ctx, s.URL+"/data.csv", dest, time.Hour))
	cancel()
	c.Wait()

	content, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, "new", string(content))
	require.EqualValues(t, 2, s.hits.Load())

	require.False(t, c.Refresh(context.Background(), s.URL+"/missing.csv", filepath.Join(t.TempDir(), "nothing.csv"), 0))
}
