// Package download fetches remote datasources into the cache.
//
// A Coordinator makes sure that any (url, destination) pair is transferred at
// most once at a time: concurrent requests for the same pair wait on the one
// transfer in flight and share its outcome.  Payloads already present and
// healthy at their destination are not fetched again.
package download

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/birkland/millstone"
	"github.com/birkland/millstone/archive"
	"github.com/birkland/millstone/detect"
	"github.com/birkland/millstone/drivers/fs"
	"github.com/birkland/millstone/metadata"
	"github.com/pkg/errors"
	slogcontext "github.com/veqryn/slog-context"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
)

// DefaultWorkers is the default number of requests in flight
const DefaultWorkers = 5

// TempSuffix is appended to the destination of a payload while it is transferred
const TempSuffix = ".download"

// Config configures a Coordinator
type Config struct {
	// Workers bounds the number of requests awaiting response headers.  A slot
	// is released once the body starts streaming, so it does not bound the
	// number of bodies being transferred.
	//
	// A server that never responds holds its slot for as long as the Client
	// lets it, so a Client without a timeout may exhaust all slots.
	Workers int

	// Client performs requests, http.DefaultClient if nil
	Client *http.Client

	// UserAgent header value, if any
	UserAgent string
}

// Coordinator downloads urls into the cache.
type Coordinator struct {
	client    *http.Client
	userAgent string
	slots     *semaphore.Weighted
	group     singleflight.Group
	fetched   atomic.Int64
	refreshes sync.WaitGroup
}

// New creates a Coordinator
func New(cfg Config) *Coordinator {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.Client == nil {
		cfg.Client = http.DefaultClient
	}

	return &Coordinator{
		client:    cfg.Client,
		userAgent: cfg.UserAgent,
		slots:     semaphore.NewWeighted(int64(cfg.Workers)),
	}
}

// Fetched is the number of transfers performed so far
func (c *Coordinator) Fetched() int64 {
	return c.fetched.Load()
}

// Fetch makes sure the content of location is present at dest, and returns the
// path of the payload.  That is dest itself unless dest has no extension and
// one could be inferred from the response, in which case the payload is
// renamed to carry it.
func (c *Coordinator) Fetch(ctx context.Context, location, dest string) (string, error) {
	key, err := Key(location, dest)
	if err != nil {
		return "", err
	}

	v, err, shared := c.group.Do(key, func() (interface{}, error) {
		if p, ok := cached(dest); ok {
			slogcontext.FromCtx(ctx).Debug("using cached payload", "url", location, "path", p)
			return p, nil
		}
		return c.download(ctx, location, dest)
	})
	if shared {
		slogcontext.FromCtx(ctx).Debug("joined download in flight", "url", location, "dest", dest)
	}
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Refresh re-fetches the content of location in the background if the payload
// at dest is older than ttl, and tells whether it did so.  The outcome of the
// refresh is only logged.
func (c *Coordinator) Refresh(ctx context.Context, location, dest string, ttl time.Duration) bool {
	p, ok := cached(dest)
	if !ok {
		return false
	}

	info, err := os.Stat(p)
	if err != nil || time.Since(info.ModTime()) <= ttl {
		return false
	}

	key, err := Key(location, dest)
	if err != nil {
		return false
	}

	ctx = context.WithoutCancel(ctx)
	logger := slogcontext.FromCtx(ctx).With("url", location, "dest", dest)
	logger.Info("cached payload expired, refreshing", "age", time.Since(info.ModTime()).Round(time.Second))

	c.refreshes.Add(1)
	go func() {
		defer c.refreshes.Done()
		_, err, _ := c.group.Do(key, func() (interface{}, error) {
			return c.download(ctx, location, dest)
		})
		if err != nil {
			logger.Warn("refresh failed", "error", err)
		}
	}()
	return true
}

// Wait blocks until background refreshes have finished.
func (c *Coordinator) Wait() {
	c.refreshes.Wait()
}

// Key is the deduplication key of a transfer.  Equivalent encodings of a url
// share a key.
func Key(location, dest string) (string, error) {
	u, err := url.Parse(location)
	if err != nil || u.Scheme == "" {
		return "", millstone.NewError(millstone.InvalidURL, "", location, err)
	}
	return dest + u.String(), nil
}

func (c *Coordinator) download(ctx context.Context, location, dest string) (string, error) {
	logger := slogcontext.FromCtx(ctx).With("url", location, "dest", dest)

	if err := fs.MkdirAll(filepath.Dir(dest)); err != nil {
		return "", millstone.NewError(millstone.Filesystem, "", dest, err)
	}

	start := time.Now()
	rec, err := c.transfer(ctx, location, dest)
	if err != nil {
		return "", err
	}
	logger.Debug("downloaded", "elapsed", time.Since(start))

	if err := metadata.Write(dest, rec); err != nil {
		return "", millstone.NewError(millstone.Filesystem, "", dest, err)
	}

	if filepath.Ext(dest) != "" {
		return dest, nil
	}

	ext := detect.InferExtension(rec)
	if ext == "" {
		logger.Debug("could not infer an extension for payload")
		return dest, nil
	}

	if err := os.Rename(dest, dest+ext); err != nil {
		return "", millstone.NewError(millstone.Filesystem, "", dest, err)
	}
	return dest + ext, nil
}

func (c *Coordinator) transfer(ctx context.Context, location, dest string) (*metadata.Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, millstone.NewError(millstone.InvalidURL, "", location, err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	if err := c.slots.Acquire(ctx, 1); err != nil {
		return nil, millstone.NewError(millstone.Download, "", location, err)
	}
	resp, err := c.client.Do(req)
	c.slots.Release(1)

	if err != nil {
		return nil, millstone.NewError(millstone.Download, "", location, err)
	}
	defer resp.Body.Close()
	c.fetched.Add(1)

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, millstone.NewError(millstone.Download, "", location,
			errors.Errorf("server returned %s", resp.Status))
	}

	w, err := fs.AtomicWriteAs(dest, dest+TempSuffix)
	if err != nil {
		return nil, millstone.NewError(millstone.Filesystem, "", dest, err)
	}
	defer w.Rollback()

	if _, err := io.Copy(w, resp.Body); err != nil {
		return nil, millstone.NewError(millstone.Download, "", location,
			errors.Wrap(err, "transfer interrupted"))
	}
	if err := w.Close(); err != nil {
		return nil, millstone.NewError(millstone.Filesystem, "", dest, err)
	}

	return &metadata.Record{
		URL:     resp.Request.URL.String(),
		Headers: headers(resp.Header),
	}, nil
}

func headers(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[strings.ToLower(k)] = strings.Join(v, ", ")
	}
	return out
}

// cached finds a healthy payload previously downloaded to dest.
func cached(dest string) (string, bool) {
	if filepath.Ext(dest) == "" {
		rec, _ := metadata.Read(dest)
		if ext := detect.InferExtension(rec); ext != "" && healthy(dest+ext) {
			return dest + ext, true
		}
	}

	if healthy(dest) {
		return dest, true
	}
	return "", false
}

// healthy payloads are non-empty files, and zip files must open.
func healthy(p string) bool {
	info, err := os.Stat(p)
	if err != nil || !info.Mode().IsRegular() || info.Size() == 0 {
		return false
	}

	if strings.EqualFold(filepath.Ext(p), ".zip") {
		return archive.Healthy(p) == nil
	}
	return true
}
