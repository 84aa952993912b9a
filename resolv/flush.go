package resolv

import (
	"context"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/birkland/millstone"
	"github.com/birkland/millstone/detect"
	"github.com/birkland/millstone/drivers/fs"
	"github.com/birkland/millstone/fspath"
	"github.com/birkland/millstone/metadata"
	"github.com/karrick/godirwalk"
	"github.com/pkg/errors"
	slogcontext "github.com/veqryn/slog-context"
)

// FlushOptions identify the layer to flush.
type FlushOptions struct {
	Base  string // Project directory
	Cache string // Cache root directory
	Layer string // Layer name
	URL   string // Remote source of the layer
}

// Flush removes the project link of a remote layer, and the cache entry of its
// source.  Regular files in the project are left alone, they belong to projects
// resolved without linking.  Anything already gone is not an error.
func Flush(ctx context.Context, opts FlushOptions) error {
	switch {
	case opts.Base == "":
		return errors.New("base directory is required")
	case opts.Cache == "":
		return errors.New("cache directory is required")
	case opts.Layer == "":
		return errors.New("layer is required")
	case opts.URL == "":
		return errors.New("url is required")
	}

	u, err := url.Parse(opts.URL)
	if err != nil || u.Scheme == "" {
		return millstone.NewError(millstone.InvalidURL, opts.Layer, opts.URL, err)
	}

	logger := slogcontext.FromCtx(ctx).With("layer", opts.Layer, "url", opts.URL)

	ext := path.Ext(u.Path)
	if ext == "" {
		ext, err = downloadedExtension(opts.Cache, opts.URL)
		if err != nil {
			return err
		}
	}

	for _, p := range layerPaths(opts.Base, opts.Layer, ext) {
		if err := unlink(p); err != nil {
			return millstone.NewError(millstone.Filesystem, opts.Layer, p, err)
		}
	}

	entry, err := metadata.EntryPath(opts.Cache, opts.URL)
	if err != nil {
		return err
	}

	for _, p := range []string{entry, metadata.MetaPath(entry)} {
		if err := fs.Remove(p); err != nil {
			return millstone.NewError(millstone.Filesystem, opts.Layer, p, err)
		}
	}

	logger.Debug("flushed layer", "entry", entry)
	return nil
}

// downloadedExtension is the extension an extensionless url's payload was
// given when downloaded, as recorded in its sidecar.  Empty if unknown, an
// unreadable sidecar is about to be flushed anyway.
func downloadedExtension(cache, location string) (string, error) {
	dest, err := metadata.CachePath(cache, location)
	if err != nil {
		return "", err
	}

	rec, _ := metadata.Read(dest)
	return detect.InferExtension(rec), nil
}

// layerPaths are the places a layer from a url with the given extension may
// have been linked to.
func layerPaths(base, layer, ext string) []string {
	dir := filepath.Join(base, fspath.LayersDir, layer)

	switch strings.ToLower(ext) {
	case ".zip", ".shp", "":
		return []string{dir}
	default:
		return []string{dir + ext}
	}
}

// unlink removes a symlink, or the symlinks in a directory along with the
// directory once it is empty.  Regular files are kept.
func unlink(p string) error {
	fi, err := os.Lstat(p)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	switch {
	case fi.Mode()&os.ModeSymlink != 0:
		return os.Remove(p)
	case !fi.IsDir():
		return nil
	}

	entries, err := godirwalk.ReadDirents(p, nil)
	if err != nil {
		return err
	}

	remaining := len(entries)
	for _, e := range entries {
		if !e.IsSymlink() {
			continue
		}
		if err := os.Remove(filepath.Join(p, e.Name())); err != nil && !os.IsNotExist(err) {
			return err
		}
		remaining--
	}

	if remaining == 0 {
		return os.Remove(p)
	}
	return nil
}
