package metadata

import (
	"crypto/md5"
	"encoding/hex"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/birkland/millstone"
)

// CachePath computes the location of a url's content under the cache root.
//
// The name is the first 8 hex digits of the md5 of the url, a dash, and the
// stem of the url path.  Shapefiles, archives, and extensionless files get a
// directory of that name (so sibling files can live alongside); anything else is
// a flat file:
//
//	root/1234abcd-stations/1234abcd-stations.zip
//	root/1234abcd-polygons.json
func CachePath(root, location string) (string, error) {
	u, err := url.Parse(location)
	if err != nil || u.Scheme == "" {
		return "", millstone.NewError(millstone.InvalidURL, "", location, err)
	}

	sum := md5.Sum([]byte(location))
	p := u.EscapedPath()
	base := path.Base(p)
	if base == "." || base == "/" {
		base = ""
	}
	ext := path.Ext(base)
	name := hex.EncodeToString(sum[:])[:8] + "-" + strings.TrimSuffix(base, ext)

	switch strings.ToLower(ext) {
	case ".shp", ".zip", "":
		return filepath.Join(root, name, name+ext), nil
	default:
		return filepath.Join(root, name+ext), nil
	}
}

// EntryPath is the top level cache entry containing a url's content: the
// directory for directory-shaped entries, otherwise the file itself.
func EntryPath(root, location string) (string, error) {
	p, err := CachePath(root, location)
	if err != nil {
		return "", err
	}
	if filepath.Dir(p) != filepath.Clean(root) {
		return filepath.Dir(p), nil
	}
	return p, nil
}

// MetaPath is the location of the sidecar record describing file.
func MetaPath(file string) string {
	return filepath.Join(filepath.Dir(file), "."+filepath.Base(file))
}
