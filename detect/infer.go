package detect

import (
	"mime"
	"net/url"
	"path"
	"strings"

	"github.com/birkland/millstone/metadata"
	"github.com/gabriel-vasile/mimetype"
)

// MIME types whose usual extension differs from what mimetype reports, or that
// it does not know
var mimeExtensions = map[string]string{
	"text/csv":                             ".csv",
	"text/comma-separated-values":          ".csv",
	"application/csv":                      ".csv",
	"application/json":                     ".json",
	"application/geo+json":                 ".geojson",
	"application/vnd.geo+json":             ".geojson",
	"application/vnd.google-earth.kml+xml": ".kml",
	"application/zip":                      ".zip",
	"application/x-zip-compressed":         ".zip",
	"application/gml+xml":                  ".gml",
	"application/rss+xml":                  ".rss",
	"application/gpx+xml":                  ".gpx",
	"image/jpeg":                           ".jpeg",
}

// InferExtension recovers the extension of a downloaded file from its transfer
// record: the path of the final request URL first, then the content-disposition
// filename, then the content type.  Only recognized extensions are returned.
func InferExtension(meta *metadata.Record) string {
	if meta == nil {
		return ""
	}

	if u, err := url.Parse(meta.URL); err == nil {
		if ext := strings.ToLower(path.Ext(u.Path)); Recognized(ext) {
			return ext
		}
	}

	if ext := GuessExtension(meta.Headers); Recognized(ext) {
		return ext
	}
	return ""
}

// GuessExtension guesses a file extension from response headers, which are
// expected to have lower cased names.
func GuessExtension(headers map[string]string) string {
	if cd := headers["content-disposition"]; cd != "" {
		if ext := dispositionExtension(cd); ext != "" {
			return ext
		}
	}

	ct := headers["content-type"]
	if ct == "" {
		return ""
	}

	// GML is served as generic xml with a subtype parameter
	if strings.Contains(ct, "subtype=gml") {
		return ".gml"
	}

	mediatype, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return ""
	}

	if ext, ok := mimeExtensions[mediatype]; ok {
		return ext
	}

	if m := mimetype.Lookup(mediatype); m != nil {
		return strings.ToLower(m.Extension())
	}
	return ""
}

func dispositionExtension(cd string) string {
	_, params, err := mime.ParseMediaType(cd)
	if err == nil && params["filename"] != "" {
		return strings.ToLower(path.Ext(params["filename"]))
	}

	// Servers are sloppy, fall back to picking out the filename by hand
	i := strings.Index(cd, "filename=")
	if i < 0 {
		return ""
	}
	name := cd[i+len("filename="):]
	if j := strings.IndexByte(name, ';'); j >= 0 {
		name = name[:j]
	}
	return strings.ToLower(path.Ext(strings.Trim(strings.TrimSpace(name), `"'`)))
}
