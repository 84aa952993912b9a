// Package detect maps datasource files to the backend that reads them.
//
// Detection is one table from file extension to backend type plus a short list
// of overrides applied after the lookup: a .vrt holding vector layers is read by
// ogr rather than gdal, and a few formats force their only valid SRS.  When the
// file has no usable extension it is inferred from the transfer metadata
// recorded when the file was downloaded.
package detect

import (
	"encoding/xml"
	"os"
	"path/filepath"
	"strings"

	"github.com/birkland/millstone"
	"github.com/birkland/millstone/metadata"
	"github.com/gabriel-vasile/mimetype"
	"github.com/pkg/errors"
)

// Backend types
const (
	Shape  = "shape"
	CSV    = "csv"
	GDAL   = "gdal"
	OGR    = "ogr"
	SQLite = "sqlite"
)

var table = map[string]string{
	".shp": Shape,

	".csv": CSV,
	".tsv": CSV,
	".txt": CSV,

	".geotiff": GDAL,
	".geotif":  GDAL,
	".tif":     GDAL,
	".tiff":    GDAL,
	".vrt":     GDAL,

	".geojson":  OGR,
	".json":     OGR,
	".topojson": OGR,
	".kml":      OGR,
	".gml":      OGR,
	".rss":      OGR,
	".gpx":      OGR,
	".osm":      OGR,

	".db":         SQLite,
	".sqlite":     SQLite,
	".sqlite3":    SQLite,
	".spatialite": SQLite,
}

// forced SRS for formats that only have one
var forced = map[string]string{
	".csv": millstone.WGS84,
	".tsv": millstone.WGS84,
	".txt": millstone.WGS84,
	".kml": millstone.WGS84,
	".rss": millstone.WGS84,
}

// Extensions of non-datasource assets a stylesheet may reference
var markers = map[string]bool{
	".svg":  true,
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".webp": true,
}

// Result describes how a datasource file is read.
type Result struct {
	Ext  string
	Type string

	// LayerByIndex selects the first sub-layer of multi-layer containers
	LayerByIndex *int

	// SRS is the only valid SRS for the format, if it has one.
	SRS string

	// DeclaredSRS is projection text found inside the file, still unparsed.
	DeclaredSRS string
}

// Known tells whether the extension belongs to a datasource type.
func Known(ext string) bool {
	_, ok := table[strings.ToLower(ext)]
	return ok
}

// Recognized tells whether an inferred extension may be trusted: it names a
// datasource, an archive, or a stylesheet asset.
func Recognized(ext string) bool {
	ext = strings.ToLower(ext)
	return Known(ext) || ext == ".zip" || markers[ext]
}

// Detect determines the backend for a file.  meta is the transfer record of
// the file, if it was downloaded, and may be nil.
func Detect(file string, meta *metadata.Record) (Result, error) {
	ext := Extension(file, meta)
	typ, ok := table[ext]
	if !ok {
		return Result{Ext: ext}, millstone.NewError(millstone.UnknownDatasourceType, "", file,
			errors.Errorf("unrecognized extension %q", ext))
	}

	result := Result{
		Ext:  ext,
		Type: typ,
		SRS:  forced[ext],
	}

	switch {
	case ext == ".vrt":
		layers, err := vrtLayers(file)
		if err != nil {
			return result, err
		}
		if len(layers) > 0 {
			result.Type = OGR
			result.DeclaredSRS = strings.TrimSpace(layers[0].SRS)
		}
	case typ == OGR:
		first := 0
		result.LayerByIndex = &first
	}

	return result, nil
}

// Extension determines the datasource extension of a file: its own if known,
// otherwise one inferred from its transfer record.  Files with no extension at
// all are sniffed as a last resort.  An unknown extension is returned as is.
func Extension(file string, meta *metadata.Record) string {
	ext := strings.ToLower(filepath.Ext(file))
	if Known(ext) {
		return ext
	}

	if inferred := InferExtension(meta); Known(inferred) {
		return inferred
	}

	if ext != "" {
		return ext
	}

	if sniffed := Sniff(file); Known(sniffed) {
		return sniffed
	}
	return ""
}

type vrtLayer struct {
	SRS string `xml:"LayerSRS"`
}

type vrtDataset struct {
	Layers []vrtLayer `xml:"OGRVRTLayer"`
}

func vrtLayers(file string) ([]vrtLayer, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read %s", file)
	}

	var ds vrtDataset
	if err := xml.Unmarshal(data, &ds); err != nil {
		// Not something we understand, let gdal have a go at it
		return nil, nil
	}
	return ds.Layers, nil
}

// plain text sniffs as such whatever it holds
var unsniffable = map[string]bool{
	".txt": true,
	".csv": true,
	".tsv": true,
}

// Sniff guesses the extension of a file from its content.  Plain text formats
// are never reported, any prose would pass for them.
func Sniff(file string) string {
	m, err := mimetype.DetectFile(file)
	if err != nil {
		return ""
	}

	ext := strings.ToLower(m.Extension())
	if unsniffable[ext] {
		return ""
	}
	return ext
}
