// Package srs determines the spatial reference system of layers.
package srs

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/birkland/millstone"
	"github.com/birkland/millstone/detect"
	"github.com/pkg/errors"
)

// Resolver determines layer SRS values
type Resolver struct {
	parser Parser
}

// NewResolver creates a Resolver with the given projection parser.  If nil, the
// DefaultParser is used.
func NewResolver(p Parser) *Resolver {
	if p == nil {
		p = DefaultParser{}
	}
	return &Resolver{parser: p}
}

// Resolve determines the SRS of a layer, given how its datasource file is read
// and its explicitly configured SRS, if any.  In order of precedence:
//
// - The only valid SRS of the format, for those that have one
// - The explicit SRS
// - For GeoJSON and TopoJSON, the crs member, defaulting to WGS84
// - The layer SRS declared in a vector VRT
// - For shapefiles, the companion .prj file
//
// Failing all of these, the result is a MissingSRS error.
func (r *Resolver) Resolve(layer string, d detect.Result, file, explicit string) (string, error) {
	if d.SRS != "" {
		return d.SRS, nil
	}
	if explicit != "" {
		return explicit, nil
	}

	switch d.Ext {
	case ".geojson", ".json", ".topojson":
		return r.jsonSRS(layer, file)
	}

	if d.DeclaredSRS != "" {
		if s, err := r.parser.Parse(d.DeclaredSRS); err == nil {
			return s, nil
		}
	}

	if d.Type == detect.Shape {
		return r.prjSRS(layer, file)
	}

	return "", millstone.NewError(millstone.MissingSRS, layer, file, nil)
}

type crsMember struct {
	CRS *struct {
		Type       string `json:"type"`
		Properties struct {
			Name string `json:"name"`
		} `json:"properties"`
	} `json:"crs"`
}

func (r *Resolver) jsonSRS(layer, file string) (string, error) {
	f, err := os.Open(file)
	if err != nil {
		return "", millstone.NewError(millstone.Filesystem, layer, file, err)
	}
	defer f.Close()

	var doc crsMember
	if err := json.NewDecoder(f).Decode(&doc); err != nil {
		return "", millstone.NewError(millstone.JSONParse, layer, file, err)
	}

	if doc.CRS == nil {
		return millstone.WGS84, nil
	}

	s, err := r.parser.Parse(doc.CRS.Properties.Name)
	if err != nil {
		return "", millstone.NewError(millstone.MissingSRS, layer, file,
			errors.Wrap(err, "could not parse crs member"))
	}
	return s, nil
}

func (r *Resolver) prjSRS(layer, file string) (string, error) {
	prj := strings.TrimSuffix(file, filepath.Ext(file)) + ".prj"

	data, err := os.ReadFile(prj)
	if os.IsNotExist(err) {
		return "", millstone.NewError(millstone.MissingSRS, layer, file, nil)
	}
	if err != nil {
		return "", millstone.NewError(millstone.Filesystem, layer, prj, err)
	}

	if s, err := r.parser.Parse(string(data)); err == nil {
		return s, nil
	}

	s, err := r.parser.Parse(EsriPrefix + string(data))
	if err != nil {
		return "", millstone.NewError(millstone.MissingSRS, layer, file,
			errors.Wrapf(err, "could not parse %s", prj))
	}
	return s, nil
}

// legacy spherical mercator parameters, normalized
var legacy = map[string]string{
	"+a":      "6378137",
	"+b":      "6378137",
	"+lat_ts": "0.0",
	"+lon_0":  "0.0",
	"+proj":   "merc",
	"+units":  "m",
	"+x_0":    "0.0",
	"+y_0":    "0.0",
}

// FixSRS replaces definitions of spherical mercator written in the legacy
// parameter set with the canonical string.  Token order and 0 vs 0.0 do not
// matter; any other SRS is returned unchanged.
func FixSRS(s string) string {
	if s == "" {
		return s
	}

	normalized := make(map[string]string)
	tokens := strings.Fields(s)
	sort.Strings(tokens)
	for _, t := range tokens {
		i := strings.Index(t, "=")
		if i <= 0 {
			continue
		}
		key, val := t[:i], t[i+1:]
		if val == "0" {
			val = "0.0"
		}
		normalized[key] = val
	}

	for k, v := range legacy {
		if normalized[k] != v {
			return s
		}
	}
	return millstone.SphericalMercator
}
