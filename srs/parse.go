package srs

import (
	"regexp"
	"strings"

	"github.com/birkland/millstone"
	"github.com/pkg/errors"
)

// EsriPrefix marks projection text as using Esri naming conventions, as found in
// the .prj files of shapefiles
const EsriPrefix = "ESRI::"

// Parser turns projection text (proj4, CRS names, WKT) into a proj4 string.
type Parser interface {
	Parse(text string) (string, error)
}

// ParserFunc is a function that can be used to satisfy the Parser interface
type ParserFunc func(text string) (string, error)

// Parse projection text
func (f ParserFunc) Parse(text string) (string, error) {
	return f(text)
}

// DefaultParser understands proj4 strings, EPSG codes and URNs, and the WKT
// definitions of the common geographic and web mercator systems.  Anything else
// with an EPSG authority is passed on as an +init reference.
type DefaultParser struct{}

var (
	codePattern      = regexp.MustCompile(`(?i)^(?:urn:ogc:def:crs:)?epsg:(?:[0-9.]*:)?([0-9]+)$`)
	authorityPattern = regexp.MustCompile(`(?i)AUTHORITY\[\s*"EPSG"\s*,\s*"?([0-9]+)"?\s*\]`)
	rootPattern      = regexp.MustCompile(`^(GEOGCS|PROJCS)\[\s*"([^"]*)"`)
	esriUTMPattern   = regexp.MustCompile(`^WGS_1984_UTM_Zone_([0-9]{1,2})([NS])$`)
)

var byCode = map[string]string{
	"4326":   millstone.WGS84,
	"3857":   millstone.SphericalMercator,
	"3785":   millstone.SphericalMercator,
	"900913": millstone.SphericalMercator,
	"102100": millstone.SphericalMercator,
	"102113": millstone.SphericalMercator,
}

var crs84 = map[string]bool{
	"urn:ogc:def:crs:ogc:1.3:crs84": true,
	"urn:ogc:def:crs:ogc::crs84":    true,
	"crs:84":                        true,
}

// Parse projection text
func (DefaultParser) Parse(text string) (string, error) {
	text = strings.TrimSpace(text)
	esri := strings.HasPrefix(text, EsriPrefix)
	if esri {
		text = strings.TrimSpace(strings.TrimPrefix(text, EsriPrefix))
	}

	switch {
	case text == "":
		return "", errors.New("empty projection")
	case strings.HasPrefix(text, "+"):
		return proj4(text)
	case crs84[strings.ToLower(text)]:
		return millstone.WGS84, nil
	}

	if m := codePattern.FindStringSubmatch(text); m != nil {
		return fromCode(m[1]), nil
	}

	root := rootPattern.FindStringSubmatch(text)
	if root == nil {
		return "", errors.Errorf("unrecognized projection %.40q", text)
	}

	if esri {
		return esriWKT(root[1], root[2], text)
	}
	return ogcWKT(root[1], root[2], text)
}

func proj4(text string) (string, error) {
	if !strings.Contains(text, "+proj=") && !strings.Contains(text, "+init=") {
		return "", errors.Errorf("proj4 string without projection: %q", text)
	}
	return strings.Join(strings.Fields(text), " "), nil
}

func fromCode(code string) string {
	if s, ok := byCode[code]; ok {
		return s
	}
	return "+init=epsg:" + code
}

// OGC WKT carries authority codes; the root one comes last.
func ogcWKT(kind, name, text string) (string, error) {
	if all := authorityPattern.FindAllStringSubmatch(text, -1); len(all) > 0 {
		return fromCode(all[len(all)-1][1]), nil
	}

	switch {
	case kind == "GEOGCS" && (name == "WGS 84" || name == "WGS84"):
		return millstone.WGS84, nil
	case kind == "PROJCS" && strings.Contains(name, "Pseudo-Mercator"):
		return millstone.SphericalMercator, nil
	}
	return "", errors.Errorf("unrecognized %s %q", kind, name)
}

// Esri WKT has no authorities, only well known names.
func esriWKT(kind, name, text string) (string, error) {
	switch {
	case kind == "GEOGCS" && name == "GCS_WGS_1984":
		return millstone.WGS84, nil
	case kind == "PROJCS" && strings.HasPrefix(name, "WGS_1984_Web_Mercator"):
		return millstone.SphericalMercator, nil
	}

	if m := esriUTMPattern.FindStringSubmatch(name); m != nil {
		s := "+proj=utm +zone=" + strings.TrimLeft(m[1], "0")
		if m[2] == "S" {
			s += " +south"
		}
		return s + " +datum=WGS84 +units=m +no_defs", nil
	}
	return "", errors.Errorf("unrecognized Esri %s %q", kind, name)
}
