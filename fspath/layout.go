package fspath

import (
	"path/filepath"
	"strings"
)

// LayersDir is the directory within a project that holds linked layer files
const LayersDir = "layers"

// Generator generates the canonical project location of a layer file.  The
// default, Canonical, may be swapped for e.g. a flat or pairtree layout.
type Generator interface {
	Generate(base, name, file string, dirShaped bool) string
}

// GeneratorFunc is a function that can be used to satisfy the Generator interface
type GeneratorFunc func(base, name, file string, dirShaped bool) string

// Generate a layer path
func (g GeneratorFunc) Generate(base, name, file string, dirShaped bool) string {
	return g(base, name, file, dirShaped)
}

// Canonical places directory-shaped datasources (shapefiles and their sibling
// files) at base/layers/<name>/<file basename>, and everything else at
// base/layers/<name><ext>.
var Canonical Generator = GeneratorFunc(LayerPath)

// LayerPath computes the canonical location of a layer file.
func LayerPath(base, name, file string, dirShaped bool) string {
	if dirShaped {
		return filepath.Join(base, LayersDir, name, filepath.Base(file))
	}
	return filepath.Join(base, LayersDir, name+filepath.Ext(file))
}

// DirShaped tells whether a file needs its siblings alongside, i.e. whether it
// is a shapefile or an archive that unpacks into one.
func DirShaped(file string) bool {
	switch strings.ToLower(filepath.Ext(file)) {
	case ".shp", ".zip":
		return true
	}
	return false
}

// Stem returns the file name without directory or extension.
func Stem(file string) string {
	base := filepath.Base(file)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
