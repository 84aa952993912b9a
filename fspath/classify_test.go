package fspath_test

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/birkland/millstone/fspath"
)

func TestIsRelative(t *testing.T) {
	cases := []struct {
		path     string
		platform fspath.Platform
		relative bool
	}{
		{`C:\some\path`, fspath.Windows, false},
		{`c:/some/path`, fspath.Windows, false},
		{`C:\some\path`, fspath.POSIX, true},
		{`\some\path`, fspath.Windows, false},
		{`\some\path`, fspath.POSIX, true},
		{"/some/path", fspath.POSIX, false},
		{"/some/path", fspath.Windows, false},
		{"some/path", fspath.POSIX, true},
		{"some/path", fspath.Windows, true},
		{"1:/path", fspath.Windows, true},
	}

	for _, c := range cases {
		c := c
		t.Run(fmt.Sprintf("%s-%d", c.path, c.platform), func(t *testing.T) {
			if rel := fspath.IsRelative(c.path, c.platform); rel != c.relative {
				t.Errorf("expected relative=%t for %s", c.relative, c.path)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	base := filepath.Join("/", "project")

	cases := []struct {
		ref      string
		kind     fspath.Kind
		expected string
	}{
		{"http://example.com/a.zip", fspath.Remote, "http://example.com/a.zip"},
		{"HTTPS://example.com/a.csv?x=1", fspath.Remote, "HTTPS://example.com/a.csv?x=1"},
		{"ftp://example.com/a.csv", fspath.RelativeLocal, filepath.Join(base, "ftp:/example.com/a.csv")},
		{"/data/a.shp", fspath.AbsoluteLocal, "/data/a.shp"},
		{"data/a.shp", fspath.RelativeLocal, filepath.Join(base, "data/a.shp")},
		{"a.csv", fspath.RelativeLocal, filepath.Join(base, "a.csv")},
	}

	for _, c := range cases {
		c := c
		t.Run(c.ref, func(t *testing.T) {
			ref := fspath.Classify(c.ref, base, fspath.POSIX)
			if ref.Kind != c.kind {
				t.Errorf("expected %s, got %s", c.kind, ref.Kind)
			}
			if ref.Path != c.expected {
				t.Errorf("expected path %s, got %s", c.expected, ref.Path)
			}
			if (ref.URL != nil) != (c.kind == fspath.Remote) {
				t.Errorf("url should be set for remote references only")
			}
		})
	}
}

func TestLayerPath(t *testing.T) {
	base := "/project"
	cases := []struct {
		name      string
		file      string
		dirShaped bool
		expected  string
	}{
		{"stations", "/cache/87c0c757-stations/87c0c757-stations.shp", true, "/project/layers/stations/87c0c757-stations.shp"},
		{"polygons", "/cache/5c505ff4-polygons.json", false, "/project/layers/polygons.json"},
		{"upper", "/data/test1.CSV", false, "/project/layers/upper.CSV"},
	}

	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			got := fspath.Canonical.Generate(base, c.name, c.file, c.dirShaped)
			if got != filepath.FromSlash(c.expected) {
				t.Errorf("expected %s, got %s", c.expected, got)
			}
		})
	}
}

func TestDirShaped(t *testing.T) {
	for file, expected := range map[string]bool{
		"a.shp": true,
		"a.SHP": true,
		"a.zip": true,
		"a.csv": false,
		"a":     false,
	} {
		if fspath.DirShaped(file) != expected {
			t.Errorf("DirShaped(%s) should be %t", file, expected)
		}
	}
}

// A custom layout that keeps every layer file flat, regardless of shape
func ExampleGeneratorFunc() {
	var flat fspath.Generator = fspath.GeneratorFunc(func(base, name, file string, _ bool) string {
		return filepath.Join(base, name+filepath.Ext(file))
	})
	fmt.Println(filepath.ToSlash(flat.Generate("/project", "roads", "/cache/roads.shp", true)))
	// Output: /project/roads.shp
}
