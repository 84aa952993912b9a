package millstone_test

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/birkland/millstone"
	"github.com/go-test/deep"
	"github.com/pkg/errors"
)

const mml = `{
	"srs": "+init=epsg:3857",
	"name": "world",
	"Stylesheet": [
		"style.mss",
		{"id": "inline.mss", "data": "Map { background-color: #fff }"}
	],
	"Layer": [
		{
			"name": "countries",
			"class": "land",
			"Datasource": {
				"file": "http://example.com/countries.zip",
				"ttl": 3600,
				"encoding": "latin1"
			}
		},
		{
			"Datasource": {"file": "points.csv", "layer_by_index": 0}
		}
	]
}`

func TestProjectRoundTrip(t *testing.T) {
	var p millstone.Project
	if err := json.Unmarshal([]byte(mml), &p); err != nil {
		t.Fatal(err)
	}

	if p.Stylesheet[0].IsInline() || p.Stylesheet[0].Ref() != "style.mss" {
		t.Errorf("expected a stylesheet reference, got %+v", p.Stylesheet[0])
	}
	if !p.Stylesheet[1].IsInline() || p.Stylesheet[1].ID != "inline.mss" {
		t.Errorf("expected an inline stylesheet, got %+v", p.Stylesheet[1])
	}
	if p.Layer[0].Datasource.TTL != 3600 {
		t.Errorf("ttl not decoded")
	}

	out, err := json.Marshal(p)
	if err != nil {
		t.Fatal(err)
	}

	var want, got map[string]interface{}
	_ = json.Unmarshal([]byte(mml), &want)
	_ = json.Unmarshal(out, &got)

	if diff := deep.Equal(want, got); diff != nil {
		t.Errorf("round trip changed the document: %s", diff)
	}
}

func TestDeepCopy(t *testing.T) {
	var p millstone.Project
	if err := json.Unmarshal([]byte(mml), &p); err != nil {
		t.Fatal(err)
	}

	c := p.DeepCopy()
	if diff := deep.Equal(&p, c); diff != nil {
		t.Fatalf("copy differs from original: %s", diff)
	}

	c.Layer[0].Datasource.File = "/elsewhere"
	*c.Layer[1].Datasource.LayerByIndex = 7
	c.Stylesheet[0] = millstone.Inline("style.mss", "#x {}")
	c.Extra["name"][1] = 'W'

	if p.Layer[0].Datasource.File != "http://example.com/countries.zip" {
		t.Errorf("datasource shared with copy")
	}
	if *p.Layer[1].Datasource.LayerByIndex != 0 {
		t.Errorf("layer_by_index shared with copy")
	}
	if p.Stylesheet[0].IsInline() {
		t.Errorf("stylesheets shared with copy")
	}
	if string(p.Extra["name"]) != `"world"` {
		t.Errorf("extra members shared with copy")
	}
}

func TestDisplayName(t *testing.T) {
	cases := []struct {
		layer    millstone.Layer
		index    int
		expected string
	}{
		{millstone.Layer{Name: "roads"}, 3, "roads"},
		{millstone.Layer{}, 3, "layer-3"},
		{millstone.Layer{}, 0, "layer-0"},
	}

	for _, c := range cases {
		c := c
		t.Run(c.expected, func(t *testing.T) {
			if name := c.layer.DisplayName(c.index); name != c.expected {
				t.Errorf("expected %s, got %s", c.expected, name)
			}
		})
	}
}

func TestIsKind(t *testing.T) {
	base := millstone.NewError(millstone.MissingSRS, "", "/data/foo.shp", nil)
	wrapped := errors.Wrapf(base, "autodetect")
	std := fmt.Errorf("stage failed: %w", wrapped)

	for _, err := range []error{base, wrapped, std} {
		if !millstone.IsKind(err, millstone.MissingSRS) {
			t.Errorf("%v should be a MissingSRS error", err)
		}
		if millstone.IsKind(err, millstone.Download) {
			t.Errorf("%v should not be a Download error", err)
		}
	}

	nested := millstone.NewError(millstone.Download, "", "http://x/y.zip",
		millstone.NewError(millstone.EmptyArchive, "", "/cache/y.zip", nil))
	if !millstone.IsKind(nested, millstone.EmptyArchive) {
		t.Errorf("nested kinds should be found")
	}

	if millstone.IsKind(errors.New("plain"), millstone.Unknown) {
		t.Errorf("plain errors have no kind")
	}
}

func TestWithLayer(t *testing.T) {
	shared := millstone.NewError(millstone.Download, "", "http://x/y.csv", errors.New("404"))

	err := millstone.WithLayer(shared, "points")
	if shared.Layer != "" {
		t.Errorf("WithLayer must not modify the original error")
	}

	expected := `download failed for layer "points" at http://x/y.csv: 404`
	if err.Error() != expected {
		t.Errorf("expected %q, got %q", expected, err.Error())
	}

	if again := millstone.WithLayer(err, "other"); again != err {
		t.Errorf("errors already naming a layer should be returned unchanged")
	}

	plain := millstone.WithLayer(errors.New("boom"), "points")
	if plain.Error() != `layer "points": boom` {
		t.Errorf("unexpected message %q", plain.Error())
	}
}

func TestKindString(t *testing.T) {
	for _, k := range []millstone.Kind{millstone.Unknown, millstone.InvalidURL, millstone.MissingSRS, 42} {
		k := k
		t.Run(k.String(), func(t *testing.T) {
			if k.String() == "" {
				t.Errorf("kind %d has no name", int(k))
			}
		})
	}
}
