package millstone

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"

	"github.com/pkg/errors"
)

// Known SRS values
const (
	WGS84             = "+proj=longlat +ellps=WGS84 +datum=WGS84 +no_defs"
	SphericalMercator = "+proj=merc +a=6378137 +b=6378137 +lat_ts=0.0 +lon_0=0.0 +x_0=0.0 +y_0=0.0 +k=1.0 +units=m +nadgrids=@null +wktext +no_defs +over"
)

// Linker places a resolved file at its canonical location in a project.
type Linker interface {
	Link(ctx context.Context, src, dest string) error
	Mode() string
}

// Project is the root of a map project document.
type Project struct {
	SRS        string
	Stylesheet []Stylesheet
	Layer      []Layer
	Extra      map[string]json.RawMessage
}

// Stylesheet is either inline text, or a reference to a local or remote file
// still to be loaded.
type Stylesheet struct {
	ID   string
	Data string
	ref  string
}

// Inline creates an already loaded stylesheet
func Inline(id, data string) Stylesheet {
	return Stylesheet{ID: id, Data: data}
}

// Reference creates a stylesheet that will be loaded from the given uri
func Reference(uri string) Stylesheet {
	return Stylesheet{ref: uri}
}

// IsInline tells whether the stylesheet text is already present.
func (s Stylesheet) IsInline() bool {
	return s.ref == ""
}

// Ref returns the uri of a stylesheet reference, or "" for inline stylesheets.
func (s Stylesheet) Ref() string {
	return s.ref
}

// Layer is a single data layer of a project.
type Layer struct {
	Name       string
	SRS        string
	Datasource *Datasource
	Extra      map[string]json.RawMessage
}

// DisplayName is the layer name, or layer-<index> for unnamed layers.
func (l *Layer) DisplayName(index int) string {
	if l.Name != "" {
		return l.Name
	}
	return "layer-" + strconv.Itoa(index)
}

// Datasource points a layer at its data, and names the backend that reads it.
type Datasource struct {
	File         string                     `json:"file,omitempty"`
	Type         string                     `json:"type,omitempty"`
	TTL          int                        `json:"ttl,omitempty"`
	Table        string                     `json:"table,omitempty"`
	AttachDB     string                     `json:"attachdb,omitempty"`
	Layer        string                     `json:"layer,omitempty"`
	LayerByIndex *int                       `json:"layer_by_index,omitempty"`
	Extra        map[string]json.RawMessage `json:"-"`
}

// DeepCopy returns a copy of the project sharing no mutable state with the original.
func (p *Project) DeepCopy() *Project {
	if p == nil {
		return nil
	}

	c := &Project{
		SRS:   p.SRS,
		Extra: copyExtra(p.Extra),
	}

	if p.Stylesheet != nil {
		c.Stylesheet = make([]Stylesheet, len(p.Stylesheet))
		copy(c.Stylesheet, p.Stylesheet)
	}

	if p.Layer != nil {
		c.Layer = make([]Layer, len(p.Layer))
		for i, l := range p.Layer {
			c.Layer[i] = Layer{
				Name:  l.Name,
				SRS:   l.SRS,
				Extra: copyExtra(l.Extra),
			}
			if l.Datasource != nil {
				ds := *l.Datasource
				ds.Extra = copyExtra(l.Datasource.Extra)
				if l.Datasource.LayerByIndex != nil {
					idx := *l.Datasource.LayerByIndex
					ds.LayerByIndex = &idx
				}
				c.Layer[i].Datasource = &ds
			}
		}
	}

	return c
}

func copyExtra(extra map[string]json.RawMessage) map[string]json.RawMessage {
	if extra == nil {
		return nil
	}
	c := make(map[string]json.RawMessage, len(extra))
	for k, v := range extra {
		c[k] = append(json.RawMessage(nil), v...)
	}
	return c
}

// MarshalJSON writes the project in MML form.
func (p Project) MarshalJSON() ([]byte, error) {
	return marshalWithExtra(struct {
		SRS        string       `json:"srs,omitempty"`
		Stylesheet []Stylesheet `json:"Stylesheet"`
		Layer      []Layer      `json:"Layer"`
	}{p.SRS, nonNilStyles(p.Stylesheet), nonNilLayers(p.Layer)}, p.Extra)
}

// UnmarshalJSON reads a project in MML form.
func (p *Project) UnmarshalJSON(data []byte) error {
	var known struct {
		SRS        string       `json:"srs"`
		Stylesheet []Stylesheet `json:"Stylesheet"`
		Layer      []Layer      `json:"Layer"`
	}
	extra, err := unmarshalWithExtra(data, &known, "srs", "Stylesheet", "Layer")
	if err != nil {
		return errors.Wrap(err, "could not decode project")
	}
	*p = Project{
		SRS:        known.SRS,
		Stylesheet: known.Stylesheet,
		Layer:      known.Layer,
		Extra:      extra,
	}
	return nil
}

// MarshalJSON writes a reference as a plain string, and inline stylesheets as {id, data}.
func (s Stylesheet) MarshalJSON() ([]byte, error) {
	if !s.IsInline() {
		return json.Marshal(s.ref)
	}
	return json.Marshal(struct {
		ID   string `json:"id"`
		Data string `json:"data"`
	}{s.ID, s.Data})
}

// UnmarshalJSON accepts either a uri string or an {id, data} object.
func (s *Stylesheet) UnmarshalJSON(data []byte) error {
	var ref string
	if err := json.Unmarshal(data, &ref); err == nil {
		*s = Reference(ref)
		return nil
	}

	var inline struct {
		ID   string `json:"id"`
		Data string `json:"data"`
	}
	if err := json.Unmarshal(data, &inline); err != nil {
		return errors.Wrap(err, "stylesheet must be a string or an {id, data} object")
	}
	*s = Inline(inline.ID, inline.Data)
	return nil
}

// MarshalJSON writes the layer, including any members this package does not model.
func (l Layer) MarshalJSON() ([]byte, error) {
	return marshalWithExtra(struct {
		Name       string      `json:"name,omitempty"`
		Datasource *Datasource `json:"Datasource,omitempty"`
		SRS        string      `json:"srs,omitempty"`
	}{l.Name, l.Datasource, l.SRS}, l.Extra)
}

// UnmarshalJSON reads a layer, keeping unknown members in Extra.
func (l *Layer) UnmarshalJSON(data []byte) error {
	var known struct {
		Name       string      `json:"name"`
		Datasource *Datasource `json:"Datasource"`
		SRS        string      `json:"srs"`
	}
	extra, err := unmarshalWithExtra(data, &known, "name", "Datasource", "srs")
	if err != nil {
		return errors.Wrap(err, "could not decode layer")
	}
	*l = Layer{
		Name:       known.Name,
		SRS:        known.SRS,
		Datasource: known.Datasource,
		Extra:      extra,
	}
	return nil
}

type datasourceFields Datasource

// MarshalJSON writes the datasource, including backend-specific members this
// package does not model.
func (d Datasource) MarshalJSON() ([]byte, error) {
	return marshalWithExtra(datasourceFields(d), d.Extra)
}

// UnmarshalJSON reads a datasource, keeping unknown members in Extra.
func (d *Datasource) UnmarshalJSON(data []byte) error {
	var known datasourceFields
	extra, err := unmarshalWithExtra(data, &known,
		"file", "type", "ttl", "table", "attachdb", "layer", "layer_by_index")
	if err != nil {
		return errors.Wrap(err, "could not decode datasource")
	}
	*d = Datasource(known)
	d.Extra = extra
	return nil
}

func marshalWithExtra(v interface{}, extra map[string]json.RawMessage) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil || len(extra) == 0 {
		return data, err
	}

	merged := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &merged); err != nil {
		return nil, err
	}
	for k, v := range extra {
		if _, ok := merged[k]; !ok {
			merged[k] = v
		}
	}

	// encoding/json sorts map keys, keeping output stable across runs
	return json.Marshal(merged)
}

func unmarshalWithExtra(data []byte, v interface{}, known ...string) (map[string]json.RawMessage, error) {
	if err := json.Unmarshal(data, v); err != nil {
		return nil, err
	}

	all := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}

	sort.Strings(known)
	var extra map[string]json.RawMessage
	for k, raw := range all {
		if i := sort.SearchStrings(known, k); i < len(known) && known[i] == k {
			continue
		}
		if extra == nil {
			extra = map[string]json.RawMessage{}
		}
		extra[k] = raw
	}
	return extra, nil
}

func nonNilStyles(s []Stylesheet) []Stylesheet {
	if s == nil {
		return []Stylesheet{}
	}
	return s
}

func nonNilLayers(l []Layer) []Layer {
	if l == nil {
		return []Layer{}
	}
	return l
}
