package metadata

import (
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/birkland/millstone/drivers/fs"
	"github.com/pkg/errors"
)

// Record is the content of a sidecar file
type Record struct {
	URL          string            `json:"url,omitempty"`
	Headers      map[string]string `json:"headers,omitempty"`
	UnzippedFile string            `json:"unzipped_file,omitempty"`
}

// Header returns the value of a response header, by case insensitive name.
func (r *Record) Header(name string) string {
	if r == nil {
		return ""
	}
	if v, ok := r.Headers[strings.ToLower(name)]; ok {
		return v
	}
	for k, v := range r.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// Parse parses a byte stream into a sidecar record
func Parse(r io.Reader, rec *Record) error {
	err := json.NewDecoder(r).Decode(rec)
	if err != nil {
		return errors.Wrap(err, "Could not decode json sidecar")
	}
	return nil
}

// Serialize writes the record as json
func (r *Record) Serialize(w io.Writer) error {
	return json.NewEncoder(w).Encode(r)
}

// Read reads the sidecar record of file.  A missing sidecar is not an error; the
// result is nil.
func Read(file string) (*Record, error) {
	metaPath := MetaPath(file)
	f, err := os.Open(metaPath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "could not open sidecar %s", metaPath)
	}
	defer f.Close()

	rec := &Record{}
	if err := Parse(f, rec); err != nil {
		return nil, errors.Wrapf(err, "could not parse sidecar %s", metaPath)
	}
	return rec, nil
}

// Write atomically replaces the sidecar record of file.
func Write(file string, rec *Record) (err error) {
	metaPath := MetaPath(file)
	w, err := fs.AtomicWrite(metaPath)
	if err != nil {
		return errors.Wrapf(err, "could not write sidecar %s", metaPath)
	}
	defer func() {
		if e := w.Rollback(); e != nil && err == nil {
			err = errors.Wrapf(e, "error rolling back sidecar %s", metaPath)
		}
	}()

	if err = rec.Serialize(w); err != nil {
		return errors.Wrapf(err, "could not serialize sidecar %s", metaPath)
	}
	return w.Close()
}

// Update reads the sidecar record of file, applies f, and writes it back.  A
// missing record starts out empty.
func Update(file string, f func(*Record)) error {
	rec, err := Read(file)
	if err != nil {
		return err
	}
	if rec == nil {
		rec = &Record{}
	}
	f(rec)
	return Write(file, rec)
}
