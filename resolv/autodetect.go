package resolv

import (
	"context"
	"os"
	"path/filepath"

	"github.com/birkland/millstone"
	"github.com/birkland/millstone/detect"
	"github.com/birkland/millstone/metadata"
)

func (s *session) autodetect(ctx context.Context) error {
	return each(ctx, len(s.doc.Layer), func(ctx context.Context, i int) error {
		l := &s.doc.Layer[i]
		if l.Datasource == nil || l.Datasource.File == "" {
			return nil
		}

		name := l.DisplayName(i)
		return millstone.WithLayer(s.detect(name, l), name)
	})
}

func (s *session) detect(name string, l *millstone.Layer) error {
	d := l.Datasource

	meta, err := inspect(d.File)
	if err != nil {
		return err
	}

	result, err := detect.Detect(d.File, meta)
	if err != nil && d.Type == "" {
		return err
	}

	if d.Type == "" {
		d.Type = result.Type
	}
	result.Type = d.Type

	if result.LayerByIndex != nil && d.Layer == "" && d.LayerByIndex == nil {
		d.LayerByIndex = result.LayerByIndex
	}

	l.SRS, err = s.srs.Resolve(name, result, d.File, l.SRS)
	return err
}

// inspect verifies that a resolved file exists, and finds its transfer record,
// following one symlink if the file has none of its own.
func inspect(file string) (*metadata.Record, error) {
	if _, err := os.Stat(file); err != nil {
		if !os.IsNotExist(err) {
			return nil, millstone.NewError(millstone.Filesystem, "", file, err)
		}

		e := millstone.NewError(millstone.FileNotFound, "", file, nil)
		if fi, lerr := os.Lstat(file); lerr == nil && fi.Mode()&os.ModeSymlink != 0 {
			e.BrokenLink = true
		}
		return nil, e
	}

	if meta, _ := metadata.Read(file); meta != nil {
		return meta, nil
	}

	target, err := os.Readlink(file)
	if err != nil {
		return nil, nil
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(filepath.Dir(file), target)
	}

	meta, _ := metadata.Read(target)
	return meta, nil
}
