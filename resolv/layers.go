package resolv

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/birkland/millstone"
	"github.com/birkland/millstone/detect"
	"github.com/birkland/millstone/drivers/fs"
	"github.com/birkland/millstone/fspath"
	refs "github.com/birkland/millstone/internal/resolv"
	"github.com/birkland/millstone/metadata"
	"github.com/pkg/errors"
	slogcontext "github.com/veqryn/slog-context"
)

func (s *session) layers(ctx context.Context) error {
	return each(ctx, len(s.doc.Layer), func(ctx context.Context, i int) error {
		l := &s.doc.Layer[i]
		if l.Datasource == nil || l.Datasource.File == "" {
			return nil
		}

		name := l.DisplayName(i)
		file, err := s.place(ctx, name, l.Datasource.File, l.Datasource.TTL)
		if err != nil {
			return millstone.WithLayer(err, name)
		}

		slogcontext.FromCtx(ctx).Debug("resolved layer", "layer", name, "file", file)
		l.Datasource.File = file
		return nil
	})
}

// attachdb resolves the databases attached to sqlite layers, each linked
// under its alias.
func (s *session) attachdb(ctx context.Context) error {
	return each(ctx, len(s.doc.Layer), func(ctx context.Context, i int) error {
		l := &s.doc.Layer[i]
		d := l.Datasource
		if d == nil || d.AttachDB == "" || (d.Type != "" && d.Type != detect.SQLite) {
			return nil
		}

		name := l.DisplayName(i)
		attached := refs.ParseAttachDB(d.AttachDB)
		for j, ref := range attached {
			alias := ref.Alias
			if alias == "" {
				alias = fspath.Stem(ref.Location)
			}

			file, err := s.place(ctx, alias, ref.Location, 0)
			if err != nil {
				return millstone.WithLayer(errors.Wrapf(err, "attached database %s", alias), name)
			}
			attached[j].Location = file
		}

		d.AttachDB = refs.FormatAttachDB(attached)
		return nil
	})
}

// place makes a datasource reference available as a local file, and returns its
// path.  Remote files are downloaded into the cache, archives unpacked, and
// absolute or remote files linked into the project under name.  Relative
// references just resolve against the project directory.
func (s *session) place(ctx context.Context, name, ref string, ttl int) (string, error) {
	r := s.classify(ref)
	file := r.Path

	switch r.Kind {
	case fspath.RelativeLocal:
		return s.unpack(ctx, file)
	case fspath.Remote:
		dest, err := metadata.CachePath(s.opts.Cache, ref)
		if err != nil {
			return "", err
		}
		if file, err = s.opts.Downloader.Fetch(ctx, ref, dest); err != nil {
			return "", err
		}
		if ttl > 0 {
			s.opts.Downloader.Refresh(ctx, ref, dest, time.Duration(ttl)*time.Second)
		}
	}

	dirShaped := fspath.DirShaped(file)
	file, err := s.unpack(ctx, file)
	if err != nil {
		return "", err
	}

	if s.opts.SkipLinking {
		return file, nil
	}
	return s.link(ctx, name, file, dirShaped)
}

func (s *session) unpack(ctx context.Context, file string) (string, error) {
	if !strings.EqualFold(filepath.Ext(file), ".zip") {
		return file, nil
	}
	return s.extractor.Extract(ctx, file)
}

// link places file at its canonical location in the project.  Directory
// shaped files bring their siblings along.
func (s *session) link(ctx context.Context, name, file string, dirShaped bool) (string, error) {
	dest := s.opts.Layout.Generate(s.opts.Base, name, file, dirShaped)

	var err error
	if dirShaped {
		err = fs.LinkSiblings(ctx, s.opts.Linker, file, filepath.Dir(dest))
	} else if err = fs.MkdirAll(filepath.Dir(dest)); err == nil {
		err = s.opts.Linker.Link(ctx, file, dest)
	}

	var e *millstone.Error
	if err != nil && !errors.As(err, &e) {
		err = millstone.NewError(millstone.Filesystem, "", dest, err)
	}
	return dest, err
}
