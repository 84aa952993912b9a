package resolv

import (
	"context"
	"os"
	"path"

	"github.com/birkland/millstone"
	"github.com/birkland/millstone/fspath"
	refs "github.com/birkland/millstone/internal/resolv"
	"github.com/birkland/millstone/metadata"
	"github.com/pkg/errors"
)

func (s *session) stylesheets(ctx context.Context) error {
	return each(ctx, len(s.doc.Stylesheet), func(ctx context.Context, i int) error {
		style, err := s.stylesheet(ctx, s.doc.Stylesheet[i])
		if err != nil {
			return errors.Wrapf(err, "stylesheet %d", i)
		}
		s.doc.Stylesheet[i] = style
		return nil
	})
}

// stylesheet loads a stylesheet and localizes the remote assets it refers to.
func (s *session) stylesheet(ctx context.Context, style millstone.Stylesheet) (millstone.Stylesheet, error) {
	id, data := style.ID, style.Data
	if !style.IsInline() {
		var err error
		if id, data, err = s.load(ctx, style.Ref()); err != nil {
			return style, err
		}
	}

	mapping := make(map[string]string)
	for _, ref := range refs.StyleRefs(data) {
		if _, done := mapping[ref.Location]; done || !fspath.IsRemote(ref.Location) {
			continue
		}

		local, err := s.fetch(ctx, ref.Location)
		if err != nil {
			return style, err
		}
		mapping[ref.Location] = local
	}

	return millstone.Inline(id, refs.RewriteStyle(data, mapping)), nil
}

// load reads a referenced stylesheet.  Its id is the file name for remote
// stylesheets, and the reference itself for local ones.
func (s *session) load(ctx context.Context, ref string) (id, data string, err error) {
	r := s.classify(ref)
	file, id := r.Path, ref

	if r.Kind == fspath.Remote {
		if file, err = s.fetch(ctx, ref); err != nil {
			return "", "", err
		}
		id = path.Base(r.URL.Path)
	}

	content, err := os.ReadFile(file)
	if err != nil {
		kind := millstone.Filesystem
		if os.IsNotExist(err) {
			kind = millstone.FileNotFound
		}
		return "", "", millstone.NewError(kind, "", file, err)
	}
	return id, string(content), nil
}

// fetch downloads a url into its cache location.
func (s *session) fetch(ctx context.Context, location string) (string, error) {
	dest, err := metadata.CachePath(s.opts.Cache, location)
	if err != nil {
		return "", err
	}
	return s.opts.Downloader.Fetch(ctx, location, dest)
}
