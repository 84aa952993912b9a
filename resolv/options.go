package resolv

import (
	"path/filepath"

	"github.com/birkland/millstone"
	"github.com/birkland/millstone/download"
	"github.com/birkland/millstone/drivers/fs"
	"github.com/birkland/millstone/fspath"
	"github.com/birkland/millstone/srs"
	"github.com/pkg/errors"
)

// Options configure a resolution.
type Options struct {
	Base  string // Project directory, required
	Cache string // Cache root directory, required

	// SkipLinking leaves local files where they are and remote ones in the
	// cache, rather than linking them into the project.  Archives are still
	// extracted.
	SkipLinking bool

	// Benchmark logs the time taken by each stage at info level.
	Benchmark bool

	// Downloader fetches remote content.  Share one between resolutions to
	// deduplicate their transfers; if nil, each resolution gets its own.
	Downloader *download.Coordinator

	// Linker places files in the project, by default symlinks where supported
	Linker millstone.Linker

	// Parser parses projection text, by default srs.DefaultParser
	Parser srs.Parser

	// Layout computes where layer files go in the project, by default fspath.Canonical
	Layout fspath.Generator

	// Platform determines which local paths are absolute, by default the host's
	Platform *fspath.Platform
}

func (o Options) withDefaults() (Options, error) {
	if o.Base == "" {
		return o, errors.New("base directory is required")
	}
	if o.Cache == "" {
		return o, errors.New("cache directory is required")
	}

	var err error
	if o.Base, err = filepath.Abs(o.Base); err != nil {
		return o, errors.Wrapf(err, "could not resolve base directory %s", o.Base)
	}
	if o.Cache, err = filepath.Abs(o.Cache); err != nil {
		return o, errors.Wrapf(err, "could not resolve cache directory %s", o.Cache)
	}

	if o.Downloader == nil {
		o.Downloader = download.New(download.Config{})
	}
	if o.Linker == nil {
		if o.Linker, err = fs.NewLinker(fs.Config{}); err != nil {
			return o, err
		}
	}
	if o.Parser == nil {
		o.Parser = srs.DefaultParser{}
	}
	if o.Layout == nil {
		o.Layout = fspath.Canonical
	}
	if o.Platform == nil {
		p := fspath.Host()
		o.Platform = &p
	}

	return o, nil
}
