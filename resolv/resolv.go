package resolv

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/birkland/millstone"
	"github.com/birkland/millstone/archive"
	"github.com/birkland/millstone/drivers/fs"
	"github.com/birkland/millstone/fspath"
	"github.com/birkland/millstone/srs"
	"github.com/google/uuid"
	slogcontext "github.com/veqryn/slog-context"
	"golang.org/x/sync/errgroup"
)

// session is the state of one resolution
type session struct {
	opts      Options
	doc       *millstone.Project
	extractor *archive.Extractor
	srs       *srs.Resolver
}

type stage struct {
	name string
	run  func(context.Context) error
}

// Resolve localizes the resources of a project, returning the resolved copy.  The
// given project is not modified.
func Resolve(ctx context.Context, project *millstone.Project, opts Options) (*millstone.Project, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}

	s := &session{
		opts:      opts,
		doc:       project.DeepCopy(),
		extractor: archive.NewExtractor(),
		srs:       srs.NewResolver(opts.Parser),
	}

	logger := slogcontext.FromCtx(ctx).With("session", uuid.NewString())
	ctx = slogcontext.NewCtx(ctx, logger)

	stages := []stage{
		{"setup", s.setup},
		{"stylesheets", s.stylesheets},
		{"layers", s.layers},
		{"attachdb", s.attachdb},
		{"autodetect", s.autodetect},
		{"finalize", s.finalize},
	}

	level := slog.LevelDebug
	if opts.Benchmark {
		level = slog.LevelInfo
	}

	for _, st := range stages {
		start := time.Now()
		err := st.run(ctx)
		logger.Log(ctx, level, "stage complete", "stage", st.name, "elapsed", time.Since(start))
		if err != nil {
			logger.Debug("resolution failed", "stage", st.name, "error", err)
			return nil, err
		}
	}

	return s.doc, nil
}

// each runs f for n items concurrently, and waits for all of them.  The result
// is the error of the lowest failed index, if any.
func each(ctx context.Context, n int, f func(ctx context.Context, i int) error) error {
	errs := make([]error, n)

	var g errgroup.Group
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			errs[i] = f(ctx, i)
			return nil
		})
	}
	_ = g.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *session) setup(ctx context.Context) error {
	dir := s.layersDir()
	if err := fs.MkdirAll(dir); err != nil {
		return millstone.NewError(millstone.Filesystem, "", dir, err)
	}
	return nil
}

func (s *session) finalize(ctx context.Context) error {
	if s.doc.SRS == "" {
		s.doc.SRS = millstone.SphericalMercator
	}
	s.doc.SRS = srs.FixSRS(s.doc.SRS)

	for i := range s.doc.Layer {
		s.doc.Layer[i].SRS = srs.FixSRS(s.doc.Layer[i].SRS)
	}
	return nil
}

func (s *session) layersDir() string {
	return filepath.Join(s.opts.Base, fspath.LayersDir)
}

func (s *session) classify(ref string) fspath.Ref {
	return fspath.Classify(ref, s.opts.Base, *s.opts.Platform)
}
