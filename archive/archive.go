// Package archive unpacks zipped datasources.
//
// An archive is expected to carry one datasource, possibly made of several
// files (a shapefile's .shp, .dbf, .shx and .prj).  The primary member is chosen,
// it and its siblings are extracted next to the archive under the archive's own
// name, and the choice is recorded in the archive's sidecar so later runs skip
// the work.
package archive

import (
	"archive/zip"
	"context"
	"io"
	"path"
	"path/filepath"
	"strings"

	"github.com/birkland/millstone"
	"github.com/birkland/millstone/detect"
	"github.com/birkland/millstone/drivers/fs"
	"github.com/birkland/millstone/fspath"
	"github.com/birkland/millstone/metadata"
	"github.com/pkg/errors"
	slogcontext "github.com/veqryn/slog-context"
	"golang.org/x/sync/singleflight"
)

// Extractor unpacks archives.  Concurrent extractions of the same archive are
// collapsed into one.
type Extractor struct {
	group singleflight.Group
}

// NewExtractor creates an Extractor
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract unpacks the primary datasource of a zip archive, and returns its path.
func (x *Extractor) Extract(ctx context.Context, archivePath string) (string, error) {
	v, err, _ := x.group.Do(archivePath, func() (interface{}, error) {
		return extract(ctx, archivePath)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Healthy verifies that the file at path is a readable zip archive with at
// least one member.
func Healthy(path string) error {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return errors.Wrapf(err, "could not open archive %s", path)
	}
	defer zr.Close()

	if len(zr.File) == 0 {
		return millstone.NewError(millstone.EmptyArchive, "", path, nil)
	}
	return nil
}

func extract(ctx context.Context, archivePath string) (string, error) {
	logger := slogcontext.FromCtx(ctx).With("archive", archivePath)

	rec, err := metadata.Read(archivePath)
	if err != nil {
		logger.Warn("ignoring unreadable sidecar", "error", err)
	}
	if rec != nil && rec.UnzippedFile != "" && fs.Exists(rec.UnzippedFile) {
		logger.Debug("archive already extracted", "file", rec.UnzippedFile)
		return rec.UnzippedFile, nil
	}

	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return "", errors.Wrapf(err, "could not open archive %s", archivePath)
	}
	defer zr.Close()

	if len(zr.File) == 0 {
		return "", millstone.NewError(millstone.EmptyArchive, "", archivePath, nil)
	}

	primary := Primary(zr.File)
	if primary == nil {
		return "", millstone.NewError(millstone.NoDatasourceInArchive, "", archivePath, nil)
	}

	dir := filepath.Dir(archivePath)
	stem := fspath.Stem(archivePath)
	members := Siblings(zr.File, primary)

	writes := make([]*fs.ManagedWrite, 0, len(members))
	dests := make([]string, 0, len(members))
	defer func() {
		for _, w := range writes {
			_ = w.Rollback()
		}
	}()

	for _, m := range members {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		dest := filepath.Join(dir, stem+strings.ToLower(path.Ext(m.Name)))
		w, err := fs.AtomicWrite(dest)
		if err != nil {
			return "", err
		}
		writes = append(writes, w)
		dests = append(dests, dest)

		if err := copyMember(m, w); err != nil {
			return "", errors.Wrapf(err, "could not extract %s from %s", m.Name, archivePath)
		}
	}

	// All members are written, only now do they take their final names
	if err := commit(writes, dests); err != nil {
		return "", errors.Wrapf(err, "could not extract %s", archivePath)
	}

	file := filepath.Join(dir, stem+strings.ToLower(path.Ext(primary.Name)))
	err = metadata.Update(archivePath, func(r *metadata.Record) {
		r.UnzippedFile = file
	})
	if err != nil {
		return "", err
	}

	logger.Debug("extracted archive", "file", file, "members", len(members))
	return file, nil
}

// Primary picks the datasource member of an archive: the first shapefile if
// there is one, otherwise the first member of any known datasource type.  Nil if
// there is no datasource at all.
func Primary(files []*zip.File) *zip.File {
	var first *zip.File
	for _, f := range files {
		if !eligible(f) {
			continue
		}
		if strings.EqualFold(path.Ext(f.Name), ".shp") {
			return f
		}
		if first == nil {
			first = f
		}
	}
	return first
}

// Siblings returns the members sharing the primary member's directory and base
// name, e.g. all files of one shapefile.
func Siblings(files []*zip.File, primary *zip.File) []*zip.File {
	want := strings.TrimSuffix(primary.Name, path.Ext(primary.Name))

	var siblings []*zip.File
	for _, f := range files {
		if skipped(f) {
			continue
		}
		if strings.TrimSuffix(f.Name, path.Ext(f.Name)) == want {
			siblings = append(siblings, f)
		}
	}
	return siblings
}

func eligible(f *zip.File) bool {
	return !skipped(f) && detect.Known(path.Ext(f.Name))
}

// skipped members are directories, hidden files, and macOS resource forks
func skipped(f *zip.File) bool {
	if f.FileInfo().IsDir() || strings.HasSuffix(f.Name, "/") {
		return true
	}
	if strings.HasPrefix(f.Name, "__MACOSX/") {
		return true
	}
	base := path.Base(f.Name)
	return strings.HasPrefix(base, ".") || path.Ext(base) == ""
}

// commit promotes written members to their final names.  Should one fail, the
// members already promoted are removed again, so an archive is either fully
// extracted or not at all.
func commit(writes []*fs.ManagedWrite, dests []string) error {
	for i, w := range writes {
		if err := w.Close(); err != nil {
			for _, done := range dests[:i] {
				_ = fs.Remove(done)
			}
			return err
		}
	}
	return nil
}

func copyMember(f *zip.File, w io.Writer) error {
	r, err := f.Open()
	if err != nil {
		return err
	}
	defer r.Close()

	_, err = io.Copy(w, r)
	return err
}
