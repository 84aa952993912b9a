package fs

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/birkland/millstone"
	"github.com/karrick/godirwalk"
	"github.com/pkg/errors"
)

// Siblings lists the names of the files in file's directory that share its stem,
// e.g. the .shp, .dbf, .shx and .prj of a shapefile.  The result is sorted, and is
// empty if the directory does not exist.
func Siblings(file string) ([]string, error) {
	dir := filepath.Dir(file)
	want := stem(file)

	names, err := godirwalk.ReadDirnames(dir, nil)
	if err != nil {
		if os.IsNotExist(errors.Cause(err)) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "could not list %s", dir)
	}

	var siblings []string
	for _, name := range names {
		if stem(name) == want && !strings.HasPrefix(name, ".") {
			siblings = append(siblings, name)
		}
	}
	sort.Strings(siblings)

	return siblings, nil
}

// LinkSiblings links file, and all its siblings, into destDir.  If destDir is a
// symlink (to a whole directory, as earlier layouts did), it is replaced with a real
// directory.  The file itself is always linked, even if it does not exist, so the
// linker decides whether a missing source is an error.
func LinkSiblings(ctx context.Context, l millstone.Linker, file, destDir string) error {
	if err := forceMkdir(destDir); err != nil {
		return err
	}

	siblings, err := Siblings(file)
	if err != nil {
		return err
	}

	base := filepath.Base(file)
	if i := sort.SearchStrings(siblings, base); i == len(siblings) || siblings[i] != base {
		siblings = append(siblings, base)
	}

	srcDir := filepath.Dir(file)
	for _, name := range siblings {
		err := l.Link(ctx, filepath.Join(srcDir, name), filepath.Join(destDir, name))
		if err != nil {
			return err
		}
	}

	return nil
}

func forceMkdir(dir string) error {
	fi, err := os.Lstat(dir)
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "could not stat %s", dir)
	}

	if err == nil && fi.Mode()&os.ModeSymlink != 0 {
		if err := os.Remove(dir); err != nil {
			return errors.Wrapf(err, "could not remove directory link %s", dir)
		}
	}

	return MkdirAll(dir)
}

func stem(file string) string {
	base := filepath.Base(file)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
