package fs

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/birkland/millstone"
	"github.com/pkg/errors"
	slogcontext "github.com/veqryn/slog-context"
)

// Linker modes
const (
	SymlinkMode = "symlink"
	CopyMode    = "copy"
)

// Config encapsulates a linker config.
//
// An empty Mode picks symlinks where the platform supports them, and copies
// elsewhere.
type Config struct {
	Mode string
}

// NewLinker initializes the Linker for the given mode.
func NewLinker(cfg Config) (millstone.Linker, error) {
	switch cfg.Mode {
	case "":
		if runtime.GOOS == "windows" {
			return Copier{}, nil
		}
		return Symlinker{}, nil
	case SymlinkMode:
		return Symlinker{}, nil
	case CopyMode:
		return Copier{}, nil
	default:
		return nil, errors.Errorf("unknown link mode %q", cfg.Mode)
	}
}

// Symlinker links files by creating (or replacing stale) symbolic links.
type Symlinker struct{}

// Mode names the linker.
func (Symlinker) Mode() string {
	return SymlinkMode
}

// Link creates a symlink at dest pointing to src.  An existing symlink pointing
// elsewhere is replaced; an existing regular file is left alone.  src need not
// exist, a broken link is detected later when the file is opened.
func (Symlinker) Link(ctx context.Context, src, dest string) error {
	fi, err := os.Lstat(dest)
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "could not stat %s", dest)
	}

	if err != nil {
		if err := MkdirAll(filepath.Dir(dest)); err != nil {
			return err
		}
		return errors.Wrapf(os.Symlink(src, dest), "could not link %s to %s", dest, src)
	}

	if fi.Mode()&os.ModeSymlink == 0 {
		return nil
	}

	old, err := os.Readlink(dest)
	if err != nil {
		return errors.Wrapf(err, "could not read link %s", dest)
	}
	if old == src {
		return nil
	}

	slogcontext.FromCtx(ctx).Debug("replacing stale link", "link", dest, "old", old, "new", src)
	if err := os.Remove(dest); err != nil {
		return errors.Wrapf(err, "could not remove stale link %s", dest)
	}
	return errors.Wrapf(os.Symlink(src, dest), "could not link %s to %s", dest, src)
}

// Copier places files by copying them, if the source is newer than what is
// already present at the destination.
type Copier struct{}

// Mode names the linker.
func (Copier) Mode() string {
	return CopyMode
}

// Link copies src to dest unless dest is a symlink (left untouched), or a file at
// least as new as src.  The copy keeps the modification time of src.
func (Copier) Link(ctx context.Context, src, dest string) (err error) {
	sfi, err := os.Stat(src)
	if os.IsNotExist(err) {
		return millstone.NewError(millstone.FileNotFound, "", src, nil)
	}
	if err != nil {
		return errors.Wrapf(err, "could not stat %s", src)
	}

	dfi, err := os.Lstat(dest)
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "could not stat %s", dest)
	}
	if err == nil {
		if dfi.Mode()&os.ModeSymlink != 0 || !sfi.ModTime().After(dfi.ModTime()) {
			return nil
		}
	}

	if err := MkdirAll(filepath.Dir(dest)); err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return errors.Wrapf(err, "could not open %s", src)
	}
	defer in.Close()

	out, err := AtomicWrite(dest)
	if err != nil {
		return err
	}
	defer func() {
		if e := out.Rollback(); e != nil && err == nil {
			err = errors.Wrapf(e, "error rolling back copy to %s", dest)
		}
	}()

	if _, err = io.Copy(out, in); err != nil {
		return errors.Wrapf(err, "could not copy %s to %s", src, dest)
	}
	if err = out.Close(); err != nil {
		return err
	}

	slogcontext.FromCtx(ctx).Debug("copied file", "src", src, "dest", dest)
	return errors.Wrapf(os.Chtimes(dest, sfi.ModTime(), sfi.ModTime()), "could not set times on %s", dest)
}
