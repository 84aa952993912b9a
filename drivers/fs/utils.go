package fs

import (
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// AtomicPrefix is a file prefix for temporary files that are created during
// AtomicWrite
const AtomicPrefix = ".millstone.atomic."

// ManagedWrite encapsulates an io.WriteCloser such that the write can be
// rolled back upon error.
type ManagedWrite struct {
	io.WriteCloser
	closeFunc    func() error
	rollbackFunc func() error
	closed       bool
}

// Close frees up any resources and performs the necessary actions to
// commit the write.
func (w *ManagedWrite) Close() error {
	return w.closeWith(w.closeFunc)
}

// Rollback attempts to undo any tangible effects of an incomplete/errored write.
func (w *ManagedWrite) Rollback() error {
	return w.closeWith(w.rollbackFunc)
}

func (w *ManagedWrite) closeWith(f func() error) error {
	if w.closed {
		return nil
	}
	err := w.WriteCloser.Close()
	if err != nil {
		return err
	}
	w.closed = true

	if f != nil {
		return f()
	}

	return nil
}

// AtomicWrite creates a uniquely named temporary file which is opened for write (only),
// in the same directory as the specified path.  Once written and closed,
// it atomically renames the temp file to match the given path.
//
// Note, Close() may fail.  If it does, it is up to the caller to determine the
// appropriate response (e.g. Rollback(), or log it and manually inspect)
func AtomicWrite(path string) (*ManagedWrite, error) {
	tfile, err := os.CreateTemp(filepath.Dir(path), AtomicPrefix+filepath.Base(path)+".*")
	if err != nil {
		return nil, errors.Wrapf(err, "could not create temporary file for %s", path)
	}
	return managed(tfile, path), nil
}

// AtomicWriteAs is AtomicWrite with an explicitly named temporary file.  Any
// leftover file of that name, e.g. from an interrupted earlier write, is truncated.
func AtomicWriteAs(path, temp string) (*ManagedWrite, error) {
	tfile, err := os.OpenFile(temp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "could not create temporary file %s", temp)
	}
	return managed(tfile, path), nil
}

func managed(tfile *os.File, path string) *ManagedWrite {
	tname := tfile.Name()
	return &ManagedWrite{
		WriteCloser: tfile,
		closeFunc: func() error {
			if err := os.Rename(tname, path); err != nil {
				_ = os.Remove(tname)
				return errors.Wrapf(err, "could not rename %s to %s", tname, path)
			}
			return nil
		},
		rollbackFunc: func() error {
			return os.Remove(tname)
		},
	}
}

// WriteFile atomically replaces the content of path
func WriteFile(path string, content []byte) (err error) {
	w, err := AtomicWrite(path)
	if err != nil {
		return err
	}
	defer func() {
		if e := w.Rollback(); e != nil && err == nil {
			err = errors.Wrapf(e, "error rolling back write to %s", path)
		}
	}()

	if _, err = w.Write(content); err != nil {
		return errors.Wrapf(err, "could not write %s", path)
	}
	return w.Close()
}

// Remove deletes a file, symlink, or directory tree.  A path that is already
// gone is not an error.
func Remove(path string) error {
	if _, err := os.Lstat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, "could not stat %s", path)
	}
	return errors.Wrapf(os.RemoveAll(path), "could not remove %s", path)
}

// MkdirAll creates a directory and its parents, tolerating ones that already exist.
func MkdirAll(dir string) error {
	err := os.MkdirAll(dir, 0755)
	if err != nil && !os.IsExist(err) {
		return errors.Wrapf(err, "could not create directory %s", dir)
	}
	return nil
}

// Exists tells whether something (file, directory, or symlink target) exists at path.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
