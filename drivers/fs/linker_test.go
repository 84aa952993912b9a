package fs_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/birkland/millstone"
	"github.com/birkland/millstone/drivers/fs"
	"github.com/stretchr/testify/require"
)

func TestNewLinker(t *testing.T) {
	cases := []struct {
		mode      string
		expected  string
		expectErr bool
	}{
		{fs.SymlinkMode, fs.SymlinkMode, false},
		{fs.CopyMode, fs.CopyMode, false},
		{"hardlink", "", true},
	}

	for _, c := range cases {
		c := c
		t.Run(c.mode, func(t *testing.T) {
			l, err := fs.NewLinker(fs.Config{Mode: c.mode})
			if (err != nil) != c.expectErr {
				t.Fatalf("expected error: %t, got error: %t", c.expectErr, (err != nil))
			}
			if err == nil && l.Mode() != c.expected {
				t.Errorf("expected %s linker, got %s", c.expected, l.Mode())
			}
		})
	}

	l, err := fs.NewLinker(fs.Config{})
	require.NoError(t, err)
	require.NotEmpty(t, l.Mode())
}

func TestSymlinkerLink(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	src := filepath.Join(dir, "a.json")
	other := filepath.Join(dir, "b.json")
	dest := filepath.Join(dir, "layers", "points.json")
	require.NoError(t, os.WriteFile(src, []byte("a"), 0644))
	require.NoError(t, os.WriteFile(other, []byte("b"), 0644))

	l := fs.Symlinker{}
	require.NoError(t, l.Link(ctx, src, dest))
	target, err := os.Readlink(dest)
	require.NoError(t, err)
	require.Equal(t, src, target)

	// same target again is a no-op
	require.NoError(t, l.Link(ctx, src, dest))

	// stale link is replaced
	require.NoError(t, l.Link(ctx, other, dest))
	target, _ = os.Readlink(dest)
	require.Equal(t, other, target)

	// regular files are never replaced
	regular := filepath.Join(dir, "layers", "regular.json")
	require.NoError(t, os.WriteFile(regular, []byte("mine"), 0644))
	require.NoError(t, l.Link(ctx, src, regular))
	content, _ := os.ReadFile(regular)
	require.Equal(t, "mine", string(content))
}

func TestSymlinkerAllowsMissingSource(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "missing.shp")

	require.NoError(t, fs.Symlinker{}.Link(context.Background(), filepath.Join(dir, "nope.shp"), dest))

	_, err := os.Stat(dest)
	require.True(t, os.IsNotExist(err), "link should be broken")
}

func TestCopierLink(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	src := filepath.Join(dir, "src.csv")
	dest := filepath.Join(dir, "layers", "dest.csv")
	require.NoError(t, os.WriteFile(src, []byte("x,y\n1,2\n"), 0644))

	l := fs.Copier{}
	require.NoError(t, l.Link(ctx, src, dest))
	content, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, "x,y\n1,2\n", string(content))

	sfi, _ := os.Stat(src)
	dfi, _ := os.Stat(dest)
	require.True(t, sfi.ModTime().Equal(dfi.ModTime()), "copy should keep the source mtime")

	// an older source of equal size does not overwrite a newer destination
	require.NoError(t, os.WriteFile(dest, []byte("x,y\n3,4\n"), 0644))
	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(src, past, past))
	require.NoError(t, l.Link(ctx, src, dest))
	content, _ = os.ReadFile(dest)
	require.Equal(t, "x,y\n3,4\n", string(content))

	// a newer source wins
	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(src, future, future))
	require.NoError(t, l.Link(ctx, src, dest))
	content, _ = os.ReadFile(dest)
	require.Equal(t, "x,y\n1,2\n", string(content))
}

func TestCopierLeavesSymlinks(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	src := filepath.Join(dir, "src.csv")
	elsewhere := filepath.Join(dir, "elsewhere.csv")
	dest := filepath.Join(dir, "dest.csv")
	require.NoError(t, os.WriteFile(src, []byte("new"), 0644))
	require.NoError(t, os.WriteFile(elsewhere, []byte("old"), 0644))
	require.NoError(t, os.Symlink(elsewhere, dest))

	require.NoError(t, fs.Copier{}.Link(ctx, src, dest))

	target, err := os.Readlink(dest)
	require.NoError(t, err)
	require.Equal(t, elsewhere, target)
}

func TestCopierMissingSource(t *testing.T) {
	dir := t.TempDir()
	err := fs.Copier{}.Link(context.Background(), filepath.Join(dir, "nope.csv"), filepath.Join(dir, "dest.csv"))
	require.True(t, millstone.IsKind(err, millstone.FileNotFound), "got %v", err)
}
