package millstone

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Kind classifies resolution failures
type Kind int

// Resolution error kinds
const (
	Unknown Kind = iota
	InvalidURL
	Download
	EmptyArchive
	NoDatasourceInArchive
	FileNotFound
	UnknownDatasourceType
	MissingSRS
	JSONParse
	Filesystem
)

var kindNames = map[Kind]string{
	Unknown:               "unknown",
	InvalidURL:            "invalid URL",
	Download:              "download failed",
	EmptyArchive:          "empty archive",
	NoDatasourceInArchive: "no datasource found in archive",
	FileNotFound:          "file not found",
	UnknownDatasourceType: "unknown datasource type",
	MissingSRS:            "no projection found",
	JSONParse:             "malformed JSON",
	Filesystem:            "filesystem error",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return kindNames[Unknown]
}

// Error is a resolution failure, with enough context to find the offending
// layer and file.
type Error struct {
	Kind       Kind
	Layer      string
	Path       string
	BrokenLink bool // FileNotFound only: the path is a symlink to a missing file
	Err        error
}

// NewError creates an Error of the given kind.  Err may be nil.
func NewError(kind Kind, layer, path string, err error) *Error {
	return &Error{
		Kind:  kind,
		Layer: layer,
		Path:  path,
		Err:   err,
	}
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.BrokenLink {
		b.WriteString(" (broken symbolic link)")
	}
	if e.Layer != "" {
		fmt.Fprintf(&b, " for layer %q", e.Layer)
	}
	if e.Path != "" {
		fmt.Fprintf(&b, " at %s", e.Path)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind tells whether any error in err's chain is an Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	for err != nil {
		if !errors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Err
	}
	return false
}

// WithLayer attributes err to the named layer.  Errors already naming a layer
// are returned as-is.
func WithLayer(err error, layer string) error {
	if err == nil {
		return nil
	}

	var e *Error
	if errors.As(err, &e) {
		if e.Layer != "" {
			return err
		}
		if e == err {
			// errors may be shared between download waiters, so copy
			c := *e
			c.Layer = layer
			return &c
		}
	}

	return errors.Wrapf(err, "layer %q", layer)
}
