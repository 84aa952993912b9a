// Package fspath classifies resource references and computes the canonical
// locations resolved files take within a project.
package fspath

import (
	"net/url"
	"path/filepath"
	"runtime"
	"strings"
)

// Platform selects the convention used to recognize absolute paths
type Platform int

// Supported path conventions
const (
	POSIX Platform = iota
	Windows
)

// Host returns the convention of the platform we are running on.
func Host() Platform {
	if runtime.GOOS == "windows" {
		return Windows
	}
	return POSIX
}

// Kind names the kind of location a reference points to
type Kind int

// Reference kinds
const (
	RelativeLocal Kind = iota
	AbsoluteLocal
	Remote
)

func (k Kind) String() string {
	switch k {
	case Remote:
		return "remote"
	case AbsoluteLocal:
		return "absolute"
	default:
		return "relative"
	}
}

// Ref is a classified resource reference.  For local references, Path
// is the effective filesystem path; for remote ones, it is the url.
type Ref struct {
	Kind Kind
	Path string
	URL  *url.URL
}

// Classify decides whether a reference is a remote url, an absolute path, or a path
// relative to base.
func Classify(ref, base string, p Platform) Ref {
	if u, ok := remote(ref); ok {
		return Ref{Kind: Remote, Path: ref, URL: u}
	}

	if !IsRelative(ref, p) {
		return Ref{Kind: AbsoluteLocal, Path: ref}
	}

	return Ref{Kind: RelativeLocal, Path: filepath.Join(base, ref)}
}

// IsRemote tells whether the reference is an http(s) url.
func IsRemote(ref string) bool {
	_, ok := remote(ref)
	return ok
}

// IsRelative tells whether a local path is relative under the given platform
// convention.  Both / and \ start absolute paths on Windows, as does a drive letter.
func IsRelative(ref string, p Platform) bool {
	if strings.HasPrefix(ref, "/") {
		return false
	}

	if p == Windows {
		if strings.HasPrefix(ref, `\`) {
			return false
		}
		if len(ref) >= 2 && ref[1] == ':' && isLetter(ref[0]) {
			return false
		}
	}

	return true
}

func remote(ref string) (*url.URL, bool) {
	u, err := url.Parse(ref)
	if err != nil {
		return nil, false
	}
	scheme := strings.ToLower(u.Scheme)
	return u, (scheme == "http" || scheme == "https") && u.Host != ""
}

func isLetter(c byte) bool {
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}
