// Package resolv parses the resource references embedded in project documents:
// url() tokens in stylesheets, and the attached database lists of sqlite layers.
package resolv

import (
	"regexp"
	"strings"
)

var (
	urlToken = regexp.MustCompile(`url\(\s*(['"]?)([^'")\s]+)(['"]?)\s*\)`)
	comment  = regexp.MustCompile(`(?s)/\*.*?\*/`)
)

// StyleRef is a url() token within stylesheet text
type StyleRef struct {
	Start, End int    // byte offsets of the whole token
	Quote      string // quote character used, if any
	Location   string
}

// StyleRefs finds the url() tokens of stylesheet text, in order.  Tokens within
// comments, or with mismatched quotes, are ignored.
func StyleRefs(text string) []StyleRef {
	comments := comment.FindAllStringIndex(text, -1)

	var refs []StyleRef
	for _, m := range urlToken.FindAllStringSubmatchIndex(text, -1) {
		lq, rq := text[m[2]:m[3]], text[m[6]:m[7]]
		if lq != rq || within(comments, m[0]) {
			continue
		}
		refs = append(refs, StyleRef{
			Start:    m[0],
			End:      m[1],
			Quote:    lq,
			Location: text[m[4]:m[5]],
		})
	}
	return refs
}

func within(ranges [][]int, offset int) bool {
	for _, r := range ranges {
		if offset >= r[0] && offset < r[1] {
			return true
		}
	}
	return false
}

// RewriteStyle replaces the locations of url() tokens using the given mapping.
// Locations absent from the mapping are left as they are, as is everything
// outside the tokens.
func RewriteStyle(text string, mapping map[string]string) string {
	refs := StyleRefs(text)
	if len(refs) == 0 {
		return text
	}

	var b strings.Builder
	last := 0
	for _, ref := range refs {
		replacement, ok := mapping[ref.Location]
		if !ok {
			continue
		}
		b.WriteString(text[last:ref.Start])
		b.WriteString("url(" + ref.Quote + replacement + ref.Quote + ")")
		last = ref.End
	}
	b.WriteString(text[last:])
	return b.String()
}

// AttachRef is one alias@location entry of an attachdb list
type AttachRef struct {
	Alias    string
	Location string
}

func (a AttachRef) String() string {
	if a.Alias == "" {
		return a.Location
	}
	return a.Alias + "@" + a.Location
}

// ParseAttachDB splits a comma separated list of alias@location entries.
// Entries without an alias keep an empty Alias.
func ParseAttachDB(list string) []AttachRef {
	var refs []AttachRef
	for _, entry := range strings.Split(list, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		alias, location, found := strings.Cut(entry, "@")
		if !found {
			refs = append(refs, AttachRef{Location: entry})
			continue
		}
		refs = append(refs, AttachRef{
			Alias:    strings.TrimSpace(alias),
			Location: strings.TrimSpace(location),
		})
	}
	return refs
}

// FormatAttachDB joins entries back into an attachdb list.
func FormatAttachDB(refs []AttachRef) string {
	entries := make([]string, len(refs))
	for i, ref := range refs {
		entries[i] = ref.String()
	}
	return strings.Join(entries, ",")
}
