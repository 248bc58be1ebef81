package webseed

import (
	"net/url"
	"strings"
)

type PathEscaper func(pathComps []string) string

// Escapes path name components suitable for appending to a webseed URL. This works for converting
// S3 object keys to URLs too.
func EscapePath(pathComps []string) string {
	return defaultPathEscaper(pathComps)
}

func defaultPathEscaper(pathComps []string) string {
	var ret []string
	for _, comp := range pathComps {
		esc := url.PathEscape(comp)
		// S3 incorrectly escapes + in paths to spaces, so we add an extra encoding for that. This
		// seems to be handled correctly regardless of whether an endpoint uses query or path
		// escaping.
		esc = strings.ReplaceAll(esc, "+", "%2B")
		ret = append(ret, esc)
	}
	return strings.Join(ret, "/")
}

// Per BEP 19, a base URL ending in a slash is a directory that the content path is appended to.
// A single file served from a base URL without a trailing slash is the URL itself.
func joinURL(base string, multiFile bool, pathComps []string, escaper PathEscaper) string {
	if escaper == nil {
		escaper = defaultPathEscaper
	}
	if !multiFile && !strings.HasSuffix(base, "/") {
		return base
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base + escaper(pathComps)
}
