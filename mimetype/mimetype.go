// Package mimetype resolves a filename extension to a Content-Type, the
// external "MIME-type tables" collaborator spec.md §6 names as something
// the core consults but never owns.
//
// This is the one place in the module that leans on the standard library
// by deliberate choice rather than as a fallback: mime.TypeByExtension is
// itself the ecosystem's static extension table, seeded from the system's
// mime.types and a built-in default set, and matching it with a
// hand-rolled table would just be reimplementing the standard library's
// own job. See DESIGN.md.
package mimetype

import (
	"mime"
	"path/filepath"
	"strings"
)

// DefaultContentType is used whenever the extension is unknown, per
// spec.md §4.4.
const DefaultContentType = "application/octet-stream"

// Lookup is the capability respop depends on, so an embedder can supply an
// alternative table (e.g. for extensions the standard library doesn't
// know).
type Lookup interface {
	ContentType(name string) string
}

// Default wraps mime.TypeByExtension, stripping any parameters (mime.Type
// sometimes appends "; charset=...") the spec doesn't ask respop to set
// itself for binary content types.
type Default struct{}

func (Default) ContentType(name string) string {
	ext := filepath.Ext(name)
	if ext == "" {
		return DefaultContentType
	}
	ct := mime.TypeByExtension(ext)
	if ct == "" {
		return DefaultContentType
	}
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	return ct
}
