// Package fsroot resolves an HTTP request path against a document root,
// enforcing the sandboxing invariant of spec.md §4.4 (P4): the resolved
// absolute path always lies within the root, or resolution fails with a
// ResolutionError that respop turns into 403.
//
// Grounded on the Dir/FileSystem/File trio in badu-http's
// filetransport/types.go, reshaped from net/http's general-purpose
// FileSystem interface into the narrower capability set spec.md §9
// calls for: status, size, etag, open_stream, open_random_access,
// independently overridable by an embedder.
package fsroot

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/AlanQuatermain/SimpleHTTPServer/srverr"
)

// RandomAccess is the "random-access file" collaborator interface from
// spec.md §6: length plus offset/length reads, used by single- and
// multi-range responses.
type RandomAccess interface {
	Length() int64
	ReadAt(offset, length int64) ([]byte, error)
	Close() error
}

// Stream is the "input stream" collaborator interface from spec.md §6,
// used by the whole-file streaming pump.
type Stream interface {
	io.ReadCloser
}

// Item describes a resolved filesystem entry: enough for respop to decide
// a status code and assemble headers without touching the filesystem
// again.
type Item struct {
	AbsPath string
	IsDir   bool
	Size    int64
	ModTime string // RFC 7231 IMF-fixdate, precomputed so respop never formats time itself
	ETag    string
}

// Root is the default, filesystem-backed capability set. Embedders that
// need an alternative (archive-backed, in-memory) implement
// respop.FileProvider instead of constructing a Root.
type Root struct {
	base string // absolute, cleaned document root
}

// New returns a Root rooted at dir; a relative dir is made absolute against
// the working directory, and dir is cleaned but not otherwise validated (a
// caller passing a file instead of a directory will simply never resolve
// anything beneath it).
func New(dir string) (*Root, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("fsroot: %w", err)
	}
	return &Root{base: filepath.Clean(abs)}, nil
}

// Base returns the root's absolute, cleaned path.
func (r *Root) Base() string { return r.base }

// Resolve implements spec.md §4.4's path resolution: join urlPath to the
// root, canonicalize, and require the result (after following symlinks)
// to remain inside the root. Returns a ResolutionError with status 403 when
// the path (after resolving "." and "..") or its symlink target escapes the
// root or cannot be resolved or stat'ed, and with status 404 when the path
// does not exist.
func (r *Root) Resolve(urlPath string) (*Item, error) {
	joined := filepath.Join(r.base, urlPath)

	if !r.withinBase(joined) {
		return nil, srverr.New(srverr.ResolutionError, 403, "path escapes document root")
	}

	real, err := filepath.EvalSymlinks(joined)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, srverr.New(srverr.ResolutionError, 404, "not found")
		}
		return nil, srverr.Wrap(srverr.ResolutionError, 403, "cannot resolve symlinks", err)
	}
	if !r.withinBase(real) {
		return nil, srverr.New(srverr.ResolutionError, 403, "symlink escapes document root")
	}

	info, err := os.Stat(real)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, srverr.New(srverr.ResolutionError, 404, "not found")
		}
		return nil, srverr.Wrap(srverr.ResolutionError, 403, "cannot stat", err)
	}

	return &Item{
		AbsPath: real,
		IsDir:   info.IsDir(),
		Size:    info.Size(),
		ModTime: info.ModTime().UTC().Format("Mon, 02 Jan 2006 15:04:05 GMT"),
		ETag:    DefaultETag(info),
	}, nil
}

func (r *Root) withinBase(p string) bool {
	p = filepath.Clean(p)
	if p == r.base {
		return true
	}
	return strings.HasPrefix(p, r.base+string(filepath.Separator))
}

// DefaultETag mirrors the original AQHTTPConnection's cheap etag: mtime
// (nanoseconds since epoch) and size, quoted, rather than a content hash.
// See SPEC_FULL.md §5.3.
func DefaultETag(info fs.FileInfo) string {
	return strconv.Quote(strconv.FormatInt(info.ModTime().UnixNano(), 36) + "-" + strconv.FormatInt(info.Size(), 36))
}

// OpenStream opens item sequentially, for the whole-file streaming pump.
func (r *Root) OpenStream(item *Item) (Stream, error) {
	f, err := os.Open(item.AbsPath)
	if err != nil {
		return nil, srverr.Wrap(srverr.IOReadError, 500, "open failed", err)
	}
	return f, nil
}

// OpenRandomAccess opens item for offset/length reads, for range requests.
func (r *Root) OpenRandomAccess(item *Item) (RandomAccess, error) {
	f, err := os.Open(item.AbsPath)
	if err != nil {
		return nil, srverr.Wrap(srverr.IOReadError, 500, "open failed", err)
	}
	return &osRandomAccess{f: f, size: item.Size}, nil
}

type osRandomAccess struct {
	f    *os.File
	size int64
}

func (o *osRandomAccess) Length() int64 { return o.size }

func (o *osRandomAccess) ReadAt(offset, length int64) ([]byte, error) {
	buf := make([]byte, length)
	n, err := o.f.ReadAt(buf, offset)
	if err != nil && err != io.EOF {
		return nil, srverr.Wrap(srverr.IOReadError, 500, "read failed", err)
	}
	return buf[:n], nil
}

func (o *osRandomAccess) Close() error { return o.f.Close() }
