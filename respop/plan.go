package respop

import (
	"github.com/AlanQuatermain/SimpleHTTPServer/fsroot"
	"github.com/AlanQuatermain/SimpleHTTPServer/hdr"
	"github.com/AlanQuatermain/SimpleHTTPServer/srverr"
)

// plan implements spec.md §4.4's status determination, conditional
// handling and body-assembly-strategy selection in one pass, returning
// everything writeResponse needs.
func (op *Operation) plan() (status int, headers hdr.Header, body bodySource) {
	headers = hdr.Header{}
	headers.Set(hdr.Date, nowIMF())
	headers.Set(hdr.ServerHeader, "SimpleHTTPServer")

	item, rerr := op.fp.Resolve(op.req.URL.Path)
	if rerr != nil {
		se, ok := rerr.(*srverr.Error)
		st := 500
		if ok {
			st = se.Status
		}
		return op.errorResponse(st, headers)
	}
	if item.IsDir {
		// spec.md is silent on directory requests; treated as unreadable
		// per §4.4's "Unreadable or outside root -> 403" rather than a
		// missing-file 404, since the path does resolve to something.
		return op.errorResponse(403, headers)
	}

	if op.req.Method != "GET" && op.req.Method != "HEAD" {
		return op.errorResponse(405, headers)
	}

	contentType := op.mime.ContentType(item.AbsPath)
	headers.Set(hdr.Etag, item.ETag)
	headers.Set(hdr.LastModified, item.ModTime)
	headers.Set(hdr.AcceptRanges, "bytes")

	if inm := op.req.Header.Get(hdr.IfNoneMatch); inm != "" && item.ETag != "" && inm == item.ETag {
		out := hdr.Header{}
		out.Set(hdr.Date, headers.Get(hdr.Date))
		out.Set(hdr.Etag, item.ETag)
		return 304, out, nil
	}

	rangeHeader := op.req.Header.Get(hdr.Range)
	if rangeHeader != "" {
		ranges, present := ParseRange(rangeHeader, item.Size)
		if present {
			if len(ranges) == 0 {
				out := hdr.Header{}
				out.Set(hdr.Date, headers.Get(hdr.Date))
				out.Set(hdr.ContentRange, "bytes */"+itoa(item.Size))
				out.Set(hdr.ContentLength, "0")
				return 416, out, nil
			}
			return op.rangedResponse(item, contentType, ranges, headers)
		}
	}

	return op.wholeFileResponse(item, contentType, headers)
}

func (op *Operation) errorResponse(status int, headers hdr.Header) (int, hdr.Header, bodySource) {
	body := errorBody(status)
	headers.Set(hdr.ContentType, "text/html; charset=utf-8")
	headers.Set(hdr.ContentLength, itoa(int64(len(body))))
	if op.req.Method == "HEAD" {
		return status, headers, nil
	}
	return status, headers, inlineBody{data: body}
}

func (op *Operation) wholeFileResponse(item *fsroot.Item, contentType string, headers hdr.Header) (int, hdr.Header, bodySource) {
	headers.Set(hdr.ContentType, contentType)
	headers.Set(hdr.ContentLength, itoa(item.Size))

	if op.req.Method == "HEAD" {
		return 200, headers, nil
	}

	if stream, err := op.fp.OpenStream(item); err == nil {
		return 200, headers, wholeFileStream{stream: stream}
	}
	ra, err := op.fp.OpenRandomAccess(item)
	if err != nil {
		return op.errorResponse(500, headers)
	}
	return 200, headers, wholeFileRandomAccess{ra: ra, size: item.Size}
}

func (op *Operation) rangedResponse(item *fsroot.Item, contentType string, ranges []Range, headers hdr.Header) (int, hdr.Header, bodySource) {
	ra, err := op.fp.OpenRandomAccess(item)
	if err != nil {
		return op.errorResponse(500, headers)
	}

	if len(ranges) == 1 {
		r := ranges[0]
		headers.Set(hdr.ContentType, contentType)
		headers.Set(hdr.ContentRange, "bytes "+itoa(r.Start)+"-"+itoa(r.End-1)+"/"+itoa(item.Size))
		headers.Set(hdr.ContentLength, itoa(r.Length()))
		if op.req.Method == "HEAD" {
			ra.Close()
			return 206, headers, nil
		}
		return 206, headers, singleRange{ra: ra, r: r}
	}

	boundary := newBoundary()
	headers.Set(hdr.ContentType, "multipart/byteranges; boundary="+boundary)
	headers.Set(hdr.ContentLength, itoa(multipartLength(boundary, contentType, ranges, item.Size)))
	if op.req.Method == "HEAD" {
		ra.Close()
		return 206, headers, nil
	}
	return 206, headers, multiRange{ra: ra, ranges: ranges, boundary: boundary, origType: contentType, size: item.Size}
}
