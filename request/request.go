/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

// Package request holds the immutable parsed HTTP/1.x message described in
// spec.md §3: method, request-target, version, headers, and optional body.
// Grounded on the field shape of badu-http's types_request.go Request
// struct, trimmed to what a file-serving engine reads — no cookies, no
// multipart form parsing, no TLS state.
package request

import (
	"github.com/AlanQuatermain/SimpleHTTPServer/hdr"
	"github.com/AlanQuatermain/SimpleHTTPServer/requri"
)

// Request is handed to the Connection's dispatch only once its Header is
// finalized; nothing downstream mutates it.
type Request struct {
	Method        string
	RequestTarget string // raw, as it appeared on the wire
	URL           requri.Target
	Major, Minor  int
	Header        hdr.Header
	Body          []byte // exactly Content-Length bytes; nil if absent
}

// ProtoAtLeast reports whether the request's HTTP version is at least
// major.minor, mirroring net/http's Request.ProtoAtLeast.
func (r *Request) ProtoAtLeast(major, minor int) bool {
	return r.Major > major || (r.Major == major && r.Minor >= minor)
}

// KeepAliveRequested applies spec.md §4.3's connection-close policy: HTTP/1.1
// defaults to keep-alive unless the client sends "Connection: close";
// HTTP/1.0 defaults to close unless the client sends "Connection:
// keep-alive".
func (r *Request) KeepAliveRequested() bool {
	conn := r.Header.Get(hdr.Connection)
	switch {
	case equalFold(conn, "close"):
		return false
	case equalFold(conn, "keep-alive"):
		return true
	default:
		return r.ProtoAtLeast(1, 1)
	}
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}
