/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

// Package hdr provides a case-insensitive HTTP header map and the
// canonicalization/wire-writing helpers a request/response engine needs.
package hdr

import (
	"io"
	"strings"
	"sync"
	"time"
)

const (
	toLower = 'a' - 'A'

	// Headers used by the file-serving engine. Trimmed to the subset this
	// server actually reads or writes; add more here only when a component
	// needs them.
	Accept           = "Accept"
	AcceptRanges     = "Accept-Ranges"
	CacheControl     = "Cache-Control"
	Connection       = "Connection"
	ContentLength    = "Content-Length"
	ContentRange     = "Content-Range"
	ContentType      = "Content-Type"
	Date             = "Date"
	Etag             = "Etag"
	Host             = "Host"
	IfMatch          = "If-Match"
	IfModifiedSince  = "If-Modified-Since"
	IfNoneMatch      = "If-None-Match"
	IfRange          = "If-Range"
	LastModified     = "Last-Modified"
	Location         = "Location"
	Range            = "Range"
	ServerHeader     = "Server"
	TransferEncoding = "Transfer-Encoding"
	UpgradeHeader    = "Upgrade"
	UserAgent        = "User-Agent"
	Vary             = "Vary"

	TimeFormat = "Mon, 02 Jan 2006 15:04:05 GMT"
)

var (
	timeFormats = []string{
		TimeFormat,
		time.RFC850,
		time.ANSIC,
	}

	// HeaderNewlineToSpace strips line breaks a caller accidentally left in a
	// header value; exported so callers assembling Response Plan headers can
	// reuse the same scrubbing Write does internally.
	HeaderNewlineToSpace = strings.NewReplacer("\n", " ", "\r", " ")

	headerSorterPool = sync.Pool{
		New: func() interface{} { return new(headerSorter) },
	}

	// commonHeader interns common header strings.
	commonHeader = make(map[string]string)

	// isTokenTable is a copy of net/http/lex.go's isTokenTable.
	// See https://httpwg.github.io/specs/rfc7230.html#rule.token.separators
	isTokenTable = [127]bool{
		'0': true, '1': true, '2': true, '3': true, '4': true, '5': true, '6': true, '7': true,
		'8': true, '9': true,

		'a': true, 'b': true, 'c': true, 'd': true, 'e': true, 'f': true, 'g': true, 'h': true,
		'i': true, 'j': true, 'k': true, 'l': true, 'm': true, 'n': true, 'o': true, 'p': true,
		'q': true, 'r': true, 's': true, 't': true, 'u': true, 'v': true, 'w': true, 'x': true,
		'y': true, 'z': true,

		'A': true, 'B': true, 'C': true, 'D': true, 'E': true, 'F': true, 'G': true, 'H': true,
		'I': true, 'J': true, 'K': true, 'L': true, 'M': true, 'N': true, 'O': true, 'P': true,
		'Q': true, 'R': true, 'S': true, 'T': true, 'U': true, 'V': true, 'W': true, 'X': true,
		'Y': true, 'Z': true,

		'!':  true,
		'#':  true,
		'$':  true,
		'%':  true,
		'&':  true,
		'\'': true,
		'*':  true,
		'+':  true,
		'-':  true,
		'.':  true,
		'^':  true,
		'_':  true,
		'`':  true,
		'|':  true,
		'~':  true,
	}
)

type (
	// Header represents the key-value pairs of an HTTP header, keyed by
	// canonical form. Values preserve insertion order and duplicates.
	Header map[string][]string

	// @comment : in "strings" package there is the same thing called stringWriterIface
	writeStringer interface {
		WriteString(string) (int, error)
	}

	// stringWriter implements writeStringer on top of a plain io.Writer.
	stringWriter struct {
		w io.Writer
	}

	keyValues struct {
		key    string
		values []string
	}

	// headerSorter implements sort.Interface by sorting a []keyValues
	// by key. It's used as a pointer, so it can fit in a sort.Interface
	// interface value without allocation.
	headerSorter struct {
		kvs []keyValues
	}
)
