/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

// Package parser implements the incremental HTTP/1.x request parser
// described in spec.md §4.3: fed arbitrarily-sized fragments through a
// reader.Buffer, it moves between StateReadingHeaders, StateReadingBody and
// StateError one Next call at a time (StateHeadersComplete and
// StateMessageComplete are defined but never entered), handing back a
// complete request.Request as soon as the wire has delivered one.
//
// Grounded on the request-line/header scanning badu-http's
// types_request.go readRequest performs in one blocking pass; reworked
// here into a resumable state machine since this server's Reader has no
// blocking Read to lean on — bytes show up in whatever fragments the I/O
// Channel produces.
package parser

import (
	"strconv"
	"strings"

	"github.com/AlanQuatermain/SimpleHTTPServer/hdr"
	"github.com/AlanQuatermain/SimpleHTTPServer/internal/reader"
	"github.com/AlanQuatermain/SimpleHTTPServer/request"
	"github.com/AlanQuatermain/SimpleHTTPServer/requri"
	"github.com/AlanQuatermain/SimpleHTTPServer/srverr"
)

// State is one of the five states spec.md §4.3 names for the parser.
type State int

const (
	StateReadingHeaders State = iota
	StateHeadersComplete
	StateReadingBody
	StateMessageComplete
	StateError
)

// Limits bounds the parser against the open question in spec.md §9(a):
// the source specifies no maximum request-line or header size, so
// implementations must impose one.
type Limits struct {
	MaxRequestLineBytes int // default 8192, -> 414 if exceeded
	MaxHeaderBytes      int // default 65536, -> 431 if exceeded
}

// DefaultLimits matches the values spec.md §9(a) suggests as an example.
func DefaultLimits() Limits {
	return Limits{MaxRequestLineBytes: 8 << 10, MaxHeaderBytes: 64 << 10}
}

// Parser consumes bytes from a reader.Buffer and yields request.Request
// values one wire message at a time.
type Parser struct {
	buf    *reader.Buffer
	limits Limits
	state  State
	sticky *srverr.Error

	// set once the request line + headers for the in-flight message have
	// been parsed, while body bytes are still arriving.
	pending  *request.Request
	bodyWant int64
	bodyGot  []byte
}

// New returns a parser reading from buf.
func New(buf *reader.Buffer, limits Limits) *Parser {
	return &Parser{buf: buf, limits: limits, state: StateReadingHeaders}
}

func (p *Parser) State() State { return p.state }

// Next attempts to extract the next complete message from the buffer. It
// returns (nil, nil) when more bytes are needed; (req, nil) when a full
// message was consumed; (nil, err) on a fatal parse error, after which the
// parser is stuck in StateError and returns the same error forever (callers
// must write the canned response and close the connection, per spec.md §7).
func (p *Parser) Next() (*request.Request, error) {
	if p.state == StateError {
		return nil, p.sticky
	}

	if p.state == StateReadingHeaders {
		req, ok, err := p.tryParseHead()
		if err != nil {
			return p.fail(err)
		}
		if !ok {
			return nil, nil
		}
		p.pending = req
		p.state = StateReadingBody
	}

	if p.state == StateReadingBody {
		if p.bodyWant > 0 {
			chunk := p.buf.Read(int(p.bodyWant))
			p.bodyGot = append(p.bodyGot, chunk...)
			p.bodyWant -= int64(len(chunk))
			if p.bodyWant > 0 {
				return nil, nil
			}
		}
		req := p.pending
		if len(p.bodyGot) > 0 {
			req.Body = p.bodyGot
		}
		p.pending = nil
		p.bodyGot = nil
		p.state = StateReadingHeaders
		return req, nil
	}

	return nil, nil
}

func (p *Parser) fail(err *srverr.Error) (*request.Request, error) {
	p.state = StateError
	p.sticky = err
	return nil, err
}

// tryParseHead looks for the CRLFCRLF header terminator in the buffered
// bytes. It returns ok=false (no error) when the terminator hasn't arrived
// yet and the buffered prefix is still within bounds.
func (p *Parser) tryParseHead() (*request.Request, bool, *srverr.Error) {
	maxHead := p.limits.MaxRequestLineBytes + p.limits.MaxHeaderBytes
	avail := p.buf.Peek(maxHead + 1)

	idx := indexHeaderEnd(avail)
	if idx < 0 {
		if len(avail) > maxHead {
			return nil, false, srverr.New(srverr.ParseError, 431, "request headers too large")
		}
		return nil, false, nil
	}

	// Keep the CRLF that ends the last line; the blank line after it is
	// the terminator.
	headBytes := avail[:idx+2]
	lineEnd := indexCRLF(headBytes)
	if lineEnd < 0 {
		return nil, false, srverr.New(srverr.ParseError, 400, "malformed request line")
	}
	if lineEnd > p.limits.MaxRequestLineBytes {
		return nil, false, srverr.New(srverr.ParseError, 414, "request-line too large")
	}
	if idx-lineEnd > p.limits.MaxHeaderBytes {
		return nil, false, srverr.New(srverr.ParseError, 431, "request headers too large")
	}

	requestLine := string(headBytes[:lineEnd])
	method, target, major, minor, err := parseRequestLine(requestLine)
	if err != nil {
		return nil, false, err
	}

	header := hdr.Header{}
	rest := headBytes[lineEnd+2:]
	for len(rest) > 0 {
		nl := indexCRLF(rest)
		if nl < 0 {
			break
		}
		line := rest[:nl]
		rest = rest[nl+2:]
		if len(line) == 0 {
			continue
		}
		name, value, err := parseHeaderLine(string(line))
		if err != nil {
			return nil, false, err
		}
		header.Add(name, value)
	}

	if te := header.Get(hdr.TransferEncoding); te != "" && !strings.EqualFold(te, "identity") {
		return nil, false, srverr.New(srverr.ProtocolError, 501, "unsupported transfer-encoding: "+te)
	}

	contentLength, err := parseContentLength(header.Get(hdr.ContentLength))
	if err != nil {
		return nil, false, err
	}

	target2, uerr := requri.Parse(target)
	if uerr != nil && target != "*" {
		return nil, false, srverr.New(srverr.ParseError, 400, "malformed request-target")
	}

	// The terminating CRLFCRLF itself (4 bytes) plus the head is consumed
	// now; the body, if any, is consumed incrementally by Next.
	p.buf.Discard(idx + 4)

	req := &request.Request{
		Method:        method,
		RequestTarget: target,
		URL:           target2,
		Major:         major,
		Minor:         minor,
		Header:        header,
	}
	p.bodyWant = contentLength
	p.bodyGot = nil
	return req, true, nil
}

func indexHeaderEnd(b []byte) int {
	return strings.Index(string(b), "\r\n\r\n")
}

func indexCRLF(b []byte) int {
	return strings.Index(string(b), "\r\n")
}

// parseRequestLine parses "METHOD SP request-target SP HTTP/major.minor".
func parseRequestLine(line string) (method, target string, major, minor int, err *srverr.Error) {
	sp1 := strings.IndexByte(line, ' ')
	if sp1 < 0 {
		return "", "", 0, 0, srverr.New(srverr.ParseError, 400, "malformed request line")
	}
	method = line[:sp1]
	rest := line[sp1+1:]
	sp2 := strings.LastIndexByte(rest, ' ')
	if sp2 < 0 {
		return "", "", 0, 0, srverr.New(srverr.ParseError, 400, "malformed request line")
	}
	target = rest[:sp2]
	version := rest[sp2+1:]
	major, minor, ok := parseHTTPVersion(version)
	if !ok {
		return "", "", 0, 0, srverr.New(srverr.ParseError, 400, "malformed HTTP version")
	}
	if !isValidMethodToken(method) {
		return "", "", 0, 0, srverr.New(srverr.ParseError, 400, "malformed method token")
	}
	if target == "" {
		return "", "", 0, 0, srverr.New(srverr.ParseError, 400, "empty request-target")
	}
	return method, target, major, minor, nil
}

func parseHTTPVersion(v string) (major, minor int, ok bool) {
	const prefix = "HTTP/"
	if !strings.HasPrefix(v, prefix) {
		return 0, 0, false
	}
	v = v[len(prefix):]
	dot := strings.IndexByte(v, '.')
	if dot < 0 {
		return 0, 0, false
	}
	maj, err1 := strconv.Atoi(v[:dot])
	min, err2 := strconv.Atoi(v[dot+1:])
	if err1 != nil || err2 != nil || maj < 0 || min < 0 {
		return 0, 0, false
	}
	return maj, min, true
}

func isValidMethodToken(m string) bool {
	if m == "" {
		return false
	}
	for _, r := range m {
		if !hdr.IsTokenRune(r) {
			return false
		}
	}
	return true
}

func parseHeaderLine(line string) (name, value string, err *srverr.Error) {
	colon := strings.IndexByte(line, ':')
	if colon < 0 {
		return "", "", srverr.New(srverr.ParseError, 400, "malformed header line")
	}
	name = line[:colon]
	if !hdr.ValidHeaderFieldName(name) {
		return "", "", srverr.New(srverr.ParseError, 400, "invalid header field name")
	}
	value = hdr.TrimString(line[colon+1:])
	if !hdr.ValidHeaderFieldValue(value) {
		return "", "", srverr.New(srverr.ParseError, 400, "invalid header field value")
	}
	return name, value, nil
}

func parseContentLength(v string) (int64, *srverr.Error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0, srverr.New(srverr.ParseError, 400, "malformed Content-Length")
	}
	return n, nil
}
