package parser

import (
	"testing"

	"github.com/AlanQuatermain/SimpleHTTPServer/internal/reader"
)

func TestParserSingleRequest(t *testing.T) {
	var buf reader.Buffer
	buf.Append([]byte("GET /a.txt HTTP/1.1\r\nHost: x\r\n\r\n"))

	p := New(&buf, DefaultLimits())
	req, err := p.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req == nil {
		t.Fatalf("expected a parsed request, got nil")
	}
	if req.Method != "GET" || req.RequestTarget != "/a.txt" || req.Major != 1 || req.Minor != 1 {
		t.Fatalf("got %+v", req)
	}
	if req.Header.Get("Host") != "x" {
		t.Fatalf("Host header = %q", req.Header.Get("Host"))
	}
}

func TestParserFedByteAtATime(t *testing.T) {
	msg := "GET /a.txt HTTP/1.1\r\nHost: x\r\n\r\n"
	var buf reader.Buffer
	p := New(&buf, DefaultLimits())

	var result = struct{ done bool }{}
	for i := 0; i < len(msg); i++ {
		buf.Append([]byte{msg[i]})
		r, err := p.Next()
		if err != nil {
			t.Fatalf("unexpected error at byte %d: %v", i, err)
		}
		if r != nil {
			if i != len(msg)-1 {
				t.Fatalf("parser completed early, at byte %d of %d", i, len(msg))
			}
			result.done = true
		}
	}
	if !result.done {
		t.Fatalf("parser never completed")
	}
}

func TestParserPipelinedRequests(t *testing.T) {
	var buf reader.Buffer
	buf.Append([]byte("GET /a.txt HTTP/1.1\r\n\r\nGET /b.txt HTTP/1.1\r\n\r\n"))

	p := New(&buf, DefaultLimits())
	first, err := p.Next()
	if err != nil || first == nil || first.RequestTarget != "/a.txt" {
		t.Fatalf("first = %+v, err = %v", first, err)
	}
	second, err := p.Next()
	if err != nil || second == nil || second.RequestTarget != "/b.txt" {
		t.Fatalf("second = %+v, err = %v", second, err)
	}
	third, err := p.Next()
	if err != nil || third != nil {
		t.Fatalf("expected no third message, got %+v, err=%v", third, err)
	}
}

func TestParserRequestWithBody(t *testing.T) {
	var buf reader.Buffer
	buf.Append([]byte("POST /a.txt HTTP/1.1\r\nContent-Length: 5\r\n\r\nhel"))

	p := New(&buf, DefaultLimits())
	req, err := p.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req != nil {
		t.Fatalf("expected nil (body incomplete), got %+v", req)
	}

	buf.Append([]byte("lo"))
	req, err = p.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req == nil || string(req.Body) != "hello" {
		t.Fatalf("req = %+v", req)
	}
}

func TestParserRejectsChunkedTransferEncoding(t *testing.T) {
	var buf reader.Buffer
	buf.Append([]byte("POST /a.txt HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n"))

	p := New(&buf, DefaultLimits())
	_, err := p.Next()
	if err == nil {
		t.Fatalf("expected ProtocolError for chunked transfer-encoding")
	}
}

func TestParserRejectsMalformedRequestLine(t *testing.T) {
	var buf reader.Buffer
	buf.Append([]byte("GET /a.txt\r\n\r\n"))

	p := New(&buf, DefaultLimits())
	_, err := p.Next()
	if err == nil {
		t.Fatalf("expected ParseError for malformed request line")
	}
	// Sticky: once in error state, every subsequent call returns the same error.
	_, err2 := p.Next()
	if err2 == nil || err2.Error() != err.Error() {
		t.Fatalf("expected sticky error, got %v then %v", err, err2)
	}
}

func TestParserRejectsOversizedRequestLine(t *testing.T) {
	var buf reader.Buffer
	longTarget := make([]byte, 9000)
	for i := range longTarget {
		longTarget[i] = 'a'
	}
	buf.Append([]byte("GET /"))
	buf.Append(longTarget)
	buf.Append([]byte(" HTTP/1.1\r\n\r\n"))

	limits := Limits{MaxRequestLineBytes: 8192, MaxHeaderBytes: 65536}
	p := New(&buf, limits)
	_, err := p.Next()
	if err == nil {
		t.Fatalf("expected error for oversized request line")
	}
}
