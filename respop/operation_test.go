package respop

import (
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/AlanQuatermain/SimpleHTTPServer/fsroot"
	"github.com/AlanQuatermain/SimpleHTTPServer/hdr"
	"github.com/AlanQuatermain/SimpleHTTPServer/internal/iochan"
	"github.com/AlanQuatermain/SimpleHTTPServer/request"
	"github.com/AlanQuatermain/SimpleHTTPServer/requri"
)

func newTestRoot(t *testing.T) *fsroot.Root {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	big := make([]byte, 1000)
	for i := range big {
		big[i] = byte('a' + i%26)
	}
	if err := os.WriteFile(filepath.Join(dir, "big.bin"), big, 0o644); err != nil {
		t.Fatal(err)
	}
	root, err := fsroot.New(dir)
	if err != nil {
		t.Fatal(err)
	}
	return root
}

func newTestRequest(method, target string) *request.Request {
	u, _ := requri.Parse(target)
	return &request.Request{
		Method:        method,
		RequestTarget: target,
		URL:           u,
		Major:         1,
		Minor:         1,
		Header:        hdr.Header{},
	}
}

// runOperation runs op against a net.Pipe and returns the raw bytes
// written to the socket before the channel is closed.
func runOperation(t *testing.T, op *Operation, ch *iochan.Channel, clientSide net.Conn) []byte {
	t.Helper()
	var got []byte
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		buf := make([]byte, 4096)
		for {
			n, err := clientSide.Read(buf)
			got = append(got, buf[:n]...)
			if err != nil {
				return
			}
		}
	}()

	op.Run()
	ch.Close()
	clientSide.SetReadDeadline(time.Now().Add(2 * time.Second))
	<-readDone
	return got
}

func TestOperationWholeFile(t *testing.T) {
	root := newTestRoot(t)
	serverSide, clientSide := net.Pipe()
	ch := iochan.New(serverSide, func() {})
	req := newTestRequest("GET", "/a.txt")
	op := New(req, ch, root)

	got := runOperation(t, op, ch, clientSide)
	s := string(got)
	if !strings.HasPrefix(s, "HTTP/1.1 200 OK\r\n") {
		t.Fatalf("status line: %q", s)
	}
	if !strings.Contains(s, "Content-Length: 6\r\n") {
		t.Fatalf("missing content-length: %q", s)
	}
	if !strings.HasSuffix(s, "hello\n") {
		t.Fatalf("missing body: %q", s)
	}
	if op.State() != StateCompletedOK {
		t.Fatalf("state = %v", op.State())
	}
}

func TestOperationHeadHasNoBody(t *testing.T) {
	root := newTestRoot(t)
	serverSide, clientSide := net.Pipe()
	ch := iochan.New(serverSide, func() {})
	req := newTestRequest("HEAD", "/a.txt")
	op := New(req, ch, root)

	got := runOperation(t, op, ch, clientSide)
	s := string(got)
	if !strings.Contains(s, "Content-Length: 6\r\n") {
		t.Fatalf("missing content-length: %q", s)
	}
	if strings.HasSuffix(s, "hello\n") {
		t.Fatalf("HEAD response must not include a body: %q", s)
	}
}

func TestOperationMissingFileIs404(t *testing.T) {
	root := newTestRoot(t)
	serverSide, clientSide := net.Pipe()
	ch := iochan.New(serverSide, func() {})
	req := newTestRequest("GET", "/nope.txt")
	op := New(req, ch, root)

	got := runOperation(t, op, ch, clientSide)
	if !strings.HasPrefix(string(got), "HTTP/1.1 404 Not Found\r\n") {
		t.Fatalf("status line: %q", got)
	}
}

func TestOperationPathEscapeIs403(t *testing.T) {
	root := newTestRoot(t)
	serverSide, clientSide := net.Pipe()
	ch := iochan.New(serverSide, func() {})
	req := newTestRequest("GET", "/../../../etc/passwd")
	op := New(req, ch, root)

	got := runOperation(t, op, ch, clientSide)
	if !strings.HasPrefix(string(got), "HTTP/1.1 403 Forbidden\r\n") {
		t.Fatalf("status line: %q", got)
	}
}

func TestOperationUnsupportedMethodIs405(t *testing.T) {
	root := newTestRoot(t)
	serverSide, clientSide := net.Pipe()
	ch := iochan.New(serverSide, func() {})
	req := newTestRequest("DELETE", "/a.txt")
	op := New(req, ch, root)

	got := runOperation(t, op, ch, clientSide)
	if !strings.HasPrefix(string(got), "HTTP/1.1 405 Method Not Allowed\r\n") {
		t.Fatalf("status line: %q", got)
	}
}

func TestOperationIfNoneMatchHit(t *testing.T) {
	root := newTestRoot(t)
	item, err := root.Resolve("/a.txt")
	if err != nil {
		t.Fatal(err)
	}
	serverSide, clientSide := net.Pipe()
	ch := iochan.New(serverSide, func() {})
	req := newTestRequest("GET", "/a.txt")
	req.Header.Set(hdr.IfNoneMatch, item.ETag)
	op := New(req, ch, root)

	got := runOperation(t, op, ch, clientSide)
	s := string(got)
	if !strings.HasPrefix(s, "HTTP/1.1 304 Not Modified\r\n") {
		t.Fatalf("status line: %q", s)
	}
	if strings.Contains(s, "Content-Length") {
		t.Fatalf("304 must not carry Content-Length: %q", s)
	}
}

func TestOperationSingleRange(t *testing.T) {
	root := newTestRoot(t)
	serverSide, clientSide := net.Pipe()
	ch := iochan.New(serverSide, func() {})
	req := newTestRequest("GET", "/big.bin")
	req.Header.Set(hdr.Range, "bytes=100-199")
	op := New(req, ch, root)

	got := runOperation(t, op, ch, clientSide)
	s := string(got)
	if !strings.HasPrefix(s, "HTTP/1.1 206 Partial Content\r\n") {
		t.Fatalf("status line: %q", s)
	}
	if !strings.Contains(s, "Content-Range: bytes 100-199/1000\r\n") {
		t.Fatalf("missing content-range: %q", s)
	}
	if !strings.Contains(s, "Content-Length: 100\r\n") {
		t.Fatalf("missing content-length: %q", s)
	}
}

func TestOperationMultiRange(t *testing.T) {
	root := newTestRoot(t)
	serverSide, clientSide := net.Pipe()
	ch := iochan.New(serverSide, func() {})
	req := newTestRequest("GET", "/big.bin")
	req.Header.Set(hdr.Range, "bytes=0-9, 990-")
	op := New(req, ch, root)

	got := runOperation(t, op, ch, clientSide)
	s := string(got)
	if !strings.HasPrefix(s, "HTTP/1.1 206 Partial Content\r\n") {
		t.Fatalf("status line: %q", s)
	}
	if !strings.Contains(s, "multipart/byteranges; boundary=") {
		t.Fatalf("missing multipart content-type: %q", s)
	}
	if !strings.Contains(s, "Content-Range: bytes 0-9/1000") || !strings.Contains(s, "Content-Range: bytes 990-999/1000") {
		t.Fatalf("missing part content-ranges: %q", s)
	}
}

type recordingObserver struct {
	calls     int
	durations int
}

func (r *recordingObserver) Observe(string, string, int, int64) { r.calls++ }
func (r *recordingObserver) ObserveDuration(string, float64)    { r.durations++ }

func TestOperationReportsDurationWhenObserverSupportsIt(t *testing.T) {
	root := newTestRoot(t)
	serverSide, clientSide := net.Pipe()
	ch := iochan.New(serverSide, func() {})
	req := newTestRequest("GET", "/a.txt")
	obs := &recordingObserver{}
	op := New(req, ch, root, WithObserver(obs))

	runOperation(t, op, ch, clientSide)
	if obs.calls != 1 {
		t.Fatalf("Observe called %d times, want 1", obs.calls)
	}
	if obs.durations != 1 {
		t.Fatalf("ObserveDuration called %d times, want 1", obs.durations)
	}
}

func TestOperationUnsatisfiableRangeIs416(t *testing.T) {
	root := newTestRoot(t)
	serverSide, clientSide := net.Pipe()
	ch := iochan.New(serverSide, func() {})
	req := newTestRequest("GET", "/big.bin")
	req.Header.Set(hdr.Range, "bytes=2000-3000")
	op := New(req, ch, root)

	got := runOperation(t, op, ch, clientSide)
	s := string(got)
	if !strings.HasPrefix(s, "HTTP/1.1 416 Range Not Satisfiable\r\n") {
		t.Fatalf("status line: %q", s)
	}
	if !strings.Contains(s, "Content-Range: bytes */1000\r\n") {
		t.Fatalf("missing content-range: %q", s)
	}
	if strings.Contains(s, "\r\n\r\n") && len(strings.SplitN(s, "\r\n\r\n", 2)[1]) != 0 {
		t.Fatalf("416 must have an empty body: %q", s)
	}
}
