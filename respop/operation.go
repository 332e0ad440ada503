// Package respop implements the Response Operation of spec.md §4.4: given
// a parsed request and a channel to write on, it determines a status,
// assembles headers, handles If-None-Match conditionals, and streams the
// body using one of three strategies (whole file, single range, multipart
// byteranges).
//
// Grounded on badu-http's filetransport/file_handler.go and
// filetransport/file_transport.go for the status-determination and
// streaming-pump shape, and on response.go/response_server.go for header
// assembly; reworked from a single blocking io.Copy into the
// write_all/suspension-point model spec.md §4.4 and §5 require, since
// this server's only path to the socket is the asynchronous iochan.Channel.
package respop

import (
	"bytes"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/AlanQuatermain/SimpleHTTPServer/fsroot"
	"github.com/AlanQuatermain/SimpleHTTPServer/hdr"
	"github.com/AlanQuatermain/SimpleHTTPServer/internal/iochan"
	"github.com/AlanQuatermain/SimpleHTTPServer/mimetype"
	"github.com/AlanQuatermain/SimpleHTTPServer/request"
	"github.com/AlanQuatermain/SimpleHTTPServer/serverlog"
	"go.uber.org/zap"
)

// State is one of the five operation states spec.md §4.4 names.
type State int

const (
	StatePending State = iota
	StateRunning
	StateCompletedOK
	StateCompletedFailed
	StateCancelled
)

const streamChunkSize = 32 << 10

// FileProvider is the filesystem capability set a Response Operation
// consumes; *fsroot.Root satisfies it directly, and an embedder can supply
// an alternative (archive-backed, in-memory) implementation instead.
type FileProvider interface {
	Resolve(urlPath string) (*fsroot.Item, error)
	OpenStream(item *fsroot.Item) (fsroot.Stream, error)
	OpenRandomAccess(item *fsroot.Item) (fsroot.RandomAccess, error)
}

// Observer is notified once per completed operation, the hook metrics and
// access logging attach to.
type Observer interface {
	Observe(method, path string, status int, bytesWritten int64)
}

// DurationObserver is an optional extension an Observer may also implement
// to receive the wall-clock duration of Run. Checked via a type assertion
// so the base Observer contract stays minimal for embedders that don't
// care about latency.
type DurationObserver interface {
	ObserveDuration(method string, seconds float64)
}

type noopObserver struct{}

func (noopObserver) Observe(string, string, int, int64) {}

// Option configures an Operation at construction time.
type Option func(*Operation)

// WithMIMELookup overrides the default extension table.
func WithMIMELookup(l mimetype.Lookup) Option {
	return func(op *Operation) { op.mime = l }
}

// WithLogger attaches a session logger.
func WithLogger(l serverlog.Logger) Option {
	return func(op *Operation) { op.log = l }
}

// WithObserver attaches a completion observer (access log, metrics).
func WithObserver(o Observer) Option {
	return func(op *Operation) { op.obs = o }
}

// Operation is a single Response Operation, per spec.md §4.4's public
// contract: new(request, channel, ranges?, connection), run(), cancel().
type Operation struct {
	req *request.Request
	ch  *iochan.Channel
	fp  FileProvider

	mime mimetype.Lookup
	log  serverlog.Logger
	obs  Observer

	mu        sync.Mutex
	state     State
	cancelled bool
	failed    bool
}

// New constructs a pending Operation for req, writing to ch, resolving
// paths through fp.
func New(req *request.Request, ch *iochan.Channel, fp FileProvider, opts ...Option) *Operation {
	op := &Operation{
		req:   req,
		ch:    ch,
		fp:    fp,
		mime:  mimetype.Default{},
		log:   serverlog.NewNop(),
		obs:   noopObserver{},
		state: StatePending,
	}
	for _, o := range opts {
		o(op)
	}
	return op
}

// Cancel marks the operation Cancelled; if Running, its next write_all
// returns an error and Run unwinds.
func (op *Operation) Cancel() {
	op.mu.Lock()
	defer op.mu.Unlock()
	op.cancelled = true
}

func (op *Operation) isCancelled() bool {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.cancelled
}

// State reports the operation's current lifecycle state.
func (op *Operation) State() State {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.state
}

// Failed reports whether writing the response failed: a socket write
// error, a file read error part-way through the body, or cancellation. The
// owning Connection closes when it is true.
func (op *Operation) Failed() bool {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.failed
}

func (op *Operation) setState(s State) {
	op.mu.Lock()
	op.state = s
	op.mu.Unlock()
}

// Run is the body of the operation, invoked by the connection's serial
// response queue. It returns once the response is fully written or an
// unrecoverable error occurs.
func (op *Operation) Run() {
	op.setState(StateRunning)
	started := time.Now()

	status, headers, body := op.plan()
	bytesWritten, ok := op.writeResponse(status, headers, body)

	if d, isDurationObserver := op.obs.(DurationObserver); isDurationObserver {
		d.ObserveDuration(op.req.Method, time.Since(started).Seconds())
	}

	if op.isCancelled() {
		op.setState(StateCancelled)
	} else if ok {
		op.setState(StateCompletedOK)
	} else {
		op.setState(StateCompletedFailed)
	}
	op.obs.Observe(op.req.Method, op.req.URL.Path, status, bytesWritten)
	op.log.Debug("response operation complete",
		zap.String("method", op.req.Method),
		zap.String("path", op.req.URL.Path),
		zap.Int("status", status),
		zap.Int64("bytes", bytesWritten))
}

// writeResponse writes the status line, headers and body (if any),
// returning the number of body bytes written and whether every write
// succeeded.
func (op *Operation) writeResponse(status int, headers hdr.Header, body bodySource) (int64, bool) {
	var head bytes.Buffer
	head.WriteString("HTTP/1.1 " + strconv.Itoa(status) + " " + statusText(status) + "\r\n")
	_ = headers.Write(&head)
	head.WriteString("\r\n")

	if err := op.writeAll(head.Bytes()); err != nil {
		op.markFailed()
		return 0, false
	}
	if body == nil {
		return 0, true
	}
	n, err := body.write(op)
	if err != nil {
		op.markFailed()
		return n, false
	}
	return n, true
}

func (op *Operation) markFailed() {
	op.mu.Lock()
	op.failed = true
	op.mu.Unlock()
}

// writeAll implements spec.md §4.4's synthetic-synchronous write: it
// submits b to the channel and blocks the calling goroutine (the
// connection's serial response-queue worker) until the channel reports
// completion of that exact write. Once the operation has been marked
// failed, every subsequent call returns errPriorWriteFailed immediately
// without touching the channel.
func (op *Operation) writeAll(b []byte) error {
	if op.Failed() {
		return errPriorWriteFailed
	}
	if op.isCancelled() {
		return errCancelled
	}
	if len(b) == 0 {
		return nil
	}
	return syncWrite(op.ch, b)
}

var (
	errPriorWriteFailed = errors.New("respop: operation already failed")
	errCancelled        = errors.New("respop: operation cancelled")
)
