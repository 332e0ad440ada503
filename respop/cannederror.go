package respop

import (
	"bytes"
	"io"
	"strconv"

	"github.com/AlanQuatermain/SimpleHTTPServer/hdr"
	"github.com/AlanQuatermain/SimpleHTTPServer/internal/iochan"
)

// WriteCannedError writes a self-contained error response with no
// associated Operation or parsed Request, for the connection-level
// failures spec.md §7 names: a malformed request line/headers (ParseError)
// has nothing to build a Request from, so there is no Operation to run.
// Per §7, the body is the usual minimal HTML5 document for 4xx statuses
// and empty for 501; the connection always announces Connection: close,
// since the caller is about to tear the connection down.
func WriteCannedError(ch *iochan.Channel, status int) error {
	var body []byte
	if status != 501 {
		body = errorBody(status)
	}

	var head bytes.Buffer
	head.WriteString("HTTP/1.1 " + strconv.Itoa(status) + " " + statusText(status) + "\r\n")

	h := hdr.Header{}
	h.Set(hdr.Date, nowIMF())
	h.Set(hdr.Connection, "close")
	h.Set(hdr.ContentLength, itoa(int64(len(body))))
	if len(body) > 0 {
		h.Set(hdr.ContentType, "text/html; charset=utf-8")
	}
	_ = h.Write(&head)
	head.WriteString("\r\n")
	head.Write(body)

	return syncWrite(ch, head.Bytes())
}

// syncWrite is the standalone form of Operation.writeAll, for use where
// there is no Operation (and therefore no failed/cancelled state to
// check).
func syncWrite(ch *iochan.Channel, b []byte) error {
	done := make(chan error, 1)
	ch.Write(b, func(unwritten []byte, err error) {
		if err != nil {
			done <- err
			return
		}
		if len(unwritten) > 0 {
			done <- io.ErrShortWrite
			return
		}
		done <- nil
	})
	return <-done
}
