package respop

import (
	"strconv"

	"github.com/google/uuid"
)

// newBoundary returns a fresh ASCII token for multipart/byteranges framing,
// per spec.md §4.4: "a fresh random ASCII token (≥16 chars, [A-Za-z0-9])
// guaranteed not to occur in any part header." A UUIDv4 with its hyphens
// stripped is 32 hex characters, comfortably satisfying both the length
// and alphabet requirements, and collides with part-header text only in
// astronomically unlikely circumstances — good enough that this server
// does not also scan the Content-Type for accidental occurrences.
func newBoundary() string {
	id := uuid.New()
	return "SHS" + stripHyphens(id.String())
}

func stripHyphens(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '-' {
			out = append(out, s[i])
		}
	}
	return string(out)
}

// partHeader renders the per-part framing spec.md §4.4 specifies:
// CRLF--boundary CRLF Content-Type: orig CRLF Content-Range: bytes a-b/len CRLFCRLF
func partHeader(boundary, contentType string, r Range, size int64) []byte {
	s := "\r\n--" + boundary + "\r\n" +
		"Content-Type: " + contentType + "\r\n" +
		"Content-Range: bytes " + strconv.FormatInt(r.Start, 10) + "-" + strconv.FormatInt(r.End-1, 10) + "/" + strconv.FormatInt(size, 10) + "\r\n" +
		"\r\n"
	return []byte(s)
}

// partTrailer is the final closing boundary line.
func partTrailer(boundary string) []byte {
	return []byte("\r\n--" + boundary + "--\r\n")
}

// multipartLength computes the exact envelope + body byte count for the
// response's Content-Length header, without writing anything.
func multipartLength(boundary, contentType string, ranges []Range, size int64) int64 {
	var total int64
	for _, r := range ranges {
		total += int64(len(partHeader(boundary, contentType, r, size)))
		total += r.Length()
	}
	total += int64(len(partTrailer(boundary)))
	return total
}
