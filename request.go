package staticache

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/textproto"
	"net/url"
	"path"
	"strings"
)

// ErrMalformedRequest marks requests that could not be parsed into a
// request line and header block. The connection handler answers these
// with a best-effort 400 before closing.
var ErrMalformedRequest = errors.New("malformed HTTP request")

// Request is the parsed form of one HTTP request: the request line plus
// the header block. No body is ever read, since only GET is served.
// Header names are canonicalized, and on duplicates the last value wins.
type Request struct {
	Method  string
	Path    string
	Proto   string
	Headers map[string]string
}

// Header returns the value of the named header, canonicalizing the name.
func (r *Request) Header(name string) (string, bool) {
	val, ok := r.Headers[textproto.CanonicalMIMEHeaderKey(name)]
	return val, ok
}

// readRequest consumes bytes from r up to and including the blank line
// that terminates the header block. io.EOF is returned unwrapped only
// for a clean disconnect, i.e. when no bytes were sent at all.
func readRequest(r io.Reader) ([]byte, error) {
	buf := make([]byte, 1024)
	var data []byte
	for {
		n, err := r.Read(buf)
		data = append(data, buf[:n]...)
		if bytes.Contains(data, []byte("\r\n\r\n")) || bytes.Contains(data, []byte("\n\n")) {
			return data, nil
		}
		if err == io.EOF {
			if len(data) == 0 {
				return nil, io.EOF
			}
			return data, fmt.Errorf("%w: connection closed before end of headers", ErrMalformedRequest)
		}
		if err != nil {
			return data, err
		}
	}
}

// parseRequest turns the raw header block into a Request. Whether the
// declared protocol version is supported is not checked here: an
// unsupported version must still produce a well-formed 505 response,
// so that policy decision belongs to the response builder.
func parseRequest(data []byte) (*Request, error) {
	head := string(data)
	if i := strings.Index(head, "\r\n\r\n"); i >= 0 {
		head = head[:i]
	} else if i := strings.Index(head, "\n\n"); i >= 0 {
		head = head[:i]
	}

	lines := strings.Split(head, "\r\n")
	if len(lines) == 1 {
		lines = strings.Split(head, "\n")
	}

	fields := strings.Fields(lines[0])
	if len(fields) != 3 {
		return nil, fmt.Errorf("%w: request line %q", ErrMalformedRequest, lines[0])
	}

	target := fields[1]
	if i := strings.IndexByte(target, '?'); i >= 0 {
		target = target[:i]
	}
	target, err := url.PathUnescape(target)
	if err != nil {
		return nil, fmt.Errorf("%w: request target %q", ErrMalformedRequest, fields[1])
	}

	req := &Request{
		Method:  fields[0],
		Path:    target,
		Proto:   fields[2],
		Headers: make(map[string]string, len(lines)-1),
	}
	for _, line := range lines[1:] {
		if line == "" {
			continue
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("%w: header line %q", ErrMalformedRequest, line)
		}
		req.Headers[textproto.CanonicalMIMEHeaderKey(strings.TrimSpace(name))] = strings.TrimSpace(value)
	}
	return req, nil
}

// normalizePath turns a decoded request target into a filesystem-relative
// path under the document root. Paths that would escape the root after
// cleaning are rejected; the caller answers those with 404, which is all
// an outside observer may learn about files it cannot name.
func normalizePath(target string) (string, bool) {
	p := path.Clean(strings.TrimPrefix(target, "/"))
	if p == ".." || strings.HasPrefix(p, "../") {
		return "", false
	}
	return p, true
}
