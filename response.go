package staticache

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	httpdate "github.com/staticache/staticache/pkg/http-date"
)

// serverProduct is the fixed product token sent in the Server header.
const serverProduct = "staticache/1.0"

// Exact response bodies, trailing newline included. Content-Length
// covers the newline.
const (
	bodyBadRequest          = "Bad Request\n"
	bodyForbidden           = "403 Forbidden: Access Denied\n"
	bodyNotFound            = "File Not Found\n"
	bodyServiceUnavailable  = "Service Unavailable\n"
	bodyVersionNotSupported = "HTTP Version Not Supported\n"
)

// Response is the ephemeral output for one request, serialized once and
// discarded after it is written to the client.
type Response struct {
	StatusCode   int
	ContentType  string    // empty means no Content-Type header
	LastModified time.Time // zero means no Last-Modified header
	Body         []byte
}

func errorResponse(code int, body string) *Response {
	return &Response{
		StatusCode:  code,
		ContentType: "text/plain; charset=utf-8",
		Body:        []byte(body),
	}
}

// build selects the response for a parsed request. Decision order, first
// match wins: unsupported protocol version, non-GET method, then the
// cache lookup outcome.
func (s *Server) build(req *Request) *Response {
	if req.Proto != "HTTP/1.1" {
		return errorResponse(http.StatusHTTPVersionNotSupported, bodyVersionNotSupported)
	}

	// Only GET names a servable resource; every other method falls
	// through to 404 rather than 501 or 405.
	p, ok := normalizePath(req.Path)
	if req.Method != "GET" || !ok {
		return errorResponse(http.StatusNotFound, bodyNotFound)
	}

	entry, result := s.files.Lookup(p)
	switch result {
	case LookupLocked:
		return errorResponse(http.StatusForbidden, bodyForbidden)
	case LookupMiss:
		return errorResponse(http.StatusNotFound, bodyNotFound)
	}

	if ims, ok := req.Header("If-Modified-Since"); ok {
		// An unparseable date means the client condition cannot hold,
		// so the file is served as if modified.
		if since, err := httpdate.Parse(ims); err == nil && !since.Before(entry.LastModified) {
			return &Response{StatusCode: http.StatusNotModified}
		}
	}

	return &Response{
		StatusCode:   http.StatusOK,
		ContentType:  entry.ContentType,
		LastModified: entry.LastModified,
		Body:         entry.Body,
	}
}

// Bytes serializes the complete response with the current time as the
// Date header. Header order is fixed: Date, Server, Content-Type,
// Content-Length, Last-Modified, Connection.
func (r *Response) Bytes() []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "HTTP/1.1 %d %s\r\n", r.StatusCode, http.StatusText(r.StatusCode))
	fmt.Fprintf(&b, "Date: %s\r\n", httpdate.Format(time.Now()))
	fmt.Fprintf(&b, "Server: %s\r\n", serverProduct)
	if r.ContentType != "" {
		fmt.Fprintf(&b, "Content-Type: %s\r\n", r.ContentType)
	}
	fmt.Fprintf(&b, "Content-Length: %d\r\n", len(r.Body))
	if !r.LastModified.IsZero() {
		fmt.Fprintf(&b, "Last-Modified: %s\r\n", httpdate.Format(r.LastModified))
	}
	b.WriteString("Connection: close\r\n\r\n")
	b.Write(r.Body)
	return b.Bytes()
}
