package staticache

import (
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func startServer(t *testing.T, config Config) string {
	t.Helper()
	if config.Logger == nil {
		nop := zerolog.Nop()
		config.Logger = &nop
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })
	go CreateServer(config).Serve(ln)
	return ln.Addr().String()
}

func startFileServer(t *testing.T, files map[string]string, locked []string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return startServer(t, Config{Root: dir, Locked: locked})
}

// doRaw writes one raw request and reads the connection to EOF.
func doRaw(t *testing.T, addr, raw string) string {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))
	if _, err := conn.Write([]byte(raw)); err != nil {
		t.Fatal(err)
	}
	response, err := io.ReadAll(conn)
	if err != nil {
		t.Fatal(err)
	}
	return string(response)
}

func TestServeOverSocket(t *testing.T) {
	addr := startFileServer(t, map[string]string{"test.html": testPage}, nil)

	response := doRaw(t, addr, "GET /test.html HTTP/1.1\r\nHost: "+addr+"\r\n\r\n")

	if !strings.HasPrefix(response, "HTTP/1.1 200 OK\r\n") {
		t.Fatalf("Response is %q", response)
	}
	if !strings.HasSuffix(response, "\r\n\r\n"+testPage) {
		t.Fatalf("Response is %q", response)
	}
	if !strings.Contains(response, fmt.Sprintf("Content-Length: %d\r\n", len(testPage))) {
		t.Fatalf("Response is %q", response)
	}
}

func TestConditionalGetOverSocket(t *testing.T) {
	addr := startFileServer(t, map[string]string{"test.html": testPage}, nil)

	first := doRaw(t, addr, "GET /test.html HTTP/1.1\r\n\r\n")
	var lastModified string
	for _, line := range strings.Split(first, "\r\n") {
		if strings.HasPrefix(line, "Last-Modified: ") {
			lastModified = strings.TrimPrefix(line, "Last-Modified: ")
		}
	}
	if lastModified == "" {
		t.Fatalf("No Last-Modified in %q", first)
	}

	second := doRaw(t, addr, "GET /test.html HTTP/1.1\r\nIf-Modified-Since: "+lastModified+"\r\n\r\n")
	if !strings.HasPrefix(second, "HTTP/1.1 304 Not Modified\r\n") {
		t.Fatalf("Response is %q", second)
	}
	if !strings.Contains(second, "Content-Length: 0\r\n") {
		t.Fatalf("Response is %q", second)
	}
	if !strings.HasSuffix(second, "\r\n\r\n") {
		t.Fatalf("304 carried a body: %q", second)
	}
}

func TestErrorStatusesOverSocket(t *testing.T) {
	addr := startFileServer(t, map[string]string{"test.html": testPage}, []string{"locked.html"})

	cases := []struct {
		request string
		status  string
		body    string
	}{
		{"GET /locked.html HTTP/1.1\r\n\r\n", "HTTP/1.1 403 Forbidden", "403 Forbidden: Access Denied\n"},
		{"GET /no_such_file.html HTTP/1.1\r\n\r\n", "HTTP/1.1 404 Not Found", "File Not Found\n"},
		{"GET /test.html HTTP/1.0\r\n\r\n", "HTTP/1.1 505 HTTP Version Not Supported", "HTTP Version Not Supported\n"},
		{"GARBAGE\r\n\r\n", "HTTP/1.1 400 Bad Request", "Bad Request\n"},
	}
	for _, c := range cases {
		response := doRaw(t, addr, c.request)
		if !strings.HasPrefix(response, c.status+"\r\n") {
			t.Fatalf("Response to %q is %q", c.request, response)
		}
		if !strings.HasSuffix(response, "\r\n\r\n"+c.body) {
			t.Fatalf("Response to %q is %q", c.request, response)
		}
	}
}

func TestConcurrentRequestsSameUncachedPath(t *testing.T) {
	addr := startFileServer(t, map[string]string{"test.html": testPage}, nil)

	var wg sync.WaitGroup
	responses := make([]string, 8)
	for i := range responses {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			responses[i] = doRaw(t, addr, "GET /test.html HTTP/1.1\r\n\r\n")
		}(i)
	}
	wg.Wait()

	for i, response := range responses {
		if !strings.HasPrefix(response, "HTTP/1.1 200 OK\r\n") {
			t.Fatalf("Response %d is %q", i, response)
		}
		if !strings.HasSuffix(response, "\r\n\r\n"+testPage) {
			t.Fatalf("Response %d is %q", i, response)
		}
	}
}

func TestWorkerPoolServes(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "test.html"), []byte(testPage), 0644); err != nil {
		t.Fatal(err)
	}
	addr := startServer(t, Config{Root: dir, Workers: 2, QueueSize: 8})

	for i := 0; i < 4; i++ {
		response := doRaw(t, addr, "GET /test.html HTTP/1.1\r\n\r\n")
		if !strings.HasPrefix(response, "HTTP/1.1 200 OK\r\n") {
			t.Fatalf("Response is %q", response)
		}
	}
}

func TestQueueFullAnswers503(t *testing.T) {
	addr := startServer(t, Config{Root: t.TempDir(), Workers: 1, QueueSize: 1})

	// occupy the single worker with a connection that never sends
	idle1, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	defer idle1.Close()
	time.Sleep(100 * time.Millisecond)

	// fill the one queue slot the same way
	idle2, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	defer idle2.Close()
	time.Sleep(100 * time.Millisecond)

	response := doRaw(t, addr, "GET /test.html HTTP/1.1\r\n\r\n")
	if !strings.HasPrefix(response, "HTTP/1.1 503 Service Unavailable\r\n") {
		t.Fatalf("Response is %q", response)
	}
	if !strings.HasSuffix(response, "\r\n\r\n"+"Service Unavailable\n") {
		t.Fatalf("Response is %q", response)
	}
}
