// Package staticache implements a small concurrent HTTP/1.1 server that
// serves static files from a document root through a cache validated by
// Last-Modified / If-Modified-Since semantics.
package staticache

import (
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/staticache/staticache/cache"
)

type Config struct {
	// Directory to serve files from.
	Root string
	// Paths that always answer 403 Forbidden, regardless of cache and
	// filesystem state. Fixed at startup.
	Locked []string
	// Storage for cache entries. An in-memory provider is used if nil.
	Cache cache.CacheProvider
	// Logger to use. The global zerolog logger is used if nil.
	Logger *zerolog.Logger
	// Number of worker goroutines. Zero means one goroutine per
	// connection with no admission limit.
	Workers int
	// Length of the accepted-connection queue in worker-pool mode.
	// Connections arriving on a full queue are answered with 503.
	QueueSize int
}

// Server owns the listening loop, the connection handlers and the shared
// file cache. A single Server may serve multiple listeners.
type Server struct {
	files     *FileCache
	root      *DocRoot
	log       zerolog.Logger
	workers   int
	queueSize int
}

// CreateServer initializes the server instance and sets up the needed
// variables. It does not bind any socket.
func CreateServer(config Config) *Server {
	var logger zerolog.Logger
	if config.Logger == nil {
		logger = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		logger = *config.Logger
	}
	logger = logger.With().Str("root", config.Root).Logger()

	provider := config.Cache
	if provider == nil {
		provider = cache.NewMemCache()
	}
	root := NewDocRoot(config.Root)

	queueSize := config.QueueSize
	if config.Workers > 0 && queueSize == 0 {
		queueSize = 256
	}

	return &Server{
		files:     NewFileCache(provider, root, config.Locked, logger),
		root:      root,
		log:       logger,
		workers:   config.Workers,
		queueSize: queueSize,
	}
}

// ListenAndServe binds the given address and port and serves until the
// listener fails.
func (s *Server) ListenAndServe(addr string, port int) error {
	ln, err := net.Listen("tcp", net.JoinHostPort(addr, strconv.Itoa(port)))
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until it is closed. Each accepted
// connection is dispatched to its own goroutine, or queued for the
// worker pool when one is configured; the accept loop itself never
// blocks on request processing.
func (s *Server) Serve(ln net.Listener) error {
	s.log.Info().Str("addr", ln.Addr().String()).Msg("Server is listening for requests")

	var queue chan net.Conn
	if s.workers > 0 {
		queue = make(chan net.Conn, s.queueSize)
		for i := 0; i < s.workers; i++ {
			go s.worker(queue)
		}
	}

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			s.log.Error().Err(err).Msg("Accept failed")
			continue
		}
		if queue == nil {
			go s.handleConn(conn)
			continue
		}
		select {
		case queue <- conn:
		default:
			// Queue full: answer 503 gracefully instead of resetting
			// the client.
			s.log.Warn().Str("remote", conn.RemoteAddr().String()).Msg("Connection queue full, responding 503")
			s.reject(conn)
		}
	}
}

func (s *Server) worker(queue <-chan net.Conn) {
	for conn := range queue {
		s.handleConn(conn)
	}
}

func (s *Server) reject(conn net.Conn) {
	if _, err := conn.Write(errorResponse(http.StatusServiceUnavailable, bodyServiceUnavailable).Bytes()); err != nil {
		s.log.Debug().Err(err).Msg("Could not write 503 to client")
	}
	// Half-close and drain whatever the client had in flight, so the
	// 503 arrives instead of a reset.
	if tc, ok := conn.(*net.TCPConn); ok {
		tc.CloseWrite()
	}
	conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	io.Copy(io.Discard, conn)
	if err := conn.Close(); err != nil {
		s.log.Debug().Err(err).Msg("Close failed")
	}
}

// handleConn owns one client connection end to end: read the request
// bytes, parse, build, write the response, close. The connection is
// closed exactly once on every path.
func (s *Server) handleConn(conn net.Conn) {
	log := s.log.With().Str("remote", conn.RemoteAddr().String()).Logger()
	defer func() {
		if err := conn.Close(); err != nil {
			log.Debug().Err(err).Msg("Close failed")
		}
	}()

	data, err := readRequest(conn)
	if err == io.EOF {
		log.Debug().Msg("Client closed connection without sending a request")
		return
	}

	var req *Request
	if err == nil {
		req, err = parseRequest(data)
	}

	var res *Response
	switch {
	case err == nil:
		res = s.build(req)
	case errors.Is(err, ErrMalformedRequest):
		log.Debug().Err(err).Msg("Malformed request")
		res = errorResponse(http.StatusBadRequest, bodyBadRequest)
	default:
		// Socket-level failure: the channel to the client is gone, so
		// no response is possible.
		log.Debug().Err(err).Msg("Read failed")
		return
	}

	if _, err := conn.Write(res.Bytes()); err != nil {
		log.Debug().Err(err).Msg("Could not write response to client")
		return
	}
	if req != nil {
		log.Debug().
			Str("method", req.Method).
			Str("path", req.Path).
			Str("proto", req.Proto).
			Int("status", res.StatusCode).
			Msg("Sending response to client")
	}

	// Half-close the write side first so the client sees a clean EOF
	// rather than a reset.
	if tc, ok := conn.(*net.TCPConn); ok {
		if err := tc.CloseWrite(); err != nil {
			log.Debug().Err(err).Msg("Half-close failed")
		}
	}
}
