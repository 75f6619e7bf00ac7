package mediastream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ConnHandler runs one accepted call stream. It must return when the
// stream ends; the server closes the Conn afterwards.
type ConnHandler func(ctx context.Context, conn *Conn)

// ServerConfig configures the telephony-facing HTTP server.
type ServerConfig struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string

	// PublicHost is the externally reachable host[:port] advertised in
	// the answer TwiML. Empty means use the webhook request's Host.
	PublicHost string

	// StreamParameters are extra key/value pairs the provider echoes
	// back in the start frame's customParameters.
	StreamParameters map[string]string

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Server hosts the two provider-facing endpoints: the answer webhook
// (POST /voice/answer) returning TwiML, and the media stream WebSocket
// (/voice/stream). Each accepted stream runs its handler on its own
// goroutine.
type Server struct {
	cfg     ServerConfig
	handler ConnHandler
	log     *slog.Logger
	up      websocket.Upgrader
	httpSrv *http.Server
	wg      sync.WaitGroup

	mu      sync.Mutex
	baseCtx context.Context
	conns   map[*Conn]struct{}
}

// NewServer builds a Server; call Run to serve.
func NewServer(cfg ServerConfig, handler ConnHandler) *Server {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		cfg:     cfg,
		handler: handler,
		log:     log,
		up: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		conns: make(map[*Conn]struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/voice/answer", s.handleAnswer)
	mux.HandleFunc("/voice/stream", s.handleStream)
	s.httpSrv = &http.Server{Addr: cfg.Addr, Handler: mux}
	return s
}

// Handler exposes the HTTP routes, for serving under an outer mux or
// in tests.
func (s *Server) Handler() http.Handler { return s.httpSrv.Handler }

// Run serves until ctx is cancelled, then stops accepting, closes the
// remaining streams and waits for their handlers to return.
func (s *Server) Run(ctx context.Context) error {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("mediastream: listen %s: %w", s.cfg.Addr, err)
	}
	s.log.Info("telephony listener up", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("mediastream: serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.httpSrv.Shutdown(shutdownCtx)

	// Shutdown does not touch hijacked WebSockets; close them so
	// blocked reads unwind.
	s.mu.Lock()
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	fmt.Fprintln(w, "ringlet telephony bridge")
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	host := s.cfg.PublicHost
	if host == "" {
		host = r.Host
	}

	doc, err := ConnectStreamTwiML("wss://"+host+"/voice/stream", s.cfg.StreamParameters)
	if err != nil {
		s.log.Error("answer webhook failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/xml")
	_, _ = w.Write(doc)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	ws, err := s.up.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		s.log.Warn("stream upgrade rejected", "remote", r.RemoteAddr, "error", err)
		return
	}

	conn := NewConn(ws)
	s.mu.Lock()
	ctx := s.baseCtx
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	s.log.Info("stream accepted", "remote", conn.RemoteAddr())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			_ = conn.Close()
			s.mu.Lock()
			delete(s.conns, conn)
			s.mu.Unlock()
		}()
		s.handler(ctx, conn)
	}()
}
