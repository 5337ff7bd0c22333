package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bryanchriswhite/hopper/internal/daemon"
	herrors "github.com/bryanchriswhite/hopper/internal/errors"
	"github.com/bryanchriswhite/hopper/internal/logger"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"golang.org/x/sys/unix"
)

const (
	writeTimeout    = 5 * time.Second
	shutdownTimeout = 2 * time.Second
	maxRequestBytes = 64 << 10
)

// Commander is the part of the daemon the server drives
type Commander interface {
	Submit(ctx context.Context, ev daemon.Event) (daemon.Snapshot, error)
	Snapshot() daemon.Snapshot
	Subscribe() (<-chan daemon.Snapshot, func())
}

// Server exposes the daemon over HTTP on a unix socket
type Server struct {
	router   *mux.Router
	daemon   Commander
	upgrader websocket.Upgrader
	version  string
}

// NewServer creates a new API server
func NewServer(d Commander, version string) *Server {
	s := &Server{
		router:  mux.NewRouter(),
		daemon:  d,
		version: version,
		upgrader: websocket.Upgrader{
			// Only local processes can reach the socket
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	v1 := s.router.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/command", s.handleCommand).Methods("POST")
	v1.HandleFunc("/state", s.handleState).Methods("GET")
	v1.HandleFunc("/stream", s.handleStream)

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, ErrorResponse(
			herrors.Newf(herrors.ErrCodeInvalidCommand, "no route %s %s", r.Method, r.URL.Path), nil))
	})
}

// Handler returns the routed handler, for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Listener is the bound daemon socket together with its instance lock
type Listener struct {
	net.Listener
	path string
	lock *os.File
	once sync.Once
}

// Listen takes the single-instance lock and binds the socket. A second
// daemon fails here with TRANSPORT_BIND_CONFLICT and leaves the running
// daemon's socket untouched.
func Listen(socketPath string) (*Listener, error) {
	log := logger.WithComponent("api")

	if err := os.MkdirAll(filepath.Dir(socketPath), 0o700); err != nil {
		return nil, herrors.Wrap(err, herrors.ErrCodeInternal, "failed to create socket directory")
	}

	lock, err := os.OpenFile(socketPath+".lock", os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, herrors.Wrap(err, herrors.ErrCodeInternal, "failed to open lock file")
	}
	if err := unix.Flock(int(lock.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		lock.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, herrors.New(herrors.ErrCodeTransportBindConflict, "another daemon is already running").
				WithDetail("socket", socketPath)
		}
		return nil, herrors.Wrap(err, herrors.ErrCodeInternal, "failed to lock socket")
	}
	unlock := func() {
		unix.Flock(int(lock.Fd()), unix.LOCK_UN)
		lock.Close()
	}

	// Holding the lock means any existing socket file is stale
	if err := os.Remove(socketPath); err != nil && !os.IsNotExist(err) {
		unlock()
		return nil, herrors.Wrap(err, herrors.ErrCodeInternal, "failed to remove stale socket")
	}

	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		unlock()
		return nil, herrors.Wrap(err, herrors.ErrCodeTransportBindConflict, "failed to bind socket").
			WithDetail("socket", socketPath)
	}
	if err := os.Chmod(socketPath, 0o600); err != nil {
		log.Warn().Err(err).Msg("Failed to restrict socket permissions")
	}

	log.Info().Str("socket", socketPath).Msg("Listening")
	return &Listener{Listener: ln, path: socketPath, lock: lock}, nil
}

// Path returns the socket path
func (l *Listener) Path() string {
	return l.path
}

// Close stops accepting, removes the socket and releases the lock
func (l *Listener) Close() error {
	var err error
	l.once.Do(func() {
		err = l.Listener.Close()
		if errors.Is(err, net.ErrClosed) {
			err = nil
		}
		os.Remove(l.path)
		unix.Flock(int(l.lock.Fd()), unix.LOCK_UN)
		l.lock.Close()
	})
	return err
}

// Serve handles connections on ln until ctx is cancelled, then shuts down
// and releases ln
func (s *Server) Serve(ctx context.Context, ln *Listener) error {
	defer ln.Close()

	srv := &http.Server{Handler: s.router, ReadHeaderTimeout: writeTimeout}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		srv.Close()
		return err
	}
	return nil
}

// HTTP Handlers

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse(
			herrors.Wrap(err, herrors.ErrCodeInvalidCommand, "malformed request body"), nil))
		return
	}

	resp := s.execute(r.Context(), req)
	writeJSON(w, statusFor(resp), resp)
}

func (s *Server) execute(ctx context.Context, req Request) Response {
	ev, err := req.Event()
	if err != nil {
		return ErrorResponse(err, nil)
	}

	snap, err := s.daemon.Submit(ctx, ev)
	if err != nil {
		logger.WithComponent("api").Debug().Err(err).Str("command", req.Command).Msg("Command failed")
	}
	return NewResponse(snap, err)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	snap := s.daemon.Snapshot()
	writeJSON(w, http.StatusOK, Response{OK: true, State: &snap})
}

// handleStream pushes every state change to the client and accepts
// commands on the same connection
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	log := logger.WithComponent("api")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	var writeMu sync.Mutex
	write := func(msg StreamMessage) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		return conn.WriteJSON(msg)
	}

	updates, unsubscribe := s.daemon.Subscribe()
	defer unsubscribe()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go func() {
		defer cancel()
		for {
			var req Request
			if err := conn.ReadJSON(&req); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Debug().Err(err).Msg("Stream reader stopped")
				}
				return
			}
			resp := s.execute(ctx, req)
			if err := write(StreamMessage{Type: MessageResponse, Response: &resp}); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case snap, ok := <-updates:
			if !ok {
				writeMu.Lock()
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "daemon stopped"),
					time.Now().Add(time.Second))
				writeMu.Unlock()
				return
			}
			if err := write(StreamMessage{Type: MessageState, State: &snap}); err != nil {
				log.Debug().Err(err).Msg("Stream write failed")
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.daemon.Snapshot()
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": s.version,
		"backend": snap.Backend,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WithComponent("api").Debug().Err(err).Msg("Failed to write response")
	}
}

// statusFor maps a response to an HTTP status. Clients rely on the body's
// code, the status is informational.
func statusFor(resp Response) int {
	if resp.OK {
		return http.StatusOK
	}
	switch herrors.ErrorCode(resp.Code) {
	case herrors.ErrCodeInvalidCommand:
		return http.StatusBadRequest
	case herrors.ErrCodeNotVisible, herrors.ErrCodeNothingSelected:
		return http.StatusConflict
	case herrors.ErrCodeTransportUnreachable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
