package debug

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gobwas/ws"
	json "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xraph/locator/internal/catalog"
	"github.com/xraph/locator/internal/host"
	"github.com/xraph/locator/logger"
)

// StateFunc returns the current runtime state.
type StateFunc func() Snapshot

// Server exposes runtime state over HTTP and streams catalog changes to
// WebSocket clients.
type Server struct {
	addr         string
	state        StateFunc
	gatherer     prometheus.Gatherer
	logger       logger.Logger
	registryPath string
	modulesDir   string

	hub    *hub
	router chi.Router

	mu       sync.Mutex
	httpSrv  *http.Server
	listener net.Listener
	stopCh   chan struct{}
}

// Option configures a Server.
type Option func(*Server)

func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithGatherer serves the gathered metrics on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithRegistry records the running server in the registry file at path.
func WithRegistry(path, modulesDir string) Option {
	return func(s *Server) {
		s.registryPath = path
		s.modulesDir = modulesDir
	}
}

// NewServer creates an unstarted server listening on addr.
func NewServer(addr string, state StateFunc, opts ...Option) *Server {
	s := &Server{
		addr:   addr,
		state:  state,
		logger: logger.NewNoopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.hub = newHub(s.logger)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"status":"ok"}`)
	})
	r.Get("/state", s.handleState)
	r.Get("/ws", s.handleWebSocket)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	s.router = r
	return s
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.httpSrv != nil {
		return fmt.Errorf("debug server already started")
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("debug server listen on %s: %w", s.addr, err)
	}
	s.listener = ln
	s.stopCh = make(chan struct{})
	s.httpSrv = &http.Server{
		Handler:     s.router,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	if s.registryPath != "" {
		entry := ServerEntry{DebugAddr: ln.Addr().String(), ModulesDir: s.modulesDir}
		if err := RegisterServer(s.registryPath, entry); err != nil {
			s.logger.Warn("failed to write debug server registry", logger.Error(err))
		}
	}

	srv, stopCh := s.httpSrv, s.stopCh
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			select {
			case <-stopCh:
			default:
				s.logger.Error("debug server error", logger.Error(err))
			}
		}
	}()

	s.logger.Info("debug server started", logger.String("addr", ln.Addr().String()))
	return nil
}

// Addr returns the bound address once started, else the configured one.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Shutdown stops the server and disconnects every WebSocket client.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpSrv
	s.httpSrv = nil
	addr := ""
	if s.listener != nil {
		addr = s.listener.Addr().String()
	}
	if srv != nil {
		close(s.stopCh)
	}
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	s.hub.closeAll()

	shutCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err := srv.Shutdown(shutCtx)

	if s.registryPath != "" {
		UnregisterServer(s.registryPath, addr)
	}
	return err
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	msg := Message{
		Type:      MsgSnapshot,
		Timestamp: time.Now().UnixMilli(),
		Payload:   s.state(),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(msg)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		return
	}

	var first []byte
	msg := Message{
		Type:      MsgSnapshot,
		Timestamp: time.Now().UnixMilli(),
		Payload:   s.state(),
	}
	if data, err := json.Marshal(msg); err == nil {
		first = data
	}
	c := s.hub.add(conn, first)
	defer s.hub.remove(conn)

	// Read until the client goes away. Pongs go through the client's
	// writer like every other frame.
	for {
		hdr, err := ws.ReadHeader(conn)
		if err != nil {
			return
		}
		var payload []byte
		if hdr.Length > 0 {
			payload = make([]byte, hdr.Length)
			if _, err := io.ReadFull(conn, payload); err != nil {
				return
			}
			if hdr.Masked {
				ws.Cipher(payload, hdr.Mask, 0)
			}
		}
		switch hdr.OpCode {
		case ws.OpPing:
			s.hub.enqueue(c, frame{op: ws.OpPong, data: payload})
		case ws.OpClose:
			return
		}
	}
}

// Broadcast sends payload to every connected client.
func (s *Server) Broadcast(msgType MessageType, payload any) {
	if s.hub.count() == 0 {
		return
	}
	msg := Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Payload:   payload,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Warn("failed to encode debug message", logger.Error(err))
		return
	}
	s.hub.broadcast(data)
}

// CatalogEvent streams a catalog change.
func (s *Server) CatalogEvent(ev catalog.Event) {
	s.Broadcast(MsgEvent, EventInfo{
		Kind:       ev.Kind.String(),
		Capability: ev.Entry.Capability,
		EntryID:    ev.Entry.ID,
		Owner:      ev.Entry.Owner,
	})
}

// ModuleChanged streams a module attach or detach.
func (s *Server) ModuleChanged(name string, attached bool) {
	s.Broadcast(MsgModule, ModuleInfo{Name: name, Attached: attached})
}

// Collect builds a snapshot of cat and h.
func Collect(cat *catalog.Catalog, h *host.Host, started time.Time) Snapshot {
	snap := Snapshot{
		UptimeMs: time.Since(started).Milliseconds(),
	}
	if h != nil {
		snap.Modules = h.Modules()
		snap.StaticOnly = h.StaticOnly()
		for _, c := range h.Components() {
			snap.Components = append(snap.Components, c.Status())
		}
	}
	for _, name := range cat.Capabilities() {
		info := CapabilityInfo{Name: name}
		for _, e := range cat.Entries(name) {
			info.Entries = append(info.Entries, EntryInfo{
				ID:          e.ID,
				Owner:       e.Owner,
				Type:        fmt.Sprintf("%T", e.Instance),
				Properties:  e.Properties(),
				PublishedAt: e.PublishedAt.UnixMilli(),
			})
		}
		snap.Capabilities = append(snap.Capabilities, info)
	}
	return snap
}
