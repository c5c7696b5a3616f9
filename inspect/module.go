package inspect

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/GoCodeAlone/modlink"
	"github.com/GoCodeAlone/modlink/discovery"
)

// ModuleName is the name the inspection module registers under.
const ModuleName = "modlink.inspect"

var (
	ErrServerNotStarted = errors.New("inspection server not started")
	ErrNotInitialized   = errors.New("inspection module not initialized")
)

// Module serves the inspection routes for the host it is registered on.
type Module struct {
	addr   string
	corpus discovery.Corpus

	logger  modlink.Logger
	handler http.Handler

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	done     chan struct{}
}

// NewModule creates the inspection module. corpus may be nil.
func NewModule(addr string, corpus discovery.Corpus) *Module {
	return &Module{addr: addr, corpus: corpus}
}

// Name implements modlink.Module.
func (m *Module) Name() string { return ModuleName }

// Init builds the router over the host's exchange and coordinator.
func (m *Module) Init(app modlink.Application) error {
	m.logger = app.Logger()
	opts := []RouterOption{WithSessions(app.Coordinator()), WithLogger(m.logger)}
	if m.corpus != nil {
		opts = append(opts, WithCorpus(m.corpus))
	}
	m.handler = NewRouter(app.Exchange(), opts...)
	return nil
}

// Start listens on the configured address and serves in the background.
func (m *Module) Start(_ context.Context) error {
	if m.handler == nil {
		return ErrNotInitialized
	}
	ln, err := net.Listen("tcp", m.addr)
	if err != nil {
		return fmt.Errorf("inspection server listen on %s: %w", m.addr, err)
	}

	m.mu.Lock()
	m.listener = ln
	m.server = &http.Server{
		Handler:           m.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	m.done = make(chan struct{})
	server, done := m.server, m.done
	m.mu.Unlock()

	go func() {
		defer close(done)
		m.logger.Info("Starting inspection server", "address", ln.Addr().String())
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("Inspection server failed", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address once started.
func (m *Module) Addr() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listener == nil {
		return ""
	}
	return m.listener.Addr().String()
}

// Stop shuts the server down gracefully within ctx.
func (m *Module) Stop(ctx context.Context) error {
	m.mu.Lock()
	server, done := m.server, m.done
	m.server, m.listener = nil, nil
	m.mu.Unlock()
	if server == nil {
		return ErrServerNotStarted
	}

	m.logger.Info("Stopping inspection server")
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("error shutting down inspection server: %w", err)
	}
	<-done
	return nil
}
