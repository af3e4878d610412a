// internal/events/server.go
package events

import (
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats-server/v2/server"
)

// EmbeddedServer runs an in-process NATS server for deployments that
// have no external broker.
type EmbeddedServer struct {
	mu      sync.Mutex
	server  *server.Server
	port    int
	running bool
}

// NewEmbeddedServer configures a localhost-only server on port.
func NewEmbeddedServer(port int) *EmbeddedServer {
	if port <= 0 {
		port = 4222
	}
	return &EmbeddedServer{port: port}
}

// Start launches the server and waits for it to accept connections.
func (e *EmbeddedServer) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return fmt.Errorf("server already running")
	}

	opts := &server.Options{
		Host:       "127.0.0.1",
		Port:       e.port,
		NoSigs:     true,
		MaxPayload: 1024 * 1024,
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return fmt.Errorf("create NATS server: %w", err)
	}

	go ns.Start()

	if !ns.ReadyForConnections(10 * time.Second) {
		ns.Shutdown()
		return fmt.Errorf("NATS server not ready for connections")
	}

	e.server = ns
	e.running = true
	return nil
}

// URL returns the client connection URL.
func (e *EmbeddedServer) URL() string {
	return fmt.Sprintf("nats://127.0.0.1:%d", e.port)
}

// Shutdown stops the server and waits for completion.
func (e *EmbeddedServer) Shutdown() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running || e.server == nil {
		return
	}
	e.server.Shutdown()
	e.server.WaitForShutdown()
	e.running = false
	e.server = nil
}
