// internal/events/events.go
//
// Lifecycle event bus. Every agent state transition is published as a
// JSON message on cairn.agent.<id>.state; dashboards and tooling
// subscribe over NATS. Publishing is best-effort and never affects the
// lifecycle itself.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	nc "github.com/nats-io/nats.go"

	"github.com/cairnhq/cairn/internal/agent"
)

// SubjectPrefix roots all cairn subjects.
const SubjectPrefix = "cairn.agent"

// StateEvent is one lifecycle transition on the wire.
type StateEvent struct {
	AgentID   string      `json:"agent_id"`
	State     agent.State `json:"state"`
	Task      string      `json:"task,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp float64     `json:"timestamp"`
}

// Publisher emits lifecycle events. Implementations must be safe for
// concurrent use.
type Publisher interface {
	PublishState(event StateEvent)
	Close()
}

// NATSPublisher publishes events over a NATS connection.
type NATSPublisher struct {
	conn *nc.Conn
}

// Connect dials the NATS server at url with indefinite reconnects.
func Connect(url string) (*NATSPublisher, error) {
	conn, err := nc.Connect(url,
		nc.ReconnectWait(2*time.Second),
		nc.MaxReconnects(-1),
		nc.DisconnectErrHandler(func(conn *nc.Conn, err error) {
			if err != nil {
				fmt.Printf("[events] disconnected: %v\n", err)
			}
		}),
		nc.ReconnectHandler(func(conn *nc.Conn) {
			fmt.Printf("[events] reconnected to %s\n", conn.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return &NATSPublisher{conn: conn}, nil
}

// PublishState emits one transition. Failures are logged and swallowed.
func (p *NATSPublisher) PublishState(event StateEvent) {
	if event.Timestamp == 0 {
		event.Timestamp = float64(time.Now().Unix())
	}

	data, err := json.Marshal(event)
	if err != nil {
		fmt.Printf("[events] encode event: %v\n", err)
		return
	}

	subject := fmt.Sprintf("%s.%s.state", SubjectPrefix, event.AgentID)
	if err := p.conn.Publish(subject, data); err != nil {
		fmt.Printf("[events] publish %s: %v\n", subject, err)
	}
}

// Close closes the connection without draining it.
func (p *NATSPublisher) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}

// NopPublisher drops all events; used when the event bus is disabled.
type NopPublisher struct{}

func (NopPublisher) PublishState(StateEvent) {}
func (NopPublisher) Close()                  {}

// MultiPublisher fans events out to several sinks (NATS plus the
// websocket hub, typically).
type MultiPublisher []Publisher

func (m MultiPublisher) PublishState(event StateEvent) {
	for _, p := range m {
		p.PublishState(event)
	}
}

func (m MultiPublisher) Close() {
	for _, p := range m {
		p.Close()
	}
}
