// Package ws bridges the event bus to live WebSocket connections. Every
// inbound bus message is re-broadcast to all currently connected clients;
// there is no per-client filtering, no acknowledgment, and no buffering
// for disconnected clients.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/mpetrov/taskboard-api/internal/domain"
	"github.com/mpetrov/taskboard-api/internal/events"
	"github.com/mpetrov/taskboard-api/internal/platform/redisbus"
)

// sendBufferSize is the per-client outbound queue length. A client whose
// queue is full is dropped rather than allowed to block the bridge.
const sendBufferSize = 32

// EventBus is the subset of the bus API the gateway depends on.
type EventBus interface {
	// WaitReady blocks until the bus subscribe connection is usable,
	// bounded by the bus's configured retry policy.
	WaitReady(ctx context.Context) error

	// Publish sends a payload on the given channel, fire-and-forget.
	Publish(ctx context.Context, channel string, payload []byte) error

	// Subscribe opens a receive stream for the given channels.
	Subscribe(ctx context.Context, channels ...string) (redisbus.Subscription, error)
}

// transportConn abstracts the parts of *websocket.Conn the gateway uses,
// so broadcasting can be exercised without a network socket.
type transportConn interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
}

// client is one connected transport client with its outbound queue.
type client struct {
	conn transportConn
	send chan []byte
}

// Gateway subscribes to the task lifecycle channels at startup and
// fans every inbound message out to all connected WebSocket clients.
// It also exposes the notify operations the orchestrator uses to publish.
type Gateway struct {
	bus      EventBus
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}

	sub redisbus.Subscription
}

// NewGateway creates a Gateway on top of the given event bus.
func NewGateway(bus EventBus, logger *slog.Logger) *Gateway {
	if bus == nil {
		panic("bus cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Gateway{
		bus:    bus,
		logger: logger.With(slog.String("component", "ws_gateway")),
		upgrader: websocket.Upgrader{
			// The realtime feed carries no credentials and is open to
			// any origin, matching the HTTP API's CORS posture.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// Start waits for the bus subscribe connection to be ready, subscribes to
// the three task lifecycle channels, and launches the message loop.
// A startup failure here is fatal: the gateway must not serve clients
// without a live subscription.
func (g *Gateway) Start(ctx context.Context) error {
	if err := g.bus.WaitReady(ctx); err != nil {
		return fmt.Errorf("event bus not available: %w", err)
	}

	sub, err := g.bus.Subscribe(ctx, events.Channels()...)
	if err != nil {
		return fmt.Errorf("failed to subscribe to task channels: %w", err)
	}
	g.sub = sub

	go g.run()

	g.logger.Info("broadcast gateway started",
		slog.Any("channels", events.Channels()))
	return nil
}

// run is the single dispatch point for inbound bus messages. It exits
// when the subscription stream is closed.
func (g *Gateway) run() {
	for msg := range g.sub.Messages() {
		g.dispatch(msg)
	}
	g.logger.Info("broadcast gateway message loop stopped")
}

// dispatch validates one inbound message and re-broadcasts it to every
// currently connected client. Malformed payloads are logged and dropped;
// they never crash the bridge.
func (g *Gateway) dispatch(msg redisbus.Message) {
	var task domain.Task
	if err := json.Unmarshal(msg.Payload, &task); err != nil {
		g.logger.Warn("dropping malformed bus message",
			slog.String("channel", msg.Channel),
			slog.String("error", err.Error()))
		return
	}

	frame, err := json.Marshal(events.Envelope{
		Event: msg.Channel,
		Data:  json.RawMessage(msg.Payload),
	})
	if err != nil {
		g.logger.Warn("failed to encode broadcast frame",
			slog.String("channel", msg.Channel),
			slog.String("error", err.Error()))
		return
	}

	g.broadcast(frame)
}

// broadcast queues the frame on every connected client. Delivery is best
// effort: a client whose queue is full is disconnected instead of
// blocking bus consumption.
func (g *Gateway) broadcast(frame []byte) {
	g.mu.Lock()
	var stalled []*client
	for c := range g.clients {
		select {
		case c.send <- frame:
		default:
			stalled = append(stalled, c)
		}
	}
	for _, c := range stalled {
		delete(g.clients, c)
		close(c.send)
	}
	g.mu.Unlock()

	for _, c := range stalled {
		_ = c.conn.Close()
		g.logger.Warn("dropped slow websocket client")
	}
}

// HandleWS upgrades an HTTP request to a WebSocket connection and tracks
// it until the client disconnects. No subscription handshake is needed;
// a connected client receives every broadcast.
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}
	g.register(c)

	go c.writeLoop()
	g.readLoop(c)
}

// register adds a client to the connection set.
func (g *Gateway) register(c *client) {
	g.mu.Lock()
	g.clients[c] = struct{}{}
	count := len(g.clients)
	g.mu.Unlock()

	g.logger.Info("websocket client connected", slog.Int("total_clients", count))
}

// unregister removes a client from the connection set and closes it.
// Safe to call more than once per client.
func (g *Gateway) unregister(c *client) {
	g.mu.Lock()
	_, present := g.clients[c]
	if present {
		delete(g.clients, c)
		close(c.send)
	}
	count := len(g.clients)
	g.mu.Unlock()

	if present {
		_ = c.conn.Close()
		g.logger.Info("websocket client disconnected", slog.Int("total_clients", count))
	}
}

// readLoop consumes inbound frames until the connection drops. Clients
// have nothing to say to the gateway; reading only detects disconnects.
func (g *Gateway) readLoop(c *client) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
	g.unregister(c)
}

// writeLoop drains the client's outbound queue onto the socket.
func (c *client) writeLoop() {
	for frame := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			return
		}
	}
}

// ClientCount returns the number of currently connected clients. It is
// observable for diagnostics only; broadcasting always targets the full
// set regardless of size.
func (g *Gateway) ClientCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.clients)
}

// Stop closes the bus subscription and disconnects all clients.
func (g *Gateway) Stop() {
	if g.sub != nil {
		if err := g.sub.Close(); err != nil {
			g.logger.Warn("error closing bus subscription", slog.String("error", err.Error()))
		}
	}

	g.mu.Lock()
	clients := make([]*client, 0, len(g.clients))
	for c := range g.clients {
		clients = append(clients, c)
	}
	g.mu.Unlock()

	for _, c := range clients {
		g.unregister(c)
	}
}

// NotifyTaskCreated publishes the task on the TASK_CREATED channel.
// A publish failure propagates to the caller; the store write that
// triggered it is never rolled back.
func (g *Gateway) NotifyTaskCreated(ctx context.Context, task *domain.Task) error {
	return g.publishTask(ctx, events.TaskCreated, task)
}

// NotifyTaskUpdated publishes the task on the TASK_UPDATED channel.
func (g *Gateway) NotifyTaskUpdated(ctx context.Context, task *domain.Task) error {
	return g.publishTask(ctx, events.TaskUpdated, task)
}

// NotifyTaskDeleted publishes the task snapshot on the TASK_DELETED channel.
func (g *Gateway) NotifyTaskDeleted(ctx context.Context, task *domain.Task) error {
	return g.publishTask(ctx, events.TaskDeleted, task)
}

func (g *Gateway) publishTask(ctx context.Context, channel string, task *domain.Task) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to serialize task for %s: %w", channel, err)
	}

	if err := g.bus.Publish(ctx, channel, payload); err != nil {
		return fmt.Errorf("failed to publish %s: %w", channel, err)
	}

	g.logger.Debug("published task event",
		slog.String("channel", channel),
		slog.String("task_id", task.ID.String()))
	return nil
}
