package reload

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/websocket"
)

// Connection states.
const (
	stateConnecting int32 = iota
	stateOpen
	stateClosed
)

// ChannelOptions configures a reload channel.
type ChannelOptions struct {
	// Host is the interface to bind. Defaults to 127.0.0.1.
	Host string

	// Port is the TCP port to bind. Zero picks a free port.
	Port int

	// WriteTimeout bounds a single send to one connection.
	WriteTimeout time.Duration

	Logger *slog.Logger
}

// Channel is a WebSocket server that pushes reload messages to every
// connected extension runtime of one build target.
type Channel struct {
	opts   ChannelOptions
	logger *slog.Logger

	mu     sync.RWMutex
	conns  map[string]*connection
	closed bool

	listener net.Listener
	server   *http.Server

	done      chan struct{}
	closeOnce sync.Once
}

type connection struct {
	id    string
	ws    *websocket.Conn
	state atomic.Int32
	wmu   sync.Mutex
}

// NewChannel creates an unstarted channel.
func NewChannel(opts ChannelOptions) *Channel {
	if opts.Host == "" {
		opts.Host = "127.0.0.1"
	}

	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 2 * time.Second
	}

	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Channel{
		opts:   opts,
		logger: opts.Logger,
		conns:  make(map[string]*connection),
		done:   make(chan struct{}),
	}
}

// Start binds the listener and serves connections in the background until
// ctx is cancelled or Close is called.
func (c *Channel) Start(ctx context.Context) error {
	addr := net.JoinHostPort(c.opts.Host, strconv.Itoa(c.opts.Port))

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	c.listener = ln
	c.server = &http.Server{
		Handler: websocket.Server{
			// Extension origins (chrome-extension://, moz-extension://) are
			// accepted as-is; the listener is bound to loopback.
			Handshake: func(*websocket.Config, *http.Request) error { return nil },
			Handler:   c.serve,
		},
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if serveErr := c.server.Serve(ln); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			c.logger.Error("reload channel stopped", slog.String("error", serveErr.Error()))
		}
	}()

	go func() {
		select {
		case <-ctx.Done():
			_ = c.Close()
		case <-c.done:
		}
	}()

	c.logger.Debug("reload channel listening", slog.String("addr", ln.Addr().String()))

	return nil
}

// Addr returns the bound address, or an empty string before Start.
func (c *Channel) Addr() string {
	if c.listener == nil {
		return ""
	}

	return c.listener.Addr().String()
}

// Port returns the bound port, or the configured port before Start.
func (c *Channel) Port() int {
	if c.listener == nil {
		return c.opts.Port
	}

	if tcp, ok := c.listener.Addr().(*net.TCPAddr); ok {
		return tcp.Port
	}

	return c.opts.Port
}

// Connections returns the number of currently open connections.
func (c *Channel) Connections() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	n := 0

	for _, conn := range c.conns {
		if conn.state.Load() == stateOpen {
			n++
		}
	}

	return n
}

// Broadcast sends d to every open connection. Connections that are not open
// are skipped. Delivery is at-most-once; send failures are dropped.
func (c *Channel) Broadcast(d Directive) {
	payload, err := json.Marshal(d.Message())
	if err != nil {
		c.logger.Error("encoding reload message", slog.String("error", err.Error()))
		return
	}

	c.mu.RLock()
	targets := make([]*connection, 0, len(c.conns))

	for _, conn := range c.conns {
		targets = append(targets, conn)
	}
	c.mu.RUnlock()

	sent := 0

	for _, conn := range targets {
		if conn.state.Load() != stateOpen {
			continue
		}

		if sendErr := c.send(conn, payload); sendErr != nil {
			c.logger.Debug("dropping reload message",
				slog.String("connection", conn.id),
				slog.String("error", sendErr.Error()),
			)

			continue
		}

		sent++
	}

	c.logger.Debug("broadcast reload message",
		slog.String("changedFile", d.Kind.String()),
		slog.Int("delivered", sent),
	)
}

// Done is closed once the channel has shut down.
func (c *Channel) Done() <-chan struct{} { return c.done }

// Close stops the server and closes every connection. It is safe to call
// more than once.
func (c *Channel) Close() error {
	var err error

	c.closeOnce.Do(func() {
		defer close(c.done)

		if c.server != nil {
			err = c.server.Close()
		}

		c.mu.Lock()
		c.closed = true
		for id, conn := range c.conns {
			conn.state.Store(stateClosed)
			_ = conn.ws.Close()
			delete(c.conns, id)
		}
		c.mu.Unlock()
	})

	return err
}

func (c *Channel) send(conn *connection, payload []byte) error {
	conn.wmu.Lock()
	defer conn.wmu.Unlock()

	if err := conn.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
		return err
	}

	return websocket.Message.Send(conn.ws, string(payload))
}

// serve owns one client connection for its lifetime.
func (c *Channel) serve(ws *websocket.Conn) {
	conn := &connection{id: uuid.NewString(), ws: ws}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = ws.Close()

		return
	}
	c.conns[conn.id] = conn
	c.mu.Unlock()

	conn.state.Store(stateOpen)
	c.logger.Debug("reload client connected", slog.String("connection", conn.id))

	defer func() {
		conn.state.Store(stateClosed)

		c.mu.Lock()
		delete(c.conns, conn.id)
		c.mu.Unlock()

		c.logger.Debug("reload client disconnected", slog.String("connection", conn.id))
	}()

	// Clients do not send anything meaningful; reading detects disconnects.
	for {
		var msg string
		if err := websocket.Message.Receive(ws, &msg); err != nil {
			return
		}
	}
}
