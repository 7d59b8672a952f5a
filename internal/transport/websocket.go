package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/coder/websocket"

	"github.com/MrWong99/glyphoxa-chat/internal/config"
	"github.com/MrWong99/glyphoxa-chat/pkg/chattypes"
)

// inboundMessage is the wire shape a websocket client sends:
// {"text": "...", "dm": true}.
type inboundMessage struct {
	Text string `json:"text"`
	DM   bool   `json:"dm"`
}

// outboundMessage is what ChannelWebSocket writes back: {"text": "..."}.
type outboundMessage struct {
	Text string `json:"text"`
}

// ChannelWebSocket is a minimal JSON-line chat protocol over
// coder/websocket: one text message in, one text message out, no framing
// beyond a JSON object per websocket message.
type ChannelWebSocket struct {
	server *http.Server
	act    ActFunc
	logger *slog.Logger

	nextConnID int64

	mu    sync.Mutex
	conns map[string]*websocket.Conn
}

// NewChannelWebSocket builds a ChannelWebSocket listening on
// cfg.ListenAddr. It does not start serving until Run is called.
func NewChannelWebSocket(cfg config.WebSocketConfig, act ActFunc, logger *slog.Logger) *ChannelWebSocket {
	if logger == nil {
		logger = slog.Default()
	}
	c := &ChannelWebSocket{
		act:    act,
		logger: logger,
		conns:  make(map[string]*websocket.Conn),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/chat", c.handleChat)
	c.server = &http.Server{Addr: cfg.ListenAddr, Handler: mux}
	return c
}

func (c *ChannelWebSocket) handleChat(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		c.logger.Warn("transport: websocket: accept failed", "err", err)
		return
	}

	connID := fmt.Sprintf("conn-%d", atomic.AddInt64(&c.nextConnID, 1))
	c.mu.Lock()
	c.conns[connID] = conn
	c.mu.Unlock()
	defer c.forget(connID, conn)

	ctx := r.Context()
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}

		var msg inboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warn("transport: websocket: malformed message", "conn", connID, "err", err)
			continue
		}

		id := chattypes.UserID{Channel: chattypes.ChannelWebSocket, ExternalID: connID}.String()
		text := Normalize(msg.Text)
		c.act(ctx, id, chattypes.NewMessage{Text: text, StartConversation: msg.DM})
	}
}

func (c *ChannelWebSocket) forget(connID string, conn *websocket.Conn) {
	c.mu.Lock()
	delete(c.conns, connID)
	c.mu.Unlock()
	conn.Close(websocket.StatusNormalClosure, "connection closed")
}

// SendTo implements ChannelSender: externalID is the connection label
// assigned in handleChat.
func (c *ChannelWebSocket) SendTo(ctx context.Context, externalID string, text string) error {
	c.mu.Lock()
	conn, ok := c.conns[externalID]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("transport: websocket: connection %q is no longer open", externalID)
	}

	data, err := json.Marshal(outboundMessage{Text: text})
	if err != nil {
		return fmt.Errorf("transport: websocket: marshal: %w", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("transport: websocket: write: %w", err)
	}
	return nil
}

// Run starts the HTTP server and blocks until ctx is cancelled, then shuts
// the server down gracefully.
func (c *ChannelWebSocket) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := c.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("transport: websocket: serve: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		_ = c.server.Shutdown(context.Background())
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Close shuts the HTTP server down immediately.
func (c *ChannelWebSocket) Close() error {
	return c.server.Close()
}
