package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/oscarprdev/nft-market-sync/cache"
	"github.com/oscarprdev/nft-market-sync/logging"
)

const (
	// wsWriteWait is the time allowed to write a message to the peer.
	wsWriteWait = 10 * time.Second

	// wsPongWait is the time allowed to wait for the next pong message.
	wsPongWait = 30 * time.Second

	// wsPingPeriod must be less than wsPongWait.
	wsPingPeriod = (wsPongWait * 9) / 10

	// wsSendBuffer is the per-client notice buffer. A client that falls
	// this far behind gets dropped rather than blocking the broadcast.
	wsSendBuffer = 16
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Accept connections from any origin, the service fronts a browser UI.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// refreshNotice tells a connected client that a query key changed and a
// fresh read is worthwhile. No data rides along, the client re-fetches
// through the HTTP surface.
type refreshNotice struct {
	Key     string `json:"key"`
	Reason  string `json:"reason"`
	Version uint64 `json:"version"`
}

type wsClient struct {
	conn *websocket.Conn
	send chan refreshNotice
}

// hub fans refresh notices out to all connected websocket clients.
type hub struct {
	logger logging.Logger

	mu      sync.Mutex
	clients map[*wsClient]struct{}
	closed  bool
}

func newHub(logger logging.Logger) *hub {
	return &hub{
		logger:  logging.ForComponent(logger, logging.ComponentWebsocketPush),
		clients: make(map[*wsClient]struct{}),
	}
}

// broadcast queues a notice on every client. Slow clients are dropped.
func (h *hub) broadcast(key string, reason cache.Reason, version uint64) {
	notice := refreshNotice{Key: key, Reason: string(reason), Version: version}

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		select {
		case client.send <- notice:
		default:
			h.logger.Warn().Msg("dropping slow websocket client")
			delete(h.clients, client)
			close(client.send)
		}
	}
}

func (h *hub) register(client *wsClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[client] = struct{}{}
	return true
}

func (h *hub) unregister(client *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for client := range h.clients {
		delete(h.clients, client)
		close(client.send)
		_ = client.conn.Close()
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan refreshNotice, wsSendBuffer),
	}
	if !s.hub.register(client) {
		_ = conn.Close()
		return
	}

	s.logger.Debug().Str(logging.FieldRemoteAddr, r.RemoteAddr).Msg("websocket client connected")

	go s.writeLoop(client)
	s.readLoop(client)
}

// writeLoop pushes notices and keeps the connection alive with pings.
func (s *Server) writeLoop(client *wsClient) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		_ = client.conn.Close()
	}()

	for {
		select {
		case notice, ok := <-client.send:
			if !ok {
				_ = client.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
					time.Now().Add(wsWriteWait))
				return
			}
			_ = client.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := client.conn.WriteJSON(notice); err != nil {
				s.hub.unregister(client)
				return
			}
		case <-ticker.C:
			if err := client.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				s.hub.unregister(client)
				return
			}
		}
	}
}

// readLoop discards inbound frames. Its job is to notice the peer going
// away and keep the pong deadline fed.
func (s *Server) readLoop(client *wsClient) {
	defer s.hub.unregister(client)

	_ = client.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}
