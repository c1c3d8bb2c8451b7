package ws

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/radieske/coinflip-bet-platform-poc/internal/shared/address"
	"github.com/radieske/coinflip-bet-platform-poc/internal/wager-feed/pubsub"
)

const writeWait = 2 * time.Second

// client serializa as escritas numa conexão (gorilla aceita um escritor por vez)
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(v)
}

func (c *client) writeRaw(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, b)
}

// Hub gerencia conexões WebSocket e assinaturas por dono de aposta
// subs: endereço (checksum) -> conjunto de clientes inscritos
type Hub struct {
	upgrader websocket.Upgrader
	log      *zap.Logger

	mu   sync.RWMutex
	subs map[string]map[*client]struct{}

	OnConnect    func()
	OnDisconnect func()
	OnSent       func()
}

// NewHub cria o hub com política customizada de origem (CORS)
func NewHub(allowOrigin func(r *http.Request) bool, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		upgrader: websocket.Upgrader{CheckOrigin: allowOrigin},
		log:      log,
		subs:     make(map[string]map[*client]struct{}),
	}
}

// HandleWS gerencia o ciclo de vida de uma conexão.
// Cada cliente pode acompanhar vários donos.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	c := &client{conn: conn}
	if h.OnConnect != nil {
		h.OnConnect()
	}
	defer func() {
		h.drop(c)
		_ = conn.Close()
		if h.OnDisconnect != nil {
			h.OnDisconnect()
		}
	}()

	for {
		var msg ClientMsg
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		switch msg.Type {
		case "subscribe", "unsubscribe":
			owner, err := address.Normalize(msg.Owner)
			if err != nil {
				_ = c.write(ServerMsg{Type: "error", Error: err.Error()})
				continue
			}
			if msg.Type == "subscribe" {
				h.subscribe(owner, c)
				_ = c.write(ServerMsg{Type: "subscribed", Owner: owner})
			} else {
				h.unsubscribe(owner, c)
				_ = c.write(ServerMsg{Type: "unsubscribed", Owner: owner})
			}
		case "ping":
			_ = c.write(ServerMsg{Type: "pong"})
		default:
			_ = c.write(ServerMsg{Type: "error", Error: "unknown message type"})
		}
	}
}

func (h *Hub) subscribe(owner string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[owner]; !ok {
		h.subs[owner] = make(map[*client]struct{})
	}
	h.subs[owner][c] = struct{}{}
}

func (h *Hub) unsubscribe(owner string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.subs[owner]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.subs, owner)
		}
	}
}

// drop remove a conexão de todas as assinaturas
func (h *Hub) drop(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for owner, set := range h.subs {
		delete(set, c)
		if len(set) == 0 {
			delete(h.subs, owner)
		}
	}
}

// Subscribers devolve quantas conexões acompanham o dono
func (h *Hub) Subscribers(owner string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[owner])
}

// Broadcast envia o evento para os clientes inscritos no dono da aposta
func (h *Hub) Broadcast(m pubsub.Message) {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.subs[m.Owner]))
	for c := range h.subs[m.Owner] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	if len(targets) == 0 {
		return
	}

	b, err := json.Marshal(m)
	if err != nil {
		return
	}
	for _, c := range targets {
		if err := c.writeRaw(b); err != nil {
			h.log.Warn("ws write failed", zap.Error(err))
			_ = c.conn.Close()
			continue
		}
		if h.OnSent != nil {
			h.OnSent()
		}
	}
}
