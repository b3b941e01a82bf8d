package announce

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 16
)

// Message is the payload pushed to subscribed nodes
type Message struct {
	Type  string `json:"type"`
	JobID string `json:"job_id"`
}

type subscriber struct {
	nodeID string
	send   chan Message
}

// Hub fans job announcements out to nodes connected over websocket.
// Slow subscribers drop hints instead of blocking the broadcaster.
type Hub struct {
	mu       sync.RWMutex
	subs     map[*subscriber]struct{}
	upgrader websocket.Upgrader
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{
		subs: map[*subscriber]struct{}{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Announce broadcasts a job_available hint to every connected node
func (h *Hub) Announce(_ context.Context, jobID string) error {
	msg := Message{Type: "job_available", JobID: jobID}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs {
		select {
		case sub.send <- msg:
		default:
			log.WithField("node_id", sub.nodeID).Warn("announcement dropped for slow node")
		}
	}
	return nil
}

// Connected returns the number of subscribed nodes
func (h *Hub) Connected() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) add(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs[sub] = struct{}{}
}

func (h *Hub) remove(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, sub)
}

// Serve upgrades the request to a websocket and streams announcements to
// nodeID until the connection closes. The caller authenticates the node.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, nodeID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Websocket upgrade failed for node %s: %v", nodeID, err)
		return
	}

	sub := &subscriber{nodeID: nodeID, send: make(chan Message, sendBuffer)}
	h.add(sub)
	defer func() {
		h.remove(sub)
		conn.Close()
	}()

	done := make(chan struct{})
	go readPump(conn, done)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case msg := <-sub.send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drains control frames and closes done when the peer goes away
func readPump(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
