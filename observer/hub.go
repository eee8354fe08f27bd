package observer

import (
	"log"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// client is one connected dashboard, adapted from the teacher's
// handlers.Client. This hub is observe-only: readPump exists solely to
// notice disconnects (a closed websocket errors on read), since
// spec.md's Engine has no remote-control surface for a viewer to drive.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	id   string
}

// Hub fans out simulation Events to every connected websocket client,
// adapted from apps/api/internal/handlers.Hub. Unlike the teacher's
// hub, it has no onMessage callback: this simulator's observer is a
// one-way broadcast of what the engine is doing.
type Hub struct {
	mu         sync.RWMutex
	clients    map[*client]bool
	broadcast  chan []byte
	register   chan *client
	unregister chan *client
}

// NewHub creates an idle Hub; call Run to start its loop and Attach to
// feed it events from a Bus.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
	}
}

// Run is the hub's main loop; it returns when done is closed.
func (h *Hub) Run(done <-chan struct{}) {
	for {
		select {
		case <-done:
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
			}
			h.clients = make(map[*client]bool)
			h.mu.Unlock()
			return
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			log.Printf("observer: client %s connected", c.id)
		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			log.Printf("observer: client %s disconnected", c.id)
		case message := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				select {
				case c.send <- message:
				default:
					log.Printf("observer: client %s send buffer full, dropping", c.id)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Attach subscribes to every event bus emits and rebroadcasts it as
// JSON to connected clients, until done is closed. The scenario
// driver calls this once at startup, after go Hub.Run(done).
func (h *Hub) Attach(bus *Bus, done <-chan struct{}) {
	events := bus.SubscribeChannel(256)
	go func() {
		for {
			select {
			case <-done:
				return
			case ev := <-events:
				data, err := ev.ToJSON()
				if err != nil {
					log.Printf("observer: failed to marshal event: %v", err)
					continue
				}
				h.broadcast <- data
			}
		}
	}()
}

// ClientCount reports how many websocket clients are connected.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request to a websocket and registers a new
// client, adapted from handlers.WebSocketHandler.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("observer: upgrade failed: %v", err)
		return
	}
	c := &client{hub: h, conn: conn, send: make(chan []byte, 256), id: uuid.New().String()}
	h.register <- c
	go c.writePump()
	go c.readPump()
}

func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("observer: read error: %v", err)
			}
			return
		}
	}
}

func (c *client) writePump() {
	defer c.conn.Close()
	for message, ok := <-c.send; ; message, ok = <-c.send {
		if !ok {
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
		w, err := c.conn.NextWriter(websocket.TextMessage)
		if err != nil {
			return
		}
		w.Write(message)
		if err := w.Close(); err != nil {
			return
		}
	}
}
