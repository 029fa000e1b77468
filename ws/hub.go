package ws

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/vnkhanh/edu-reels-backend/events"
	"github.com/vnkhanh/edu-reels-backend/logger"
)

type Client struct {
	Conn *websocket.Conn
	Send chan []byte
}

type Hub struct {
	Clients       map[string]map[*websocket.Conn]*Client // theo topic (feed:<id>, session:<id>)
	GlobalClients map[*websocket.Conn]*Client            // danh sách feed
	Mutex         sync.RWMutex
	log           *logger.Logger
}

func NewHub(log *logger.Logger) *Hub {
	if log == nil {
		log = logger.Nop()
	}
	return &Hub{
		Clients:       make(map[string]map[*websocket.Conn]*Client),
		GlobalClients: make(map[*websocket.Conn]*Client),
		log:           log.With("service", "WSHub"),
	}
}

type Stats struct {
	Topics  int `json:"topics"`
	Clients int `json:"clients"`
	Global  int `json:"global"`
}

func (h *Hub) GetStats() Stats {
	h.Mutex.RLock()
	defer h.Mutex.RUnlock()
	st := Stats{Topics: len(h.Clients), Global: len(h.GlobalClients)}
	for _, clients := range h.Clients {
		st.Clients += len(clients)
	}
	return st
}

// Register client vào room của topic
func (h *Hub) Register(topic string, conn *websocket.Conn) *Client {
	h.Mutex.Lock()
	defer h.Mutex.Unlock()

	if _, ok := h.Clients[topic]; !ok {
		h.Clients[topic] = make(map[*websocket.Conn]*Client)
	}
	client := &Client{Conn: conn, Send: make(chan []byte, 256)}
	h.Clients[topic][conn] = client

	go h.writePump(client)
	return client
}

// RegisterGlobal cho trang danh sách feed
func (h *Hub) RegisterGlobal(conn *websocket.Conn) *Client {
	h.Mutex.Lock()
	defer h.Mutex.Unlock()

	client := &Client{Conn: conn, Send: make(chan []byte, 256)}
	h.GlobalClients[conn] = client

	go h.writePump(client)
	return client
}

// Broadcast theo topic; client chậm (buffer đầy) bị bỏ qua message
func (h *Hub) Broadcast(topic string, data []byte) {
	h.Mutex.RLock()
	defer h.Mutex.RUnlock()

	for _, client := range h.Clients[topic] {
		select {
		case client.Send <- data:
		default:
		}
	}
}

func (h *Hub) BroadcastGlobal(data []byte) {
	h.Mutex.RLock()
	defer h.Mutex.RUnlock()

	for _, client := range h.GlobalClients {
		select {
		case client.Send <- data:
		default:
		}
	}
}

// Deliver là callback cho events.Bus forwarder
func (h *Hub) Deliver(ev events.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.log.Warn("marshal event failed", "error", err)
		return
	}
	if ev.Topic == events.TopicGlobal {
		h.BroadcastGlobal(data)
		return
	}
	h.Broadcast(ev.Topic, data)
}

func (h *Hub) Unregister(topic string, conn *websocket.Conn) {
	h.Mutex.Lock()
	defer h.Mutex.Unlock()

	if clients, ok := h.Clients[topic]; ok {
		if client, ok := clients[conn]; ok {
			close(client.Send)
			delete(clients, conn)
		}
		if len(clients) == 0 {
			delete(h.Clients, topic)
		}
	}
}

func (h *Hub) UnregisterGlobal(conn *websocket.Conn) {
	h.Mutex.Lock()
	defer h.Mutex.Unlock()

	if client, ok := h.GlobalClients[conn]; ok {
		close(client.Send)
		delete(h.GlobalClients, conn)
	}
}

// writePump chạy tới khi Send bị đóng (Unregister)
func (h *Hub) writePump(client *Client) {
	defer func() {
		_ = client.Conn.WriteMessage(websocket.CloseMessage, []byte{})
		client.Conn.Close()
	}()
	for msg := range client.Send {
		if err := client.Conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			break
		}
	}
}
