package hub

import (
	"context"
	"sync"
	"time"

	"photobox/internal/changefeed"
	"photobox/internal/docpath"
	"photobox/internal/logging"
	"photobox/internal/metrics"

	"github.com/goccy/go-json"
)

const (
	ActionListen   = "listen"
	ActionUnlisten = "unlisten"

	TypeSnapshot = "snapshot"
	TypeError    = "error"
)

type Client struct {
	ID    string
	Send  chan []byte
	Scope docpath.Path
	paths map[string]struct{}
}

func NewClient(id string, scope docpath.Path, buffer int) *Client {
	if buffer <= 0 {
		buffer = 16
	}
	return &Client{ID: id, Send: make(chan []byte, buffer), Scope: scope, paths: make(map[string]struct{})}
}

type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

type Message struct {
	Action string `json:"action"`
	Path   string `json:"path"`
}

// Snapshot is what listeners receive: the whole document, or Exists=false
// once it is gone.
type Snapshot struct {
	Type    string         `json:"type"`
	Path    string         `json:"path,omitempty"`
	Exists  bool           `json:"exists"`
	Data    map[string]any `json:"data,omitempty"`
	At      time.Time      `json:"at"`
	Message string         `json:"message,omitempty"`
}

func New() *Hub {
	return &Hub{clients: make(map[string]*Client)}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	delete(h.clients, client.ID)
	client.paths = nil
	close(client.Send)
}

func (h *Hub) Listen(client *Client, path string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if client.paths != nil {
		client.paths[path] = struct{}{}
	}
}

func (h *Hub) Unlisten(client *Client, path string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(client.paths, path)
}

func (h *Hub) Listening(client *Client) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(client.paths)
}

// Deliver queues payload for one client without blocking.
func (h *Hub) Deliver(client *Client, payload []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[client.ID]; !ok {
		return false
	}
	return deliver(client, payload)
}

func deliver(client *Client, payload []byte) bool {
	select {
	case client.Send <- payload:
		return true
	default:
		metrics.RealtimeDropped.Inc()
		logging.Debug().Str("client_id", client.ID).Msg("drop message for slow client")
		return false
	}
}

func (h *Hub) Broadcast(event changefeed.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		for path := range client.paths {
			if !event.Affects(path) {
				continue
			}
			payload, err := Encode(Snapshot{
				Type:   TypeSnapshot,
				Path:   path,
				Exists: !event.Deleted,
				Data:   event.Data,
				At:     event.At,
			})
			if err != nil {
				logging.Error().Err(err).Str("path", path).Msg("encode snapshot")
				continue
			}
			deliver(client, payload)
		}
	}
}

// Run broadcasts every event from sub until ctx ends.
func (h *Hub) Run(ctx context.Context, sub changefeed.Subscriber) error {
	events, err := sub.Subscribe(ctx)
	if err != nil {
		return err
	}
	for event := range events {
		h.Broadcast(event)
	}
	return ctx.Err()
}

func ParseMessage(data []byte) (Message, bool) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, false
	}
	if msg.Action != ActionListen && msg.Action != ActionUnlisten {
		return Message{}, false
	}
	if msg.Path == "" {
		return Message{}, false
	}
	return msg, true
}

func Encode(s Snapshot) ([]byte, error) {
	return json.Marshal(s)
}
