// Package livefeed pushes report events to dashboard clients over
// WebSockets. Clients subscribe to topics and receive every event published
// to those topics.
package livefeed

import (
	"context"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// TopicReports carries one event per recorded history entry.
const TopicReports = "lab-reports"

// Event types.
const (
	EventReportRecorded = "report.recorded"
)

// Event is one message sent to subscribed clients.
type Event struct {
	Type      string          `json:"type"`
	Topic     string          `json:"topic"`
	ReportID  string          `json:"report_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// ClientMessage is an inbound subscription change.
type ClientMessage struct {
	Action string   `json:"action"`
	Topics []string `json:"topics"`
}

// Publisher delivers events to subscribers.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Client is one connected subscriber. Send is closed on Unregister.
type Client struct {
	ID     string
	Topics []string
	Send   chan []byte
}

// Hub tracks clients and their topic subscriptions.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{} // topic -> subscribers
	all     map[*Client]struct{}
	dropped uint64
}

var _ Publisher = (*Hub)(nil)

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
		all:     make(map[*Client]struct{}),
	}
}

// Register adds a client and subscribes it to its initial topics.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.all[client] = struct{}{}
	for _, topic := range client.Topics {
		h.addLocked(topic, client)
	}
}

// Unregister removes a client from every topic and closes its Send channel.
// Unregistering twice is a no-op.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[client]; !ok {
		return
	}
	for _, topic := range client.Topics {
		h.removeLocked(topic, client)
	}
	delete(h.all, client)
	close(client.Send)
}

func (h *Hub) Subscribe(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, topic := range topics {
		if _, ok := h.clients[topic][client]; ok {
			continue
		}
		h.addLocked(topic, client)
		client.Topics = append(client.Topics, topic)
	}
}

func (h *Hub) Unsubscribe(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	drop := make(map[string]struct{}, len(topics))
	for _, topic := range topics {
		drop[topic] = struct{}{}
		h.removeLocked(topic, client)
	}

	kept := client.Topics[:0]
	for _, topic := range client.Topics {
		if _, ok := drop[topic]; !ok {
			kept = append(kept, topic)
		}
	}
	client.Topics = kept
}

func (h *Hub) addLocked(topic string, client *Client) {
	if h.clients[topic] == nil {
		h.clients[topic] = make(map[*Client]struct{})
	}
	h.clients[topic][client] = struct{}{}
}

func (h *Hub) removeLocked(topic string, client *Client) {
	subs, ok := h.clients[topic]
	if !ok {
		return
	}
	delete(subs, client)
	if len(subs) == 0 {
		delete(h.clients, topic)
	}
}

// ProcessMessage applies a subscribe or unsubscribe request. Unknown actions
// are ignored.
func (h *Hub) ProcessMessage(client *Client, msg ClientMessage) {
	switch msg.Action {
	case "subscribe":
		h.Subscribe(client, msg.Topics)
	case "unsubscribe":
		h.Unsubscribe(client, msg.Topics)
	}
}

// Publish sends event to the subscribers of event.Topic. A client whose
// buffer is full misses the event rather than blocking the publisher.
func (h *Hub) Publish(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients[event.Topic] {
		select {
		case client.Send <- data:
		default:
			h.dropped++
			zerolog.Ctx(ctx).Warn().Str("client_id", client.ID).Str("topic", event.Topic).Msg("live feed client too slow, event dropped")
		}
	}
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

// TopicCount returns the number of clients subscribed to topic.
func (h *Hub) TopicCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[topic])
}

// Dropped returns how many deliveries were skipped because a client's
// buffer was full.
func (h *Hub) Dropped() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dropped
}
