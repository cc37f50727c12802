package livefeed

import (
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const (
	sendBuffer = 64
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	maxMessage = 4096
)

// Handler upgrades HTTP requests to WebSocket feed connections.
type Handler struct {
	hub      *Hub
	upgrader gorillawebsocket.Upgrader
}

// NewHandler serves hub. Browser connections are accepted only from
// allowedOrigins; "*" allows any origin. Requests without an Origin header
// (non-browser clients) are always accepted.
func NewHandler(hub *Hub, allowedOrigins []string) *Handler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[strings.TrimRight(o, "/")] = true
	}
	return &Handler{
		hub: hub,
		upgrader: gorillawebsocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowed["*"] || allowed[origin]
			},
		},
	}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/ws", h.Connect)
}

// Connect upgrades the connection and subscribes the client to the topics
// listed in the "topics" query parameter (comma separated, defaulting to
// the report topic).
func (h *Handler) Connect(c echo.Context) error {
	topics := splitTopics(c.QueryParam("topics"))

	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader has already written an error response.
		return nil
	}

	client := &Client{
		ID:     uuid.NewString(),
		Topics: topics,
		Send:   make(chan []byte, sendBuffer),
	}
	h.hub.Register(client)

	logger := zerolog.Ctx(c.Request().Context()).With().Str("client_id", client.ID).Logger()
	logger.Debug().Strs("topics", topics).Msg("live feed client connected")

	go h.writePump(client, ws)
	go h.readPump(client, ws, logger)
	return nil
}

func splitTopics(s string) []string {
	var topics []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			topics = append(topics, t)
		}
	}
	if len(topics) == 0 {
		topics = []string{TopicReports}
	}
	return topics
}

func (h *Handler) readPump(client *Client, ws *gorillawebsocket.Conn, logger zerolog.Logger) {
	defer func() {
		h.hub.Unregister(client)
		ws.Close()
		logger.Debug().Msg("live feed client disconnected")
	}()

	ws.SetReadLimit(maxMessage)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		h.hub.ProcessMessage(client, msg)
	}
}

func (h *Handler) writePump(client *Client, ws *gorillawebsocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	for {
		select {
		case msg, ok := <-client.Send:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = ws.WriteMessage(gorillawebsocket.CloseMessage, []byte{})
				return
			}
			if err := ws.WriteMessage(gorillawebsocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(gorillawebsocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
