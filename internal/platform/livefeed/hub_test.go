package livefeed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

func newClient(id string, topics ...string) *Client {
	return &Client{ID: id, Topics: topics, Send: make(chan []byte, 4)}
}

func receive(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case msg := <-c.Send:
		var ev Event
		if err := json.Unmarshal(msg, &ev); err != nil {
			t.Fatalf("failed to unmarshal event: %v", err)
		}
		return ev
	case <-time.After(time.Second):
		t.Fatal("client did not receive event")
	}
	return Event{}
}

func expectNothing(t *testing.T, c *Client) {
	t.Helper()
	select {
	case msg := <-c.Send:
		t.Fatalf("unexpected event %s", msg)
	default:
	}
}

func TestHub_RegisterUnregister(t *testing.T) {
	hub := NewHub()
	c := newClient("c1", TopicReports)

	hub.Register(c)
	if hub.ClientCount() != 1 || hub.TopicCount(TopicReports) != 1 {
		t.Fatalf("expected 1 client on %s, got %d/%d", TopicReports, hub.ClientCount(), hub.TopicCount(TopicReports))
	}

	hub.Unregister(c)
	hub.Unregister(c)
	if hub.ClientCount() != 0 || hub.TopicCount(TopicReports) != 0 {
		t.Fatalf("expected no clients, got %d/%d", hub.ClientCount(), hub.TopicCount(TopicReports))
	}
	if _, ok := <-c.Send; ok {
		t.Fatal("expected Send to be closed")
	}
}

func TestHub_PublishToTopic(t *testing.T) {
	hub := NewHub()
	sub := newClient("sub", TopicReports)
	other := newClient("other", "stats")
	hub.Register(sub)
	hub.Register(other)

	err := hub.Publish(context.Background(), Event{
		Type:     EventReportRecorded,
		Topic:    TopicReports,
		ReportID: "0b7e",
		Data:     json.RawMessage(`{"status":"processed"}`),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ev := receive(t, sub)
	if ev.Type != EventReportRecorded || ev.ReportID != "0b7e" {
		t.Errorf("unexpected event %+v", ev)
	}
	if ev.Timestamp.IsZero() {
		t.Error("expected timestamp to be filled in")
	}
	if string(ev.Data) != `{"status":"processed"}` {
		t.Errorf("unexpected data %s", ev.Data)
	}
	expectNothing(t, other)
}

func TestHub_SubscribeUnsubscribe(t *testing.T) {
	hub := NewHub()
	c := newClient("c1")
	hub.Register(c)

	hub.ProcessMessage(c, ClientMessage{Action: "subscribe", Topics: []string{TopicReports, TopicReports}})
	if hub.TopicCount(TopicReports) != 1 || len(c.Topics) != 1 {
		t.Fatalf("expected a single subscription, got %d topics %v", hub.TopicCount(TopicReports), c.Topics)
	}

	hub.ProcessMessage(c, ClientMessage{Action: "shout", Topics: []string{"x"}})
	if hub.TopicCount("x") != 0 {
		t.Fatal("unknown action must be ignored")
	}

	hub.ProcessMessage(c, ClientMessage{Action: "unsubscribe", Topics: []string{TopicReports}})
	if hub.TopicCount(TopicReports) != 0 || len(c.Topics) != 0 {
		t.Fatalf("expected no subscriptions, got %d topics %v", hub.TopicCount(TopicReports), c.Topics)
	}
}

func TestHub_SlowClientDropsEvents(t *testing.T) {
	hub := NewHub()
	c := &Client{ID: "slow", Topics: []string{TopicReports}, Send: make(chan []byte, 1)}
	hub.Register(c)

	for i := 0; i < 3; i++ {
		if err := hub.Publish(context.Background(), Event{Type: EventReportRecorded, Topic: TopicReports}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if got := hub.Dropped(); got != 2 {
		t.Errorf("expected 2 dropped deliveries, got %d", got)
	}
}

func TestSplitTopics(t *testing.T) {
	if got := splitTopics(""); len(got) != 1 || got[0] != TopicReports {
		t.Errorf("expected default topic, got %v", got)
	}
	if got := splitTopics(" a, ,b"); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("unexpected topics %v", got)
	}
}

func newFeedServer(t *testing.T, hub *Hub, origins ...string) string {
	t.Helper()
	e := echo.New()
	NewHandler(hub, origins).RegisterRoutes(e.Group(""))
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHandler_DeliversEvents(t *testing.T) {
	hub := NewHub()
	url := newFeedServer(t, hub, "http://localhost:3000")

	conn, resp, err := gorillawebsocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("failed to dial websocket: %v", err)
	}
	defer conn.Close()
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("expected 101, got %d", resp.StatusCode)
	}

	waitFor(t, func() bool { return hub.TopicCount(TopicReports) == 1 })

	if err := hub.Publish(context.Background(), Event{Type: EventReportRecorded, Topic: TopicReports, ReportID: "r1"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read: %v", err)
	}
	if ev.ReportID != "r1" {
		t.Errorf("unexpected event %+v", ev)
	}

	conn.Close()
	waitFor(t, func() bool { return hub.ClientCount() == 0 })
}

func TestHandler_RejectsForeignOrigin(t *testing.T) {
	hub := NewHub()
	url := newFeedServer(t, hub, "http://localhost:3000")

	header := http.Header{"Origin": {"http://evil.example"}}
	_, resp, err := gorillawebsocket.DefaultDialer.Dial(url, header)
	if err == nil {
		t.Fatal("expected handshake to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %v", resp)
	}
	if hub.ClientCount() != 0 {
		t.Error("rejected client must not be registered")
	}
}

func TestHandler_AllowsListedOrigin(t *testing.T) {
	hub := NewHub()
	url := newFeedServer(t, hub, "http://localhost:3000/")

	header := http.Header{"Origin": {"http://localhost:3000"}}
	conn, _, err := gorillawebsocket.DefaultDialer.Dial(url+"?topics=stats", header)
	if err != nil {
		t.Fatalf("failed to dial websocket: %v", err)
	}
	defer conn.Close()

	waitFor(t, func() bool { return hub.TopicCount("stats") == 1 })
}
