package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"surveydesk/internal/domain"
	"surveydesk/internal/events"
	"surveydesk/internal/survey"
)

const (
	feedWriteWait = 5 * time.Second
	feedQueueSize = 64

	MessageSurveys = "surveys"
	MessageCurrent = "current"
	MessageNotice  = "notice"
)

// FeedMessage is one frame of the live feed.
type FeedMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type feedClient struct {
	conn   *websocket.Conn
	filter messageFilter
	send   chan []byte
}

// Hub fans service state changes and notices out to websocket clients.
// Every client has its own writer goroutine; a client whose queue is full is
// dropped rather than stalling the broadcast.
type Hub struct {
	log     *zap.Logger
	mu      sync.Mutex
	clients map[*websocket.Conn]*feedClient
}

func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{log: log.Named("feed"), clients: map[*websocket.Conn]*feedClient{}}
}

// Attach subscribes the hub to the service cells and notices. The returned
// func undoes both.
func (h *Hub) Attach(svc *survey.Service) (detach func()) {
	removeSink := svc.AddSink(h)
	stopSurveys := svc.Surveys().Subscribe(func(list []domain.Survey) {
		h.Broadcast(FeedMessage{Type: MessageSurveys, Data: list})
	})
	stopCurrent := svc.Current().Subscribe(func(cur *domain.Survey) {
		h.Broadcast(FeedMessage{Type: MessageCurrent, Data: cur})
	})
	return func() {
		removeSink()
		stopSurveys()
		stopCurrent()
	}
}

// Notify implements events.Sink.
func (h *Hub) Notify(_ context.Context, n events.Notice) {
	h.Broadcast(FeedMessage{Type: MessageNotice, Data: n})
}

// Add registers conn. The initial frames are queued ahead of any broadcast.
func (h *Hub) Add(conn *websocket.Conn, filter messageFilter, initial ...FeedMessage) {
	c := &feedClient{conn: conn, filter: filter, send: make(chan []byte, feedQueueSize)}
	for _, msg := range initial {
		if !filter.match(msg.Type) {
			continue
		}
		data, err := json.Marshal(msg)
		if err != nil {
			h.log.Warn("marshal feed message", zap.String("type", msg.Type), zap.Error(err))
			continue
		}
		c.send <- data
	}
	h.mu.Lock()
	h.clients[conn] = c
	n := len(h.clients)
	h.mu.Unlock()
	h.log.Debug("client connected", zap.Int("clients", n))
	go h.writePump(c)
}

// Remove unregisters conn and closes it.
func (h *Hub) Remove(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.drop(conn)
}

// drop must be called with h.mu held. Only the caller that deletes the client
// closes its queue.
func (h *Hub) drop(conn *websocket.Conn) {
	c, ok := h.clients[conn]
	if !ok {
		return
	}
	delete(h.clients, conn)
	close(c.send)
	conn.Close()
	h.log.Debug("client disconnected", zap.Int("clients", len(h.clients)))
}

func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast queues msg for every matching client without blocking.
func (h *Hub) Broadcast(msg FeedMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Warn("marshal feed message", zap.String("type", msg.Type), zap.Error(err))
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, c := range h.clients {
		if !c.filter.match(msg.Type) {
			continue
		}
		select {
		case c.send <- data:
		default:
			h.log.Debug("client too slow, dropping")
			h.drop(conn)
		}
	}
}

func (h *Hub) writePump(c *feedClient) {
	for data := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.log.Debug("write failed, dropping client", zap.Error(err))
			h.Remove(c.conn)
			return
		}
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// feedHandler upgrades to a websocket and streams feed messages. The
// optional types query parameter limits the message types sent.
func feedHandler(h *Hub, svc *survey.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := newMessageFilter(strings.Split(r.URL.Query().Get("types"), ","))
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.log.Debug("websocket upgrade", zap.Error(err))
			return
		}
		h.Add(conn, filter,
			FeedMessage{Type: MessageSurveys, Data: svc.Surveys().Get()},
			FeedMessage{Type: MessageCurrent, Data: svc.CurrentSurvey()},
		)
		defer h.Remove(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}
}

type messageFilter struct {
	all bool
	set map[string]struct{}
}

func newMessageFilter(types []string) messageFilter {
	set := make(map[string]struct{}, len(types))
	for _, t := range types {
		if key := strings.TrimSpace(t); key != "" {
			set[key] = struct{}{}
		}
	}
	if len(set) == 0 {
		return messageFilter{all: true}
	}
	return messageFilter{set: set}
}

func (f messageFilter) match(t string) bool {
	if f.all {
		return true
	}
	_, ok := f.set[t]
	return ok
}
