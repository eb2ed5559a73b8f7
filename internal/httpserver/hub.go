package httpserver

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 65536,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const writeWait = 10 * time.Second

// Event is one JSON frame on a session's event feed.
type Event struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Data      any    `json:"data,omitempty"`
}

type frame struct {
	kind int
	data []byte
}

type subscriber struct {
	conn *websocket.Conn
	send chan frame
}

// Hub fans session events and speech audio out to websocket subscribers.
// Slow subscribers lose frames rather than stall the session.
type Hub struct {
	log   logrus.FieldLogger
	depth int

	mu   sync.Mutex
	subs map[string]map[*subscriber]struct{}
}

// NewHub returns an empty hub.
func NewHub(log logrus.FieldLogger) *Hub {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Hub{log: log, depth: 256, subs: make(map[string]map[*subscriber]struct{})}
}

// Publish sends a JSON event to every subscriber of sessionID.
func (h *Hub) Publish(sessionID, typ string, data any) {
	b, err := json.Marshal(Event{Type: typ, SessionID: sessionID, Data: data})
	if err != nil {
		h.log.WithError(err).WithField("type", typ).Error("marshal event")
		return
	}
	h.broadcast(sessionID, frame{kind: websocket.TextMessage, data: b})
}

// WritePCM implements tts.Sink.
func (h *Hub) WritePCM(sessionID string, pcm []byte) {
	h.broadcast(sessionID, frame{kind: websocket.BinaryMessage, data: pcm})
}

// Subscribers is the number of feeds open for sessionID.
func (h *Hub) Subscribers(sessionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[sessionID])
}

func (h *Hub) broadcast(sessionID string, f frame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs[sessionID] {
		select {
		case s.send <- f:
		default:
			h.log.WithField("session_id", sessionID).Warn("event subscriber too slow; dropping frame")
		}
	}
}

// Serve upgrades the request and streams sessionID's events until the client
// goes away. initial, when non-nil, is sent first.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, sessionID string, initial *Event) error {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	s := &subscriber{conn: conn, send: make(chan frame, h.depth)}
	if initial != nil {
		if b, err := json.Marshal(initial); err == nil {
			s.send <- frame{kind: websocket.TextMessage, data: b}
		}
	}

	h.mu.Lock()
	if h.subs[sessionID] == nil {
		h.subs[sessionID] = make(map[*subscriber]struct{})
	}
	h.subs[sessionID][s] = struct{}{}
	h.mu.Unlock()
	log := h.log.WithField("session_id", sessionID)
	log.Debug("event subscriber connected")

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for f := range s.send {
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(f.kind, f.data); err != nil {
				log.WithError(err).Debug("event write failed")
				_ = conn.Close()
				return
			}
		}
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	}()

	// Client frames are ignored; reading detects disconnects.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.mu.Lock()
	delete(h.subs[sessionID], s)
	if len(h.subs[sessionID]) == 0 {
		delete(h.subs, sessionID)
	}
	close(s.send)
	h.mu.Unlock()
	<-writerDone
	_ = conn.Close()
	log.Debug("event subscriber disconnected")
	return nil
}
