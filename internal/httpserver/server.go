// Package httpserver exposes interview sessions over HTTP and streams their
// events to websocket subscribers.
package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/chadiek/mock-interview/internal/interview"
	"github.com/chadiek/mock-interview/internal/scorecard"
	"github.com/chadiek/mock-interview/internal/tts"
)

// Balances reads credit balances. *credits.Gate implements it.
type Balances interface {
	Balance(ctx context.Context, userID string) (int, error)
}

// Speaker queues finalized interviewer lines for speech. *tts.Notifier
// implements it.
type Speaker interface {
	Notify(u tts.Utterance) bool
}

// DefaultRetention is how long an analyzed session stays readable.
const DefaultRetention = 15 * time.Minute

// Options configure the server. Hub and Speaker may be nil. A zero Retention
// means DefaultRetention.
type Options struct {
	Session   interview.Deps
	Balances  Balances
	Hub       *Hub
	Speaker   Speaker
	Retention time.Duration
	Log       logrus.FieldLogger
}

// Server bundles the router and its dependencies.
type Server struct {
	Router   *echo.Echo
	Registry *interview.Registry
	Hub      *Hub

	balances Balances
	speaker  Speaker
	log      logrus.FieldLogger
}

// New constructs the HTTP server with routes.
func New(opts Options) *Server {
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	hub := opts.Hub
	if hub == nil {
		hub = NewHub(log)
	}
	s := &Server{
		Hub:      hub,
		balances: opts.Balances,
		speaker:  opts.Speaker,
		log:      log,
	}
	if opts.Session.Log == nil {
		opts.Session.Log = log
	}
	retain := opts.Retention
	if retain == 0 {
		retain = DefaultRetention
	}
	s.Registry = interview.NewRegistry(opts.Session, s.hooksFor, retain)
	s.Router = newRouter(s)
	return s
}

type telemetryEvent struct {
	RequestID string          `json:"requestId"`
	Payload   json.RawMessage `json:"payload"`
}

type rollbackEvent struct {
	RequestID string `json:"requestId"`
	Input     string `json:"input"`
}

// hooksFor routes a session's events to the hub and the speaker.
func (s *Server) hooksFor(id string) interview.Hooks {
	return interview.Hooks{
		OnState:   func(st interview.State) { s.Hub.Publish(id, "state", st) },
		OnMessage: func(m interview.ChannelMessage) { s.Hub.Publish(id, "message", m) },
		OnChannelFinalized: func(m interview.ChannelMessage) {
			s.Hub.Publish(id, "finalized", m)
			if s.speaker != nil && m.Persona == interview.ChannelInterviewer {
				s.speaker.Notify(tts.Utterance{SessionID: id, MessageID: m.ID, Text: m.Content})
			}
		},
		OnTelemetry: func(reqID string, payload json.RawMessage) {
			s.Hub.Publish(id, "telemetry", telemetryEvent{RequestID: reqID, Payload: payload})
		},
		OnRollback: func(reqID, input string) {
			s.Hub.Publish(id, "rollback", rollbackEvent{RequestID: reqID, Input: input})
		},
		OnReport:  func(r scorecard.Report) { s.Hub.Publish(id, "report", r) },
		OnWarning: func(w scorecard.Warning) { s.Hub.Publish(id, "warning", w) },
	}
}

// ServeHTTP lets the server be mounted directly on an http.Server.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}
