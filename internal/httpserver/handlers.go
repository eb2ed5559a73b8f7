package httpserver

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/chadiek/mock-interview/internal/interview"
	"github.com/chadiek/mock-interview/internal/llm"
)

type createRequest struct {
	UserID string `json:"userId"`
}

type turnRequest struct {
	Text string `json:"text"`
}

type errorResponse struct {
	Error string `json:"error"`
	Input string `json:"input,omitempty"`
}

func (s *Server) healthz(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func (s *Server) balance(c echo.Context) error {
	if s.balances == nil {
		return c.JSON(http.StatusServiceUnavailable, errorResponse{Error: "credits unavailable"})
	}
	bal, err := s.balances.Balance(c.Request().Context(), c.Param("user"))
	if err != nil {
		s.log.WithError(err).WithField("user_id", c.Param("user")).Error("balance lookup failed")
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "balance lookup failed"})
	}
	return c.JSON(http.StatusOK, map[string]int{"balance": bal})
}

func (s *Server) createSession(c echo.Context) error {
	var req createRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "userId is required"})
	}
	sess := s.Registry.Create(req.UserID)
	s.log.WithFields(logrus.Fields{"session_id": sess.ID(), "user_id": req.UserID}).Info("session created")
	return c.JSON(http.StatusCreated, sess.Snapshot())
}

func (s *Server) getSession(c echo.Context) error {
	sess, err := s.Registry.Get(c.Param("id"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, sess.Snapshot())
}

func (s *Server) configure(c echo.Context) error {
	sess, err := s.Registry.Get(c.Param("id"))
	if err != nil {
		return s.fail(c, err)
	}
	cfg := interview.DefaultConfig()
	if err := c.Bind(&cfg); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
	}
	if err := sess.Configure(cfg); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, sess.Snapshot())
}

func (s *Server) start(c echo.Context) error {
	sess, err := s.Registry.Get(c.Param("id"))
	if err != nil {
		return s.fail(c, err)
	}
	res, err := sess.Start(c.Request().Context())
	if err != nil {
		return s.fail(c, err)
	}
	if res.PurchaseRequired {
		return c.JSON(http.StatusPaymentRequired, res)
	}
	return c.JSON(http.StatusOK, sess.Snapshot())
}

func (s *Server) submit(c echo.Context) error {
	sess, err := s.Registry.Get(c.Param("id"))
	if err != nil {
		return s.fail(c, err)
	}
	var req turnRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
	}
	if err := sess.Submit(c.Request().Context(), req.Text); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, sess.Snapshot())
}

func (s *Server) end(c echo.Context) error {
	sess, err := s.Registry.Get(c.Param("id"))
	if err != nil {
		return s.fail(c, err)
	}
	report, err := sess.End(c.Request().Context())
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusAccepted, map[string]any{"report": report})
}

func (s *Server) events(c echo.Context) error {
	sess, err := s.Registry.Get(c.Param("id"))
	if err != nil {
		return s.fail(c, err)
	}
	snap := sess.Snapshot()
	initial := &Event{Type: "snapshot", SessionID: snap.ID, Data: snap}
	if err := s.Hub.Serve(c.Response(), c.Request(), snap.ID, initial); err != nil {
		s.log.WithError(err).WithField("session_id", snap.ID).Warn("websocket upgrade failed")
	}
	return nil
}

// fail maps session errors to status codes.
func (s *Server) fail(c echo.Context, err error) error {
	var te *llm.TransportError
	switch {
	case errors.Is(err, interview.ErrNotFound):
		return c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, interview.ErrInvalidConfig), errors.Is(err, interview.ErrEmptyInput):
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, llm.ErrBusy):
		return c.JSON(http.StatusConflict, errorResponse{Error: "a response is still streaming"})
	case errors.Is(err, interview.ErrConfigLocked), errors.Is(err, interview.ErrInvalidState):
		return c.JSON(http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.As(err, &te), errors.Is(err, llm.ErrStreamInterrupted):
		var input string
		if sess, gerr := s.Registry.Get(c.Param("id")); gerr == nil {
			input = sess.PendingInput()
		}
		return c.JSON(http.StatusBadGateway, errorResponse{Error: "Connection interrupted, please retry.", Input: input})
	}
	s.log.WithError(err).WithField("path", c.Path()).Error("request failed")
	return c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
}
