package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

var (
	// ErrBusy is returned when a turn call is issued while another is unresolved.
	ErrBusy = errors.New("turn transport busy")
	// ErrStreamInterrupted means the body failed after the stream had opened.
	ErrStreamInterrupted = errors.New("stream interrupted")
)

// Opener opens one streamed turn response.
type Opener interface {
	Open(ctx context.Context, turn TurnRequest) (io.ReadCloser, error)
}

// Transport issues at most one turn call at a time.
type Transport struct {
	opener  Opener
	log     logrus.FieldLogger
	busy    atomic.Bool
	bufSize int
}

// NewTransport wraps opener with the single-flight guard.
func NewTransport(opener Opener, log logrus.FieldLogger) *Transport {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Transport{opener: opener, log: log, bufSize: 4096}
}

// Busy reports whether a call is in flight.
func (t *Transport) Busy() bool { return t.busy.Load() }

// Stream is one in-flight turn response.
type Stream struct {
	frags  chan string
	done   chan struct{}
	cancel context.CancelFunc
	err    error
}

// Fragments yields body chunks in arrival order and is closed when the
// stream ends for any reason.
func (s *Stream) Fragments() <-chan string { return s.frags }

// Wait blocks until the stream is released. It returns nil on a clean close,
// an error wrapping ErrStreamInterrupted on a mid-stream failure, or the
// context error when the call was cancelled.
func (s *Stream) Wait() error {
	<-s.done
	return s.err
}

// Close cancels the call, releases the connection and waits for it.
func (s *Stream) Close() error {
	s.cancel()
	return s.Wait()
}

// Send opens the call and starts pumping fragments. A non-success status is
// returned here as a *TransportError; a call while another is unresolved
// fails with ErrBusy.
func (t *Transport) Send(ctx context.Context, turn TurnRequest) (*Stream, error) {
	if !t.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	ctx, cancel := context.WithCancel(ctx)
	body, err := t.opener.Open(ctx, turn)
	if err != nil {
		cancel()
		t.busy.Store(false)
		return nil, err
	}

	s := &Stream{
		frags:  make(chan string, 64),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	go t.pump(ctx, body, s)
	return s, nil
}

func (t *Transport) pump(ctx context.Context, body io.ReadCloser, s *Stream) {
	var closeOnce sync.Once
	closeBody := func() { closeOnce.Do(func() { _ = body.Close() }) }

	released := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			closeBody()
		case <-released:
		}
	}()

	defer func() {
		close(released)
		closeBody()
		s.cancel()
		close(s.frags)
		t.busy.Store(false)
		close(s.done)
	}()

	buf := make([]byte, t.bufSize)
	received := 0
	for {
		n, rerr := body.Read(buf)
		if n > 0 {
			received += n
			select {
			case s.frags <- string(buf[:n]):
			case <-ctx.Done():
				s.err = ctx.Err()
				return
			}
		}
		if rerr == nil {
			continue
		}
		if ctx.Err() != nil {
			s.err = ctx.Err()
			return
		}
		if errors.Is(rerr, io.EOF) {
			return
		}
		t.log.WithError(rerr).WithField("bytes", received).Warn("turn stream interrupted")
		s.err = fmt.Errorf("%w: %v", ErrStreamInterrupted, rerr)
		return
	}
}
