// Package tts speaks finalized interviewer lines. Speech is a side effect:
// failures are logged and never touch the transcript.
package tts

import (
	"context"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/chadiek/mock-interview/internal/markup"
)

// Synthesizer streams 48kHz PCM mono audio for the given text.
type Synthesizer interface {
	StreamPCM48k(ctx context.Context, text string) (<-chan []byte, <-chan error)
}

// Sink receives synthesized audio for a session.
type Sink interface {
	WritePCM(sessionID string, pcm []byte)
}

// Utterance is one finalized channel message to be spoken.
type Utterance struct {
	SessionID string
	MessageID string
	Text      string
}

// Notifier drains a bounded queue of utterances on a single worker.
type Notifier struct {
	synth Synthesizer
	sink  Sink
	log   logrus.FieldLogger
	queue chan Utterance

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// NewNotifier returns a notifier; call Run to start it.
func NewNotifier(synth Synthesizer, sink Sink, depth int, log logrus.FieldLogger) *Notifier {
	if depth <= 0 {
		depth = 32
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Notifier{
		synth: synth,
		sink:  sink,
		log:   log,
		queue: make(chan Utterance, depth),
		done:  make(chan struct{}),
	}
}

// Notify enqueues u without blocking. It reports false when the utterance
// was dropped because the queue is full or the notifier stopped.
func (n *Notifier) Notify(u Utterance) bool {
	text := strings.TrimSpace(markup.Strip(u.Text))
	if text == "" {
		return false
	}
	u.Text = text

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return false
	}
	select {
	case n.queue <- u:
		return true
	default:
		n.log.WithFields(logrus.Fields{"session_id": u.SessionID, "message_id": u.MessageID}).
			Warn("speech queue full; dropping utterance")
		return false
	}
}

// Run speaks queued utterances until ctx is cancelled or Close is called.
func (n *Notifier) Run(ctx context.Context) {
	defer close(n.done)
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-n.queue:
			if !ok {
				return
			}
			n.speak(ctx, u)
		}
	}
}

// Close stops accepting utterances and waits for queued ones to finish.
func (n *Notifier) Close() {
	n.mu.Lock()
	if !n.closed {
		n.closed = true
		close(n.queue)
	}
	n.mu.Unlock()
	<-n.done
}

func (n *Notifier) speak(ctx context.Context, u Utterance) {
	log := n.log.WithFields(logrus.Fields{"session_id": u.SessionID, "message_id": u.MessageID})
	pcmCh, errCh := n.synth.StreamPCM48k(ctx, u.Text)
	frames := 0
	for pcmCh != nil || errCh != nil {
		select {
		case b, ok := <-pcmCh:
			if !ok {
				pcmCh = nil
				continue
			}
			if len(b) > 0 && n.sink != nil {
				n.sink.WritePCM(u.SessionID, b)
				frames++
			}
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				log.WithError(err).Warn("speech synthesis failed")
			}
		}
	}
	log.WithField("frames", frames).Debug("utterance spoken")
}
