package tts

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/pkg/api/speak/v1/websocket/interfaces"
	clientinterfaces "github.com/deepgram/deepgram-go-sdk/pkg/client/interfaces/v1"
	"github.com/deepgram/deepgram-go-sdk/pkg/client/speak"
)

// DeepgramClient synthesizes interviewer lines over Deepgram's speak websocket.
type DeepgramClient struct {
	apiKey     string
	model      string
	sampleRate int
	encoding   string
	// idleWindow ends a synthesis once audio has started and then paused this long.
	idleWindow time.Duration
	// maxUtterance bounds one synthesis when the socket never goes idle.
	maxUtterance time.Duration
	log          logrus.FieldLogger
}

func NewDeepgramClient(apiKey, model string, log logrus.FieldLogger) *DeepgramClient {
	if model == "" {
		model = "aura-2-thalia-en"
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &DeepgramClient{
		apiKey:       apiKey,
		model:        model,
		sampleRate:   48000,
		encoding:     "linear16",
		idleWindow:   400 * time.Millisecond,
		maxUtterance: 30 * time.Second,
		log:          log.WithField("tts", "deepgram"),
	}
}

// audioClock records when the last audio frame arrived.
type audioClock struct{ lastNanos atomic.Int64 }

func (c *audioClock) tick() { c.lastNanos.Store(time.Now().UnixNano()) }

func (c *audioClock) idleFor(window time.Duration) bool {
	last := c.lastNanos.Load()
	return last != 0 && time.Since(time.Unix(0, last)) > window
}

func (d *DeepgramClient) StreamPCM48k(ctx context.Context, text string) (<-chan []byte, <-chan error) {
	pcmCh := make(chan []byte, 4096)
	errCh := make(chan error, 1)

	go func() {
		defer close(pcmCh)
		defer close(errCh)

		if d.apiKey == "" {
			errCh <- fmt.Errorf("deepgram: API key missing")
			return
		}
		if text == "" {
			return
		}
		if err := d.speak(ctx, text, pcmCh); err != nil {
			errCh <- err
		}
	}()

	return pcmCh, errCh
}

func (d *DeepgramClient) speak(ctx context.Context, text string, pcmCh chan<- []byte) error {
	var clock audioClock
	cb := &speakCallback{onBinary: func(data []byte) error {
		if len(data) == 0 {
			return nil
		}
		clock.tick()
		b := make([]byte, len(data))
		copy(b, data)
		select {
		case pcmCh <- b:
		default:
			d.log.Debug("dropping audio frame; consumer too slow")
		}
		return nil
	}}

	options := &clientinterfaces.WSSpeakOptions{
		Model:      d.model,
		Encoding:   d.encoding,
		SampleRate: d.sampleRate,
	}
	dg, err := speak.NewWSUsingCallback(ctx, d.apiKey, &clientinterfaces.ClientOptions{}, options, cb)
	if err != nil {
		return fmt.Errorf("deepgram: create ws client: %w", err)
	}
	var stopOnce sync.Once
	stop := func() { stopOnce.Do(dg.Stop) }
	defer stop()

	if ok := dg.Connect(); !ok {
		return fmt.Errorf("deepgram: connect failed")
	}
	if err := dg.SpeakWithText(text); err != nil {
		return fmt.Errorf("deepgram: speak text: %w", err)
	}
	if err := dg.Flush(); err != nil {
		d.log.WithError(err).Warn("flush failed")
	}

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.NewTimer(d.maxUtterance)
	defer deadline.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-deadline.C:
			d.log.WithField("chars", len(text)).Warn("synthesis hit the utterance limit")
			return nil
		case <-ticker.C:
			if clock.idleFor(d.idleWindow) {
				return nil
			}
		}
	}
}

type speakCallback struct{ onBinary func([]byte) error }

func (s *speakCallback) Open(*msginterfaces.OpenResponse) error         { return nil }
func (s *speakCallback) Metadata(*msginterfaces.MetadataResponse) error { return nil }
func (s *speakCallback) Flush(*msginterfaces.FlushedResponse) error     { return nil }
func (s *speakCallback) Clear(*msginterfaces.ClearedResponse) error     { return nil }
func (s *speakCallback) Close(*msginterfaces.CloseResponse) error       { return nil }
func (s *speakCallback) Warning(*msginterfaces.WarningResponse) error   { return nil }
func (s *speakCallback) Error(*msginterfaces.ErrorResponse) error       { return nil }
func (s *speakCallback) UnhandledEvent([]byte) error                    { return nil }
func (s *speakCallback) Binary(byMsg []byte) error {
	if s.onBinary != nil {
		return s.onBinary(byMsg)
	}
	return nil
}
