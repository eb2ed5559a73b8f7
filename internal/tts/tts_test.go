package tts

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// This is a smoke test for StreamPCM48k without an API key; it should error quickly
func TestDeepgram_StreamPCM48k_NoKey(t *testing.T) {
	d := NewDeepgramClient("", "", nil)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	pcmCh, errCh := d.StreamPCM48k(ctx, "hello")
	select {
	case err := <-errCh:
		if err == nil {
			t.Fatalf("expected error when api key missing")
		}
	case <-pcmCh:
	case <-time.After(300 * time.Millisecond):
		t.Fatalf("timeout waiting for error")
	}
}

func TestElevenLabs_NoKey(t *testing.T) {
	e := NewElevenLabsClient("", "", nil)
	_, errCh := e.StreamPCM48k(context.Background(), "hello")
	if err := <-errCh; err == nil {
		t.Fatalf("expected error when api key missing")
	}
}

type fakeSynth struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (f *fakeSynth) StreamPCM48k(ctx context.Context, text string) (<-chan []byte, <-chan error) {
	f.mu.Lock()
	f.texts = append(f.texts, text)
	f.mu.Unlock()
	pcm := make(chan []byte, 3)
	errc := make(chan error, 1)
	go func() {
		defer close(pcm)
		defer close(errc)
		if f.err != nil {
			errc <- f.err
			return
		}
		for i := 0; i < 3; i++ {
			pcm <- []byte{1, 0, 2, 0}
		}
	}()
	return pcm, errc
}

type fakeSink struct {
	mu     sync.Mutex
	frames map[string]int
}

func (s *fakeSink) WritePCM(sessionID string, pcm []byte) {
	s.mu.Lock()
	if s.frames == nil {
		s.frames = map[string]int{}
	}
	s.frames[sessionID]++
	s.mu.Unlock()
}

func TestNotifier_SpeaksStrippedText(t *testing.T) {
	synth := &fakeSynth{}
	sink := &fakeSink{}
	n := NewNotifier(synth, sink, 4, nil)
	go n.Run(context.Background())

	if !n.Notify(Utterance{SessionID: "s1", MessageID: "m1", Text: "Can you **quantify** the impact?"}) {
		t.Fatalf("notify rejected")
	}
	n.Close()

	if len(synth.texts) != 1 || synth.texts[0] != "Can you quantify the impact?" {
		t.Fatalf("texts = %q", synth.texts)
	}
	if sink.frames["s1"] != 3 {
		t.Fatalf("frames = %d", sink.frames["s1"])
	}
}

func TestNotifier_SkipsEmptyAndDropsWhenFull(t *testing.T) {
	n := NewNotifier(&fakeSynth{}, nil, 1, nil)
	if n.Notify(Utterance{Text: "   "}) {
		t.Fatalf("empty utterance should be skipped")
	}
	if !n.Notify(Utterance{Text: "one"}) {
		t.Fatalf("first utterance should queue")
	}
	if n.Notify(Utterance{Text: "two"}) {
		t.Fatalf("full queue should drop without blocking")
	}
	go n.Run(context.Background())
	n.Close()
	if n.Notify(Utterance{Text: "late"}) {
		t.Fatalf("closed notifier should reject")
	}
}

func TestNotifier_SynthesisErrorIsSwallowed(t *testing.T) {
	synth := &fakeSynth{err: errors.New("quota")}
	n := NewNotifier(synth, &fakeSink{}, 2, nil)
	go n.Run(context.Background())
	n.Notify(Utterance{SessionID: "s", Text: "hello"})
	n.Notify(Utterance{SessionID: "s", Text: "again"})
	n.Close()
	if len(synth.texts) != 2 {
		t.Fatalf("notifier should keep going after a failure, got %d calls", len(synth.texts))
	}
}
