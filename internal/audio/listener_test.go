package audio

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/zhouzirui/voice-tavern/backend/internal/model/speech"
)

// scriptedSource 按顺序返回预设帧，耗尽后返回 io.EOF。
type scriptedSource struct {
	frames [][]float32
	reads  int
}

func (s *scriptedSource) ReadFrame() ([]float32, error) {
	if s.reads >= len(s.frames) {
		return nil, io.EOF
	}
	f := s.frames[s.reads]
	s.reads++
	return f, nil
}

// 160 samples @16kHz = 10ms per frame.
func constFrame(v float32) []float32 {
	f := make([]float32, 160)
	for i := range f {
		if i%2 == 0 {
			f[i] = v
		} else {
			f[i] = -v
		}
	}
	return f
}

func repeat(v float32, n int) [][]float32 {
	out := make([][]float32, n)
	for i := range out {
		out[i] = constFrame(v)
	}
	return out
}

func newTestListener(src FrameReader) *Listener {
	return NewListener(src, ListenerOptions{
		SampleRate:     16000,
		ThresholdFloor: 0.01,
		ThresholdRatio: 2,
		PauseDuration:  50 * time.Millisecond,
		PreRoll:        20 * time.Millisecond,
	})
}

func TestCalibrateRaisesThresholdAboveAmbient(t *testing.T) {
	src := &scriptedSource{frames: repeat(0.05, 100)}
	l := newTestListener(src)

	if err := l.Calibrate(context.Background(), time.Second); err != nil {
		t.Fatalf("Calibrate err: %v", err)
	}
	if src.reads != 100 {
		t.Fatalf("expected 100 frames for 1s calibration, got %d", src.reads)
	}
	if got := l.Threshold(); got < 0.099 || got > 0.101 {
		t.Fatalf("expected threshold ~0.1, got %f", got)
	}
}

func TestCalibrateKeepsFloorInSilence(t *testing.T) {
	l := newTestListener(&scriptedSource{frames: repeat(0, 10)})
	if err := l.Calibrate(context.Background(), 100*time.Millisecond); err != nil {
		t.Fatalf("Calibrate err: %v", err)
	}
	if l.Threshold() != 0.01 {
		t.Fatalf("expected floor threshold, got %f", l.Threshold())
	}
}

func TestListenTimesOutWithoutSpeech(t *testing.T) {
	src := &scriptedSource{frames: repeat(0.001, 100)}
	l := newTestListener(src)

	_, err := l.Listen(context.Background(), 200*time.Millisecond, time.Second)
	if !errors.Is(err, speech.ErrNoSpeech) {
		t.Fatalf("expected ErrNoSpeech, got %v", err)
	}
	if src.reads != 20 {
		t.Fatalf("expected 20 frames before timeout, got %d", src.reads)
	}
}

func TestListenStopsAfterPause(t *testing.T) {
	frames := append(repeat(0, 5), repeat(0.5, 10)...)
	frames = append(frames, repeat(0, 20)...)
	src := &scriptedSource{frames: frames}
	l := newTestListener(src)

	clip, err := l.Listen(context.Background(), time.Second, 10*time.Second)
	if err != nil {
		t.Fatalf("Listen err: %v", err)
	}
	// 2 pre-roll + 10 speech + 5 silence frames.
	if want := 17 * 160; len(clip.Samples) != want {
		t.Fatalf("expected %d samples, got %d", want, len(clip.Samples))
	}
	if clip.SampleRate != 16000 {
		t.Fatalf("unexpected sample rate %d", clip.SampleRate)
	}
}

func TestListenHonoursPhraseLimit(t *testing.T) {
	src := &scriptedSource{frames: repeat(0.5, 200)}
	l := newTestListener(src)

	clip, err := l.Listen(context.Background(), time.Second, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("Listen err: %v", err)
	}
	if clip.Duration() != 100*time.Millisecond {
		t.Fatalf("expected 100ms clip, got %s", clip.Duration())
	}
}

func TestListenPropagatesSourceError(t *testing.T) {
	l := newTestListener(&scriptedSource{})
	if _, err := l.Listen(context.Background(), time.Second, time.Second); !errors.Is(err, io.EOF) {
		t.Fatalf("expected wrapped EOF, got %v", err)
	}
}

func TestListenRespectsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	l := newTestListener(&scriptedSource{frames: repeat(0.5, 10)})
	if _, err := l.Listen(ctx, time.Second, time.Second); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

// backlogSource 模拟设备缓冲：前 backlog 帧在 Discard 时被丢弃。
type backlogSource struct {
	scriptedSource
	backlog  int
	discards int
}

func (s *backlogSource) Discard() error {
	s.discards++
	if s.reads < s.backlog {
		s.reads = s.backlog
	}
	return nil
}

func TestListenDiscardsQueuedAudio(t *testing.T) {
	// Loud frames queued while a prompt was playing, then silence.
	frames := append(repeat(0.5, 10), repeat(0.001, 30)...)
	src := &backlogSource{scriptedSource: scriptedSource{frames: frames}, backlog: 10}
	l := newTestListener(src)

	_, err := l.Listen(context.Background(), 200*time.Millisecond, time.Second)
	if !errors.Is(err, speech.ErrNoSpeech) {
		t.Fatalf("expected ErrNoSpeech once the backlog is dropped, got %v", err)
	}
	if src.discards != 1 {
		t.Fatalf("expected one discard, got %d", src.discards)
	}
	if src.reads != 30 {
		t.Fatalf("expected reads to resume after the backlog, got %d", src.reads)
	}
}

type failingDiscard struct{ scriptedSource }

func (failingDiscard) Discard() error { return io.ErrClosedPipe }

func TestListenPropagatesDiscardError(t *testing.T) {
	l := newTestListener(&failingDiscard{})
	if _, err := l.Listen(context.Background(), time.Second, time.Second); !errors.Is(err, io.ErrClosedPipe) {
		t.Fatalf("expected wrapped discard error, got %v", err)
	}
}
