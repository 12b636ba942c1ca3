package capture_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	analysis "github.com/zhouzirui/voice-tavern/backend/internal/analysis/emotion"
	"github.com/zhouzirui/voice-tavern/backend/internal/audio"
	"github.com/zhouzirui/voice-tavern/backend/internal/model/speech"
	"github.com/zhouzirui/voice-tavern/backend/internal/service/capture"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeMic struct {
	calibrateErr error
	listenErrs   []error
	listens      int
}

func (m *fakeMic) Calibrate(context.Context, time.Duration) error { return m.calibrateErr }

func (m *fakeMic) Listen(ctx context.Context, _, _ time.Duration) (audio.Clip, error) {
	if err := ctx.Err(); err != nil {
		return audio.Clip{}, err
	}
	i := m.listens
	m.listens++
	if i < len(m.listenErrs) && m.listenErrs[i] != nil {
		return audio.Clip{}, m.listenErrs[i]
	}
	return audio.Clip{Samples: make([]float32, 1600), SampleRate: audio.SampleRate}, nil
}

type recognition struct {
	text string
	err  error
}

type fakeRecognizer struct {
	results []recognition
	calls   int
}

func (r *fakeRecognizer) Transcribe(context.Context, audio.Clip) (string, error) {
	i := r.calls
	r.calls++
	if i < len(r.results) {
		return r.results[i].text, r.results[i].err
	}
	return "", speech.ErrUnintelligible
}

type recordingSpeaker struct {
	mu     sync.Mutex
	spoken []string
}

func (s *recordingSpeaker) Speak(_ context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spoken = append(s.spoken, text)
	return nil
}

type fixedClassifier analysis.Label

func (f fixedClassifier) Classify(context.Context, audio.Clip) analysis.Label {
	return analysis.Label(f)
}

func newController(mic *fakeMic, rec *fakeRecognizer, spk *recordingSpeaker) *capture.Controller {
	return capture.NewController(mic, rec, spk, fixedClassifier(analysis.Happy), capture.Config{}, nil)
}

func TestCaptureSucceedsFirstAttempt(t *testing.T) {
	mic := &fakeMic{}
	rec := &fakeRecognizer{results: []recognition{{text: "  Hello  "}}}
	spk := &recordingSpeaker{}

	result := newController(mic, rec, spk).Capture(context.Background(), 3)

	if result.Status != capture.StatusOK {
		t.Fatalf("unexpected status %s (%v)", result.Status, result.Err)
	}
	if result.Transcript != "Hello" || result.Emotion != analysis.Happy || result.Attempts != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(spk.spoken) != 0 {
		t.Fatalf("nothing should be spoken on success, got %v", spk.spoken)
	}
}

func TestCaptureRetriesThenSucceeds(t *testing.T) {
	mic := &fakeMic{listenErrs: []error{speech.ErrNoSpeech}}
	rec := &fakeRecognizer{results: []recognition{{text: ""}, {text: "second try"}}}
	spk := &recordingSpeaker{}

	var events []capture.Event
	result := newController(mic, rec, spk).CaptureWithProgress(context.Background(), 3, func(e capture.Event) {
		events = append(events, e)
	})

	if result.Status != capture.StatusOK || result.Transcript != "second try" || result.Attempts != 3 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(spk.spoken) != 2 || spk.spoken[0] != capture.RetryPrompt {
		t.Fatalf("expected two retry prompts, got %v", spk.spoken)
	}
	wantOutcomes := []string{capture.OutcomeNoSpeech, capture.OutcomeUnclear, capture.OutcomeRecognized}
	if len(events) != len(wantOutcomes) {
		t.Fatalf("expected %d events, got %d", len(wantOutcomes), len(events))
	}
	for i, want := range wantOutcomes {
		if events[i].Outcome != want || events[i].Attempt != i+1 || events[i].MaxAttempts != 3 {
			t.Fatalf("event %d: %+v", i, events[i])
		}
	}
}

func TestCaptureExhaustsExactlyMaxAttempts(t *testing.T) {
	for _, n := range []int{1, 3, 5} {
		t.Run(fmt.Sprintf("max=%d", n), func(t *testing.T) {
			mic := &fakeMic{}
			rec := &fakeRecognizer{}
			spk := &recordingSpeaker{}

			result := newController(mic, rec, spk).Capture(context.Background(), n)

			if result.Status != capture.StatusNoInput {
				t.Fatalf("unexpected status %s", result.Status)
			}
			if result.Emotion != analysis.Neutral || result.Transcript != "" {
				t.Fatalf("unexpected result: %+v", result)
			}
			if rec.calls != n || mic.listens != n || result.Attempts != n {
				t.Fatalf("expected %d attempts, listens=%d transcribes=%d attempts=%d", n, mic.listens, rec.calls, result.Attempts)
			}
			if len(spk.spoken) != n {
				t.Fatalf("expected %d retry prompts, got %d", n, len(spk.spoken))
			}
		})
	}
}

func TestCaptureDefaultAttempts(t *testing.T) {
	mic := &fakeMic{}
	rec := &fakeRecognizer{}

	result := newController(mic, rec, &recordingSpeaker{}).Capture(context.Background(), 0)
	if result.Attempts != 3 || rec.calls != 3 {
		t.Fatalf("expected default of 3 attempts, got %d", result.Attempts)
	}
}

func TestCaptureAbortsOnServiceError(t *testing.T) {
	mic := &fakeMic{}
	rec := &fakeRecognizer{results: []recognition{
		{err: speech.ErrUnintelligible},
		{err: fmt.Errorf("dial: %w", speech.ErrServiceUnavailable)},
		{text: "never reached"},
	}}
	spk := &recordingSpeaker{}

	result := newController(mic, rec, spk).Capture(context.Background(), 3)

	if result.Status != capture.StatusServiceError {
		t.Fatalf("unexpected status %s", result.Status)
	}
	if !errors.Is(result.Err, speech.ErrServiceUnavailable) {
		t.Fatalf("unexpected error %v", result.Err)
	}
	if rec.calls != 2 || result.Attempts != 2 {
		t.Fatalf("remaining attempts must not be consumed: calls=%d", rec.calls)
	}
	if result.Emotion != analysis.Neutral {
		t.Fatalf("unexpected emotion %s", result.Emotion)
	}
	if last := spk.spoken[len(spk.spoken)-1]; last != capture.ServiceErrorPrompt {
		t.Fatalf("expected service error prompt, got %q", last)
	}
}

func TestCaptureCalibrationFailure(t *testing.T) {
	mic := &fakeMic{calibrateErr: errors.New("device busy")}
	rec := &fakeRecognizer{}

	result := newController(mic, rec, &recordingSpeaker{}).Capture(context.Background(), 3)

	if result.Status != capture.StatusServiceError || mic.listens != 0 || result.Attempts != 0 {
		t.Fatalf("unexpected result: %+v listens=%d", result, mic.listens)
	}
}

func TestCaptureCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	mic := &fakeMic{}
	rec := &fakeRecognizer{}
	result := newController(mic, rec, &recordingSpeaker{}).Capture(ctx, 3)

	if result.Status != capture.StatusServiceError || !errors.Is(result.Err, context.Canceled) {
		t.Fatalf("unexpected result: %+v", result)
	}
	if rec.calls != 0 {
		t.Fatalf("recognizer should not be called, calls=%d", rec.calls)
	}
}

func TestCaptureWithRealListener(t *testing.T) {
	// 20 帧静音用于校准，随后 30 帧语音与 100 帧静音
	var frames [][]float32
	for i := 0; i < 20; i++ {
		frames = append(frames, make([]float32, 160))
	}
	for i := 0; i < 30; i++ {
		f := make([]float32, 160)
		for j := range f {
			f[j] = 0.3
		}
		frames = append(frames, f)
	}
	for i := 0; i < 100; i++ {
		frames = append(frames, make([]float32, 160))
	}
	listener := audio.NewListener(&frameSource{frames: frames}, audio.ListenerOptions{})
	rec := &fakeRecognizer{results: []recognition{{text: "hi"}}}

	ctrl := capture.NewController(listener, rec, &recordingSpeaker{}, fixedClassifier(analysis.Sad), capture.Config{
		Calibration:   200 * time.Millisecond,
		ListenTimeout: time.Second,
		PhraseLimit:   5 * time.Second,
	}, nil)

	result := ctrl.Capture(context.Background(), 1)
	if result.Status != capture.StatusOK || result.Transcript != "hi" || result.Emotion != analysis.Sad {
		t.Fatalf("unexpected result: %+v (%v)", result, result.Err)
	}
}

type frameSource struct {
	frames [][]float32
	pos    int
}

func (s *frameSource) ReadFrame() ([]float32, error) {
	if s.pos >= len(s.frames) {
		return make([]float32, 160), nil
	}
	f := s.frames[s.pos]
	s.pos++
	return f, nil
}
