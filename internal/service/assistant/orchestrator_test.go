package assistant_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.uber.org/goleak"

	analysis "github.com/zhouzirui/voice-tavern/backend/internal/analysis/emotion"
	"github.com/zhouzirui/voice-tavern/backend/internal/service/assistant"
	"github.com/zhouzirui/voice-tavern/backend/internal/service/capture"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type stubCapturer struct {
	result  capture.Result
	events  []capture.Event
	started chan struct{}
	release chan struct{}
}

func (s *stubCapturer) CaptureWithProgress(_ context.Context, _ int, progress func(capture.Event)) capture.Result {
	if s.started != nil {
		close(s.started)
		<-s.release
	}
	for _, e := range s.events {
		if progress != nil {
			progress(e)
		}
	}
	return s.result
}

type call struct {
	text  string
	label analysis.Label
}

type stubResponder struct {
	mu    sync.Mutex
	calls []call
}

func (r *stubResponder) Generate(_ context.Context, text string, label analysis.Label) (string, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call{text: text, label: label})
	return label.Prefix() + "reply to " + text, ""
}

func TestVoiceExchangeSuccess(t *testing.T) {
	capt := &stubCapturer{
		result: capture.Result{Transcript: "Hello", Emotion: analysis.Happy, Status: capture.StatusOK, Attempts: 2},
		events: []capture.Event{{Attempt: 1, Outcome: capture.OutcomeNoSpeech}, {Attempt: 2, Outcome: capture.OutcomeRecognized}},
	}
	resp := &stubResponder{}
	o := assistant.NewOrchestrator(capt, resp, 3, nil)

	var (
		attempts []capture.Event
		captured *capture.Result
	)
	ex, err := o.VoiceExchange(context.Background(), assistant.Observer{
		OnAttempt: func(e capture.Event) { attempts = append(attempts, e) },
		OnCapture: func(r capture.Result) { captured = &r },
	})
	if err != nil {
		t.Fatalf("VoiceExchange err: %v", err)
	}
	if ex.Reply != "😊 reply to Hello" || ex.Transcript != "Hello" || ex.Emotion != analysis.Happy {
		t.Fatalf("unexpected exchange: %+v", ex)
	}
	if len(attempts) != 2 || captured == nil || captured.Attempts != 2 {
		t.Fatalf("observer not notified: attempts=%d captured=%v", len(attempts), captured)
	}
	if o.LastEmotion() != analysis.Happy {
		t.Fatalf("last emotion not recorded: %s", o.LastEmotion())
	}
}

func TestVoiceExchangeFailureNotices(t *testing.T) {
	cases := map[capture.Status]string{
		capture.StatusNoInput:      assistant.NoInputNotice,
		capture.StatusServiceError: assistant.ServiceErrorNotice,
	}
	for status, notice := range cases {
		resp := &stubResponder{}
		capt := &stubCapturer{result: capture.Result{Status: status, Emotion: analysis.Neutral, Err: errors.New("x")}}
		o := assistant.NewOrchestrator(capt, resp, 3, nil)

		ex, err := o.VoiceExchange(context.Background(), assistant.Observer{})
		if err != nil {
			t.Fatalf("%s: err %v", status, err)
		}
		if ex.Reply != notice || ex.Emotion != analysis.Neutral {
			t.Fatalf("%s: unexpected exchange %+v", status, ex)
		}
		if len(resp.calls) != 0 {
			t.Fatalf("%s: backend must not be called", status)
		}
	}
}

func TestVoiceExchangeWithoutMicrophone(t *testing.T) {
	o := assistant.NewOrchestrator(nil, &stubResponder{}, 3, nil)
	if o.VoiceEnabled() {
		t.Fatal("voice should be disabled")
	}
	ex, err := o.VoiceExchange(context.Background(), assistant.Observer{})
	if err != nil || ex.Reply != assistant.ServiceErrorNotice {
		t.Fatalf("unexpected result: %+v, %v", ex, err)
	}
}

func TestTextExchangeCarriesLastEmotion(t *testing.T) {
	capt := &stubCapturer{result: capture.Result{Transcript: "ugh", Emotion: analysis.Angry, Status: capture.StatusOK, Attempts: 1}}
	resp := &stubResponder{}
	o := assistant.NewOrchestrator(capt, resp, 3, nil)

	ex, _ := o.TextExchange(context.Background(), "before any voice", "")
	if ex.Emotion != analysis.Neutral {
		t.Fatalf("expected neutral before any capture, got %s", ex.Emotion)
	}

	if _, err := o.VoiceExchange(context.Background(), assistant.Observer{}); err != nil {
		t.Fatalf("VoiceExchange err: %v", err)
	}

	ex, _ = o.TextExchange(context.Background(), "typed", "")
	if ex.Emotion != analysis.Angry || ex.Reply != "😡 reply to typed" {
		t.Fatalf("unexpected exchange: %+v", ex)
	}

	ex, _ = o.TextExchange(context.Background(), "typed", analysis.Sad)
	if ex.Emotion != analysis.Sad {
		t.Fatalf("explicit label should win, got %s", ex.Emotion)
	}

	ex, _ = o.TextExchange(context.Background(), "typed", "ecstatic")
	if ex.Emotion != analysis.Neutral {
		t.Fatalf("unknown label should normalise to neutral, got %s", ex.Emotion)
	}
}

func TestConcurrentExchangeIsBusy(t *testing.T) {
	capt := &stubCapturer{
		result:  capture.Result{Transcript: "hi", Emotion: analysis.Neutral, Status: capture.StatusOK, Attempts: 1},
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	o := assistant.NewOrchestrator(capt, &stubResponder{}, 3, nil)

	done := make(chan error, 1)
	go func() {
		_, err := o.VoiceExchange(context.Background(), assistant.Observer{})
		done <- err
	}()
	<-capt.started

	if _, err := o.TextExchange(context.Background(), "hello", ""); !errors.Is(err, assistant.ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	if _, err := o.VoiceExchange(context.Background(), assistant.Observer{}); !errors.Is(err, assistant.ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}

	close(capt.release)
	if err := <-done; err != nil {
		t.Fatalf("first exchange err: %v", err)
	}

	if _, err := o.TextExchange(context.Background(), "hello", ""); err != nil {
		t.Fatalf("gate should be released, got %v", err)
	}
}
