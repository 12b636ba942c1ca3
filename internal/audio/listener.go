package audio

import (
	"context"
	"fmt"
	"time"

	"github.com/zhouzirui/voice-tavern/backend/internal/model/speech"
)

// FrameReader 以阻塞方式返回下一块音频样本。实现方需返回独立的切片副本。
type FrameReader interface {
	ReadFrame() ([]float32, error)
}

// Discarder is implemented by live sources that queue audio while nobody
// reads them. Listen drops that backlog before waiting for speech.
type Discarder interface {
	Discard() error
}

// ListenerOptions 控制能量门限语音检测。
type ListenerOptions struct {
	SampleRate     int
	ThresholdFloor float64       // 校准后门限的下限
	ThresholdRatio float64       // 门限 = 环境噪声 RMS * ratio
	PauseDuration  time.Duration // 连续静音达到该时长视为一句话结束
	PreRoll        time.Duration // 触发前保留的音频，避免吞掉首字
}

// DefaultListenerOptions 返回默认的检测参数。
func DefaultListenerOptions() ListenerOptions {
	return ListenerOptions{
		SampleRate:     SampleRate,
		ThresholdFloor: 0.01,
		ThresholdRatio: 1.5,
		PauseDuration:  800 * time.Millisecond,
		PreRoll:        300 * time.Millisecond,
	}
}

// Listener turns a raw frame source into phrase-sized clips. Elapsed time is
// counted from the audio itself, so behaviour is identical for a live device
// and a recorded source.
type Listener struct {
	src       FrameReader
	opts      ListenerOptions
	threshold float64
}

// NewListener 创建检测器，未设置的参数取默认值。
func NewListener(src FrameReader, opts ListenerOptions) *Listener {
	def := DefaultListenerOptions()
	if opts.SampleRate <= 0 {
		opts.SampleRate = def.SampleRate
	}
	if opts.ThresholdFloor <= 0 {
		opts.ThresholdFloor = def.ThresholdFloor
	}
	if opts.ThresholdRatio <= 0 {
		opts.ThresholdRatio = def.ThresholdRatio
	}
	if opts.PauseDuration <= 0 {
		opts.PauseDuration = def.PauseDuration
	}
	if opts.PreRoll < 0 {
		opts.PreRoll = 0
	}
	return &Listener{src: src, opts: opts, threshold: opts.ThresholdFloor}
}

// Threshold 返回当前能量门限。
func (l *Listener) Threshold() float64 {
	return l.threshold
}

// Calibrate 读取 d 时长的环境噪声并据此调整门限。
func (l *Listener) Calibrate(ctx context.Context, d time.Duration) error {
	var (
		elapsed time.Duration
		sum     float64
		frames  int
	)
	for elapsed < d {
		if err := ctx.Err(); err != nil {
			return err
		}
		frame, err := l.src.ReadFrame()
		if err != nil {
			return fmt.Errorf("calibrate: %w", err)
		}
		sum += RMS(frame)
		frames++
		elapsed += l.frameDuration(len(frame))
	}

	threshold := l.opts.ThresholdFloor
	if frames > 0 {
		if ambient := sum / float64(frames) * l.opts.ThresholdRatio; ambient > threshold {
			threshold = ambient
		}
	}
	l.threshold = threshold
	return nil
}

// Listen waits up to timeout for speech, then records until a pause or until
// phraseLimit is reached. It returns speech.ErrNoSpeech when nothing crosses
// the threshold in time. Non-positive timeout or phraseLimit means unbounded.
func (l *Listener) Listen(ctx context.Context, timeout, phraseLimit time.Duration) (Clip, error) {
	var (
		waited     time.Duration
		preRoll    [][]float32
		preRollDur time.Duration
		recorded   []float32
		phrase     time.Duration
	)

	if d, ok := l.src.(Discarder); ok {
		if err := d.Discard(); err != nil {
			return Clip{}, fmt.Errorf("listen: %w", err)
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return Clip{}, err
		}
		frame, err := l.src.ReadFrame()
		if err != nil {
			return Clip{}, fmt.Errorf("listen: %w", err)
		}
		d := l.frameDuration(len(frame))

		if RMS(frame) > l.threshold {
			for _, f := range preRoll {
				recorded = append(recorded, f...)
			}
			recorded = append(recorded, frame...)
			phrase = preRollDur + d
			break
		}

		waited += d
		if timeout > 0 && waited >= timeout {
			return Clip{}, speech.ErrNoSpeech
		}

		if l.opts.PreRoll > 0 {
			preRoll = append(preRoll, frame)
			preRollDur += d
			for len(preRoll) > 1 && preRollDur > l.opts.PreRoll {
				preRollDur -= l.frameDuration(len(preRoll[0]))
				preRoll = preRoll[1:]
			}
		}
	}

	var silence time.Duration
	for phraseLimit <= 0 || phrase < phraseLimit {
		if err := ctx.Err(); err != nil {
			return Clip{}, err
		}
		frame, err := l.src.ReadFrame()
		if err != nil {
			return Clip{}, fmt.Errorf("listen: %w", err)
		}
		d := l.frameDuration(len(frame))
		recorded = append(recorded, frame...)
		phrase += d

		if RMS(frame) > l.threshold {
			silence = 0
			continue
		}
		silence += d
		if silence >= l.opts.PauseDuration {
			break
		}
	}

	return Clip{Samples: recorded, SampleRate: l.opts.SampleRate}, nil
}

func (l *Listener) frameDuration(samples int) time.Duration {
	return time.Duration(samples) * time.Second / time.Duration(l.opts.SampleRate)
}
