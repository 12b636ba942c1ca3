// Package device 封装 portaudio 麦克风与扬声器，是 audio 中唯一依赖 cgo 的部分。
package device

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/zhouzirui/voice-tavern/backend/internal/audio"
)

var (
	_ audio.FrameReader = (*Microphone)(nil)
	_ audio.Discarder   = (*Microphone)(nil)
)

// Microphone 是默认输入设备上的 portaudio 采集流。
type Microphone struct {
	mu     sync.Mutex
	stream *portaudio.Stream
	buffer []float32
	closed bool
}

// OpenMicrophone 打开并启动默认输入设备。
func OpenMicrophone(sampleRate, framesPerBuffer int) (*Microphone, error) {
	if framesPerBuffer <= 0 {
		framesPerBuffer = audio.FramesPerBuffer
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio init: %w", err)
	}

	m := &Microphone{buffer: make([]float32, framesPerBuffer)}
	stream, err := portaudio.OpenDefaultStream(audio.Channels, 0, float64(sampleRate), framesPerBuffer, m.buffer)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("open input stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("start input stream: %w", err)
	}
	m.stream = stream
	return m, nil
}

// ReadFrame 阻塞读取一块样本。输入溢出只丢失旧数据，不视为错误。
func (m *Microphone) ReadFrame() ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, errors.New("microphone closed")
	}
	if err := m.stream.Read(); err != nil && !errors.Is(err, portaudio.InputOverflowed) {
		return nil, fmt.Errorf("read input stream: %w", err)
	}

	frame := make([]float32, len(m.buffer))
	copy(frame, m.buffer)
	return frame, nil
}

// Discard drops every complete buffer already queued by the input stream, so
// audio recorded while the device was not being read (for example our own
// prompt playing) never reaches the next Listen.
func (m *Microphone) Discard() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errors.New("microphone closed")
	}
	avail, err := m.stream.AvailableToRead()
	if err != nil {
		return fmt.Errorf("query input stream: %w", err)
	}
	for ; avail >= len(m.buffer); avail -= len(m.buffer) {
		if err := m.stream.Read(); err != nil && !errors.Is(err, portaudio.InputOverflowed) {
			return fmt.Errorf("discard input stream: %w", err)
		}
	}
	return nil
}

// Close 停止采集并释放 portaudio。
func (m *Microphone) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	m.stream.Stop()
	err := m.stream.Close()
	portaudio.Terminate()
	return err
}

// Player 通过默认输出设备同步播放 PCM16 单声道音频。
type Player struct {
	mu         sync.Mutex
	sampleRate int
}

// NewPlayer 创建播放器。
func NewPlayer(sampleRate int) *Player {
	return &Player{sampleRate: sampleRate}
}

// Play blocks until all samples have been written or ctx is done.
func (p *Player) Play(ctx context.Context, pcm []int16) error {
	if len(pcm) == 0 {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("portaudio init: %w", err)
	}
	defer portaudio.Terminate()

	buf := make([]int16, audio.FramesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(0, audio.Channels, float64(p.sampleRate), len(buf), buf)
	if err != nil {
		return fmt.Errorf("open output stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("start output stream: %w", err)
	}
	defer stream.Stop()

	for offset := 0; offset < len(pcm); {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := copy(buf, pcm[offset:])
		for i := n; i < len(buf); i++ {
			buf[i] = 0
		}
		if err := stream.Write(); err != nil && !errors.Is(err, portaudio.OutputUnderflowed) {
			return fmt.Errorf("write output stream: %w", err)
		}
		offset += n
	}
	return nil
}
