// Package audio 提供麦克风采集、能量门限的语音检测以及 PCM/WAV 编解码。
package audio

import (
	"math"
	"time"
)

const (
	// SampleRate 采集采样率（ASR 与情绪分析共用）。
	SampleRate = 16000
	// Channels 单声道。
	Channels = 1
	// FramesPerBuffer 每次从设备读取的帧数。
	FramesPerBuffer = 1024
)

// Clip is one captured utterance: mono samples in [-1, 1].
type Clip struct {
	Samples    []float32
	SampleRate int
}

// Duration 返回片段时长。
func (c Clip) Duration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(c.Samples)) * time.Second / time.Duration(c.SampleRate)
}

// Empty reports whether the clip carries no usable audio.
func (c Clip) Empty() bool {
	return len(c.Samples) == 0 || c.SampleRate <= 0
}

// RMS 计算一段样本的均方根能量。
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}
