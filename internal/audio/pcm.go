package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// ToPCM16 将 float32 样本转换为 16bit 小端 PCM 字节流。
func ToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := float64(s)
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(math.Round(v*math.MaxInt16))))
	}
	return out
}

// FromPCM16 decodes 16-bit little-endian PCM. A trailing odd byte is dropped.
func FromPCM16(data []byte) []int16 {
	out := make([]int16, len(data)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return out
}

// EncodeWAV 把片段封装成 16bit 单声道 WAV，供只接受文件的后端使用。
func EncodeWAV(clip Clip) ([]byte, error) {
	if clip.SampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", clip.SampleRate)
	}

	pcm := ToPCM16(clip.Samples)
	const (
		bitsPerSample = 16
		headerSize    = 44
	)
	byteRate := clip.SampleRate * Channels * bitsPerSample / 8
	blockAlign := Channels * bitsPerSample / 8

	buf := bytes.NewBuffer(make([]byte, 0, headerSize+len(pcm)))
	buf.WriteString("RIFF")
	_ = binary.Write(buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	_ = binary.Write(buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	_ = binary.Write(buf, binary.LittleEndian, uint16(Channels))
	_ = binary.Write(buf, binary.LittleEndian, uint32(clip.SampleRate))
	_ = binary.Write(buf, binary.LittleEndian, uint32(byteRate))
	_ = binary.Write(buf, binary.LittleEndian, uint16(blockAlign))
	_ = binary.Write(buf, binary.LittleEndian, uint16(bitsPerSample))
	buf.WriteString("data")
	_ = binary.Write(buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)

	return buf.Bytes(), nil
}

// ClipFromPCM16 把 16bit 小端 PCM 还原为片段。
func ClipFromPCM16(data []byte, sampleRate int) Clip {
	pcm := FromPCM16(data)
	samples := make([]float32, len(pcm))
	for i, v := range pcm {
		samples[i] = float32(v) / math.MaxInt16
	}
	return Clip{Samples: samples, SampleRate: sampleRate}
}
