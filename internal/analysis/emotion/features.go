package emotion

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/zhouzirui/voice-tavern/backend/internal/audio"
)

// NumCoefficients 是 MFCC 摘要的维度。
const NumCoefficients = 13

const (
	frameMillis = 25
	hopMillis   = 10
	melBands    = 26
	preEmphasis = 0.97
	logFloor    = 1e-10
)

// Features 是启发式分类所用的固定声学特征集。
type Features struct {
	MFCCMean         [NumCoefficients]float64 `json:"mfccMean"`
	ZeroCrossingRate float64                  `json:"zeroCrossingRate"` // 每个样本的过零比例
	Energy           float64                  `json:"energy"`           // 帧平均短时能量（均方值）
}

// ExtractFeatures computes the feature set over 25ms frames with a 10ms hop.
// It returns false for input that cannot be scored: no samples, a
// non-positive sample rate, or non-finite samples.
func ExtractFeatures(clip audio.Clip) (Features, bool) {
	if clip.Empty() {
		return Features{}, false
	}
	for _, s := range clip.Samples {
		v := float64(s)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Features{}, false
		}
	}

	frameLen := clip.SampleRate * frameMillis / 1000
	hop := clip.SampleRate * hopMillis / 1000
	if frameLen <= 0 || hop <= 0 {
		return Features{}, false
	}

	samples := make([]float64, len(clip.Samples))
	for i, s := range clip.Samples {
		samples[i] = float64(s)
	}
	if len(samples) < frameLen {
		padded := make([]float64, frameLen)
		copy(padded, samples)
		samples = padded
	}

	nfft := 1
	for nfft < frameLen {
		nfft <<= 1
	}
	fft := fourier.NewFFT(nfft)
	bank := melFilterbank(melBands, nfft, clip.SampleRate)
	window := hamming(frameLen)

	var (
		features Features
		energy   float64
		frames   int
		seq      = make([]float64, nfft)
		spectrum []complex128
		power    = make([]float64, nfft/2+1)
		logMel   = make([]float64, melBands)
	)

	for start := 0; start+frameLen <= len(samples); start += hop {
		frame := samples[start : start+frameLen]

		var sq float64
		for _, v := range frame {
			sq += v * v
		}
		energy += sq / float64(frameLen)

		for i := range seq {
			seq[i] = 0
		}
		for i, v := range frame {
			prev := v
			if i > 0 {
				prev = frame[i-1]
			}
			seq[i] = (v - preEmphasis*prev) * window[i]
		}
		spectrum = fft.Coefficients(spectrum, seq)
		for k, c := range spectrum {
			re, im := real(c), imag(c)
			power[k] = (re*re + im*im) / float64(nfft)
		}

		for m, filter := range bank {
			var e float64
			for k, w := range filter {
				e += w * power[k]
			}
			logMel[m] = math.Log(math.Max(e, logFloor))
		}
		for c := 0; c < NumCoefficients; c++ {
			var sum float64
			for m, v := range logMel {
				sum += v * math.Cos(math.Pi*float64(c)*(float64(m)+0.5)/float64(melBands))
			}
			features.MFCCMean[c] += sum
		}
		frames++
	}

	for c := range features.MFCCMean {
		features.MFCCMean[c] /= float64(frames)
	}
	features.Energy = energy / float64(frames)
	features.ZeroCrossingRate = zeroCrossingRate(clip.Samples)
	return features, true
}

func zeroCrossingRate(samples []float32) float64 {
	if len(samples) < 2 {
		return 0
	}
	crossings := 0
	for i := 1; i < len(samples); i++ {
		if (samples[i-1] >= 0) != (samples[i] >= 0) {
			crossings++
		}
	}
	return float64(crossings) / float64(len(samples)-1)
}

func hamming(n int) []float64 {
	w := make([]float64, n)
	if n == 1 {
		w[0] = 1
		return w
	}
	for i := range w {
		w[i] = 0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/float64(n-1))
	}
	return w
}

func hzToMel(hz float64) float64 { return 2595 * math.Log10(1+hz/700) }

func melToHz(mel float64) float64 { return 700 * (math.Pow(10, mel/2595) - 1) }

// melFilterbank builds triangular filters over the nfft/2+1 power bins.
func melFilterbank(bands, nfft, sampleRate int) [][]float64 {
	bins := nfft/2 + 1
	maxMel := hzToMel(float64(sampleRate) / 2)

	points := make([]int, bands+2)
	for i := range points {
		hz := melToHz(maxMel * float64(i) / float64(bands+1))
		points[i] = int(math.Floor(float64(nfft+1) * hz / float64(sampleRate)))
		if points[i] >= bins {
			points[i] = bins - 1
		}
	}

	bank := make([][]float64, bands)
	for m := 1; m <= bands; m++ {
		filter := make([]float64, bins)
		left, center, right := points[m-1], points[m], points[m+1]
		for k := left; k < center; k++ {
			filter[k] = float64(k-left) / float64(center-left)
		}
		for k := center; k < right; k++ {
			filter[k] = float64(right-k) / float64(right-center)
		}
		bank[m-1] = filter
	}
	return bank
}
