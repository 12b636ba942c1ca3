package emotion

import "github.com/zhouzirui/voice-tavern/backend/internal/audio"

// Thresholds 是启发式规则的判定门限。
type Thresholds struct {
	EnergyHigh float64
	EnergyLow  float64
	ZCRHigh    float64
}

// DefaultThresholds 返回默认门限。
func DefaultThresholds() Thresholds {
	return Thresholds{
		EnergyHigh: 0.04,
		EnergyLow:  0.002,
		ZCRHigh:    0.15,
	}
}

// Classify applies the rule in priority order: loud speech is happy, quiet
// speech is sad, noisy (high zero-crossing) speech is angry, everything else
// is neutral.
func Classify(f Features, t Thresholds) Label {
	switch {
	case f.Energy > t.EnergyHigh:
		return Happy
	case f.Energy < t.EnergyLow:
		return Sad
	case f.ZeroCrossingRate > t.ZCRHigh:
		return Angry
	default:
		return Neutral
	}
}

// Analyze 提取特征并分类，无法评分的输入返回 Neutral。
func Analyze(clip audio.Clip, t Thresholds) Label {
	features, ok := ExtractFeatures(clip)
	if !ok {
		return Neutral
	}
	return Classify(features, t)
}
