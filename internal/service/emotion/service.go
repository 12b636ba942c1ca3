package emotion

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	analysis "github.com/zhouzirui/voice-tavern/backend/internal/analysis/emotion"
	"github.com/zhouzirui/voice-tavern/backend/internal/audio"
	"github.com/zhouzirui/voice-tavern/backend/internal/logging"
)

// Strategy 选择情绪分类实现。
type Strategy string

const (
	StrategyHeuristic Strategy = "heuristic"
	StrategyModel     Strategy = "model"
)

// Classifier maps a captured clip to an emotion label. Implementations never
// fail: anything they cannot score is Neutral.
type Classifier interface {
	Classify(ctx context.Context, clip audio.Clip) analysis.Label
}

// Config 控制情绪分类服务的行为。
type Config struct {
	Strategy   Strategy
	Thresholds analysis.Thresholds
	Model      ModelConfig
}

// NewClassifier 按配置构造分类器，策略在构造时确定。
func NewClassifier(cfg Config, logger *zap.Logger) (Classifier, error) {
	logger = logging.OrNop(logger).Named("emotion")

	switch cfg.Strategy {
	case "", StrategyHeuristic:
		return NewHeuristic(cfg.Thresholds), nil
	case StrategyModel:
		client, err := NewHTTPModel(cfg.Model)
		if err != nil {
			return nil, err
		}
		return NewModelClassifier(client, logger), nil
	default:
		return nil, fmt.Errorf("unknown emotion strategy %q", cfg.Strategy)
	}
}

// Heuristic 基于能量与过零率的确定性分类器。
type Heuristic struct {
	thresholds analysis.Thresholds
}

// NewHeuristic 创建启发式分类器，零值门限使用默认值。
func NewHeuristic(t analysis.Thresholds) *Heuristic {
	if t == (analysis.Thresholds{}) {
		t = analysis.DefaultThresholds()
	}
	return &Heuristic{thresholds: t}
}

// Classify 实现 Classifier。
func (h *Heuristic) Classify(_ context.Context, clip audio.Clip) analysis.Label {
	return analysis.Analyze(clip, h.thresholds)
}

// Prediction 是预训练模型返回的一个候选标签。
type Prediction struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Model 抽象外部音频分类模型。
type Model interface {
	Predict(ctx context.Context, clip audio.Clip) ([]Prediction, error)
}

// ModelClassifier delegates to a pretrained audio-classification model and
// folds its vocabulary into the four supported labels.
type ModelClassifier struct {
	model  Model
	logger *zap.Logger
}

// NewModelClassifier 创建模型分类器。
func NewModelClassifier(model Model, logger *zap.Logger) *ModelClassifier {
	return &ModelClassifier{model: model, logger: logging.OrNop(logger)}
}

// Classify 实现 Classifier。
func (c *ModelClassifier) Classify(ctx context.Context, clip audio.Clip) analysis.Label {
	if clip.Empty() {
		return analysis.Neutral
	}

	predictions, err := c.model.Predict(ctx, clip)
	if err != nil {
		c.logger.Warn("model prediction failed, using neutral", zap.Error(err))
		return analysis.Neutral
	}
	if len(predictions) == 0 {
		return analysis.Neutral
	}

	sorted := append([]Prediction(nil), predictions...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })

	label := MapModelLabel(sorted[0].Label)
	c.logger.Debug("model prediction",
		zap.String("raw", sorted[0].Label),
		zap.Float64("score", sorted[0].Score),
		zap.String("label", string(label)))
	return label
}

var modelLabelAliases = map[string]analysis.Label{
	"hap":       analysis.Happy,
	"happy":     analysis.Happy,
	"happiness": analysis.Happy,
	"joy":       analysis.Happy,
	"sad":       analysis.Sad,
	"sadness":   analysis.Sad,
	"ang":       analysis.Angry,
	"angry":     analysis.Angry,
	"anger":     analysis.Angry,
	"neu":       analysis.Neutral,
	"neutral":   analysis.Neutral,
	"calm":      analysis.Neutral,
}

// MapModelLabel 将模型输出标签转为小写后映射，未知标签归为 Neutral。
func MapModelLabel(raw string) analysis.Label {
	if label, ok := modelLabelAliases[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return label
	}
	return analysis.Neutral
}
