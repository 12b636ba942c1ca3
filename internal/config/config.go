package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	analysis "github.com/zhouzirui/voice-tavern/backend/internal/analysis/emotion"
	"github.com/zhouzirui/voice-tavern/backend/internal/logging"
	"github.com/zhouzirui/voice-tavern/backend/internal/model/speech"
)

// DefaultSystemPrompt 是未配置 ASSISTANT_SYSTEM_PROMPT 时的系统提示。
const DefaultSystemPrompt = "You are a friendly voice assistant. Keep replies short and conversational."

// Config 聚合整个服务的配置项。
type Config struct {
	Server  ServerConfig
	Log     logging.Config
	AI      AIConfig
	Session SessionConfig
	Capture CaptureConfig
	Emotion EmotionConfig
	Speech  speech.SpeechConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	session, err := loadSessionConfig()
	if err != nil {
		return nil, err
	}

	capture, err := loadCaptureConfig()
	if err != nil {
		return nil, err
	}

	emotion, err := loadEmotionConfig()
	if err != nil {
		return nil, err
	}

	speechCfg, err := loadSpeechConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server: server,
		Log: logging.Config{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "console"),
		},
		AI:      ai,
		Session: session,
		Capture: capture,
		Emotion: emotion,
		Speech:  speechCfg,
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// LLM providers.
const (
	ProviderArk    = "ark"
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	Provider    string
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
	Timeout     time.Duration
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	switch c.Provider {
	case ProviderArk:
		return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
	default:
		return c.APIKey != ""
	}
}

func loadAIConfig() (AIConfig, error) {
	provider := strings.ToLower(getEnvOrDefault("LLM_PROVIDER", ProviderArk))

	temperature, err := parseOptionalFloatEnv("LLM_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("LLM_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("LLM_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	timeout, err := parseDurationEnv("LLM_TIMEOUT", 10*time.Second)
	if err != nil {
		return AIConfig{}, err
	}

	cfg := AIConfig{
		Provider:    provider,
		Temperature: temperature,
		TopP:        topP,
		MaxTokens:   maxTokens,
		Timeout:     timeout,
	}

	switch provider {
	case ProviderArk:
		cfg.APIKey = strings.TrimSpace(os.Getenv("ARK_API_KEY"))
		cfg.AccessKey = strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY"))
		cfg.SecretKey = strings.TrimSpace(os.Getenv("ARK_SECRET_KEY"))
		cfg.Model = getEnvOrDefault("ARK_MODEL", strings.TrimSpace(os.Getenv("Model")))
		cfg.BaseURL = getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3")
		cfg.Region = getEnvOrDefault("ARK_REGION", "cn-beijing")
	case ProviderOpenAI:
		cfg.APIKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
		cfg.Model = getEnvOrDefault("OPENAI_MODEL", "gpt-3.5-turbo")
		cfg.BaseURL = getEnvOrDefault("OPENAI_BASE_URL", "")
	case ProviderGemini:
		cfg.APIKey = getEnvOrDefault("GEMINI_API_KEY", strings.TrimSpace(os.Getenv("GOOGLE_API_KEY")))
		cfg.Model = getEnvOrDefault("GEMINI_MODEL", "gemini-2.0-flash")
		cfg.BaseURL = getEnvOrDefault("GEMINI_BASE_URL", "")
	default:
		return AIConfig{}, fmt.Errorf("invalid LLM_PROVIDER value %q", provider)
	}

	return cfg, nil
}

// SessionConfig 描述对话会话配置。
type SessionConfig struct {
	SystemPrompt string
	MaxHistory   int
}

func loadSessionConfig() (SessionConfig, error) {
	maxHistory := 10
	if override, err := parseOptionalIntEnv("MAX_HISTORY"); err != nil {
		return SessionConfig{}, err
	} else if override != nil {
		if *override < 1 {
			return SessionConfig{}, fmt.Errorf("invalid MAX_HISTORY value %d: must be positive", *override)
		}
		maxHistory = *override
	}

	return SessionConfig{
		SystemPrompt: getEnvOrDefault("ASSISTANT_SYSTEM_PROMPT", DefaultSystemPrompt),
		MaxHistory:   maxHistory,
	}, nil
}

// CaptureConfig 描述语音采集配置。
type CaptureConfig struct {
	MaxAttempts   int
	Calibration   time.Duration
	ListenTimeout time.Duration
	PhraseLimit   time.Duration
}

func loadCaptureConfig() (CaptureConfig, error) {
	attempts := 3
	if override, err := parseOptionalIntEnv("CAPTURE_MAX_ATTEMPTS"); err != nil {
		return CaptureConfig{}, err
	} else if override != nil {
		if *override < 1 {
			return CaptureConfig{}, fmt.Errorf("invalid CAPTURE_MAX_ATTEMPTS value %d: must be positive", *override)
		}
		attempts = *override
	}

	calibration, err := parseDurationEnv("CAPTURE_CALIBRATION", time.Second)
	if err != nil {
		return CaptureConfig{}, err
	}
	listenTimeout, err := parseDurationEnv("CAPTURE_LISTEN_TIMEOUT", 5*time.Second)
	if err != nil {
		return CaptureConfig{}, err
	}
	phraseLimit, err := parseDurationEnv("CAPTURE_PHRASE_LIMIT", 10*time.Second)
	if err != nil {
		return CaptureConfig{}, err
	}

	return CaptureConfig{
		MaxAttempts:   attempts,
		Calibration:   calibration,
		ListenTimeout: listenTimeout,
		PhraseLimit:   phraseLimit,
	}, nil
}

// EmotionConfig 描述情绪分类配置。
type EmotionConfig struct {
	Strategy     string
	Thresholds   analysis.Thresholds
	ModelURL     string
	ModelToken   string
	ModelTimeout time.Duration
}

func loadEmotionConfig() (EmotionConfig, error) {
	strategy := strings.ToLower(getEnvOrDefault("EMOTION_STRATEGY", "heuristic"))
	if strategy != "heuristic" && strategy != "model" {
		return EmotionConfig{}, fmt.Errorf("invalid EMOTION_STRATEGY value %q", strategy)
	}

	thresholds := analysis.DefaultThresholds()
	for key, dst := range map[string]*float64{
		"EMOTION_ENERGY_HIGH": &thresholds.EnergyHigh,
		"EMOTION_ENERGY_LOW":  &thresholds.EnergyLow,
		"EMOTION_ZCR_HIGH":    &thresholds.ZCRHigh,
	} {
		val, err := parseOptionalFloatEnv(key)
		if err != nil {
			return EmotionConfig{}, err
		}
		if val != nil {
			*dst = *val
		}
	}
	if thresholds.EnergyLow >= thresholds.EnergyHigh {
		return EmotionConfig{}, fmt.Errorf("EMOTION_ENERGY_LOW (%g) must be below EMOTION_ENERGY_HIGH (%g)", thresholds.EnergyLow, thresholds.EnergyHigh)
	}

	timeout, err := parseDurationEnv("EMOTION_MODEL_TIMEOUT", 10*time.Second)
	if err != nil {
		return EmotionConfig{}, err
	}

	cfg := EmotionConfig{
		Strategy:     strategy,
		Thresholds:   thresholds,
		ModelURL:     strings.TrimSpace(os.Getenv("EMOTION_MODEL_URL")),
		ModelToken:   getEnvOrDefault("EMOTION_MODEL_TOKEN", strings.TrimSpace(os.Getenv("HF_TOKEN"))),
		ModelTimeout: timeout,
	}
	if cfg.Strategy == "model" && cfg.ModelURL == "" {
		return EmotionConfig{}, fmt.Errorf("EMOTION_MODEL_URL is required when EMOTION_STRATEGY=model")
	}
	return cfg, nil
}

func loadSpeechConfig() (speech.SpeechConfig, error) {
	// 解析超时设置
	timeout, err := parseOptionalIntEnv("SPEECH_TIMEOUT")
	if err != nil {
		return speech.SpeechConfig{}, err
	}
	timeoutSeconds := 30 // 默认30秒
	if timeout != nil {
		timeoutSeconds = *timeout
	}

	// 解析TTS速度和音量
	speed, err := parseOptionalFloat32Env("SPEECH_TTS_SPEED")
	if err != nil {
		return speech.SpeechConfig{}, err
	}
	ttsSpeed := float32(1.0)
	if speed != nil {
		ttsSpeed = *speed
	}

	volume, err := parseOptionalFloat32Env("SPEECH_TTS_VOLUME")
	if err != nil {
		return speech.SpeechConfig{}, err
	}
	ttsVolume := float32(1.0)
	if volume != nil {
		ttsVolume = *volume
	}

	ttsEnabled, err := parseBoolEnv("SPEECH_TTS_ENABLED", true)
	if err != nil {
		return speech.SpeechConfig{}, err
	}

	concurrent, err := parseBoolEnv("SPEECH_ASR_CONCURRENT", false)
	if err != nil {
		return speech.SpeechConfig{}, err
	}

	provider := strings.ToLower(getEnvOrDefault("SPEECH_ASR_PROVIDER", "volcengine"))
	if provider != "volcengine" && provider != "openai" {
		return speech.SpeechConfig{}, fmt.Errorf("invalid SPEECH_ASR_PROVIDER value %q", provider)
	}

	ttsProvider := strings.ToLower(getEnvOrDefault("SPEECH_TTS_PROVIDER", "volcengine"))
	if ttsProvider != "volcengine" && ttsProvider != "openai" {
		return speech.SpeechConfig{}, fmt.Errorf("invalid SPEECH_TTS_PROVIDER value %q", ttsProvider)
	}

	accessToken := strings.TrimSpace(os.Getenv("SPEECH_ACCESS_TOKEN"))
	apiKey := strings.TrimSpace(os.Getenv("SPEECH_API_KEY"))
	if accessToken == "" {
		accessToken = apiKey
	}

	return speech.SpeechConfig{
		AppID:          strings.TrimSpace(os.Getenv("SPEECH_APP_ID")),
		AccessToken:    accessToken,
		APIKey:         apiKey,
		Region:         getEnvOrDefault("SPEECH_REGION", "cn-beijing"),
		ConcurrentMode: concurrent,
		ASRProvider:    provider,
		ASRModel:       getEnvOrDefault("SPEECH_ASR_MODEL", ""),
		ASRLanguage:    getEnvOrDefault("SPEECH_ASR_LANGUAGE", "en-US"),
		ASRSampleRate:  16000,
		OpenAIAPIKey:   strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		OpenAIBaseURL:  getEnvOrDefault("OPENAI_BASE_URL", ""),
		TTSEnabled:     ttsEnabled,
		TTSProvider:    ttsProvider,
		TTSVoice:       getEnvOrDefault("SPEECH_TTS_VOICE", ""),
		TTSSpeed:       ttsSpeed,
		TTSVolume:      ttsVolume,
		TTSLanguage:    getEnvOrDefault("SPEECH_TTS_LANGUAGE", "en-US"),
		TTSSampleRate:  24000,
		Timeout:        timeoutSeconds,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

// parseDurationEnv 接受 Go duration（"1.5s"）或纯数字秒数。
func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue, nil
	}

	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		if secs < 0 {
			return 0, fmt.Errorf("invalid %s value %q: must not be negative", key, value)
		}
		return time.Duration(secs * float64(time.Second)), nil
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s value %q: must not be negative", key, value)
	}
	return d, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalFloat32Env(key string) (*float32, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	result := float32(val)
	return &result, nil
}
