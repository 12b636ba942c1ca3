package speech

// SpeechConfig 语音服务配置
type SpeechConfig struct {
	// Volcengine 配置
	AppID          string `json:"appId"`            // 火山引擎 APP ID
	AccessToken    string `json:"accessToken"`      // 火山引擎 Access Token
	APIKey         string `json:"apiKey,omitempty"` // 兼容旧配置的 API Key
	Region         string `json:"region"`           // 服务区域
	ConcurrentMode bool   `json:"concurrentMode"`   // ASR并发模式（false为小时版）

	// ASR 配置
	ASRProvider   string `json:"asrProvider"` // volcengine | openai
	ASRModel      string `json:"asrModel"`
	ASRLanguage   string `json:"asrLanguage"`
	ASRSampleRate int    `json:"asrSampleRate"`

	// OpenAI Whisper 配置（ASRProvider=openai 时使用）
	OpenAIAPIKey  string `json:"-"`
	OpenAIBaseURL string `json:"openaiBaseUrl,omitempty"`

	// TTS 配置
	TTSEnabled    bool    `json:"ttsEnabled"`
	TTSProvider   string  `json:"ttsProvider"` // volcengine | openai
	TTSVoice      string  `json:"ttsVoice"`
	TTSSpeed      float32 `json:"ttsSpeed"`
	TTSVolume     float32 `json:"ttsVolume"`
	TTSLanguage   string  `json:"ttsLanguage"`
	TTSSampleRate int     `json:"ttsSampleRate"`

	// 通用配置
	Timeout int `json:"timeout"` // seconds
}
