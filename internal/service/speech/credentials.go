package speech

import (
	"fmt"
	"strings"

	speechmodel "github.com/zhouzirui/voice-tavern/backend/internal/model/speech"
)

// resolveCredentials 返回规范化后的 AppID 与 AccessToken，缺失时给出明确错误。
func resolveCredentials(cfg *speechmodel.SpeechConfig) (string, string, error) {
	if cfg == nil {
		return "", "", fmt.Errorf("volcengine speech config is nil")
	}

	appID := strings.TrimSpace(cfg.AppID)
	token := strings.TrimSpace(cfg.AccessToken)
	if token == "" {
		token = strings.TrimSpace(cfg.APIKey)
	}

	if appID == "" || token == "" {
		return "", "", fmt.Errorf("volcengine speech config is missing AppID or AccessToken")
	}
	return appID, token, nil
}

// HasVolcengineCredentials 判断是否可以使用火山引擎语音服务。
func HasVolcengineCredentials(cfg *speechmodel.SpeechConfig) bool {
	_, _, err := resolveCredentials(cfg)
	return err == nil
}
