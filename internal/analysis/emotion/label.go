package emotion

import "strings"

// Label 表示从语音中推断出的情绪标签。
type Label string

const (
	Neutral Label = "neutral"
	Happy   Label = "happy"
	Sad     Label = "sad"
	Angry   Label = "angry"
)

// Labels 返回全部合法标签。
func Labels() []Label {
	return []Label{Happy, Sad, Angry, Neutral}
}

// ParseLabel 解析外部传入的标签，大小写与空白不敏感。
func ParseLabel(raw string) (Label, bool) {
	switch Label(strings.ToLower(strings.TrimSpace(raw))) {
	case Happy:
		return Happy, true
	case Sad:
		return Sad, true
	case Angry:
		return Angry, true
	case Neutral:
		return Neutral, true
	default:
		return "", false
	}
}

// Normalize folds anything that is not a known label to Neutral.
func Normalize(l Label) Label {
	if parsed, ok := ParseLabel(string(l)); ok {
		return parsed
	}
	return Neutral
}

var replyPrefixes = map[Label]string{
	Happy:   "😊 ",
	Sad:     "😢 ",
	Angry:   "😡 ",
	Neutral: "",
}

// Prefix 返回回复文本前缀。
func (l Label) Prefix() string {
	return replyPrefixes[Normalize(l)]
}
