package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zhouzirui/voice-tavern/backend/internal/logging"
	"github.com/zhouzirui/voice-tavern/backend/internal/model/speech"
)

const (
	ttsEndpoint = "wss://openspeech.bytedance.com/api/v3/tts/unidirectional/stream"

	ttsDefaultResource = "volc.service_type.10029"
	ttsMegaResource    = "volc.megatts.default"
	ttsSeedResource    = "seed-tts-2.0"

	ttsDefaultVoice = "en_female_amy_jupiter_bigtts"
)

// VolcengineTTSClient 火山引擎单向流式语音合成客户端。
type VolcengineTTSClient struct {
	config *speech.SpeechConfig
	dialer *websocket.Dialer
	logger *zap.Logger

	// Endpoint 覆盖默认的 websocket 地址。
	Endpoint string
}

type ttsServerMessage struct {
	ReqID    string `json:"reqid"`
	Code     int    `json:"code"`
	Message  string `json:"message"`
	Sequence int    `json:"sequence"`
	Data     string `json:"data"`
	Addition struct {
		Duration string `json:"duration,omitempty"`
	} `json:"addition,omitempty"`
}

type ttsAudioParams struct {
	Format      string  `json:"format"`
	SampleRate  int     `json:"sample_rate"`
	SpeedRatio  float32 `json:"speed_ratio,omitempty"`
	VolumeRatio float32 `json:"volume_ratio,omitempty"`
}

type ttsReqParams struct {
	Speaker     string         `json:"speaker"`
	Text        string         `json:"text"`
	AudioParams ttsAudioParams `json:"audio_params"`
	Language    string         `json:"language,omitempty"`
}

type ttsClientRequest struct {
	User struct {
		UID string `json:"uid"`
	} `json:"user"`
	ReqParams ttsReqParams `json:"req_params"`
}

// NewVolcengineTTSClient 创建合成客户端。
func NewVolcengineTTSClient(config *speech.SpeechConfig, logger *zap.Logger) *VolcengineTTSClient {
	return &VolcengineTTSClient{
		config: config,
		dialer: &websocket.Dialer{HandshakeTimeout: 30 * time.Second},
		logger: logging.OrNop(logger).Named("tts"),
	}
}

// Synthesize returns the complete audio for req.Text. When the service rejects
// a voice/resource pairing it retries with the next resource candidate.
func (c *VolcengineTTSClient) Synthesize(ctx context.Context, req *speech.TTSRequest) (*speech.TTSResponse, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, fmt.Errorf("tts text is empty")
	}

	appID, token, err := resolveCredentials(c.config)
	if err != nil {
		return nil, err
	}

	voice := strings.TrimSpace(req.Voice)
	if voice == "" {
		voice = strings.TrimSpace(c.config.TTSVoice)
	}
	if voice == "" {
		voice = ttsDefaultVoice
	}

	var lastErr error
	for i, resourceID := range resourceCandidates(voice) {
		resp, err := c.synthesizeWithResource(ctx, req, appID, token, voice, resourceID)
		if err == nil {
			if i > 0 {
				c.logger.Info("tts succeeded with fallback resource", zap.String("voice", voice), zap.String("resource", resourceID))
			}
			return resp, nil
		}
		if !isResourceMismatch(err) {
			return nil, err
		}
		c.logger.Warn("tts resource mismatch", zap.String("voice", voice), zap.String("resource", resourceID), zap.Error(err))
		lastErr = err
	}
	return nil, lastErr
}

func (c *VolcengineTTSClient) synthesizeWithResource(ctx context.Context, req *speech.TTSRequest, appID, token, voice, resourceID string) (*speech.TTSResponse, error) {
	connectID := uuid.NewString()

	header := http.Header{}
	header.Set("X-Api-App-Key", appID)
	header.Set("X-Api-Access-Key", token)
	header.Set("X-Api-Resource-Id", resourceID)
	header.Set("X-Api-Connect-Id", connectID)

	endpoint := c.Endpoint
	if endpoint == "" {
		endpoint = ttsEndpoint
	}
	conn, _, err := c.dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		return nil, fmt.Errorf("dial tts websocket: %w", err)
	}
	defer conn.Close()

	// ctx 取消时关闭连接，唤醒阻塞中的读取
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	ttsReq := c.buildRequest(req, voice)
	payload, err := json.Marshal(ttsReq)
	if err != nil {
		return nil, fmt.Errorf("marshal tts request: %w", err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, NewFullClientRequest(payload, NoCompression).Encode()); err != nil {
		return nil, fmt.Errorf("send tts request: %w", err)
	}

	var (
		audio    bytes.Buffer
		reqID    string
		duration int64
	)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("read tts response: %w", err)
		}

		frame, err := DecodeFrame(data)
		if err != nil {
			return nil, fmt.Errorf("decode tts frame: %w", err)
		}

		switch frame.Header.MessageType {
		case ErrorMessage:
			body, _ := frame.Body()
			return nil, fmt.Errorf("tts error %d: %s", frame.ErrorCode, string(body))

		case AudioOnlyServerResponse:
			chunk, err := frame.Body()
			if err != nil {
				return nil, fmt.Errorf("decompress audio chunk: %w", err)
			}
			audio.Write(chunk)

		case FullServerResponse:
			body, err := frame.Body()
			if err != nil {
				return nil, fmt.Errorf("decompress tts payload: %w", err)
			}

			var msg ttsServerMessage
			if len(body) > 0 {
				if err := json.Unmarshal(body, &msg); err != nil {
					c.logger.Debug("skip undecodable tts payload", zap.Error(err))
				} else {
					if msg.Code != 0 && msg.Code != 3000 && msg.Code != asrSuccess {
						return nil, fmt.Errorf("tts api error %d: %s", msg.Code, msg.Message)
					}
					if msg.ReqID != "" {
						reqID = msg.ReqID
					}
					if ms, err := strconv.ParseInt(msg.Addition.Duration, 10, 64); err == nil {
						duration = ms
					}
					if msg.Data != "" {
						chunk, err := base64.StdEncoding.DecodeString(msg.Data)
						if err != nil {
							return nil, fmt.Errorf("decode base64 audio chunk: %w", err)
						}
						audio.Write(chunk)
					}
				}
			}

			finished := frame.hasEvent() && frame.Event == EventTypeSessionFinished
			if finished || frame.IsLast() || msg.Sequence < 0 {
				if audio.Len() == 0 {
					return nil, fmt.Errorf("tts audio is empty")
				}
				if reqID == "" {
					reqID = connectID
				}
				return &speech.TTSResponse{
					SessionID:  ttsReq.User.UID,
					AudioData:  audio.Bytes(),
					Duration:   duration,
					Format:     ttsReq.ReqParams.AudioParams.Format,
					SampleRate: ttsReq.ReqParams.AudioParams.SampleRate,
					RequestID:  reqID,
					CreatedAt:  time.Now(),
				}, nil
			}
		}
	}
}

func (c *VolcengineTTSClient) buildRequest(req *speech.TTSRequest, voice string) *ttsClientRequest {
	out := &ttsClientRequest{}

	out.User.UID = strings.TrimSpace(req.SessionID)
	if out.User.UID == "" {
		out.User.UID = uuid.NewString()
	}

	format := req.Format
	if format == "" {
		format = "pcm"
	}
	rate := req.SampleRate
	if rate <= 0 {
		rate = c.config.TTSSampleRate
	}
	if rate <= 0 {
		rate = 24000
	}

	speed := req.Speed
	if speed <= 0 {
		speed = c.config.TTSSpeed
	}
	volume := req.Volume
	if volume <= 0 {
		volume = c.config.TTSVolume
	}
	language := strings.TrimSpace(req.Language)
	if language == "" {
		language = strings.TrimSpace(c.config.TTSLanguage)
	}

	out.ReqParams = ttsReqParams{
		Speaker:  voice,
		Text:     req.Text,
		Language: language,
		AudioParams: ttsAudioParams{
			Format:     format,
			SampleRate: rate,
		},
	}
	if speed > 0 && speed != 1 {
		out.ReqParams.AudioParams.SpeedRatio = speed
	}
	if volume > 0 && volume != 1 {
		out.ReqParams.AudioParams.VolumeRatio = volume
	}
	return out
}

// resourceCandidates 按音色推断可用的资源 ID，按优先级排列。
func resourceCandidates(voice string) []string {
	if strings.HasPrefix(voice, "S_") {
		return []string{ttsMegaResource}
	}

	normalized := strings.ToLower(voice)
	for _, hint := range []string{"bigtts", "seed", "megatts", "uranus", "venus", "jupiter", "mars"} {
		if strings.Contains(normalized, hint) {
			return []string{ttsSeedResource, ttsDefaultResource}
		}
	}
	return []string{ttsDefaultResource, ttsSeedResource}
}

func isResourceMismatch(err error) bool {
	return err != nil && strings.Contains(err.Error(), "resource ID is mismatched with speaker related resource")
}
