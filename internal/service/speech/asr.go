package speech

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zhouzirui/voice-tavern/backend/internal/logging"
	"github.com/zhouzirui/voice-tavern/backend/internal/model/speech"
)

const (
	asrEndpoint = "wss://openspeech.bytedance.com/api/v3/sauc/bigmodel_nostream"

	// 16kHz 16bit 单声道 200ms
	asrChunkBytes = 6400
	asrSuccess    = 20000000
)

// VolcengineASRClient 火山引擎大模型流式识别客户端。
type VolcengineASRClient struct {
	config *speech.SpeechConfig
	dialer *websocket.Dialer
	logger *zap.Logger

	// Endpoint 覆盖默认的 websocket 地址。
	Endpoint string
	// ChunkInterval 是相邻音频包之间的发送间隔，模拟实时输入。
	ChunkInterval time.Duration
}

type asrUtterance struct {
	Text      string `json:"text"`
	StartTime int64  `json:"start_time"`
	EndTime   int64  `json:"end_time"`
	Definite  bool   `json:"definite"`
}

type asrServerMessage struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	Sequence int    `json:"sequence"`
	Result   struct {
		Text       string         `json:"text"`
		Utterances []asrUtterance `json:"utterances,omitempty"`
	} `json:"result,omitempty"`
	AudioInfo struct {
		Duration int64 `json:"duration"`
	} `json:"audio_info,omitempty"`
}

type asrUser struct {
	UID string `json:"uid,omitempty"`
}

type asrAudio struct {
	Language string `json:"language,omitempty"`
	Format   string `json:"format"`
	Codec    string `json:"codec,omitempty"`
	Rate     int    `json:"rate,omitempty"`
	Bits     int    `json:"bits,omitempty"`
	Channel  int    `json:"channel,omitempty"`
}

type asrParams struct {
	ModelName      string `json:"model_name"`
	EnableITN      bool   `json:"enable_itn,omitempty"`
	EnablePunc     bool   `json:"enable_punc,omitempty"`
	ShowUtterances bool   `json:"show_utterances,omitempty"`
	ResultType     string `json:"result_type,omitempty"`
	EndWindowSize  int    `json:"end_window_size,omitempty"`
}

type asrClientRequest struct {
	User    asrUser   `json:"user"`
	Audio   asrAudio  `json:"audio"`
	Request asrParams `json:"request"`
}

// NewVolcengineASRClient 创建识别客户端。
func NewVolcengineASRClient(config *speech.SpeechConfig, logger *zap.Logger) *VolcengineASRClient {
	return &VolcengineASRClient{
		config:        config,
		dialer:        &websocket.Dialer{HandshakeTimeout: 30 * time.Second},
		logger:        logging.OrNop(logger).Named("asr"),
		ChunkInterval: 200 * time.Millisecond,
	}
}

// Transcribe sends one utterance over a fresh websocket connection and waits
// for the final transcript. Dial, protocol and API failures are wrapped with
// speech.ErrServiceUnavailable.
func (c *VolcengineASRClient) Transcribe(ctx context.Context, req *speech.ASRRequest) (*speech.ASRResponse, error) {
	appID, token, err := resolveCredentials(c.config)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", speech.ErrServiceUnavailable, err)
	}

	audioData, err := io.ReadAll(req.AudioData)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	if len(audioData) == 0 {
		return nil, speech.ErrNoSpeech
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	resourceID := "volc.bigasr.sauc.duration"
	if c.config.ConcurrentMode {
		resourceID = "volc.bigasr.sauc.concurrent"
	}

	header := http.Header{}
	header.Set("X-Api-App-Key", appID)
	header.Set("X-Api-Access-Key", token)
	header.Set("X-Api-Resource-Id", resourceID)
	header.Set("X-Api-Connect-Id", sessionID)

	conn, resp, err := c.dialer.DialContext(ctx, c.endpoint(), header)
	if err != nil {
		return nil, fmt.Errorf("%w: dial asr websocket: %v", speech.ErrServiceUnavailable, err)
	}
	defer conn.Close()

	if resp != nil {
		if logid := resp.Header.Get("X-Tt-Logid"); logid != "" {
			c.logger.Debug("asr connected", zap.String("logid", logid), zap.String("session", sessionID))
		}
	}

	payload, err := json.Marshal(c.buildRequest(req, sessionID))
	if err != nil {
		return nil, fmt.Errorf("marshal asr request: %w", err)
	}
	compressed, err := compress(payload, GzipCompression)
	if err != nil {
		return nil, err
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, NewFullClientRequest(compressed, GzipCompression).Encode()); err != nil {
		return nil, fmt.Errorf("%w: send asr request: %v", speech.ErrServiceUnavailable, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// 接收与发送并发进行，服务端提前报错时可以立即停止发送
	type result struct {
		resp *speech.ASRResponse
		err  error
	}
	recvCh := make(chan result, 1)
	go func() {
		r, err := c.receive(conn, sessionID)
		recvCh <- result{resp: r, err: err}
	}()

	sendCh := make(chan error, 1)
	go func() {
		sendCh <- c.sendAudio(ctx, conn, audioData)
	}()

	for {
		select {
		case err := <-sendCh:
			if err != nil {
				cancel()
				conn.Close()
				<-recvCh
				return nil, fmt.Errorf("%w: send audio: %v", speech.ErrServiceUnavailable, err)
			}
			sendCh = nil
		case r := <-recvCh:
			cancel()
			if sendCh != nil {
				<-sendCh
			}
			return r.resp, r.err
		case <-ctx.Done():
			// 关闭连接以唤醒阻塞中的读取
			conn.Close()
			<-recvCh
			if sendCh != nil {
				<-sendCh
			}
			return nil, ctx.Err()
		}
	}
}

func (c *VolcengineASRClient) endpoint() string {
	if c.Endpoint != "" {
		return c.Endpoint
	}
	return asrEndpoint
}

func (c *VolcengineASRClient) buildRequest(req *speech.ASRRequest, sessionID string) *asrClientRequest {
	format := req.Format
	if format == "" {
		format = "pcm"
	}
	language := req.Language
	if language == "" {
		language = c.config.ASRLanguage
	}
	rate := req.SampleRate
	if rate <= 0 {
		rate = 16000
	}
	model := c.config.ASRModel
	if model == "" {
		model = "bigmodel"
	}

	return &asrClientRequest{
		User: asrUser{UID: sessionID},
		Audio: asrAudio{
			Language: language,
			Format:   format,
			Codec:    "raw",
			Rate:     rate,
			Bits:     16,
			Channel:  1,
		},
		Request: asrParams{
			ModelName:      model,
			EnableITN:      true,
			EnablePunc:     true,
			ShowUtterances: true,
			ResultType:     "full",
			EndWindowSize:  800,
		},
	}
}

func (c *VolcengineASRClient) sendAudio(ctx context.Context, conn *websocket.Conn, audioData []byte) error {
	// 首帧占用序号 1，音频从 2 开始
	sequence := int32(2)
	for start := 0; start < len(audioData); start += asrChunkBytes {
		end := min(start+asrChunkBytes, len(audioData))
		last := end == len(audioData)

		chunk, err := compress(audioData[start:end], GzipCompression)
		if err != nil {
			return err
		}
		frame := NewAudioRequest(chunk, sequence, last, GzipCompression)
		if err := conn.WriteMessage(websocket.BinaryMessage, frame.Encode()); err != nil {
			return err
		}
		sequence++

		if last || c.ChunkInterval <= 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.ChunkInterval):
		}
	}
	return nil
}

func (c *VolcengineASRClient) receive(conn *websocket.Conn, sessionID string) (*speech.ASRResponse, error) {
	var (
		text     string
		duration int64
	)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("%w: read asr response: %v", speech.ErrServiceUnavailable, err)
		}

		frame, err := DecodeFrame(data)
		if err != nil {
			return nil, fmt.Errorf("%w: decode asr frame: %v", speech.ErrServiceUnavailable, err)
		}

		switch frame.Header.MessageType {
		case ErrorMessage:
			body, _ := frame.Body()
			return nil, fmt.Errorf("%w: asr error %d: %s", speech.ErrServiceUnavailable, frame.ErrorCode, string(body))

		case FullServerResponse:
			body, err := frame.Body()
			if err != nil {
				return nil, fmt.Errorf("%w: %v", speech.ErrServiceUnavailable, err)
			}

			var msg asrServerMessage
			if err := json.Unmarshal(body, &msg); err != nil {
				c.logger.Warn("skip undecodable asr payload", zap.Error(err))
				continue
			}
			if msg.Code != 0 && msg.Code != asrSuccess {
				return nil, fmt.Errorf("%w: asr api error %d: %s", speech.ErrServiceUnavailable, msg.Code, msg.Message)
			}

			candidate := msg.Result.Text
			if candidate == "" {
				candidate = joinUtterances(msg.Result.Utterances)
			}
			if candidate != "" {
				text = candidate
			}
			if msg.AudioInfo.Duration > 0 {
				duration = msg.AudioInfo.Duration
			}

			if frame.IsLast() || msg.Sequence < 0 {
				return &speech.ASRResponse{
					SessionID:  sessionID,
					Text:       text,
					Confidence: estimateConfidence(text),
					Duration:   duration,
					RequestID:  sessionID,
					CreatedAt:  time.Now(),
				}, nil
			}
		}
	}
}

func joinUtterances(utterances []asrUtterance) string {
	parts := make([]string, 0, len(utterances))
	for _, u := range utterances {
		if t := strings.TrimSpace(u.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

func estimateConfidence(text string) float64 {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	return 0.95
}
