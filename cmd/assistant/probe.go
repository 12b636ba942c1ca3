package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zhouzirui/voice-tavern/backend/internal/audio"
	speechmodel "github.com/zhouzirui/voice-tavern/backend/internal/model/speech"
	emotionservice "github.com/zhouzirui/voice-tavern/backend/internal/service/emotion"
	"github.com/zhouzirui/voice-tavern/backend/internal/service/speech"
)

var (
	probeOut   string
	probeVoice string
)

// probeCmd groups the backend smoke tests
var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Exercise the speech and emotion backends directly",
	Long: `Exercise a single backend without running a conversation.

Audio files are raw 16-bit little-endian mono PCM at 16 kHz.

Available subcommands:
  asr     - transcribe a PCM file
  tts     - synthesize text into a PCM file
  emotion - classify a PCM file`,
}

var probeASRCmd = &cobra.Command{
	Use:   "asr <file.pcm>",
	Short: "Transcribe a PCM file with the configured recognizer",
	Args:  cobra.ExactArgs(1),
	RunE:  runProbeASR,
}

var probeTTSCmd = &cobra.Command{
	Use:   "tts <text>",
	Short: "Synthesize text with the configured TTS provider",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runProbeTTS,
}

var probeEmotionCmd = &cobra.Command{
	Use:   "emotion <file.pcm>",
	Short: "Classify a PCM file with the configured emotion strategy",
	Args:  cobra.ExactArgs(1),
	RunE:  runProbeEmotion,
}

func init() {
	probeTTSCmd.Flags().StringVarP(&probeOut, "out", "o", "", "Output file (default tts-output-<unix>.pcm)")
	probeTTSCmd.Flags().StringVar(&probeVoice, "voice", "", "Voice ID, defaults to SPEECH_TTS_VOICE")

	probeCmd.AddCommand(probeASRCmd)
	probeCmd.AddCommand(probeTTSCmd)
	probeCmd.AddCommand(probeEmotionCmd)
}

func loadClip(path string) (audio.Clip, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return audio.Clip{}, fmt.Errorf("read audio file: %w", err)
	}
	rate := cfg.Speech.ASRSampleRate
	if rate <= 0 {
		rate = audio.SampleRate
	}
	return audio.ClipFromPCM16(data, rate), nil
}

func runProbeASR(cmd *cobra.Command, args []string) error {
	clip, err := loadClip(args[0])
	if err != nil {
		return err
	}
	recognizer, err := speech.NewRecognizer(&cfg.Speech, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	start := time.Now()
	text, err := recognizer.Transcribe(ctx, clip)
	if err != nil {
		return fmt.Errorf("asr: %w", err)
	}
	logger.Info("asr finished",
		zap.String("provider", cfg.Speech.ASRProvider),
		zap.Duration("audio", clip.Duration()),
		zap.Duration("elapsed", time.Since(start)))
	fmt.Fprintln(cmd.OutOrStdout(), text)
	return nil
}

func runProbeTTS(cmd *cobra.Command, args []string) error {
	var client speech.TTSClient
	switch strings.ToLower(cfg.Speech.TTSProvider) {
	case "openai":
		client = speech.NewOpenAITTSClient(&cfg.Speech)
	default:
		client = speech.NewVolcengineTTSClient(&cfg.Speech, logger)
	}

	voice := probeVoice
	if voice == "" {
		voice = cfg.Speech.TTSVoice
	}
	out := probeOut
	if out == "" {
		out = fmt.Sprintf("tts-output-%d.pcm", time.Now().Unix())
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	resp, err := client.Synthesize(ctx, &speechmodel.TTSRequest{
		SessionID: uuid.NewString(),
		Text:      strings.Join(args, " "),
		Voice:     voice,
		Format:    "pcm",
		Language:  cfg.Speech.TTSLanguage,
	})
	if err != nil {
		return fmt.Errorf("tts: %w", err)
	}
	if err := os.WriteFile(out, resp.AudioData, 0o644); err != nil {
		return fmt.Errorf("write audio file: %w", err)
	}
	logger.Info("tts finished",
		zap.String("out", out),
		zap.Int("bytes", len(resp.AudioData)),
		zap.Int("sampleRate", resp.SampleRate))
	return nil
}

func runProbeEmotion(cmd *cobra.Command, args []string) error {
	clip, err := loadClip(args[0])
	if err != nil {
		return err
	}
	classifier, err := emotionservice.NewClassifier(emotionservice.Config{
		Strategy:   emotionservice.Strategy(cfg.Emotion.Strategy),
		Thresholds: cfg.Emotion.Thresholds,
		Model: emotionservice.ModelConfig{
			URL:     cfg.Emotion.ModelURL,
			Token:   cfg.Emotion.ModelToken,
			Timeout: cfg.Emotion.ModelTimeout,
		},
	}, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()
	fmt.Fprintln(cmd.OutOrStdout(), classifier.Classify(ctx, clip))
	return nil
}
