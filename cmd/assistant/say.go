package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	analysis "github.com/zhouzirui/voice-tavern/backend/internal/analysis/emotion"
	"github.com/zhouzirui/voice-tavern/backend/internal/app"
)

var (
	sayEmotion string
	saySpeak   bool
)

// sayCmd sends one message
var sayCmd = &cobra.Command{
	Use:   "say <text>",
	Short: "Send one text message and print the reply",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSay,
}

func init() {
	sayCmd.Flags().StringVarP(&sayEmotion, "emotion", "e", "neutral", "Emotion to condition the reply on (happy, sad, angry, neutral)")
	sayCmd.Flags().BoolVar(&saySpeak, "speak", false, "Also speak the reply through the configured TTS")
}

func runSay(cmd *cobra.Command, args []string) error {
	label, ok := analysis.ParseLabel(sayEmotion)
	if !ok {
		return fmt.Errorf("unknown emotion %q", sayEmotion)
	}

	opts := app.Options{DisableMicrophone: true}
	if !saySpeak {
		opts.Speaker = silentSpeaker{}
	}
	a, err := app.New(cmd.Context(), cfg, opts, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	ex, err := a.Orchestrator.TextExchange(ctx, strings.Join(args, " "), label)
	if err != nil {
		return err
	}
	printExchange(cmd.OutOrStdout(), ex)
	return nil
}
