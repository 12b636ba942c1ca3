package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zhouzirui/voice-tavern/backend/internal/app"
	"github.com/zhouzirui/voice-tavern/backend/internal/service/assistant"
	"github.com/zhouzirui/voice-tavern/backend/internal/service/capture"
)

var (
	noMic bool
	quiet bool
)

// talkCmd runs the interactive session
var talkCmd = &cobra.Command{
	Use:   "talk",
	Short: "Start an interactive voice/text session",
	Long: `Start an interactive session on the local microphone and speakers.

Press Enter on an empty line to speak, or type a message and press Enter.
Type /history to print the conversation and /quit to leave.`,
	Args: cobra.NoArgs,
	RunE: runTalk,
}

func init() {
	talkCmd.Flags().BoolVar(&noMic, "no-mic", false, "Disable voice capture and only accept typed input")
	talkCmd.Flags().BoolVar(&quiet, "quiet", false, "Print replies without speaking them")
}

func runTalk(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	opts := app.Options{DisableMicrophone: noMic}
	if quiet {
		opts.Speaker = silentSpeaker{}
	}
	a, err := app.New(ctx, cfg, opts, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("failed to release audio devices", zap.Error(err))
		}
	}()

	out := cmd.OutOrStdout()
	if a.Orchestrator.VoiceEnabled() {
		fmt.Fprintln(out, "Press Enter to speak, or type a message. /quit to exit.")
	} else {
		fmt.Fprintln(out, "Microphone unavailable. Type a message, /quit to exit.")
	}

	return repl(ctx, a, cmd.InOrStdin(), out)
}

func repl(ctx context.Context, a *app.App, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())

		switch line {
		case "/quit", "/exit":
			return nil
		case "/history":
			for _, turn := range a.Session.History() {
				fmt.Fprintf(out, "[%d] %s: %s\n", turn.Index, turn.Role, turn.Content)
			}
			continue
		}

		exchangeCtx, cancel := context.WithTimeout(ctx, timeout)
		var (
			ex  assistant.Exchange
			err error
		)
		if line == "" {
			ex, err = a.Orchestrator.VoiceExchange(exchangeCtx, assistant.Observer{
				OnAttempt: func(ev capture.Event) {
					fmt.Fprintf(out, "  listening (%d/%d): %s\n", ev.Attempt, ev.MaxAttempts, ev.Outcome)
				},
			})
		} else {
			ex, err = a.Orchestrator.TextExchange(exchangeCtx, line, "")
		}
		cancel()

		if err != nil {
			fmt.Fprintf(out, "  %v\n", err)
			continue
		}
		printExchange(out, ex)
		if ctx.Err() != nil {
			return nil
		}
	}
}

func printExchange(out io.Writer, ex assistant.Exchange) {
	if ex.Transcript != "" && ex.Capture != nil {
		fmt.Fprintf(out, "You (%s): %s\n", ex.Emotion, ex.Transcript)
	}
	fmt.Fprintf(out, "Assistant: %s\n", ex.Reply)
	if ex.Warning != "" {
		fmt.Fprintf(out, "  warning: %s\n", ex.Warning)
	}
}

type silentSpeaker struct{}

func (silentSpeaker) Speak(context.Context, string) error { return nil }
