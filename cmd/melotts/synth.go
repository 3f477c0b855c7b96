package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/example/go-melotts/internal/tts"
	"github.com/spf13/cobra"
)

func newSynthCmd() *cobra.Command {
	var text string
	var out string
	var language string
	var speed float64
	var speaker int

	cmd := &cobra.Command{
		Use:   "synth",
		Short: "Synthesize text to WAV",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			inputText, err := readSynthText(text, os.Stdin)
			if err != nil {
				return err
			}

			if language == "" {
				language = cfg.Synthesis.Language
			}

			svc, err := tts.NewService(cfg, slog.Default())
			if err != nil {
				return fmt.Errorf("initialize synthesis service: %w", err)
			}
			defer svc.Close()

			if cmd.Flags().Changed("speed") {
				svc.SetSpeed(speed)
			}
			if cmd.Flags().Changed("speaker") {
				svc.SetSpeakerID(speaker)
			}

			wavData, err := svc.SynthesizeWAV(cmd.Context(), inputText, language)
			if err != nil {
				return fmt.Errorf("synthesis failed: %w", err)
			}

			return writeSynthOutput(out, wavData, os.Stdout)
		},
	}

	cmd.Flags().StringVar(&text, "text", "", "Text to synthesize (if empty, read from stdin)")
	cmd.Flags().StringVar(&out, "out", "out.wav", "Output WAV path ('-' for stdout)")
	cmd.Flags().StringVar(&language, "language", "", "Language tag (zh|en; overrides config)")
	cmd.Flags().Float64Var(&speed, "speed", 1.0, "Speech speed multiplier (overrides config)")
	cmd.Flags().IntVar(&speaker, "speaker", 0, "Speaker embedding ID (overrides config)")

	return cmd
}

func writeSynthOutput(outPath string, wavData []byte, stdout io.Writer) error {
	if outPath == "-" {
		if stdout == nil {
			return fmt.Errorf("stdout writer is nil")
		}
		_, err := stdout.Write(wavData)
		return err
	}
	return os.WriteFile(outPath, wavData, 0o644)
}

func readSynthText(text string, stdin io.Reader) (string, error) {
	if strings.TrimSpace(text) != "" {
		return text, nil
	}

	b, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	input := strings.TrimSpace(string(b))
	if input == "" {
		return "", fmt.Errorf("either provide --text or pipe text on stdin")
	}
	return input, nil
}
