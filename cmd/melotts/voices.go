package main

import (
	"fmt"
	"os"

	"github.com/example/go-melotts/internal/tts"
	"github.com/spf13/cobra"
)

func newVoicesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "voices",
		Short: "List available speaker embeddings",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			bank, err := tts.LoadSpeakerBank(cfg.Paths.Speakers(), nil)
			if err != nil {
				return fmt.Errorf("load speaker bank: %w", err)
			}

			fmt.Fprintf(os.Stdout, "%d speaker(s) in %s\n", bank.Count(), cfg.Paths.Speakers())
			for i := 0; i < bank.Count(); i++ {
				fmt.Fprintf(os.Stdout, "  %d\n", i)
			}

			return nil
		},
	}

	return cmd
}
