package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cadetops/muster/internal/config"
	"github.com/cadetops/muster/internal/embedder"
)

var embedderCmd = &cobra.Command{
	Use:   "embedder",
	Short: "Inspect the external embedding service",
}

var embedderCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Check that the embedding service is reachable",
	Long: `Probe the embedding service configured via EMBEDDER_URL and report
whether it is ready to serve detections. Exits non-zero when the
service cannot be reached.`,
	RunE: runEmbedderCheck,
}

func init() {
	rootCmd.AddCommand(embedderCmd)
	embedderCmd.AddCommand(embedderCheckCmd)
}

func runEmbedderCheck(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	client := embedder.New(&cfg.Embedder)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	fmt.Printf("Probing embedder at %s...\n", cfg.Embedder.URL)
	if !client.IsAvailable(ctx) {
		return fmt.Errorf("embedder at %s is not responding", cfg.Embedder.URL)
	}

	fmt.Printf("Embedder is up (model %s, %d dimensions)\n", cfg.Embedder.Model, cfg.Embedder.Dim)
	return nil
}
