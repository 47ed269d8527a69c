package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "muster",
	Short: "Face-recognition attendance service for cadet units",
	Long: `Muster runs attendance for cadet units using face recognition.
It serves the attendance HTTP API, enrolls cadet faces from stills,
imports the legacy roster and manages attendance sessions.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
