package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "freshloop",
	Short: "Ingredient matching backend for the FreshLoop food-sharing app",
	Long: `freshloop pairs neighbours who need ingredients with neighbours who have them.

Configuration is read from the environment (LLM_BACKEND, GEMINI_API_KEY,
DB_PATH, MATCH_MODE, ...).`,
	SilenceUsage: true,
}

func main() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(matchCmd)
	rootCmd.AddCommand(importCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
