package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "famulus",
	Short: "Memory-backed chat pipeline server",
	Long: "Famulus runs the staged chat-processing pipeline as an HTTP service:\n" +
		"admission, intent classification, memory extraction and recall,\n" +
		"token-budgeted context assembly, and the model response.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
