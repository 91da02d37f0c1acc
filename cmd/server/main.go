package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "server",
	Short: "Relationship coach analysis API",
	Long: `Serves POST /api/analyze: per-client usage quota, prompt assembly,
one backend call under a timeout, and an offline result when the backend
is unavailable.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
