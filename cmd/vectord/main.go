// Vectord is a multi-tenant embedding and retrieval daemon.
//
// It fronts a fallback chain of embedding providers (local fastembed, TEI,
// OpenAI) with retry, circuit breaking, and resource-aware scheduling, and
// stores vectors in tenant-isolated namespaces.
//
// Usage:
//
//	# Start with defaults (in-memory store, local embeddings)
//	vectord serve
//
//	# Start with a config file
//	vectord serve --config /etc/vectord/config.yaml
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "vectord",
	Short: "Multi-tenant embedding and retrieval daemon",
	Long: `vectord serves tenant-isolated vector ingestion and similarity search
backed by a resilient chain of embedding providers.`,
	Version: version,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("vectord by Veridian Labs\n")
		fmt.Printf("Version:    %s\n", version)
		fmt.Printf("Commit:     %s\n", gitCommit)
		fmt.Printf("Build Date: %s\n", buildDate)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (YAML)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
