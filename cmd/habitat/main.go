package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/systemgarden/habitat/pkg/log"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "habitat",
	Short: "habitat - an embedded ring/table storage engine",
	Long: `habitat operates the holstore/timestore/tablestore/versionstore
layers of an embedded storage engine directly against a container file,
without a server in front of it.`,
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(holCmd)
	rootCmd.AddCommand(tsCmd)
	rootCmd.AddCommand(tabCmd)
	rootCmd.AddCommand(vsCmd)
	rootCmd.AddCommand(serveCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}
