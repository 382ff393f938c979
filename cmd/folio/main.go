package main

import (
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:           "folio",
	Short:         "Portfolio chat relay",
	Long:          "folio answers visitor questions about a portfolio owner by relaying them to an LLM, grounded in the owner's profile content.",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if _, ok := os.LookupEnv("NO_COLOR"); ok {
			noColor = true
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().String("server", "", "folio server URL (default http://127.0.0.1:<server.port>)")

	rootCmd.AddCommand(serveCmd, statusCmd, mcpCmd)
	rootCmd.AddCommand(askCmd, chatCmd, promptCmd, classifyCmd)
	rootCmd.AddCommand(contentCmd, configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}
