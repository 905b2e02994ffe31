package main

import (
	"fmt"
	"os"

	"github.com/effective-security/xlog"
	"github.com/spf13/cobra"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolrouter", "cmd")

var (
	cfgFile string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "toolrouter",
	Short: "Routes natural language queries to the tools of a remote tool service",
	Long: `toolrouter answers natural language queries with a local Ollama model
and the tools of a remote tool service.

The query entities select the relevant tools, the model picks one tool call,
and the tool result is turned into the final answer. Complex queries are
executed as a chain of steps, and conversations keep the tool data in memory.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		xlog.SetFormatter(xlog.NewStringFormatter(os.Stderr))
		if debug {
			xlog.SetGlobalLogLevel(xlog.DEBUG)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file, defaults are used when not provided")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(toolsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
