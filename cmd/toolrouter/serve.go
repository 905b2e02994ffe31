package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/effective-security/toolrouter/agent"
	"github.com/effective-security/toolrouter/callbacks"
	"github.com/effective-security/toolrouter/factory"
	"github.com/effective-security/toolrouter/server"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
	"github.com/spf13/cobra"
)

var listenAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API",
	Long: `Serve the HTTP API.

The Agent connects to both backends on start. When a backend is not available
the server still starts, and POST /initialize retries the connection.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&listenAddr, "listen", "", "listen address, overrides server.listen_addr")
}

func runServe(cmd *cobra.Command, _ []string) error {
	sp := callbacks.NewScratchpad(callbacks.ModeDefault)
	cb := callbacks.NewFanout(callbacks.NewPackageLogger(logger), sp)

	a, cfg, err := factory.Load(cfgFile, agent.WithCallback(cb))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !a.Initialize(ctx) {
		st := a.Status()
		logger.KV(xlog.WARNING,
			"status", "not_initialized",
			"tool_err", st.LastToolError,
			"generation_err", st.LastGenerationError,
		)
	}

	addr := values.StringsCoalesce(listenAddr, values.StringsCoalesce(cfg.Server.ListenAddr, factory.DefaultListenAddr))
	return server.New(a, addr, server.WithScratchpad(sp)).Start(ctx)
}
