/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hoamxTrav/hoamx-watcher-agent/internal/bootstrap"
	"github.com/hoamxTrav/hoamx-watcher-agent/internal/config"
	"github.com/spf13/cobra"
)

var serverAddr string

// serverCmd represents the server command
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Serve the poll trigger, outbox listing and health endpoints",
	Long: `Starts the HTTP server. POST /poll runs one watch cycle for a tenant and
answers with the cycle result; an external scheduler is expected to call it.
A missing database DSN or agent key keeps /healthz up and fails /poll with 500.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		cfg, err := config.Load(cfgFile)
		if err != nil {
			fmt.Fprintln(os.Stderr, "config error:", err)
			os.Exit(1)
		}
		if serverAddr != "" {
			cfg.Server.Address = serverAddr
		}
		if err := bootstrap.Run(ctx, cfg); err != nil {
			fmt.Fprintln(os.Stderr, "server error:", err)
			os.Exit(1)
		}
	},
}

func init() {
	serverCmd.Flags().StringVar(&serverAddr, "addr", "", "listen address, overrides server.address")
	rootCmd.AddCommand(serverCmd)
}
