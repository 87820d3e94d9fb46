/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hoamxTrav/hoamx-watcher-agent/internal/bootstrap"
	"github.com/hoamxTrav/hoamx-watcher-agent/internal/config"
	"github.com/hoamxTrav/hoamx-watcher-agent/internal/domain/entity"
	"github.com/hoamxTrav/hoamx-watcher-agent/internal/domain/service"
	"github.com/spf13/cobra"
)

var (
	pollTenant      string
	pollBatchSize   int
	pollEmitFullRow bool
)

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Run one watch cycle and print the result as JSON",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			fmt.Fprintln(os.Stderr, "config error:", err)
			os.Exit(1)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		result, err := bootstrap.Poll(ctx, cfg, entity.CycleRequest{
			Tenant:      pollTenant,
			BatchSize:   pollBatchSize,
			EmitFullRow: pollEmitFullRow,
		})
		if errors.Is(err, service.ErrCycleInProgress) {
			fmt.Fprintln(os.Stderr, "poll skipped:", err)
			return
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, "poll error:", err)
			os.Exit(1)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			fmt.Fprintln(os.Stderr, "output error:", err)
			os.Exit(1)
		}
	},
}

func init() {
	pollCmd.Flags().StringVar(&pollTenant, "tenant", "", "tenant to poll (default watcher.default_tenant)")
	pollCmd.Flags().IntVar(&pollBatchSize, "batch-size", 0, "rows per cycle, 1..500 (default watcher.batch_size)")
	pollCmd.Flags().BoolVar(&pollEmitFullRow, "emit-full-row", false, "include the full source row in each event")
	rootCmd.AddCommand(pollCmd)
}
