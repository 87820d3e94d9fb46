/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"os"

	"github.com/hoamxTrav/hoamx-watcher-agent/internal/bootstrap"
	"github.com/hoamxTrav/hoamx-watcher-agent/internal/config"
	"github.com/spf13/cobra"
)

var (
	seedTenant    string
	seedCount     int
	seedBatchSize int
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create a tenant source table and fill it with fake rows",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			fmt.Fprintln(os.Stderr, "config error:", err)
			os.Exit(1)
		}
		if err := bootstrap.Seed(cmd.Context(), cfg, seedTenant, seedCount, seedBatchSize); err != nil {
			fmt.Fprintln(os.Stderr, "seed error:", err)
			os.Exit(1)
		}
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedTenant, "tenant", "", "tenant schema to seed (default watcher.default_tenant)")
	seedCmd.Flags().IntVar(&seedCount, "count", 10, "number of rows to seed")
	seedCmd.Flags().IntVar(&seedBatchSize, "batch-size", 100, "batch size for inserts")
	rootCmd.AddCommand(seedCmd)
}
