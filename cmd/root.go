/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "hoamx-watcher-agent",
	Short: "Watch tenant tables and relay new rows to downstream sinks",
	Long: `hoamx-watcher-agent polls a tenant-partitioned source table, records every
new row as an event in a deduplicating outbox, and delivers the events to the
configured HTTP and NATS sinks. Run "server" for the HTTP trigger or "poll"
for a single cycle.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
}
