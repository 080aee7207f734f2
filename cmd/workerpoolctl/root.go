// Package main implements workerpoolctl, a small operator CLI wrapped
// around core.WorkerPool: "run" drives a pool with synthetic load,
// "bench" drives the SelfSubmittingDispatcher coalescing scenario.
package main

import (
	"fmt"
	"os"

	"github.com/coreflow/workerpool/core"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "workerpoolctl",
	Short: "Operate and exercise a core.WorkerPool from the command line",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to an optional YAML config file (WORKERPOOL_* env vars always apply)")
	rootCmd.AddCommand(runCmd, benchCmd)
}

func loadConfigOrExit() core.Config {
	cfg, err := core.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "workerpoolctl: loading config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func mustLogger(cfg core.Config) *zap.Logger {
	logger, err := core.NewZapLoggerFromConfig(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "workerpoolctl: building logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
