package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	rootCmd    = &cobra.Command{
		Use:   "dev-orch",
		Short: "Dev Workspace Orchestrator - Supervise dev processes and delegate work to AI tools",
		Long: `Dev Workspace Orchestrator keeps a single workstation's development
environment under control. It supervises long-running dev processes with
captured logs and interactive restart, answers questions about those logs
without touching the processes, and hands self-contained coding tasks to
AI CLI tools running in the background.`,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
