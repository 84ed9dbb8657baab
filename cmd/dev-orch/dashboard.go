package main

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/hochfrequenz/dev-workspace-orchestrator/internal/logquery"
	"github.com/hochfrequenz/dev-workspace-orchestrator/internal/logstore"
	"github.com/hochfrequenz/dev-workspace-orchestrator/internal/statusstore"
	"github.com/hochfrequenz/dev-workspace-orchestrator/tui"
	"github.com/hochfrequenz/dev-workspace-orchestrator/web/api"
	"github.com/spf13/cobra"
)

var (
	dashboardProject string
	servePort        int
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Terminal dashboard over processes and delegations",
	RunE:  runDashboard,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the status API over HTTP",
	RunE:  runServe,
}

func init() {
	dashboardCmd.Flags().StringVar(&dashboardProject, "project", "", "project name (default: from git or cwd)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "port to listen on (default from config)")
	rootCmd.AddCommand(dashboardCmd)
	rootCmd.AddCommand(serveCmd)
}

func runDashboard(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	project, err := resolveProject(dashboardProject)
	if err != nil {
		return err
	}

	logs := logstore.New(cfg.General.RootDir)
	model := tui.NewModel(tui.Config{
		Project: project,
		Query:   logquery.New(logs),
		Status:  statusstore.New(logs.StatusDir()),
	})

	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err = p.Run()
	return err
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	port := servePort
	if port == 0 {
		port = cfg.Web.Port
	}
	addr := fmt.Sprintf("%s:%d", cfg.Web.Host, port)

	logs := logstore.New(cfg.General.RootDir)

	d, hist := newDispatcher(cfg, "", os.Stdout)
	if hist != nil {
		defer hist.Close()
	}

	server, err := api.NewServer(api.Options{
		Addr:      addr,
		Logs:      logs,
		Query:     logquery.New(logs),
		Status:    statusstore.New(logs.StatusDir()),
		History:   hist,
		DefaultAI: cfg.General.DefaultAI,
		Dispatch:  d.Dispatch,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Status API listening at http://%s\n", addr)
	return server.Start()
}
