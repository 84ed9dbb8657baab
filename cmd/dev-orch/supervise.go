package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/hochfrequenz/dev-workspace-orchestrator/internal/history"
	"github.com/hochfrequenz/dev-workspace-orchestrator/internal/logstore"
	"github.com/hochfrequenz/dev-workspace-orchestrator/internal/procfile"
	"github.com/hochfrequenz/dev-workspace-orchestrator/internal/supervisor"
	"github.com/spf13/cobra"
)

var (
	superviseProject string
	superviseCwd     string
)

var superviseCmd = &cobra.Command{
	Use:   "supervise NAME [-- COMMAND...]",
	Short: "Run a dev process with log capture and interactive restart",
	Long: `Supervise runs a dev process in the foreground, mirrors its combined
output to the terminal and the project log, and restarts it in place when
you type "rs". Without an explicit command the process is looked up by
name in the working directory's ` + procfile.FileName + `.

The session exits with the supervised process's own exit code.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSupervise,
}

func init() {
	superviseCmd.Flags().StringVar(&superviseProject, "project", "", "project name (default: from "+procfile.FileName+" or git)")
	superviseCmd.Flags().StringVar(&superviseCwd, "cwd", "", "working directory for the process")
	rootCmd.AddCommand(superviseCmd)
}

func runSupervise(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	name := args[0]
	command := strings.Join(args[1:], " ")

	cwd := superviseCwd
	if cwd == "" {
		if cwd, err = os.Getwd(); err != nil {
			return err
		}
	}

	project := superviseProject
	if project == "" {
		project = os.Getenv("DEV_ORCH_PROJECT")
	}
	if command == "" || project == "" {
		pf, err := procfile.Load(cwd)
		if err != nil {
			return err
		}
		if command == "" {
			if pf == nil {
				return fmt.Errorf("no command given and no %s in %s", procfile.FileName, cwd)
			}
			def, ok := pf.Find(name)
			if !ok {
				return fmt.Errorf("%s does not define process %q (have: %s)", procfile.FileName, name, strings.Join(pf.Names(), ", "))
			}
			command = def.Command
			if superviseCwd == "" && def.Cwd != "" {
				cwd = def.Cwd
			}
		}
		if project == "" && pf != nil {
			project = pf.Project
		}
	}
	if project == "" {
		project = logstore.ResolveProject(cwd)
	}

	// History is best effort: a broken database must not take the dev
	// process down with it.
	var recorder supervisor.SessionRecorder
	hist, err := history.New(cfg.History.DatabasePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: session history disabled: %v\n", err)
	} else {
		recorder = hist
	}

	sup := supervisor.New(supervisor.Options{
		Store:    logstore.New(cfg.General.RootDir),
		Config:   cfg.Supervisor,
		Recorder: recorder,
		Project:  project,
		Name:     name,
		Command:  command,
		Cwd:      cwd,
	})

	code, runErr := sup.Run()
	if hist != nil {
		hist.Close()
	}
	if runErr != nil {
		fmt.Fprintln(os.Stderr, runErr)
	}
	os.Exit(code)
	return nil
}
