package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/hochfrequenz/dev-workspace-orchestrator/internal/batch"
	"github.com/hochfrequenz/dev-workspace-orchestrator/internal/delegate"
	"github.com/spf13/cobra"
)

var scheduleFile string

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run recurring delegations from a schedule file",
}

var scheduleRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Dispatch scheduled delegations as they come due",
	Long: `Schedule run loads the delegation schedule and stays in the foreground,
dispatching each entry when its cron expression fires. Entries only fire
while the scheduler is running; nothing catches up retroactively on start.`,
	RunE: runScheduleRun,
}

var scheduleListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show the schedule and next fire times",
	RunE:  runScheduleList,
}

func init() {
	scheduleCmd.PersistentFlags().StringVar(&scheduleFile, "file", "", "schedule file (default from config)")
	scheduleCmd.AddCommand(scheduleRunCmd)
	scheduleCmd.AddCommand(scheduleListCmd)
	rootCmd.AddCommand(scheduleCmd)
}

func runScheduleRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	path := scheduleFile
	if path == "" {
		path = cfg.Schedule.File
	}

	sched, err := batch.LoadSchedule(path)
	if err != nil {
		return err
	}
	if len(sched.Entries) == 0 {
		fmt.Printf("No delegations scheduled in %s\n", path)
		return nil
	}

	scheduler, err := batch.NewScheduler(sched.Entries)
	if err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		scheduler.Stop()
	}()

	fmt.Printf("Scheduling %d delegations from %s\n", len(sched.Entries), path)
	scheduler.Start(func(e batch.Entry) error {
		// A fresh dispatcher per fire so prompt overrides in the entry's
		// project are honored, same as delegating from that directory.
		d, hist := newDispatcher(cfg, e.Project, os.Stdout)
		if hist != nil {
			defer hist.Close()
		}

		handle, err := d.Dispatch(delegate.Request{
			AIName:          e.AI,
			TaskDescription: e.Task,
			ProjectPath:     e.Project,
			Branch:          e.Branch,
			Sync:            true,
		})
		if err != nil {
			return err
		}
		fmt.Printf("schedule: %s finished as %s (%s)\n", e.Name, handle.TaskID, handle.Status)
		return nil
	})
	return nil
}

func runScheduleList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	path := scheduleFile
	if path == "" {
		path = cfg.Schedule.File
	}

	sched, err := batch.LoadSchedule(path)
	if err != nil {
		return err
	}
	if len(sched.Entries) == 0 {
		fmt.Printf("No delegations scheduled in %s\n", path)
		return nil
	}

	scheduler, err := batch.NewScheduler(sched.Entries)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tAI\tPROJECT\tCRON\tNEXT RUN")
	for _, name := range scheduler.Names() {
		e, _ := scheduler.GetEntry(name)
		next := "-"
		if t := scheduler.NextRun(name); !t.IsZero() {
			next = humanize.Time(t)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", e.Name, e.AI, e.Project, e.Cron, next)
	}
	return w.Flush()
}
