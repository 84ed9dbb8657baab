package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hochfrequenz/dev-workspace-orchestrator/internal/history"
	"github.com/spf13/cobra"
)

var (
	historyLimit    int
	historyProject  string
	historySessions bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past delegations and supervise sessions",
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum rows to show")
	historyCmd.Flags().StringVar(&historyProject, "project", "", "filter by project")
	historyCmd.Flags().BoolVar(&historySessions, "sessions", false, "show supervise sessions instead of delegations")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := history.New(cfg.History.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	if historySessions {
		return printSessions(store)
	}
	return printDelegations(store)
}

func printDelegations(store *history.Store) error {
	rows, err := store.Delegations(history.ListOptions{
		Project: historyProject,
		Limit:   historyLimit,
	})
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Println("No delegations recorded")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TASK\tPROJECT\tSTATUS\tSTARTED\tDURATION\tCOMMITS\tDESCRIPTION")
	for _, d := range rows {
		duration := "-"
		if d.CompletedAt != nil {
			duration = d.CompletedAt.Sub(d.StartedAt).Round(time.Second).String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			d.TaskID, d.Project, d.Status, humanize.Time(d.StartedAt),
			duration, d.CommitsMade, truncate(d.TaskDescription, 40))
	}
	return w.Flush()
}

func printSessions(store *history.Store) error {
	rows, err := store.Sessions(historyProject, historyLimit)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Println("No supervise sessions recorded")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PROJECT\tNAME\tSTARTED\tDURATION\tEXIT\tRESTARTS\tCOMMAND")
	for _, s := range rows {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			s.Project, s.Name, humanize.Time(s.StartedAt),
			s.EndedAt.Sub(s.StartedAt).Round(time.Second), s.ExitCode, s.Restarts,
			truncate(s.Command, 40))
	}
	return w.Flush()
}
