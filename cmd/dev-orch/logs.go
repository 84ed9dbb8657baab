package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hochfrequenz/dev-workspace-orchestrator/internal/logquery"
	"github.com/hochfrequenz/dev-workspace-orchestrator/internal/logstore"
	"github.com/hochfrequenz/dev-workspace-orchestrator/internal/observer"
	"github.com/spf13/cobra"
)

var logsProject string

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Query captured dev-process logs",
	Long: `Logs answers questions about supervised processes from their log files
alone. It never signals or restarts anything; the running processes do not
notice being queried.`,
}

var logsSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Per-process health digest",
	RunE:  runLogsSummary,
}

var logsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List processes with captured logs",
	RunE:  runLogsList,
}

var logsTailCmd = &cobra.Command{
	Use:   "tail NAME [LINES]",
	Short: "Print the last lines of a process log",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runLogsTail,
}

var logsErrorsCmd = &cobra.Command{
	Use:   "errors [NAME]",
	Short: "Extract error-matching lines, all processes or one",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runLogsErrors,
}

var logsRecentCmd = &cobra.Command{
	Use:   "recent [LINES]",
	Short: "Errors within the most recent log lines",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runLogsRecent,
}

var logsWatchCmd = &cobra.Command{
	Use:   "watch NAME",
	Short: "Print lines added since the last watch",
	Args:  cobra.ExactArgs(1),
	RunE:  runLogsWatch,
}

var logsFollowCmd = &cobra.Command{
	Use:   "follow NAME",
	Short: "Stream a process log live",
	Args:  cobra.ExactArgs(1),
	RunE:  runLogsFollow,
}

var logsClearCmd = &cobra.Command{
	Use:   "clear NAME",
	Short: "Truncate a process log and drop its watch cursor",
	Args:  cobra.ExactArgs(1),
	RunE:  runLogsClear,
}

func init() {
	logsCmd.PersistentFlags().StringVar(&logsProject, "project", "", "project name (default: from git or cwd)")
	logsCmd.AddCommand(logsSummaryCmd)
	logsCmd.AddCommand(logsListCmd)
	logsCmd.AddCommand(logsTailCmd)
	logsCmd.AddCommand(logsErrorsCmd)
	logsCmd.AddCommand(logsRecentCmd)
	logsCmd.AddCommand(logsWatchCmd)
	logsCmd.AddCommand(logsFollowCmd)
	logsCmd.AddCommand(logsClearCmd)
	rootCmd.AddCommand(logsCmd)
}

func openQuery() (*logquery.Query, *logstore.Store, string, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, "", err
	}
	project, err := resolveProject(logsProject)
	if err != nil {
		return nil, nil, "", err
	}
	store := logstore.New(cfg.General.RootDir)
	return logquery.New(store), store, project, nil
}

func runLogsSummary(cmd *cobra.Command, args []string) error {
	q, _, project, err := openQuery()
	if err != nil {
		return err
	}

	summaries, err := q.Summary(project)
	if err != nil {
		return err
	}
	if len(summaries) == 0 {
		fmt.Printf("No process logs for project %s\n", project)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSTATE\tERRORS\tSIZE\tLAST LINE")
	for _, s := range summaries {
		state := "stopped"
		if s.Running {
			state = "running"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			s.Name, state, s.ErrorCount, humanize.Bytes(uint64(s.SizeBytes)), truncate(s.LastLine, 60))
	}
	return w.Flush()
}

func runLogsList(cmd *cobra.Command, args []string) error {
	q, _, project, err := openQuery()
	if err != nil {
		return err
	}

	names, err := q.List(project)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		fmt.Printf("No process logs for project %s\n", project)
		return nil
	}
	for _, name := range names {
		fmt.Println(name)
	}
	return nil
}

func runLogsTail(cmd *cobra.Command, args []string) error {
	q, _, project, err := openQuery()
	if err != nil {
		return err
	}

	n := 0
	if len(args) == 2 {
		if n, err = strconv.Atoi(args[1]); err != nil {
			return fmt.Errorf("invalid line count %q", args[1])
		}
	}

	lines, err := q.Tail(project, args[0], n)
	if err != nil {
		return err
	}
	for _, line := range lines {
		fmt.Println(line)
	}
	return nil
}

func printErrors(errs []logquery.LogErrors) {
	total := 0
	for _, le := range errs {
		if len(le.Matches) == 0 {
			continue
		}
		total += len(le.Matches)
		fmt.Printf("== %s ==\n", le.Name)
		for _, m := range le.Matches {
			fmt.Printf("%6d: %s\n", m.Line, m.Text)
		}
	}
	if total == 0 {
		fmt.Println("No errors found")
	}
}

func runLogsErrors(cmd *cobra.Command, args []string) error {
	q, _, project, err := openQuery()
	if err != nil {
		return err
	}

	name := ""
	if len(args) == 1 {
		name = args[0]
	}

	errs, err := q.Errors(project, name)
	if err != nil {
		return err
	}
	printErrors(errs)
	return nil
}

func runLogsRecent(cmd *cobra.Command, args []string) error {
	q, _, project, err := openQuery()
	if err != nil {
		return err
	}

	n := 0
	if len(args) == 1 {
		if n, err = strconv.Atoi(args[0]); err != nil {
			return fmt.Errorf("invalid line count %q", args[0])
		}
	}

	errs, err := q.Recent(project, n)
	if err != nil {
		return err
	}
	printErrors(errs)
	return nil
}

func runLogsWatch(cmd *cobra.Command, args []string) error {
	q, _, project, err := openQuery()
	if err != nil {
		return err
	}

	lines, err := q.Watch(project, args[0])
	if err != nil {
		return err
	}
	if len(lines) == 0 {
		fmt.Println("No new lines since last watch")
		return nil
	}
	for _, line := range lines {
		fmt.Println(line)
	}
	return nil
}

func runLogsClear(cmd *cobra.Command, args []string) error {
	q, _, project, err := openQuery()
	if err != nil {
		return err
	}

	if err := q.Clear(project, args[0]); err != nil {
		return err
	}
	fmt.Printf("Cleared %s\n", args[0])
	return nil
}

func runLogsFollow(cmd *cobra.Command, args []string) error {
	q, store, project, err := openQuery()
	if err != nil {
		return err
	}
	name := args[0]

	// Current tail first, so the stream starts with context.
	lines, err := q.Tail(project, name, 0)
	if err != nil {
		return err
	}
	for _, line := range lines {
		fmt.Println(line)
	}

	f, err := os.Open(store.LogPath(project, name))
	if err != nil {
		return err
	}
	defer f.Close()
	offset, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return err
	}

	changed := make(chan struct{}, 1)
	lw, err := observer.NewLogWatcher(store, func(p string, names []string) {
		if p != project {
			return
		}
		for _, n := range names {
			if n == name {
				select {
				case changed <- struct{}{}:
				default:
				}
				return
			}
		}
	})
	if err != nil {
		return err
	}
	lw.SetDebounce(200 * time.Millisecond)
	if err := lw.AddProject(project); err != nil {
		return err
	}
	lw.Start(context.Background())
	defer lw.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	for {
		select {
		case <-changed:
			offset = streamFrom(f, offset)
		case <-sigCh:
			return nil
		}
	}
}

// streamFrom copies everything the log gained since offset to stdout and
// returns the new offset. A file shorter than the offset means the log was
// cleared; the stream restarts from the top.
func streamFrom(f *os.File, offset int64) int64 {
	fi, err := f.Stat()
	if err != nil {
		return offset
	}
	if fi.Size() < offset {
		offset = 0
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return offset
	}
	n, _ := io.Copy(os.Stdout, f)
	return offset + n
}
