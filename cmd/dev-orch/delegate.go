package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/hochfrequenz/dev-workspace-orchestrator/internal/config"
	"github.com/hochfrequenz/dev-workspace-orchestrator/internal/delegate"
	"github.com/hochfrequenz/dev-workspace-orchestrator/internal/domain"
	"github.com/hochfrequenz/dev-workspace-orchestrator/internal/history"
	"github.com/hochfrequenz/dev-workspace-orchestrator/internal/logstore"
	"github.com/hochfrequenz/dev-workspace-orchestrator/internal/notify"
	"github.com/hochfrequenz/dev-workspace-orchestrator/internal/prompts"
	"github.com/hochfrequenz/dev-workspace-orchestrator/internal/statusstore"
	"github.com/spf13/cobra"
)

var (
	delegateBranch  string
	delegateVisible bool
	delegateAsync   bool
	delegateSync    bool
)

var delegateCmd = &cobra.Command{
	Use:   "delegate AI TASK [PROJECT_PATH]",
	Short: "Hand a self-contained task to an AI CLI tool",
	Long: `Delegate dispatches a coding task to an AI CLI tool (claude, gemini,
codex, or anything configured under [delegate.tools]) and returns
immediately with a JSON handle. Poll the task with check-status.

By default the tool runs detached in the background. --visible runs it in
a terminal pane via the configured pane command, --sync runs it in the
foreground and waits. --branch isolates the work on a fresh git branch.`,
	Args: cobra.RangeArgs(2, 3),
	RunE: runDelegate,
}

var checkStatusCmd = &cobra.Command{
	Use:   "check-status [TASK_ID|all|running|recent|clean]",
	Short: "Read delegation status records",
	Long: `Check-status reads the durable status records that delegated tasks
write. With no argument it lists the tasks still running. A task ID prints
that task's record; all, running and recent print record lists; clean
removes terminal records and reports the count.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCheckStatus,
}

var delegateExecCmd = &cobra.Command{
	Use:    "delegate-exec PAYLOAD",
	Hidden: true,
	Args:   cobra.ExactArgs(1),
	RunE:   runDelegateExec,
}

func init() {
	delegateCmd.Flags().StringVar(&delegateBranch, "branch", "", "isolate work on a new git branch (optionally named)")
	delegateCmd.Flags().Lookup("branch").NoOptDefVal = "auto"
	delegateCmd.Flags().BoolVar(&delegateVisible, "visible", false, "run the tool in a visible terminal pane")
	delegateCmd.Flags().BoolVar(&delegateAsync, "async", false, "run in the background (the default)")
	delegateCmd.Flags().BoolVar(&delegateSync, "sync", false, "run in the foreground and wait for the result")
	delegateCmd.MarkFlagsMutuallyExclusive("async", "sync")
	rootCmd.AddCommand(delegateCmd)
	rootCmd.AddCommand(checkStatusCmd)
	rootCmd.AddCommand(delegateExecCmd)
}

// newDispatcher assembles the delegation stack every entry point shares:
// log and status stores under the configured root, prompt loader with the
// project's override directory, notifier from config, and a best-effort
// history recorder. The returned store is nil when history is disabled.
func newDispatcher(cfg *config.Config, projectRoot string, output io.Writer) (*delegate.Dispatcher, *history.Store) {
	logs := logstore.New(cfg.General.RootDir)

	var recorder delegate.Recorder
	hist, err := history.New(cfg.History.DatabasePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: delegation history disabled: %v\n", err)
		hist = nil
	} else {
		recorder = hist
	}

	return &delegate.Dispatcher{Runner: &delegate.Runner{
		Logs:     logs,
		Status:   statusstore.New(logs.StatusDir()),
		Config:   cfg.Delegate,
		Loader:   prompts.DefaultLoader(projectRoot),
		Notifier: notify.FromConfig(cfg.Notifications.Desktop, cfg.Notifications.SlackWebhook),
		Recorder: recorder,
		Output:   output,
	}}, hist
}

func runDelegate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	projectPath := ""
	if len(args) == 3 {
		projectPath = args[2]
	} else if projectPath, err = os.Getwd(); err != nil {
		return err
	}

	req := delegate.Request{
		AIName:          args[0],
		TaskDescription: args[1],
		ProjectPath:     projectPath,
		Visible:         delegateVisible,
		Sync:            delegateSync,
	}
	if cmd.Flags().Changed("branch") {
		req.Branch = true
		if delegateBranch != "auto" {
			req.BranchName = delegateBranch
		}
	}

	d, hist := newDispatcher(cfg, projectPath, os.Stdout)
	if hist != nil {
		defer hist.Close()
	}

	handle, err := d.Dispatch(req)
	if handle.TaskID != "" {
		data, merr := json.MarshalIndent(handle, "", "  ")
		if merr != nil {
			return merr
		}
		fmt.Println(string(data))
	}
	return err
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// printTasks prints a record list, rendering the empty set as [] rather
// than null.
func printTasks(tasks []*domain.DelegationTask) error {
	if tasks == nil {
		tasks = []*domain.DelegationTask{}
	}
	return printJSON(tasks)
}

func runCheckStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logs := logstore.New(cfg.General.RootDir)
	status := statusstore.New(logs.StatusDir())

	selector := "running"
	if len(args) == 1 {
		selector = args[0]
	}

	switch selector {
	case "running":
		tasks, err := status.Running()
		if err != nil {
			return err
		}
		return printTasks(tasks)
	case "all":
		tasks, err := status.List()
		if err != nil {
			return err
		}
		return printTasks(tasks)
	case "recent":
		tasks, err := status.Recent(10)
		if err != nil {
			return err
		}
		return printTasks(tasks)
	case "clean":
		removed, err := status.Clean()
		if err != nil {
			return err
		}
		fmt.Printf("Removed %d status records\n", removed)
		return nil
	default:
		task, err := status.Read(selector)
		if err != nil {
			return err
		}
		return printJSON(task)
	}
}

// runDelegateExec is the detached half of a background or visible dispatch.
// It always exits 0: the task's outcome lives in its status record, and a
// non-zero exit here would only confuse the terminal pane wrapper.
func runDelegateExec(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	p, err := delegate.ReadPayload(args[0])
	if err != nil {
		return err
	}

	d, hist := newDispatcher(cfg, p.Request.ProjectPath, os.Stdout)
	if hist != nil {
		defer hist.Close()
	}

	d.Runner.Execute(p.Task, p.Request)
	return nil
}
