package observer

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/hochfrequenz/dev-workspace-orchestrator/internal/logstore"
)

// LogChangeCallback is called when process logs change. names holds the
// process names whose logs were written since the last flush.
type LogChangeCallback func(project string, names []string)

// LogWatcher monitors dev-logs project directories for log writes. Writes
// are debounced so a chatty dev server produces one callback per burst, not
// one per line.
type LogWatcher struct {
	watcher  *fsnotify.Watcher
	logs     *logstore.Store
	callback LogChangeCallback
	debounce time.Duration

	// projects maps watched directories back to their project names
	projects map[string]string

	// Debounce state, tracked per project
	pendingByProject map[string]map[string]struct{}
	timer            *time.Timer
	mu               sync.Mutex

	cancel context.CancelFunc
}

// NewLogWatcher creates a watcher over a log store
func NewLogWatcher(logs *logstore.Store, callback LogChangeCallback) (*LogWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	lw := &LogWatcher{
		watcher:          watcher,
		logs:             logs,
		callback:         callback,
		debounce:         500 * time.Millisecond,
		projects:         make(map[string]string),
		pendingByProject: make(map[string]map[string]struct{}),
	}

	return lw, nil
}

// AddProject starts watching a project's dev-logs directory. The directory
// is created if it does not exist yet, so processes that start later are
// still seen.
func (lw *LogWatcher) AddProject(project string) error {
	lw.mu.Lock()
	defer lw.mu.Unlock()

	dir := lw.logs.ProjectDir(project)
	if _, exists := lw.projects[dir]; exists {
		return nil // Already watching
	}

	if err := lw.logs.EnsureProject(project); err != nil {
		return err
	}
	if err := lw.watcher.Add(dir); err != nil {
		return err
	}

	lw.projects[dir] = project
	return nil
}

// RemoveProject stops watching a project
func (lw *LogWatcher) RemoveProject(project string) {
	lw.mu.Lock()
	defer lw.mu.Unlock()

	dir := lw.logs.ProjectDir(project)
	if _, exists := lw.projects[dir]; !exists {
		return
	}

	lw.watcher.Remove(dir)
	delete(lw.projects, dir)
	delete(lw.pendingByProject, project)
}

// Projects returns the names of the watched projects
func (lw *LogWatcher) Projects() []string {
	lw.mu.Lock()
	defer lw.mu.Unlock()

	names := make([]string, 0, len(lw.projects))
	for _, p := range lw.projects {
		names = append(names, p)
	}
	return names
}

// Start begins watching for log writes
func (lw *LogWatcher) Start(ctx context.Context) {
	ctx, lw.cancel = context.WithCancel(ctx)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-lw.watcher.Events:
				if !ok {
					return
				}
				lw.handleEvent(event)
			case _, ok := <-lw.watcher.Errors:
				if !ok {
					return
				}
				// Keep watching through transient errors
			}
		}
	}()
}

// Stop stops watching for log writes
func (lw *LogWatcher) Stop() {
	if lw.cancel != nil {
		lw.cancel()
	}
	lw.watcher.Close()
}

func (lw *LogWatcher) handleEvent(event fsnotify.Event) {
	// Only the combined-output logs matter, not pid or info markers
	if !strings.HasSuffix(event.Name, ".log") {
		return
	}

	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}

	lw.mu.Lock()
	defer lw.mu.Unlock()

	project, ok := lw.projects[filepath.Dir(event.Name)]
	if !ok {
		return // Not in a watched project
	}

	name := strings.TrimSuffix(filepath.Base(event.Name), ".log")
	if lw.pendingByProject[project] == nil {
		lw.pendingByProject[project] = make(map[string]struct{})
	}
	lw.pendingByProject[project][name] = struct{}{}

	// Reset or start the debounce timer
	if lw.timer != nil {
		lw.timer.Stop()
	}
	lw.timer = time.AfterFunc(lw.debounce, lw.flush)
}

func (lw *LogWatcher) flush() {
	lw.mu.Lock()
	pending := lw.pendingByProject
	lw.pendingByProject = make(map[string]map[string]struct{})
	lw.mu.Unlock()

	if lw.callback == nil {
		return
	}

	for project, nameSet := range pending {
		names := make([]string, 0, len(nameSet))
		for n := range nameSet {
			names = append(names, n)
		}
		if len(names) > 0 {
			lw.callback(project, names)
		}
	}
}

// SetDebounce sets the debounce duration for batching log writes
func (lw *LogWatcher) SetDebounce(d time.Duration) {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	lw.debounce = d
}
