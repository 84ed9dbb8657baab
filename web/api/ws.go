package api

import (
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// wsPingInterval keeps idle tail connections alive through proxies.
	wsPingInterval = 30 * time.Second
	// wsPongWait is how long a silent client may linger before the read
	// loop gives up on it.
	wsPongWait  = 60 * time.Second
	wsWriteWait = 10 * time.Second
)

// logSub is one websocket client tailing a single process log.
type logSub struct {
	project string
	name    string
	notify  chan struct{}
}

// notifyLogSubs wakes the websocket tails whose process logs changed.
func (s *Server) notifyLogSubs(project string, names []string) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for sub := range s.subs {
		if sub.project != project {
			continue
		}
		for _, n := range names {
			if n == sub.name {
				select {
				case sub.notify <- struct{}{}:
				default:
				}
				break
			}
		}
	}
}

// wsLogsHandler upgrades /api/ws/logs?project=P&name=N to a live log tail.
// The log's current tail is sent first, then every append as it lands.
func (s *Server) wsLogsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		project := r.URL.Query().Get("project")
		name := r.URL.Query().Get("name")
		if project == "" || name == "" {
			writeError(w, http.StatusBadRequest, "project and name query parameters required")
			return
		}

		// Watching starts on demand so a tail works even before the first
		// supervise run of the project.
		if err := s.watcher.AddProject(project); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("upgrade failed: %v", err)
			return
		}

		go s.streamLog(conn, project, name)
	}
}

func (s *Server) streamLog(conn *websocket.Conn, project, name string) {
	defer conn.Close()

	sub := &logSub{project: project, name: name, notify: make(chan struct{}, 1)}
	s.subsMu.Lock()
	s.subs[sub] = true
	s.subsMu.Unlock()
	defer func() {
		s.subsMu.Lock()
		delete(s.subs, sub)
		s.subsMu.Unlock()
	}()

	offset := s.sendInitialTail(conn, project, name)
	if offset < 0 {
		return
	}

	// The read loop only notices the client going away; tails are one-way.
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(wsPongWait))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
					log.Printf("log tail %s/%s: %v", project, name, err)
				}
				return
			}
			conn.SetReadDeadline(time.Now().Add(wsPongWait))
		}
	}()

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-sub.notify:
			var err error
			offset, err = s.sendNewBytes(conn, project, name, offset)
			if err != nil {
				return
			}
		}
	}
}

// sendInitialTail pushes the last lines already in the log and returns the
// byte offset streaming should continue from. Negative means the client is
// gone.
func (s *Server) sendInitialTail(conn *websocket.Conn, project, name string) int64 {
	lines, err := s.opts.Query.Tail(project, name, 0)
	if err != nil {
		return 0 // No log yet; the tail starts with the first write.
	}
	if len(lines) > 0 {
		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteMessage(websocket.TextMessage, []byte(strings.Join(lines, "\n")+"\n")); err != nil {
			return -1
		}
	}
	var offset int64
	if fi, err := os.Stat(s.opts.Logs.LogPath(project, name)); err == nil {
		offset = fi.Size()
	}
	return offset
}

func (s *Server) sendNewBytes(conn *websocket.Conn, project, name string, offset int64) (int64, error) {
	f, err := os.Open(s.opts.Logs.LogPath(project, name))
	if err != nil {
		return offset, nil
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return offset, nil
	}
	// A shrinking file means the log was cleared; restart from the top.
	if fi.Size() < offset {
		offset = 0
	}
	if fi.Size() == offset {
		return offset, nil
	}

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return offset, err
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return offset, err
	}

	conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return offset, err
	}
	return offset + int64(len(data)), nil
}
