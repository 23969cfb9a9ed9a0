// Package audit implements the audit event model and append-only log
// described in spec.md §3/§6: one JSON line per event, written under a
// single mutex, mirrored best-effort to a collector Unix stream socket.
//
// Grounded on original_source/src/agent-task-runner/src/agent_task_runnerd.rs's
// log_event/send_audit_event/timestamp_ms, and on the lifecycle pattern of
// other_examples/7732e055_canonical-snapd__sandbox-apparmor-notify-listener
// for the background collector-mirror goroutine.
package audit

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"gopkg.in/tomb.v2"

	rerrors "github.com/novotnyllc/ContainAI/errors"
)

// Action is the closed set of audit actions from spec.md §3.
type Action string

const (
	ActionRegister Action = "register"
	ActionAllow    Action = "allow"
	ActionDeny     Action = "deny"
	ActionRunStart Action = "run-start"
	ActionRunExit  Action = "run-exit"
	ActionRunError Action = "run-error"
)

// Event is one audit record.
type Event struct {
	TsMs   int64  `json:"ts_ms"`
	PID    int32  `json:"pid"`
	Agent  string `json:"agent"`
	Binary string `json:"binary"`
	Path   string `json:"path"`
	Action Action `json:"action"`
}

// Log is the daemon's audit log: an append-only JSON-lines file protected
// by a mutex, with a best-effort mirror to a collector socket run on a
// background tomb-managed goroutine so a slow/unreachable collector never
// blocks the hot path of writing the durable log.
type Log struct {
	mu   sync.Mutex
	file *os.File

	collectorPath string
	mirror        chan Event
	t             tomb.Tomb
}

// Open opens (creating if necessary) the audit log file at path and
// starts the background collector-mirror goroutine targeting
// collectorAddr. Per spec.md §7/§9, failing to open the log is fatal to
// the daemon.
func Open(path string, collectorAddr string) (*Log, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, rerrors.WrapWithDetail(err, rerrors.KindIO, "open-audit-log", path)
	}

	l := &Log{
		file:          f,
		collectorPath: collectorAddr,
		mirror:        make(chan Event, 256),
	}
	l.t.Go(l.runMirror)
	return l, nil
}

// Write stamps ev.TsMs, appends it as one JSON line, and enqueues it for
// best-effort mirroring to the collector. A write failure is returned to
// the caller as a KindIO RunnerError; the daemon's main loop treats that
// as fatal (spec.md §7: "I/O on the audit log is fatal to the daemon").
func (l *Log) Write(ev Event) error {
	ev.TsMs = time.Now().UnixMilli()

	line, err := json.Marshal(ev)
	if err != nil {
		return rerrors.Wrap(err, rerrors.KindIO, "marshal-audit-event")
	}
	line = append(line, '\n')

	l.mu.Lock()
	_, werr := l.file.Write(line)
	if werr == nil {
		werr = l.file.Sync()
	}
	l.mu.Unlock()

	if werr != nil {
		return rerrors.Wrap(werr, rerrors.KindIO, "write-audit-log")
	}

	select {
	case l.mirror <- ev:
	default:
		// Collector channel full: best-effort, drop rather than block the
		// durable write path (spec.md Non-goals: "no durable queue for
		// audit events").
	}

	return nil
}

// runMirror drains the mirror channel, connecting to the collector socket
// once per event and discarding any connection failure, per spec.md §6
// ("Connection failures silently discarded").
func (l *Log) runMirror() error {
	for {
		select {
		case <-l.t.Dying():
			return nil
		case ev := <-l.mirror:
			l.sendToCollector(ev)
		}
	}
}

func (l *Log) sendToCollector(ev Event) {
	if l.collectorPath == "" {
		return
	}
	conn, err := net.Dial("unix", l.collectorPath)
	if err != nil {
		return
	}
	defer conn.Close()

	line, err := json.Marshal(ev)
	if err != nil {
		return
	}
	line = append(line, '\n')
	_, _ = conn.Write(line)
}

// Close stops the mirror goroutine and closes the log file.
func (l *Log) Close() error {
	l.t.Kill(fmt.Errorf("audit log closing"))
	_ = l.t.Wait()
	return l.file.Close()
}
