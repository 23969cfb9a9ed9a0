// Package runsession implements spec.md §4.3: the per-run thread spawned
// by the supervisor immediately after classifying a RUN_REQUEST. Process
// spawning/piping/signal patterns are adapted from
// kornnellio-runc-Go/container/exec.go's non-TTY exec path, generalized
// from "exec inside an existing container" to "spawn a fresh sandboxed
// process and proxy its stdio over the framed channel."
package runsession

import (
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"syscall"

	"github.com/google/uuid"

	"github.com/novotnyllc/ContainAI/audit"
	"github.com/novotnyllc/ContainAI/channel"
	rerrors "github.com/novotnyllc/ContainAI/errors"
	"github.com/novotnyllc/ContainAI/logging"
	"github.com/novotnyllc/ContainAI/runnerenv"
)

// Request is the RUN_REQUEST JSON payload (spec.md §3).
type Request struct {
	Argv      []string          `json:"argv"`
	Env       map[string]string `json:"env,omitempty"`
	Cwd       string            `json:"cwd,omitempty"`
	SessionID string            `json:"session_id,omitempty"`
	Agent     string            `json:"agent,omitempty"`
	Binary    string            `json:"binary,omitempty"`
}

// StartedPayload is the RUN_STARTED JSON payload (spec.md §4.3 step 6).
type StartedPayload struct {
	PID  int      `json:"pid"`
	Argv []string `json:"argv"`
}

// ErrorPayload is the RUN_ERROR JSON payload (spec.md §4.3 step 1/5).
type ErrorPayload struct {
	Error string `json:"error"`
}

// ExitPayload is the RUN_EXIT JSON payload (spec.md §3).
type ExitPayload struct {
	PID     int  `json:"pid"`
	Code    *int `json:"code,omitempty"`
	Signal  *int `json:"signal,omitempty"`
	Success bool `json:"success"`
}

// Config is everything a run session needs to spawn the sandbox launcher,
// resolved from daemon env/flags (spec.md §6).
type Config struct {
	SandboxBin      string
	UnshareBin      string
	DefaultUser     string
	WorkspaceDir    string
	AgentHome       string
	AppArmorProfile string
	HidePaths       []string
	Audit           *audit.Log
}

const stdioReadBufSize = 16 * 1024

// Handle runs one request to completion: validates, spawns, streams
// stdio, and emits the terminal frame. It takes ownership of ch and
// closes it before returning.
func Handle(ch *channel.Channel, payload []byte, cfg Config) {
	defer ch.Close()

	var req Request
	if err := json.Unmarshal(payload, &req); err != nil {
		sendError(ch, fmt.Sprintf("invalid run request: %v", err))
		return
	}
	if len(req.Argv) == 0 {
		sendError(ch, rerrors.ErrEmptyArgv.Error())
		return
	}

	agent := req.Agent
	if agent == "" {
		agent = "unknown-agent"
	}
	binary := req.Binary
	if binary == "" {
		binary = "agent-cli"
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	base := runnerenv.Base(cfg.DefaultUser, cfg.AgentHome)
	env := runnerenv.Build(base, agent, sessionID, req.Env)
	envJSON, err := runnerenv.Encode(env)
	if err != nil {
		s := fmt.Sprintf("build environment: %v", err)
		sendError(ch, s)
		logAuditError(cfg.Audit, agent, binary, s)
		return
	}

	cwd := sanitizeCwd(req.Cwd, cfg.WorkspaceDir, cfg.AgentHome)

	cmd := buildLauncherCmd(cfg, cwd, envJSON, req.Argv)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		s := fmt.Sprintf("spawn: %v", err)
		sendError(ch, s)
		logAuditError(cfg.Audit, agent, binary, s)
		return
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		s := fmt.Sprintf("spawn: %v", err)
		sendError(ch, s)
		logAuditError(cfg.Audit, agent, binary, s)
		return
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		s := fmt.Sprintf("spawn: %v", err)
		sendError(ch, s)
		logAuditError(cfg.Audit, agent, binary, s)
		return
	}

	if err := cmd.Start(); err != nil {
		s := fmt.Sprintf("spawn: %v", err)
		sendError(ch, s)
		logAuditError(cfg.Audit, agent, binary, s)
		return
	}

	started := StartedPayload{PID: cmd.Process.Pid, Argv: req.Argv}
	_ = ch.SendJSON(channel.TypeRunStarted, func() ([]byte, error) { return json.Marshal(started) })
	logAudit(cfg.Audit, agent, binary, "", audit.ActionRunStart, cmd.Process.Pid)

	var wg sync.WaitGroup
	wg.Add(2)
	go streamOut(ch, channel.TypeRunStdout, stdout, &wg)
	go streamOut(ch, channel.TypeRunStderr, stderr, &wg)

	stdinDone := make(chan struct{})
	go streamIn(ch, stdin, cmd, stdinDone)

	waitErr := cmd.Wait()

	_ = ch.ShutdownRead()
	wg.Wait()
	<-stdinDone

	exit := resolveExit(cmd.Process.Pid, waitErr)
	_ = ch.SendJSON(channel.TypeRunExit, func() ([]byte, error) { return json.Marshal(exit) })
	logAudit(cfg.Audit, agent, binary, "", audit.ActionRunExit, cmd.Process.Pid)
}

func buildLauncherCmd(cfg Config, cwd, envJSON string, argv []string) *exec.Cmd {
	unshareArgs := []string{
		"--mount", "--pid", "--fork", "--kill-child",
		"--mount-proc", "--propagation", "private", "--",
		cfg.SandboxBin,
		"--user", cfg.DefaultUser,
		"--cwd", cwd,
		"--hide", strings.Join(cfg.HidePaths, ":"),
		"--apparmor-profile", cfg.AppArmorProfile,
		"--",
	}
	unshareArgs = append(unshareArgs, argv...)

	cmd := exec.Command(cfg.UnshareBin, unshareArgs...)
	cmd.Env = []string{"RUNNER_ENV_JSON=" + envJSON}
	return cmd
}

// sanitizeCwd implements spec.md §4.3 step 4: accept the request cwd only
// if it lies under the workspace root, the agent home, or /tmp; no path
// resolution beyond prefix comparison.
func sanitizeCwd(cwd, workspaceDir, agentHome string) string {
	if cwd == "" {
		return workspaceDir
	}
	for _, prefix := range []string{workspaceDir, agentHome, "/tmp"} {
		if prefix != "" && strings.HasPrefix(cwd, prefix) {
			return cwd
		}
	}
	return workspaceDir
}

func streamOut(ch *channel.Channel, msgType uint32, r io.Reader, wg *sync.WaitGroup) {
	defer wg.Done()

	clone, err := ch.TryClone()
	if err != nil {
		return
	}
	defer clone.Close()

	buf := make([]byte, stdioReadBufSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			payload := make([]byte, n)
			copy(payload, buf[:n])
			_ = clone.Send(msgType, payload)
		}
		if err != nil {
			return
		}
	}
}

func streamIn(ch *channel.Channel, stdin io.WriteCloser, cmd *exec.Cmd, done chan struct{}) {
	defer close(done)
	defer stdin.Close()

	clone, err := ch.TryClone()
	if err != nil {
		return
	}
	defer clone.Close()

	for {
		msg, err := clone.Recv()
		if err != nil {
			return
		}
		if msg == nil {
			// EOF on the inbound channel: client went away.
			if cmd.Process != nil {
				_ = cmd.Process.Signal(syscall.SIGTERM)
			}
			return
		}
		switch msg.Type {
		case channel.TypeRunStdin:
			if _, err := stdin.Write(msg.Payload); err != nil {
				return
			}
		case channel.TypeRunStdinClose:
			return
		default:
			logging.Warn("unexpected frame type during run session", "type", msg.Type)
		}
	}
}

// resolveExit implements the RUN_EXIT payload derivation from spec.md §3
// / §7's exit-code law.
func resolveExit(pid int, waitErr error) ExitPayload {
	if waitErr == nil {
		code := 0
		return ExitPayload{PID: pid, Code: &code, Success: true}
	}
	if exitErr, ok := waitErr.(*exec.ExitError); ok {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			if status.Signaled() {
				sig := int(status.Signal())
				return ExitPayload{PID: pid, Signal: &sig, Success: false}
			}
			code := status.ExitStatus()
			return ExitPayload{PID: pid, Code: &code, Success: code == 0}
		}
		code := exitErr.ExitCode()
		return ExitPayload{PID: pid, Code: &code, Success: code == 0}
	}
	return ExitPayload{PID: pid, Success: false}
}

func sendError(ch *channel.Channel, msg string) {
	_ = ch.SendJSON(channel.TypeRunError, func() ([]byte, error) {
		return json.Marshal(ErrorPayload{Error: msg})
	})
}

// logAudit writes a run-session audit event. A write failure is fatal to
// the daemon per spec.md §7 ("I/O on the audit log is fatal to the
// daemon"); this runs in a detached per-request goroutine with no caller
// to propagate the error to, so it aborts the process directly, matching
// the `?`-propagated abort in agent_task_runnerd.rs's log_event caller.
func logAudit(l *audit.Log, agent, binary, path string, action audit.Action, pid int) {
	if l == nil {
		return
	}
	if err := l.Write(audit.Event{PID: int32(pid), Agent: agent, Binary: binary, Path: path, Action: action}); err != nil {
		logging.Fatal("audit log write failed", "error", err)
	}
}

func logAuditError(l *audit.Log, agent, binary, detail string) {
	if l == nil {
		return
	}
	if err := l.Write(audit.Event{Agent: agent, Binary: binary, Path: detail, Action: audit.ActionRunError}); err != nil {
		logging.Fatal("audit log write failed", "error", err)
	}
}
