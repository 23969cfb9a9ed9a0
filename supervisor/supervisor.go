// Package supervisor implements spec.md §4.2: the daemon's central poll
// loop, multiplexing the listener socket and every registered helper's
// seccomp notify FD, evaluating the observe/enforce policy, and writing
// the audit log. Grounded on kornnellio-runc-Go's use of golang.org/x/sys/unix
// for raw syscalls, and on original_source/agent_task_runnerd.rs's
// poll-driven main loop for control flow.
package supervisor

import (
	"context"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/novotnyllc/ContainAI/audit"
	"github.com/novotnyllc/ContainAI/channel"
	rerrors "github.com/novotnyllc/ContainAI/errors"
	"github.com/novotnyllc/ContainAI/logging"
	"github.com/novotnyllc/ContainAI/seccomp"
)

// Policy is the process-wide enforcement mode (spec.md §3).
type Policy string

const (
	PolicyObserve Policy = "observe"
	PolicyEnforce Policy = "enforce"
)

// EnforcedPrefixes are the path prefixes denied in enforce mode (spec.md
// §4.2.2 step 3).
var EnforcedPrefixes = []string{"/run/agent-secrets", "/run/agent-data"}

const registrationPayloadSize = 4 + 4 + 32 + 128 // version, pid, agent_name[32], binary_name[128]
const protocolVersion uint32 = 1

// pollTimeoutMs is the per-iteration poll timeout (spec.md §4.2 step 2).
const pollTimeoutMs = 500

// RunRequestHandler is invoked when a RUN_REQUEST frame is classified;
// the supervisor hands off the connection and payload and returns
// immediately to the poll loop (spec.md §4.2.1).
type RunRequestHandler func(ch *channel.Channel, payload []byte)

// Config configures a Supervisor.
type Config struct {
	SocketPath string
	Policy     Policy
	Audit      *audit.Log
	OnRunRequest RunRequestHandler
}

// Supervisor owns the listener socket and the client table.
type Supervisor struct {
	cfg        Config
	listenerFD int
}

// New binds and listens on cfg.SocketPath (mode 0666, backlog 16) per
// spec.md §4.2 initial state.
func New(cfg Config) (*Supervisor, error) {
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_SEQPACKET, 0)
	if err != nil {
		return nil, rerrors.Wrap(err, rerrors.KindIO, "socket")
	}

	_ = unix.Unlink(cfg.SocketPath)
	addr := &unix.SockaddrUnix{Name: cfg.SocketPath}
	if err := unix.Bind(fd, addr); err != nil {
		_ = unix.Close(fd)
		return nil, rerrors.WrapWithDetail(err, rerrors.KindIO, "bind", cfg.SocketPath)
	}
	if err := unix.Chmod(cfg.SocketPath, 0666); err != nil {
		_ = unix.Close(fd)
		return nil, rerrors.WrapWithDetail(err, rerrors.KindIO, "chmod-socket", cfg.SocketPath)
	}
	if err := unix.Listen(fd, 16); err != nil {
		_ = unix.Close(fd)
		return nil, rerrors.WrapWithDetail(err, rerrors.KindIO, "listen", cfg.SocketPath)
	}

	return &Supervisor{cfg: cfg, listenerFD: fd}, nil
}

// Run drives the poll loop until ctx is cancelled (SIGTERM/SIGINT via
// signal.NotifyContext in the caller), per spec.md §4.2.
func (s *Supervisor) Run(ctx context.Context) error {
	table := &clientTable{}
	defer s.shutdown(table)

	for {
		if ctx.Err() != nil {
			return nil
		}

		occupied := table.snapshot()
		fds := make([]unix.PollFd, 0, 1+len(occupied))
		fds = append(fds, unix.PollFd{Fd: int32(s.listenerFD), Events: unix.POLLIN})
		for _, oc := range occupied {
			fds = append(fds, unix.PollFd{Fd: int32(oc.client.NotifyFD), Events: unix.POLLIN})
		}

		n, err := unix.Poll(fds, pollTimeoutMs)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return rerrors.Wrap(err, rerrors.KindKernel, "poll")
		}
		if n == 0 {
			continue
		}

		if fds[0].Revents&unix.POLLIN != 0 {
			if err := s.acceptAndClassify(table); err != nil {
				return err
			}
		}

		for i, oc := range occupied {
			pf := fds[i+1]
			if pf.Revents == 0 {
				continue
			}
			if pf.Revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
				table.remove(oc.index)
				continue
			}
			if pf.Revents&unix.POLLIN != 0 {
				if err := s.serviceNotification(oc.client); err != nil {
					// An audit-log write failure is a correctness
					// guarantee violation (spec.md §7), fatal to the
					// whole daemon, not just this client's slot.
					if rerrors.IsKind(err, rerrors.KindIO) {
						return err
					}
					if !seccomp.IsIgnorableNotifyFDError(err) {
						logging.Warn("dropping client after kernel error", "error", err)
						table.remove(oc.index)
					}
				}
			}
		}
	}
}

func (s *Supervisor) shutdown(table *clientTable) {
	_ = unix.Close(s.listenerFD)
	_ = unix.Unlink(s.cfg.SocketPath)
	table.removeAll()
}

// acceptAndClassify implements spec.md §4.2.1.
func (s *Supervisor) acceptAndClassify(table *clientTable) error {
	connFD, _, err := unix.Accept(s.listenerFD)
	if err != nil {
		logging.Warn("accept failed", "error", err)
		return nil
	}
	ch := channel.New(connFD)

	msg, fd, err := ch.RecvWithFDs()
	if err != nil || msg == nil {
		_ = ch.Close()
		return nil
	}

	switch msg.Type {
	case channel.TypeRegister:
		return s.handleRegister(ch, msg.Payload, fd, table)
	case channel.TypeRunRequest:
		if s.cfg.OnRunRequest != nil {
			s.cfg.OnRunRequest(ch, msg.Payload)
		} else {
			_ = ch.Close()
		}
	default:
		if fd >= 0 {
			_ = unix.Close(fd)
		}
		_ = ch.Close()
	}
	return nil
}

func (s *Supervisor) handleRegister(ch *channel.Channel, payload []byte, fd int, table *clientTable) error {
	defer ch.Close()

	if len(payload) != registrationPayloadSize {
		if fd >= 0 {
			_ = unix.Close(fd)
		}
		logging.Warn("registration rejected", "error", rerrors.ErrBadRegistrationSize)
		return nil
	}

	version := le32(payload[0:4])
	pid := le32(payload[4:8])
	agent := cString(payload[8:40])
	binary := cString(payload[40:168])

	if version != protocolVersion {
		if fd >= 0 {
			_ = unix.Close(fd)
		}
		logging.Warn("registration rejected", "error", rerrors.ErrVersionMismatch, "version", version)
		return nil
	}

	notifyFD := -1
	if fd >= 0 {
		notifyFD = fd
	}

	client := &Client{NotifyFD: notifyFD, PID: pid, Agent: agent, Binary: binary}
	if _, ok := table.add(client); !ok {
		if notifyFD >= 0 {
			_ = unix.Close(notifyFD)
		}
		logging.Warn("registration rejected", "error", rerrors.ErrTableFull)
		return nil
	}

	return s.emitAudit(audit.Event{
		PID:    int32(pid),
		Agent:  agent,
		Binary: binary,
		Action: audit.ActionRegister,
	})
}

// serviceNotification implements spec.md §4.2.2.
func (s *Supervisor) serviceNotification(c *Client) error {
	notif, err := seccomp.RecvNotification(c.NotifyFD)
	if err != nil {
		if seccomp.IsIgnorableNotifyFDError(err) {
			return err
		}
		return rerrors.WrapWithDetail(err, rerrors.KindKernel, "notif-recv", rerrors.ErrNotifRecvFailed.Detail)
	}

	var path string
	if isExecSyscall(notif.Data.Nr) {
		path = ResolveExecPath(int(notif.PID), notif.Data.Args[0])
	} else {
		path = SyscallPath(notif.Data.Nr)
	}

	allow := s.evaluate(path)

	action := audit.ActionAllow
	if !allow {
		action = audit.ActionDeny
	}
	if err := s.emitAudit(audit.Event{
		PID:    int32(notif.PID),
		Agent:  c.Agent,
		Binary: c.Binary,
		Path:   path,
		Action: action,
	}); err != nil {
		return err
	}

	var resp *seccomp.SeccompNotifResp
	if allow {
		resp = seccomp.AllowResponse(notif.ID)
	} else {
		resp = seccomp.DenyResponse(notif.ID)
	}

	if err := seccomp.SendResponse(c.NotifyFD, resp); err != nil {
		if seccomp.IsIgnorableSendError(err) {
			return nil
		}
		return rerrors.WrapWithDetail(err, rerrors.KindKernel, "notif-send", rerrors.ErrNotifSendFailed.Detail)
	}
	return nil
}

func (s *Supervisor) evaluate(path string) bool {
	if s.cfg.Policy != PolicyEnforce {
		return true
	}
	for _, prefix := range EnforcedPrefixes {
		if strings.HasPrefix(path, prefix) {
			return false
		}
	}
	return true
}

// emitAudit writes ev to the audit log. A write failure is a correctness
// guarantee violation (spec.md §7: "I/O on the audit log is fatal to the
// daemon") and is returned, not just logged, so the poll loop can abort.
func (s *Supervisor) emitAudit(ev audit.Event) error {
	if s.cfg.Audit == nil {
		return nil
	}
	return s.cfg.Audit.Write(ev)
}

func isExecSyscall(nr int32) bool {
	return nr == execveNR || nr == execveatNR
}

func closeFD(fd int) error {
	return unix.Close(fd)
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func cString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
