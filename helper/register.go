// Package helper implements the helper-side registration protocol from
// spec.md §4.5: build a NOTIFY-on-execve seccomp filter, load it, and
// hand the resulting notify FD to the daemon via a REGISTER frame.
package helper

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/novotnyllc/ContainAI/channel"
	"github.com/novotnyllc/ContainAI/logging"
	"github.com/novotnyllc/ContainAI/seccomp"
)

const registrationProtocolVersion uint32 = 1

// Register implements spec.md §4.5 in full: build the filter, load it
// (falling back to unsupervised operation on repeated EBUSY), connect to
// socketPath, send exactly one REGISTER frame, then close the connection.
// It never reads a reply. A helper that cannot obtain a notify FD still
// registers without one.
func Register(socketPath, agentName, binaryName string) error {
	notifyFD := -1
	filter := seccomp.DefaultNotifyFilter()
	fd, ok, err := filter.Load()
	if err != nil {
		logging.Warn("seccomp filter load failed, proceeding unsupervised", "error", err)
	} else if !ok {
		logging.Warn("seccomp user-notification unavailable on this kernel, proceeding unsupervised")
	} else {
		notifyFD = fd
	}

	conn, err := dial(socketPath)
	if err != nil {
		if notifyFD >= 0 {
			_ = closeFD(notifyFD)
		}
		return err
	}
	defer conn.Close()

	payload := encodeRegistration(registrationProtocolVersion, uint32(os.Getpid()), agentName, binaryName)

	if notifyFD >= 0 {
		err = conn.SendWithFD(channel.TypeRegister, payload, notifyFD)
		_ = closeFD(notifyFD) // the kernel dup's it into the message; our copy is no longer needed
	} else {
		err = conn.Send(channel.TypeRegister, payload)
	}
	return err
}

// encodeRegistration builds the {version, pid, agent_name[32],
// binary_name[128]} payload from spec.md §3, NUL-padding and truncating
// strings that don't fit.
func encodeRegistration(version, pid uint32, agentName, binaryName string) []byte {
	buf := make([]byte, 4+4+32+128)
	putLE32(buf[0:4], version)
	putLE32(buf[4:8], pid)
	copyTruncated(buf[8:40], agentName)
	copyTruncated(buf[40:168], binaryName)
	return buf
}

// copyTruncated fills dst with s, NUL-padding if s is shorter and
// NUL-terminating if s is truncated to fit, per spec.md §3
// ("NUL-terminated if truncated").
func copyTruncated(dst []byte, s string) {
	max := len(dst)
	if len(s) >= max {
		max--
	}
	n := copy(dst, s[:min(len(s), max)])
	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}
}

func putLE32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

// dial connects to the daemon's control socket and wraps the resulting
// file descriptor in a *channel.Channel.
func dial(socketPath string) (*channel.Channel, error) {
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_SEQPACKET, 0)
	if err != nil {
		return nil, fmt.Errorf("socket: %w", err)
	}
	if err := unix.Connect(fd, &unix.SockaddrUnix{Name: socketPath}); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("connect %s: %w", socketPath, err)
	}
	return channel.New(fd), nil
}

func closeFD(fd int) error {
	return unix.Close(fd)
}
