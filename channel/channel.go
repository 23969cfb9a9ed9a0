// Package channel implements the framed control protocol described in
// spec.md §3/§4.1: a fixed 12-byte header followed by a payload, sent as
// one atomic SOCK_SEQPACKET datagram, with optional ancillary file
// descriptor passing via SCM_RIGHTS.
//
// This is the only package in the repository that is permitted to touch
// the wire directly; the supervisor, run-session mux, and helper
// registration code all go through a *Channel.
package channel

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/sys/unix"

	rerrors "github.com/novotnyllc/ContainAI/errors"
)

// Message types, per spec.md §3. Directions: 1-4 client->daemon,
// 100-104 daemon->client.
const (
	TypeRegister       uint32 = 1
	TypeRunRequest     uint32 = 2
	TypeRunStdin       uint32 = 3
	TypeRunStdinClose  uint32 = 4
	TypeRunStdout      uint32 = 100
	TypeRunStderr      uint32 = 101
	TypeRunExit        uint32 = 102
	TypeRunError       uint32 = 103
	TypeRunStarted     uint32 = 104
)

const (
	// HeaderSize is the size in bytes of the fixed frame header.
	HeaderSize = 12
	// MaxMessageSize is the largest payload this channel will ever send
	// or accept, per spec.md §3.
	MaxMessageSize = 128 * 1024
)

// header mirrors the wire layout {type: u32, reserved: u32, length: u32},
// all little-endian, matching original_source/channel.rs's use of native
// byte order on the x86_64/arm64 targets this daemon runs on.
type header struct {
	msgType  uint32
	reserved uint32
	length   uint32
}

func (h header) marshal() []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.msgType)
	binary.LittleEndian.PutUint32(buf[4:8], h.reserved)
	binary.LittleEndian.PutUint32(buf[8:12], h.length)
	return buf
}

func unmarshalHeader(buf []byte) header {
	return header{
		msgType:  binary.LittleEndian.Uint32(buf[0:4]),
		reserved: binary.LittleEndian.Uint32(buf[4:8]),
		length:   binary.LittleEndian.Uint32(buf[8:12]),
	}
}

// Channel wraps a connected SOCK_SEQPACKET file descriptor and enforces
// frame atomicity: every Send is exactly one datagram, every Recv reads
// exactly one datagram.
type Channel struct {
	fd int
}

// New wraps an existing connected seqpacket file descriptor. The Channel
// takes ownership of fd; the caller must call Close on it exactly once.
// Each clone from TryClone owns its own descriptor and is closed
// separately.
func New(fd int) *Channel {
	return &Channel{fd: fd}
}

// Pair creates a connected pair of channels via socketpair(AF_UNIX,
// SOCK_SEQPACKET), useful for tests and for wiring a helper's in-process
// registration without a filesystem path.
func Pair() (a, b *Channel, err error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_SEQPACKET, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("socketpair: %w", err)
	}
	return New(fds[0]), New(fds[1]), nil
}

// Fd returns the underlying file descriptor. Used by the supervisor to
// build its poll set.
func (c *Channel) Fd() int {
	return c.fd
}

// TryClone duplicates the underlying descriptor so a separate concurrent
// sender may exist; the clone retains full framing semantics and is an
// independent owner (spec.md §4.1, §9 "Ownership of file descriptors").
func (c *Channel) TryClone() (*Channel, error) {
	newFd, err := unix.Dup(c.fd)
	if err != nil {
		return nil, fmt.Errorf("dup: %w", err)
	}
	return New(newFd), nil
}

// Close closes the underlying file descriptor.
func (c *Channel) Close() error {
	if c.fd < 0 {
		return nil
	}
	err := unix.Close(c.fd)
	c.fd = -1
	return err
}

// ShutdownRead half-closes the read direction, waking any receiver
// blocked in Recv/RecvWithFDs.
func (c *Channel) ShutdownRead() error {
	return unix.Shutdown(c.fd, unix.SHUT_RD)
}

// Send transmits one datagram: header followed by payload, scatter-gather
// in a single sendmsg call so the kernel sees one atomic write.
func (c *Channel) Send(msgType uint32, payload []byte) error {
	if len(payload) > MaxMessageSize {
		return rerrors.WrapWithDetail(rerrors.ErrOversizedFrame, rerrors.KindProtocol, "send",
			fmt.Sprintf("payload %d exceeds max %d", len(payload), MaxMessageSize))
	}

	h := header{msgType: msgType, length: uint32(len(payload))}
	iov := append(h.marshal(), payload...)

	return unix.Sendmsg(c.fd, iov, nil, nil, 0)
}

// SendJSON calls marshal to produce the payload and sends it as one frame
// with the given type. Callers in supervisor/runsession use this for
// RUN_STARTED/RUN_EXIT/RUN_ERROR and similar JSON-bodied messages.
func (c *Channel) SendJSON(msgType uint32, marshal func() ([]byte, error)) error {
	payload, err := marshal()
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return c.Send(msgType, payload)
}

// SendWithFD is identical to Send but attaches exactly one file
// descriptor via SCM_RIGHTS ancillary data. Used only for REGISTER,
// grounded on kornnellio-runc-Go/utils/console.go's SendConsoleToSocket.
func (c *Channel) SendWithFD(msgType uint32, payload []byte, fd int) error {
	if len(payload) > MaxMessageSize {
		return rerrors.WrapWithDetail(rerrors.ErrOversizedFrame, rerrors.KindProtocol, "send",
			fmt.Sprintf("payload %d exceeds max %d", len(payload), MaxMessageSize))
	}

	h := header{msgType: msgType, length: uint32(len(payload))}
	iov := append(h.marshal(), payload...)
	rights := unix.UnixRights(fd)

	return unix.Sendmsg(c.fd, iov, rights, nil, 0)
}

// Message is a received, fully-validated frame.
type Message struct {
	Type    uint32
	Payload []byte
}

// Recv reads one datagram. It returns (nil, nil) on a zero-length read
// (the peer closed its write side), matching original_source/channel.rs's
// Option<(Header, Vec<u8>)> semantics.
func (c *Channel) Recv() (*Message, error) {
	msg, _, err := c.recv(false)
	return msg, err
}

// RecvWithFDs is identical to Recv but also accepts at most one ancillary
// file descriptor; any additional FDs received in the control message are
// closed immediately (spec.md §4.1, "FD passing" invariant in §8).
func (c *Channel) RecvWithFDs() (*Message, int, error) {
	return c.recv(true)
}

func (c *Channel) recv(wantFD bool) (*Message, int, error) {
	buf := make([]byte, HeaderSize+MaxMessageSize)

	var oob []byte
	if wantFD {
		oob = make([]byte, unix.CmsgSpace(4))
	}

	n, oobn, recvFlags, _, err := unix.Recvmsg(c.fd, buf, oob, 0)
	if err != nil {
		return nil, -1, fmt.Errorf("recvmsg: %w", err)
	}
	if n == 0 {
		return nil, -1, nil
	}
	if recvFlags&unix.MSG_TRUNC != 0 {
		return nil, -1, rerrors.ErrFrameTruncated
	}
	if n < HeaderSize {
		return nil, -1, rerrors.ErrShortFrame
	}

	h := unmarshalHeader(buf[:HeaderSize])
	payload := buf[HeaderSize:n]
	if int(h.length) != len(payload) {
		return nil, -1, rerrors.WrapWithDetail(rerrors.ErrLengthMismatch, rerrors.KindProtocol, "recv",
			fmt.Sprintf("header length %d != observed payload %d", h.length, len(payload)))
	}

	fd := -1
	if wantFD && oobn > 0 {
		fd, err = firstRight(oob[:oobn])
		if err != nil {
			return nil, -1, fmt.Errorf("parse control message: %w", err)
		}
	}

	// Copy payload out of the shared recv buffer so the caller owns
	// independent storage.
	out := make([]byte, len(payload))
	copy(out, payload)

	return &Message{Type: h.msgType, Payload: out}, fd, nil
}

// firstRight extracts exactly one file descriptor from the control
// message, closing any extras per spec.md's FD-passing invariant.
func firstRight(oob []byte) (int, error) {
	cmsgs, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return -1, err
	}

	result := -1
	for _, cmsg := range cmsgs {
		fds, err := unix.ParseUnixRights(&cmsg)
		if err != nil {
			continue
		}
		for i, fd := range fds {
			if result == -1 && i == 0 {
				result = fd
				continue
			}
			unix.Close(fd)
		}
	}
	return result, nil
}
