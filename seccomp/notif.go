// Package seccomp provides thin wrappers around the Linux seccomp
// user-notification ioctls (spec.md §4.2 component 2) and a filter
// builder for installing a NOTIFY-on-execve filter (spec.md §4.5).
//
// Struct layouts mirror the kernel uapi (linux/seccomp.h) exactly so the
// raw ioctl calls below can be issued without cgo; grounded on
// original_source/src/agent-task-runner/src/seccomp.rs, which wraps the
// same ioctls from Rust via nix's request_code_readwrite! macro.
package seccomp

import (
	"errors"
	"unsafe"

	"golang.org/x/sys/unix"

	rerrors "github.com/novotnyllc/ContainAI/errors"
)

// SeccompData mirrors struct seccomp_data.
type SeccompData struct {
	Nr                 int32
	Arch               uint32
	InstructionPointer uint64
	Args               [6]uint64
}

// SeccompNotif mirrors struct seccomp_notif.
type SeccompNotif struct {
	ID    uint64
	PID   uint32
	Flags uint32
	Data  SeccompData
}

// SeccompNotifResp mirrors struct seccomp_notif_resp.
type SeccompNotifResp struct {
	ID    uint64
	Val   int64
	Error int32
	Flags uint32
}

// SECCOMP_USER_NOTIF_FLAG_CONTINUE tells the kernel to resume the syscall
// as if no filter were installed (spec.md §4.2.2 step 5, allow path).
const SeccompUserNotifFlagContinue uint32 = 1

// Filter-loading flags (spec.md §4.5 step 2).
const (
	SeccompFilterFlagTSYNC       uintptr = 1 << 0
	SeccompFilterFlagNewListener uintptr = 1 << 3
)

// Linux ioctl encoding, reproduced so NOTIF_RECV/NOTIF_SEND can be
// computed from the actual struct sizes above instead of hand-copied
// magic numbers.
const (
	iocNRBITS   = 8
	iocTYPEBITS = 8
	iocSIZEBITS = 14

	iocNRSHIFT   = 0
	iocTYPESHIFT = iocNRSHIFT + iocNRBITS
	iocSIZESHIFT = iocTYPESHIFT + iocTYPEBITS
	iocDIRSHIFT  = iocSIZESHIFT + iocSIZEBITS

	iocRead  = 2
	iocWrite = 1
)

func ioc(dir, t, nr, size uintptr) uintptr {
	return (dir << iocDIRSHIFT) | (t << iocTYPESHIFT) | (nr << iocNRSHIFT) | (size << iocSIZESHIFT)
}

func iowr(t, nr byte, size uintptr) uintptr {
	return ioc(iocRead|iocWrite, uintptr(t), uintptr(nr), size)
}

// seccompIOCMagic is SECCOMP_IOC_MAGIC, the character '!'.
const seccompIOCMagic = '!'

var (
	// NotifRecvIoctl is SECCOMP_IOCTL_NOTIF_RECV.
	NotifRecvIoctl = iowr(seccompIOCMagic, 0, unsafe.Sizeof(SeccompNotif{}))
	// NotifSendIoctl is SECCOMP_IOCTL_NOTIF_SEND.
	NotifSendIoctl = iowr(seccompIOCMagic, 1, unsafe.Sizeof(SeccompNotifResp{}))
)

// RecvNotification blocks on NOTIF_RECV, populating a SeccompNotif
// describing the syscall the traced process is attempting. Calling this
// when the notify fd is not POLLIN-ready would block the whole supervisor
// thread; spec.md §4.2.2 step 1 only ever calls it after poll() indicated
// readiness.
func RecvNotification(notifyFd int) (*SeccompNotif, error) {
	var notif SeccompNotif
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(notifyFd), NotifRecvIoctl, uintptr(unsafe.Pointer(&notif)))
	if errno != 0 {
		// Returned bare, not wrapped: IsIgnorableNotifyFDError and the
		// supervisor's EINTR-restart check compare directly against this
		// value via errors.Is.
		return nil, errno
	}
	return &notif, nil
}

// SendResponse issues NOTIF_SEND for the given response. ENOENT/ESRCH are
// returned to the caller unwrapped so the supervisor can apply the
// "swallow if the process is already gone" rule from spec.md §4.2.2 step 6.
func SendResponse(notifyFd int, resp *SeccompNotifResp) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(notifyFd), NotifSendIoctl, uintptr(unsafe.Pointer(resp)))
	if errno != 0 {
		return errno
	}
	return nil
}

// IsIgnorableSendError reports whether an error returned by SendResponse
// should be swallowed per spec.md §4.2.2 step 6 / §7 ("Kernel" errors).
func IsIgnorableSendError(err error) bool {
	return errors.Is(err, unix.ENOENT) || errors.Is(err, unix.ESRCH)
}

// IsIgnorableNotifyFDError reports whether an errno observed while
// servicing a client's notify fd should be ignored rather than dropping
// the slot, per spec.md §7.
func IsIgnorableNotifyFDError(err error) bool {
	return errors.Is(err, unix.EINTR) || errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EAGAIN)
}

// AllowResponse builds the NOTIF_SEND payload for an allow verdict: the
// kernel resumes the syscall as if unfiltered.
func AllowResponse(id uint64) *SeccompNotifResp {
	return &SeccompNotifResp{ID: id, Val: 0, Error: 0, Flags: SeccompUserNotifFlagContinue}
}

// DenyResponse builds the NOTIF_SEND payload for a deny verdict: val set
// to -EPERM per spec.md §4.2.2 step 5.
func DenyResponse(id uint64) *SeccompNotifResp {
	return &SeccompNotifResp{ID: id, Val: -int64(unix.EPERM), Error: -int32(unix.EPERM)}
}

// WrapKernelError classifies a raw errno against the Kernel error kind
// from spec.md §7, used by callers that need a *RunnerError instead of a
// bare errno.
func WrapKernelError(op string, err error) error {
	return rerrors.Wrap(err, rerrors.KindKernel, op)
}
