package seccomp

import (
	"testing"
	"unsafe"

	"golang.org/x/sys/unix"
)

func TestNotifRecvIoctl_MatchesKnownValue(t *testing.T) {
	// SECCOMP_IOCTL_NOTIF_RECV is 0xC0502100 on 64-bit Linux: direction
	// READ|WRITE (3), size 0x50 (80, sizeof(SeccompNotif)), type '!' (0x21),
	// nr 0.
	if NotifRecvIoctl != 0xC0502100 {
		t.Errorf("NotifRecvIoctl = %#x, want 0xC0502100", NotifRecvIoctl)
	}
}

func TestNotifSendIoctl_MatchesKnownValue(t *testing.T) {
	if NotifSendIoctl != 0xC0182101 {
		t.Errorf("NotifSendIoctl = %#x, want 0xC0182101", NotifSendIoctl)
	}
}

func TestSeccompNotif_Size(t *testing.T) {
	if unsafe.Sizeof(SeccompNotif{}) != 80 {
		t.Errorf("sizeof(SeccompNotif) = %d, want 80", unsafe.Sizeof(SeccompNotif{}))
	}
}

func TestSeccompNotifResp_Size(t *testing.T) {
	if unsafe.Sizeof(SeccompNotifResp{}) != 24 {
		t.Errorf("sizeof(SeccompNotifResp) = %d, want 24", unsafe.Sizeof(SeccompNotifResp{}))
	}
}

func TestAllowResponse(t *testing.T) {
	resp := AllowResponse(42)
	if resp.ID != 42 || resp.Val != 0 || resp.Error != 0 || resp.Flags != SeccompUserNotifFlagContinue {
		t.Errorf("AllowResponse(42) = %+v", resp)
	}
}

func TestDenyResponse(t *testing.T) {
	resp := DenyResponse(7)
	if resp.ID != 7 || resp.Val != -int64(unix.EPERM) || resp.Error != -int32(unix.EPERM) {
		t.Errorf("DenyResponse(7) = %+v", resp)
	}
}

func TestIsIgnorableSendError(t *testing.T) {
	if !IsIgnorableSendError(unix.ENOENT) {
		t.Error("ENOENT should be ignorable")
	}
	if !IsIgnorableSendError(unix.ESRCH) {
		t.Error("ESRCH should be ignorable")
	}
	if IsIgnorableSendError(unix.EBADF) {
		t.Error("EBADF should not be ignorable")
	}
}

func TestIsIgnorableNotifyFDError(t *testing.T) {
	if !IsIgnorableNotifyFDError(unix.EINTR) {
		t.Error("EINTR should be ignorable")
	}
	if !IsIgnorableNotifyFDError(unix.EAGAIN) {
		t.Error("EAGAIN should be ignorable")
	}
	if IsIgnorableNotifyFDError(unix.EBADF) {
		t.Error("EBADF should not be ignorable")
	}
}
