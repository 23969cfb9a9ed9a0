package supervisor

import "testing"

func TestResolveExecPath_ZeroAddrIsUnknown(t *testing.T) {
	if got := ResolveExecPath(1, 0); got != UnknownPath {
		t.Errorf("ResolveExecPath(pid,0) = %q, want %q", got, UnknownPath)
	}
}

func TestResolveExecPath_InvalidPIDIsUnknown(t *testing.T) {
	// PID 0 never refers to a real process from userspace, so the very
	// first process_vm_readv chunk fails, exercising the "error on the
	// first chunk" branch of SPEC_FULL.md §D.2.
	if got := ResolveExecPath(0, 0x1000); got != UnknownPath {
		t.Errorf("ResolveExecPath(0, addr) = %q, want %q", got, UnknownPath)
	}
}

func TestSyscallPath_FormatsSyscallNumber(t *testing.T) {
	if got := SyscallPath(257); got != "syscall-257" {
		t.Errorf("SyscallPath(257) = %q", got)
	}
	if got := SyscallPath(-1); got != "syscall--1" {
		t.Errorf("SyscallPath(-1) = %q", got)
	}
}
