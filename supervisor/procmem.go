package supervisor

import (
	"bytes"
	"strconv"

	"golang.org/x/sys/unix"
)

// PathMax mirrors Linux's PATH_MAX; the longest argv[0] we will resolve.
const PathMax = 4096

// readChunk is the per-process_vm_readv chunk size, grounded on
// original_source/agent_task_runnerd.rs::read_remote, which reads in
// 256-byte steps rather than one PATH_MAX-sized call so a short, NUL-early
// argv[0] (the overwhelmingly common case) costs one syscall instead of
// reading (and likely partially faulting on) a full page of the remote
// process's memory.
const readChunk = 256

// UnknownPath is substituted when the traced process's argv[0] cannot be
// read at all (spec.md §4.2.2 step 2 / §9 open question).
const UnknownPath = "<unknown>"

// ResolveExecPath reads the NUL-terminated string at addr in pid's address
// space, up to PathMax bytes. It implements the chunked, partial-success
// semantics from SPEC_FULL.md §D.2: a read error on the very first chunk
// yields UnknownPath; a read error on a later chunk truncates to whatever
// was read so far instead of discarding it.
func ResolveExecPath(pid int, addr uint64) string {
	if addr == 0 {
		return UnknownPath
	}

	var buf bytes.Buffer
	remoteOffset := addr

	for buf.Len() < PathMax {
		want := readChunk
		if remaining := PathMax - buf.Len(); want > remaining {
			want = remaining
		}
		chunk := make([]byte, want)

		local := []unix.Iovec{{Base: &chunk[0], Len: uint64(want)}}
		remote := []unix.RemoteIovec{{Base: uintptr(remoteOffset), Len: want}}

		n, err := unix.ProcessVMReadv(pid, local, remote, 0)
		if err != nil {
			if buf.Len() == 0 {
				return UnknownPath
			}
			return buf.String()
		}
		if n == 0 {
			if buf.Len() == 0 {
				return UnknownPath
			}
			return buf.String()
		}

		if nulIdx := bytes.IndexByte(chunk[:n], 0); nulIdx >= 0 {
			buf.Write(chunk[:nulIdx])
			return buf.String()
		}

		buf.Write(chunk[:n])
		remoteOffset += uint64(n)
	}

	return buf.String()
}

// SyscallPath returns the audited-path fallback for any syscall other
// than execve/execveat (spec.md §4.2.2 step 2).
func SyscallPath(nr int32) string {
	return "syscall-" + strconv.FormatInt(int64(nr), 10)
}
