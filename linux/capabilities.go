// Package linux provides small Linux-specific primitives shared by the
// sandbox launcher: capability verification here, seccomp-notify wire
// structs live in the seccomp package.
package linux

import (
	"fmt"
	"syscall"
	"unsafe"
)

// Capability numbers needed to name what describeCapMask reports; kept
// from kornnellio-runc-Go/linux/capabilities.go's full table since the
// launcher's capability-retained error message (spec.md §4.4 step 6)
// benefits from naming the offending capability rather than printing a
// bare bitmask.
const (
	CAP_CHOWN              = 0
	CAP_DAC_OVERRIDE       = 1
	CAP_DAC_READ_SEARCH    = 2
	CAP_FOWNER             = 3
	CAP_FSETID             = 4
	CAP_KILL               = 5
	CAP_SETGID             = 6
	CAP_SETUID             = 7
	CAP_SETPCAP            = 8
	CAP_LINUX_IMMUTABLE    = 9
	CAP_NET_BIND_SERVICE   = 10
	CAP_NET_BROADCAST      = 11
	CAP_NET_ADMIN          = 12
	CAP_NET_RAW            = 13
	CAP_IPC_LOCK           = 14
	CAP_IPC_OWNER          = 15
	CAP_SYS_MODULE         = 16
	CAP_SYS_RAWIO          = 17
	CAP_SYS_CHROOT         = 18
	CAP_SYS_PTRACE         = 19
	CAP_SYS_PACCT          = 20
	CAP_SYS_ADMIN          = 21
	CAP_SYS_BOOT           = 22
	CAP_SYS_NICE           = 23
	CAP_SYS_RESOURCE       = 24
	CAP_SYS_TIME           = 25
	CAP_SYS_TTY_CONFIG     = 26
	CAP_MKNOD              = 27
	CAP_LEASE              = 28
	CAP_AUDIT_WRITE        = 29
	CAP_AUDIT_CONTROL      = 30
	CAP_SETFCAP            = 31
	CAP_MAC_OVERRIDE       = 32
	CAP_MAC_ADMIN          = 33
	CAP_SYSLOG             = 34
	CAP_WAKE_ALARM         = 35
	CAP_BLOCK_SUSPEND      = 36
	CAP_AUDIT_READ         = 37
	CAP_PERFMON            = 38
	CAP_BPF                = 39
	CAP_CHECKPOINT_RESTORE = 40
)

var capabilityNames = map[int]string{
	CAP_CHOWN: "CAP_CHOWN", CAP_DAC_OVERRIDE: "CAP_DAC_OVERRIDE",
	CAP_DAC_READ_SEARCH: "CAP_DAC_READ_SEARCH", CAP_FOWNER: "CAP_FOWNER",
	CAP_FSETID: "CAP_FSETID", CAP_KILL: "CAP_KILL",
	CAP_SETGID: "CAP_SETGID", CAP_SETUID: "CAP_SETUID",
	CAP_SETPCAP: "CAP_SETPCAP", CAP_LINUX_IMMUTABLE: "CAP_LINUX_IMMUTABLE",
	CAP_NET_BIND_SERVICE: "CAP_NET_BIND_SERVICE", CAP_NET_BROADCAST: "CAP_NET_BROADCAST",
	CAP_NET_ADMIN: "CAP_NET_ADMIN", CAP_NET_RAW: "CAP_NET_RAW",
	CAP_IPC_LOCK: "CAP_IPC_LOCK", CAP_IPC_OWNER: "CAP_IPC_OWNER",
	CAP_SYS_MODULE: "CAP_SYS_MODULE", CAP_SYS_RAWIO: "CAP_SYS_RAWIO",
	CAP_SYS_CHROOT: "CAP_SYS_CHROOT", CAP_SYS_PTRACE: "CAP_SYS_PTRACE",
	CAP_SYS_PACCT: "CAP_SYS_PACCT", CAP_SYS_ADMIN: "CAP_SYS_ADMIN",
	CAP_SYS_BOOT: "CAP_SYS_BOOT", CAP_SYS_NICE: "CAP_SYS_NICE",
	CAP_SYS_RESOURCE: "CAP_SYS_RESOURCE", CAP_SYS_TIME: "CAP_SYS_TIME",
	CAP_SYS_TTY_CONFIG: "CAP_SYS_TTY_CONFIG", CAP_MKNOD: "CAP_MKNOD",
	CAP_LEASE: "CAP_LEASE", CAP_AUDIT_WRITE: "CAP_AUDIT_WRITE",
	CAP_AUDIT_CONTROL: "CAP_AUDIT_CONTROL", CAP_SETFCAP: "CAP_SETFCAP",
	CAP_MAC_OVERRIDE: "CAP_MAC_OVERRIDE", CAP_MAC_ADMIN: "CAP_MAC_ADMIN",
	CAP_SYSLOG: "CAP_SYSLOG", CAP_WAKE_ALARM: "CAP_WAKE_ALARM",
	CAP_BLOCK_SUSPEND: "CAP_BLOCK_SUSPEND", CAP_AUDIT_READ: "CAP_AUDIT_READ",
	CAP_PERFMON: "CAP_PERFMON", CAP_BPF: "CAP_BPF",
	CAP_CHECKPOINT_RESTORE: "CAP_CHECKPOINT_RESTORE",
}

// LINUX_CAPABILITY_VERSION_3 is the capget/capset ABI version this
// package speaks.
const LINUX_CAPABILITY_VERSION_3 = 0x20080522

type capHeader struct {
	Version uint32
	Pid     int32
}

type capData struct {
	Effective   uint32
	Permitted   uint32
	Inheritable uint32
}

// GetCapabilities returns the calling process's current effective,
// permitted, and inheritable capability sets as 64-bit masks.
func GetCapabilities() (effective, permitted, inheritable uint64, err error) {
	header := capHeader{Version: LINUX_CAPABILITY_VERSION_3, Pid: 0}
	data := [2]capData{}

	_, _, errno := syscall.Syscall(syscall.SYS_CAPGET,
		uintptr(unsafe.Pointer(&header)),
		uintptr(unsafe.Pointer(&data[0])),
		0)
	if errno != 0 {
		return 0, 0, 0, fmt.Errorf("capget: %v", errno)
	}

	effective = uint64(data[0].Effective) | (uint64(data[1].Effective) << 32)
	permitted = uint64(data[0].Permitted) | (uint64(data[1].Permitted) << 32)
	inheritable = uint64(data[0].Inheritable) | (uint64(data[1].Inheritable) << 32)

	return effective, permitted, inheritable, nil
}

// VerifyCapabilitiesDropped implements spec.md §4.4 step 6: it queries the
// effective capability set and returns a non-nil, descriptive error if the
// set is non-empty, naming CAP_SYS_ADMIN explicitly when present since
// that is the capability whose retention would defeat the sandbox.
func VerifyCapabilitiesDropped() error {
	effective, _, _, err := GetCapabilities()
	if err != nil {
		return fmt.Errorf("query capabilities: %w", err)
	}
	if effective == 0 {
		return nil
	}

	if effective&(1<<CAP_SYS_ADMIN) != 0 {
		return fmt.Errorf("effective capability set retains CAP_SYS_ADMIN")
	}
	return fmt.Errorf("effective capability set not empty: %s", describeCapMask(effective))
}

// describeCapMask renders a capability bitmask as a comma-separated list
// of names, for the error path above.
func describeCapMask(mask uint64) string {
	names := make([]string, 0, 4)
	for i := 0; i <= CAP_CHECKPOINT_RESTORE; i++ {
		if mask&(1<<uint(i)) != 0 {
			if name, ok := capabilityNames[i]; ok {
				names = append(names, name)
			} else {
				names = append(names, fmt.Sprintf("CAP_%d", i))
			}
		}
	}
	out := ""
	for i, n := range names {
		if i > 0 {
			out += ","
		}
		out += n
	}
	return out
}
