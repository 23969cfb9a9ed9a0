package supervisor

import "runtime"

// execveNR/execveatNR are the current architecture's syscall numbers for
// execve/execveat, used to recognize which notifications need argv[0]
// resolution (spec.md §4.2.2 step 2). Mirrors the syscallNumbersX86_64/
// syscallNumbersARM64 tables in seccomp/filter.go, which build the BPF
// filter side of the same distinction.
var execveNR, execveatNR int32

func init() {
	switch runtime.GOARCH {
	case "arm64":
		execveNR, execveatNR = 221, 281
	default:
		execveNR, execveatNR = 59, 322
	}
}
