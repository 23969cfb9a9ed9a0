// Package sandbox implements the launcher program described in spec.md
// §4.4: a narrow child process that installs mount/privilege restrictions
// then execs the target. Mount handling here is adapted from
// kornnellio-runc-Go/linux/rootfs.go's maskPath, narrowed to the single
// opaque-tmpfs-overlay behaviour spec.md calls for (the teacher's version
// also supported readonly-bind masking, which this daemon does not need).
package sandbox

import (
	"fmt"
	"os"
	"strings"
	"syscall"

	rerrors "github.com/novotnyllc/ContainAI/errors"
)

// DefaultHidePaths is the fallback list when CONTAINAI_RUNNER_HIDE_PATHS
// is unset (spec.md §6).
var DefaultHidePaths = []string{
	"/run/agent-secrets",
	"/run/agent-data",
	"/run/agent-data-export",
}

// ParseHidePaths splits a ":"-separated path list, trims whitespace from
// each entry, drops empty entries, and deduplicates while preserving
// first-seen order.
func ParseHidePaths(s string) []string {
	if s == "" {
		return nil
	}
	return DedupPaths(strings.Split(s, ":"))
}

// DedupPaths trims whitespace from each entry, drops empty entries, and
// deduplicates while preserving first-seen order.
func DedupPaths(paths []string) []string {
	seen := make(map[string]bool, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

// MaskPath implements spec.md §4.4 step 3: ensure the directory exists,
// best-effort detach any existing mount, then overlay an opaque empty
// tmpfs and chmod it to 000. ENOENT and EINVAL from the detach sub-step
// are ignored; any other failure is returned. MaskPaths stops at the
// first such error, and Launch aborts on it.
func MaskPath(path string) error {
	if err := os.MkdirAll(path, 0755); err != nil {
		return rerrors.WrapWithDetail(err, rerrors.KindSandbox, "mkdir-hide-path", path)
	}

	if err := syscall.Unmount(path, syscall.MNT_DETACH); err != nil {
		if err != syscall.ENOENT && err != syscall.EINVAL {
			return rerrors.WrapWithDetail(err, rerrors.KindSandbox, "detach-hide-path", path)
		}
	}

	if err := syscall.Mount("tmpfs", path, "tmpfs",
		syscall.MS_NODEV|syscall.MS_NOSUID|syscall.MS_NOEXEC,
		"size=1,mode=000"); err != nil {
		return rerrors.WrapWithDetail(err, rerrors.KindSandbox, "mount-hide-path", path)
	}

	if err := os.Chmod(path, 0); err != nil {
		return rerrors.WrapWithDetail(err, rerrors.KindSandbox, "chmod-hide-path", path)
	}

	return nil
}

// MaskPaths masks every path in order, stopping and returning the first
// error. spec.md calls masking "best-effort" at the umount sub-step only;
// a failure to establish the tmpfs overlay itself is still a sandbox-setup
// failure serious enough to abort the launcher (an unmasked secrets
// directory is a security hole, not a cosmetic one).
func MaskPaths(paths []string) error {
	for _, p := range paths {
		if err := MaskPath(p); err != nil {
			return fmt.Errorf("mask %s: %w", p, err)
		}
	}
	return nil
}
