// Launch implements the sandbox launcher's 9-step security-critical
// sequence from spec.md §4.4. Ordering is preserved exactly as specified;
// do not reorder steps without re-reading the rationale paragraph there.
package sandbox

import (
	"os"
	"os/exec"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"

	rerrors "github.com/novotnyllc/ContainAI/errors"
	"github.com/novotnyllc/ContainAI/helper"
	"github.com/novotnyllc/ContainAI/linux"
	"github.com/novotnyllc/ContainAI/logging"
	"github.com/novotnyllc/ContainAI/runnerenv"
)

// Config is the launcher's parsed CLI + env configuration (spec.md §4.4
// step 1).
type Config struct {
	User             string
	Cwd              string
	HidePaths        []string
	AppArmorProfile  string
	AAExecPath       string
	WorkspaceDir     string
	Argv             []string
	RunnerEnvJSON    string // raw RUNNER_ENV_JSON value, may be empty

	// RegisterSocketPath, when non-empty, makes the launcher itself
	// register as a supervised process per spec.md §4.5 before it execs
	// into argv, rather than relying solely on the daemon's own
	// seccomp-notify supervision of the eventual target binary.
	RegisterSocketPath string
	AgentName          string
	BinaryName         string
}

const prSetNoNewPrivs = 38

// Launch runs all 9 steps and execs into argv. On success this function
// never returns (the process image is replaced); on failure it returns a
// KindSandbox *RunnerError describing which step aborted.
func Launch(cfg Config) error {
	// Step 2: make mount namespace private.
	if err := unix.Mount("", "/", "", unix.MS_REC|unix.MS_PRIVATE, ""); err != nil {
		return rerrors.Wrap(err, rerrors.KindSandbox, "make-mount-private")
	}

	// Step 3: mask hide-paths.
	if err := MaskPaths(cfg.HidePaths); err != nil {
		return rerrors.Wrap(err, rerrors.KindSandbox, "mask-hide-paths")
	}

	// Step 4: drop privileges.
	user, err := ResolveUser(cfg.User)
	if err != nil {
		return rerrors.WrapWithSubject(err, rerrors.KindSandbox, "resolve-user", cfg.User)
	}
	// initgroups(3) equivalent: resolve cfg.User's supplementary groups
	// from /etc/group rather than simply dropping to the primary gid, per
	// spec.md §4.4 step 4 / agent_task_sandbox.rs's initgroups call.
	groups, err := ResolveSupplementaryGroups(cfg.User, user.GID)
	if err != nil {
		return rerrors.WrapWithSubject(err, rerrors.KindSandbox, "resolve-supplementary-groups", cfg.User)
	}
	if err := unix.Setgroups(groups); err != nil {
		return rerrors.Wrap(err, rerrors.KindSandbox, "setgroups")
	}
	if err := unix.Setresgid(user.GID, user.GID, user.GID); err != nil {
		return rerrors.Wrap(err, rerrors.KindSandbox, "setresgid")
	}
	if err := unix.Setresuid(user.UID, user.UID, user.UID); err != nil {
		return rerrors.Wrap(err, rerrors.KindSandbox, "setresuid")
	}

	// Step 5: no-new-privs.
	if _, _, errno := unix.Syscall(unix.SYS_PRCTL, prSetNoNewPrivs, 1, 0); errno != 0 {
		return rerrors.Wrap(errno, rerrors.KindSandbox, "set-no-new-privs")
	}

	// Step 6: verify capabilities dropped.
	if err := linux.VerifyCapabilitiesDropped(); err != nil {
		return rerrors.Wrap(err, rerrors.KindSandbox, "verify-capabilities-dropped")
	}

	// Step 6.5 (spec.md §4.5, optional): register with the daemon, after
	// the privilege drop and before exec. A registration failure is logged, not
	// fatal — the launcher still execs into argv unsupervised.
	if cfg.RegisterSocketPath != "" {
		if err := helper.Register(cfg.RegisterSocketPath, cfg.AgentName, cfg.BinaryName); err != nil {
			logging.Warn("helper registration failed, proceeding unsupervised",
				"socket", cfg.RegisterSocketPath, "error", err)
		}
	}

	// Step 7: rebuild environment.
	var env map[string]string
	if cfg.RunnerEnvJSON != "" {
		env, err = runnerenv.Decode(cfg.RunnerEnvJSON)
		if err != nil {
			return rerrors.Wrap(err, rerrors.KindSandbox, "decode-runner-env")
		}
	} else {
		env = runnerenv.Base(cfg.User, user.Home)
	}
	envSlice := runnerenv.Slice(env)

	// Step 8: change directory with workspace-root fallback.
	cwd := cfg.Cwd
	if cwd == "" {
		cwd = cfg.WorkspaceDir
	}
	if err := os.Chdir(cwd); err != nil {
		logging.Warn("chdir to requested cwd failed, falling back to workspace root",
			"cwd", cwd, "error", err)
		if err := os.Chdir(cfg.WorkspaceDir); err != nil {
			return rerrors.WrapWithDetail(err, rerrors.KindSandbox, "chdir", cfg.WorkspaceDir)
		}
	}

	// Step 9: exec.
	argv := cfg.Argv
	if cfg.AppArmorProfile != "" && cfg.AppArmorProfile != "none" {
		if _, statErr := os.Stat(cfg.AAExecPath); statErr == nil {
			argv = append([]string{cfg.AAExecPath, "-p", cfg.AppArmorProfile, "--"}, argv...)
		} else {
			logging.Warn("aa-exec not found, running without AppArmor confinement",
				"path", cfg.AAExecPath, "profile", cfg.AppArmorProfile)
		}
	}

	binary, err := exec.LookPath(argv[0])
	if err != nil {
		return rerrors.WrapWithSubject(err, rerrors.KindSandbox, "lookup-target-binary", argv[0])
	}

	execErr := syscall.Exec(binary, argv, envSlice)
	return rerrors.Wrap(execErr, rerrors.KindSandbox, "exec-target")
}

// ParseArgs splits a flag+argv command line at the literal "--" delimiter,
// per spec.md §4.4 step 1 / SPEC_FULL.md §B (cobra does not model
// "everything after -- is opaque argv", so the launcher keeps the
// teacher's hand-rolled split for this one binary).
func ParseArgs(args []string) (flags []string, argv []string) {
	for i, a := range args {
		if a == "--" {
			return args[:i], args[i+1:]
		}
	}
	return args, nil
}

// FormatArgv renders argv for logging.
func FormatArgv(argv []string) string {
	return strings.Join(argv, " ")
}
