// Command agent-task-sandbox is the launcher described in spec.md §4.4: a
// narrow child program that installs mount/privilege restrictions then
// execs the target argv. It is invoked by agent-task-runnerd via
// `unshare`, never directly by an interactive user.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/novotnyllc/ContainAI/sandbox"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	flagArgs, argv := sandbox.ParseArgs(os.Args[1:])

	var (
		user    string
		cwd     string
		hide    string
		profile string
	)

	// cobra does not model "everything after -- is opaque argv" (it treats
	// -- as its own arg-separator with different semantics), so the
	// delimiter split happens above via sandbox.ParseArgs; cobra here only
	// parses the flags preceding it, giving us --help/usage for free.
	root := &cobra.Command{
		Use:           "agent-task-sandbox --user NAME --cwd DIR --hide PATHS [--apparmor-profile NAME] -- CMD [ARGS...]",
		Short:         "Sandbox launcher for agent task execution",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(argv) == 0 {
				return fmt.Errorf("no target command specified after --")
			}
			return launch(user, cwd, hide, profile, argv)
		},
	}

	root.Flags().StringVar(&user, "user", envOr("CONTAINAI_RUNNER_USER", "agentuser"), "user to drop privileges to")
	root.Flags().StringVar(&cwd, "cwd", "", "sanitized working directory")
	root.Flags().StringVar(&hide, "hide", envOr("CONTAINAI_RUNNER_HIDE_PATHS", ""), "colon-separated hide-path list")
	root.Flags().StringVar(&profile, "apparmor-profile", envOr("CONTAINAI_TASK_APPARMOR", "containai-task"), "AppArmor profile name, or none/empty to disable")

	root.SetArgs(flagArgs)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "agent-task-sandbox:", err)
		os.Exit(127)
	}
}

func launch(user, cwd, hide, profile string, argv []string) error {
	hidePaths := sandbox.ParseHidePaths(hide)
	if len(hidePaths) == 0 {
		hidePaths = sandbox.DefaultHidePaths
	}

	cfg := sandbox.Config{
		User:               user,
		Cwd:                cwd,
		HidePaths:          hidePaths,
		AppArmorProfile:    profile,
		AAExecPath:         envOr("CONTAINAI_AA_EXEC_PATH", "/usr/bin/aa-exec"),
		WorkspaceDir:       envOr("CONTAINAI_WORKSPACE_DIR", "/workspace"),
		Argv:               argv,
		RunnerEnvJSON:      os.Getenv("RUNNER_ENV_JSON"),
		RegisterSocketPath: os.Getenv("CONTAINAI_RUNNER_SOCKET"),
		AgentName:          envOr("CONTAINAI_AGENT_NAME", user),
		BinaryName:         sandbox.FormatArgv(argv[:1]),
	}

	return sandbox.Launch(cfg)
}
