// Command agent-task-runnerd is the daemon described in spec.md §6: it
// accepts control connections on a Unix seqpacket socket, supervises
// registered helpers' seccomp notifications, and services run requests.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/novotnyllc/ContainAI/audit"
	"github.com/novotnyllc/ContainAI/channel"
	"github.com/novotnyllc/ContainAI/logging"
	"github.com/novotnyllc/ContainAI/runsession"
	"github.com/novotnyllc/ContainAI/sandbox"
	"github.com/novotnyllc/ContainAI/supervisor"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	var (
		socketPath string
		logPath    string
		policyFlag string
	)

	root := &cobra.Command{
		Use:           "agent-task-runnerd",
		Short:         "Mediation daemon for agent task execution",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(socketPath, logPath, policyFlag)
		},
	}

	root.Flags().StringVar(&socketPath, "socket", envOr("CONTAINAI_RUNNER_SOCKET", "/run/agent-task-runner.sock"), "control socket path")
	root.Flags().StringVar(&logPath, "log", envOr("CONTAINAI_RUNNER_LOG", "/run/agent-task-runner/events.log"), "audit log path")
	root.Flags().StringVar(&policyFlag, "policy", envOr("CONTAINAI_RUNNER_POLICY", "observe"), "policy mode: observe or enforce")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(socketPath, logPath, policyFlag string) error {
	logging.SetDefault(logging.NewLogger(logging.Config{
		Level:  slog.LevelInfo,
		Format: "json",
	}))

	policy := supervisor.PolicyObserve
	if policyFlag == string(supervisor.PolicyEnforce) {
		policy = supervisor.PolicyEnforce
	}

	collectorAddr := envOr("CONTAINAI_AUDIT_COLLECTOR", "/run/containai/audit.sock")
	auditLog, err := audit.Open(logPath, collectorAddr)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer auditLog.Close()

	sessionCfg := runsession.Config{
		SandboxBin:      envOr("CONTAINAI_RUNNER_SANDBOX", "/usr/local/bin/agent-task-sandbox"),
		UnshareBin:      envOr("CONTAINAI_UNSHARE_BIN", "unshare"),
		DefaultUser:     envOr("CONTAINAI_RUNNER_USER", "agentuser"),
		WorkspaceDir:    envOr("CONTAINAI_WORKSPACE_DIR", "/workspace"),
		AgentHome:       envOr("CONTAINAI_AGENT_HOME", "/home/"+envOr("CONTAINAI_RUNNER_USER", "agentuser")),
		AppArmorProfile: envOr("CONTAINAI_TASK_APPARMOR", "containai-task"),
		HidePaths:       sandbox.ParseHidePaths(envOr("CONTAINAI_RUNNER_HIDE_PATHS", "")),
		Audit:           auditLog,
	}
	if len(sessionCfg.HidePaths) == 0 {
		sessionCfg.HidePaths = sandbox.DefaultHidePaths
	}

	sup, err := supervisor.New(supervisor.Config{
		SocketPath: socketPath,
		Policy:     policy,
		Audit:      auditLog,
		OnRunRequest: func(ch *channel.Channel, payload []byte) {
			go runsession.Handle(ch, payload, sessionCfg)
		},
	})
	if err != nil {
		return fmt.Errorf("start supervisor: %w", err)
	}

	logging.Info("daemon started", "socket", socketPath, "policy", policy)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := sup.Run(ctx); err != nil {
		return fmt.Errorf("supervisor loop: %w", err)
	}

	logging.Info("daemon shutting down")
	return nil
}
