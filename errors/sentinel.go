// Package errors provides predefined sentinel errors for common failure
// cases in the supervisor, run-session mux, and sandbox launcher.
package errors

// Protocol errors (channel + supervisor accept/classify, spec.md §4.1, §4.2.1).
var (
	// ErrShortFrame indicates a datagram smaller than the header size.
	ErrShortFrame = &RunnerError{
		Kind:   KindProtocol,
		Detail: "frame shorter than header",
	}

	// ErrFrameTruncated indicates MSG_TRUNC was set on a received datagram.
	ErrFrameTruncated = &RunnerError{
		Kind:   KindProtocol,
		Detail: "datagram truncated",
	}

	// ErrLengthMismatch indicates the header length disagreed with the
	// observed payload length.
	ErrLengthMismatch = &RunnerError{
		Kind:   KindProtocol,
		Detail: "header length does not match payload",
	}

	// ErrOversizedFrame indicates a send was attempted with a payload
	// larger than the maximum message size.
	ErrOversizedFrame = &RunnerError{
		Kind:   KindProtocol,
		Detail: "payload exceeds maximum frame size",
	}

	// ErrUnknownMessageType indicates a frame type outside the closed set.
	ErrUnknownMessageType = &RunnerError{
		Kind:   KindProtocol,
		Detail: "unknown message type",
	}

	// ErrBadRegistrationSize indicates a REGISTER payload of the wrong size.
	ErrBadRegistrationSize = &RunnerError{
		Kind:   KindProtocol,
		Detail: "registration payload has wrong size",
	}

	// ErrVersionMismatch indicates the REGISTER payload's protocol version
	// did not match.
	ErrVersionMismatch = &RunnerError{
		Kind:   KindProtocol,
		Detail: "protocol version mismatch",
	}
)

// Resource errors (client table, thread spawn).
var (
	// ErrTableFull indicates the client table has no free slots.
	ErrTableFull = &RunnerError{
		Kind:   KindResource,
		Detail: "client table full",
	}

	// ErrSpawnFailed indicates a run-session thread or child process could
	// not be started.
	ErrSpawnFailed = &RunnerError{
		Kind:   KindResource,
		Detail: "failed to spawn",
	}

	// ErrEmptyArgv indicates a RUN_REQUEST with an empty argv.
	ErrEmptyArgv = &RunnerError{
		Kind:   KindResource,
		Detail: "argv must not be empty",
	}
)

// Sandbox setup errors (spec.md §4.4).
var (
	// ErrMakeMountPrivate indicates the root mount could not be made
	// MS_REC|MS_PRIVATE.
	ErrMakeMountPrivate = &RunnerError{
		Kind:   KindSandbox,
		Detail: "failed to make mount namespace private",
	}

	// ErrMaskPath indicates a hide-path could not be masked with tmpfs.
	ErrMaskPath = &RunnerError{
		Kind:   KindSandbox,
		Detail: "failed to mask path",
	}

	// ErrDropPrivileges indicates initgroups/setresgid/setresuid failed.
	ErrDropPrivileges = &RunnerError{
		Kind:   KindSandbox,
		Detail: "failed to drop privileges",
	}

	// ErrNoNewPrivs indicates PR_SET_NO_NEW_PRIVS could not be set.
	ErrNoNewPrivs = &RunnerError{
		Kind:   KindSandbox,
		Detail: "failed to set no_new_privs",
	}

	// ErrCapabilityRetained indicates the effective capability set was
	// non-empty (or contained CAP_SYS_ADMIN) after privilege drop.
	ErrCapabilityRetained = &RunnerError{
		Kind:   KindSandbox,
		Detail: "effective capability set not empty after privilege drop",
	}

	// ErrChdirFailed indicates both the sanitized cwd and the workspace
	// root fallback failed.
	ErrChdirFailed = &RunnerError{
		Kind:   KindSandbox,
		Detail: "failed to change directory",
	}

	// ErrExecFailed indicates execvp returned.
	ErrExecFailed = &RunnerError{
		Kind:   KindSandbox,
		Detail: "exec failed",
	}

	// ErrUnknownUser indicates the configured drop-privilege user does not
	// exist.
	ErrUnknownUser = &RunnerError{
		Kind:   KindConfig,
		Detail: "unknown user",
	}
)

// Kernel errors (seccomp-notify ioctls, process_vm_readv).
var (
	// ErrNotifRecvFailed indicates NOTIF_RECV failed with an unexpected
	// errno.
	ErrNotifRecvFailed = &RunnerError{
		Kind:   KindKernel,
		Detail: "NOTIF_RECV failed",
	}

	// ErrNotifSendFailed indicates NOTIF_SEND failed with an unexpected
	// errno.
	ErrNotifSendFailed = &RunnerError{
		Kind:   KindKernel,
		Detail: "NOTIF_SEND failed",
	}

	// ErrFilterInstallFailed indicates the seccomp-notify filter could not
	// be installed (both TSYNC|NEW_LISTENER and NEW_LISTENER-only failed).
	ErrFilterInstallFailed = &RunnerError{
		Kind:   KindKernel,
		Detail: "failed to install seccomp-notify filter",
	}
)

// I/O errors.
var (
	// ErrAuditLogWrite indicates a write to the audit log failed; fatal to
	// the daemon per spec.md §7.
	ErrAuditLogWrite = &RunnerError{
		Kind:   KindIO,
		Detail: "failed to write audit log",
	}

	// ErrSocketBind indicates the listener socket could not be bound.
	ErrSocketBind = &RunnerError{
		Kind:   KindIO,
		Detail: "failed to bind control socket",
	}
)
