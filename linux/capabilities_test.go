package linux

import "testing"

func TestCapabilityConstants(t *testing.T) {
	tests := []struct {
		name     string
		constant int
		expected int
	}{
		{"CAP_CHOWN", CAP_CHOWN, 0},
		{"CAP_DAC_OVERRIDE", CAP_DAC_OVERRIDE, 1},
		{"CAP_KILL", CAP_KILL, 5},
		{"CAP_SETUID", CAP_SETUID, 7},
		{"CAP_NET_BIND_SERVICE", CAP_NET_BIND_SERVICE, 10},
		{"CAP_SYS_ADMIN", CAP_SYS_ADMIN, 21},
		{"CAP_MKNOD", CAP_MKNOD, 27},
		{"CAP_AUDIT_WRITE", CAP_AUDIT_WRITE, 29},
		{"CAP_SYSLOG", CAP_SYSLOG, 34},
		{"CAP_CHECKPOINT_RESTORE", CAP_CHECKPOINT_RESTORE, 40},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.constant != tt.expected {
				t.Errorf("%s = %d, want %d", tt.name, tt.constant, tt.expected)
			}
		})
	}
}

func TestDescribeCapMask(t *testing.T) {
	tests := []struct {
		name string
		mask uint64
		want string
	}{
		{"empty", 0, ""},
		{"single", 1 << CAP_CHOWN, "CAP_CHOWN"},
		{"sys_admin", 1 << CAP_SYS_ADMIN, "CAP_SYS_ADMIN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := describeCapMask(tt.mask); got != tt.want {
				t.Errorf("describeCapMask(%d) = %q, want %q", tt.mask, got, tt.want)
			}
		})
	}
}

func TestVerifyCapabilitiesDropped_CurrentProcess(t *testing.T) {
	// In the test sandbox this process typically runs unprivileged, so
	// the effective set should already be empty; this exercises the
	// success path. A non-empty set (e.g. running as root in CI) is also
	// an acceptable outcome to observe here — we only assert the call
	// does not panic and returns a sensibly-typed result.
	err := VerifyCapabilitiesDropped()
	if err != nil {
		t.Logf("VerifyCapabilitiesDropped() returned (expected if test runs privileged): %v", err)
	}
}
