package supervisor

import (
	"path/filepath"
	"testing"

	"github.com/novotnyllc/ContainAI/audit"
	rerrors "github.com/novotnyllc/ContainAI/errors"
)

func TestClientTable_AddRemove(t *testing.T) {
	table := &clientTable{}

	c := &Client{NotifyFD: -1, PID: 42, Agent: "a", Binary: "b"}
	idx, ok := table.add(c)
	if !ok {
		t.Fatal("add() failed on empty table")
	}

	snap := table.snapshot()
	if len(snap) != 1 || snap[0].client != c {
		t.Fatalf("snapshot() = %+v", snap)
	}

	table.remove(idx)
	if snap := table.snapshot(); len(snap) != 0 {
		t.Fatalf("snapshot() after remove = %+v, want empty", snap)
	}
}

func TestClientTable_FullRejectsAdd(t *testing.T) {
	table := &clientTable{}
	for i := 0; i < MaxClients; i++ {
		if _, ok := table.add(&Client{NotifyFD: -1, PID: uint32(i)}); !ok {
			t.Fatalf("add() failed before table full, at %d", i)
		}
	}
	if _, ok := table.add(&Client{NotifyFD: -1, PID: 999}); ok {
		t.Fatal("add() succeeded on full table")
	}
}

func TestEvaluate_ObserveAlwaysAllows(t *testing.T) {
	s := &Supervisor{cfg: Config{Policy: PolicyObserve}}
	if !s.evaluate("/run/agent-secrets/leak") {
		t.Error("observe mode must allow everything")
	}
}

func TestEvaluate_EnforceDeniesSensitivePrefixes(t *testing.T) {
	s := &Supervisor{cfg: Config{Policy: PolicyEnforce}}
	if s.evaluate("/run/agent-secrets/leak") {
		t.Error("enforce mode must deny /run/agent-secrets prefix")
	}
	if s.evaluate("/run/agent-data/x") {
		t.Error("enforce mode must deny /run/agent-data prefix")
	}
	if !s.evaluate("/bin/true") {
		t.Error("enforce mode must allow unrelated paths")
	}
}

func TestIsExecSyscall(t *testing.T) {
	if !isExecSyscall(execveNR) {
		t.Error("execveNR should be recognized")
	}
	if !isExecSyscall(execveatNR) {
		t.Error("execveatNR should be recognized")
	}
	if isExecSyscall(0) {
		t.Error("nr 0 (read) should not be recognized as exec")
	}
}

func TestCString_StopsAtNUL(t *testing.T) {
	buf := make([]byte, 8)
	copy(buf, "ab")
	if got := cString(buf); got != "ab" {
		t.Errorf("cString() = %q, want %q", got, "ab")
	}
}

func TestLE32_RoundTrip(t *testing.T) {
	b := []byte{0x01, 0x00, 0x00, 0x00}
	if got := le32(b); got != 1 {
		t.Errorf("le32() = %d, want 1", got)
	}
}

func TestEmitAudit_NilAuditIsNoop(t *testing.T) {
	s := &Supervisor{cfg: Config{Policy: PolicyObserve}}
	if err := s.emitAudit(audit.Event{Action: audit.ActionAllow}); err != nil {
		t.Errorf("emitAudit() with nil Audit = %v, want nil", err)
	}
}

func TestEmitAudit_WriteFailureIsFatalKindIO(t *testing.T) {
	l, err := audit.Open(filepath.Join(t.TempDir(), "events.log"), "")
	if err != nil {
		t.Fatalf("audit.Open() error: %v", err)
	}
	l.Close() // closes the underlying file; the next Write must fail

	s := &Supervisor{cfg: Config{Policy: PolicyObserve, Audit: l}}
	err = s.emitAudit(audit.Event{Action: audit.ActionAllow})
	if err == nil {
		t.Fatal("emitAudit() after Close() = nil, want a KindIO error")
	}
	if !rerrors.IsKind(err, rerrors.KindIO) {
		t.Errorf("emitAudit() error kind = %v, want KindIO", err)
	}
}
