package seccomp

import "testing"

func TestDefaultNotifyFilter_AllowDefaultNotifyExec(t *testing.T) {
	f := DefaultNotifyFilter()
	if f.Spec.DefaultAction != "SCMP_ACT_ALLOW" {
		t.Errorf("DefaultAction = %v, want ALLOW", f.Spec.DefaultAction)
	}
	if len(f.Spec.Syscalls) != 1 {
		t.Fatalf("expected one syscall rule, got %d", len(f.Spec.Syscalls))
	}
	rule := f.Spec.Syscalls[0]
	if rule.Action != "SCMP_ACT_NOTIFY" {
		t.Errorf("Action = %v, want NOTIFY", rule.Action)
	}
	names := map[string]bool{}
	for _, n := range rule.Names {
		names[n] = true
	}
	if !names["execve"] || !names["execveat"] {
		t.Errorf("Names = %v, want execve and execveat", rule.Names)
	}
}

func TestBuildBPF_EndsInAllowReturn(t *testing.T) {
	f := DefaultNotifyFilter()
	prog, err := f.buildBPF()
	if err != nil {
		t.Fatalf("buildBPF() error: %v", err)
	}
	if len(prog) == 0 {
		t.Fatal("buildBPF() returned empty program")
	}
	last := prog[len(prog)-1]
	if last.Code != bpfRET|bpfK || last.K != seccompRetAllow {
		t.Errorf("last instruction = %+v, want RET ALLOW", last)
	}
}

func TestBuildBPF_ContainsUserNotifReturn(t *testing.T) {
	f := DefaultNotifyFilter()
	prog, err := f.buildBPF()
	if err != nil {
		t.Fatalf("buildBPF() error: %v", err)
	}
	found := false
	for _, instr := range prog {
		if instr.Code == bpfRET|bpfK && instr.K == seccompRetUserNotif {
			found = true
			break
		}
	}
	if !found {
		t.Error("expected at least one RET USER_NOTIF instruction")
	}
}

func TestArchToAudit(t *testing.T) {
	if got, ok := archToAudit("SCMP_ARCH_X86_64"); !ok || got != auditArchX86_64 {
		t.Errorf("archToAudit(x86_64) = %v, %v", got, ok)
	}
	if got, ok := archToAudit("SCMP_ARCH_AARCH64"); !ok || got != auditArchAarch64 {
		t.Errorf("archToAudit(aarch64) = %v, %v", got, ok)
	}
	if _, ok := archToAudit("SCMP_ARCH_MIPS"); ok {
		t.Error("unknown arch should not resolve")
	}
}
