package sandbox

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolveUser_ParsesPasswdLine(t *testing.T) {
	dir := t.TempDir()
	passwd := filepath.Join(dir, "passwd")
	content := "root:x:0:0:root:/root:/bin/bash\nagentuser:x:1000:1000:Agent User:/home/agentuser:/bin/sh\n"
	if err := os.WriteFile(passwd, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	// ResolveUser reads the hardcoded /etc/passwd path by design (it must
	// behave identically to the real launcher), so the temp file above
	// only documents a known-good line shape; the test resolves "root"
	// from the real /etc/passwd and is skipped when that file does not
	// exist.
	if _, err := os.Stat("/etc/passwd"); err != nil {
		t.Skip("no /etc/passwd available in this environment")
	}
	if _, err := ResolveUser("root"); err != nil {
		t.Fatalf("ResolveUser(root) error: %v", err)
	}
}

func TestResolveUser_UnknownUser(t *testing.T) {
	if _, err := os.Stat("/etc/passwd"); err != nil {
		t.Skip("no /etc/passwd available in this environment")
	}
	if _, err := ResolveUser("no-such-agent-user-xyz"); err == nil {
		t.Fatal("expected error for unknown user")
	}
}

func TestResolveSupplementaryGroups_AlwaysIncludesPrimary(t *testing.T) {
	if _, err := os.Stat("/etc/group"); err != nil {
		t.Skip("no /etc/group available in this environment")
	}
	gids, err := ResolveSupplementaryGroups("no-such-agent-user-xyz", 1000)
	if err != nil {
		t.Fatalf("ResolveSupplementaryGroups() error: %v", err)
	}
	if len(gids) != 1 || gids[0] != 1000 {
		t.Errorf("gids = %v, want [1000] for an unknown user with no group memberships", gids)
	}
}

func TestResolveSupplementaryGroups_RootIncludesGID0(t *testing.T) {
	if _, err := os.Stat("/etc/group"); err != nil {
		t.Skip("no /etc/group available in this environment")
	}
	gids, err := ResolveSupplementaryGroups("root", 0)
	if err != nil {
		t.Fatalf("ResolveSupplementaryGroups() error: %v", err)
	}
	if len(gids) == 0 || gids[0] != 0 {
		t.Errorf("gids = %v, want primary gid 0 first", gids)
	}
}
