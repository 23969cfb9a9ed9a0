package sandbox

import "testing"

func TestDedupPaths_RemovesDuplicatesAndWhitespace(t *testing.T) {
	in := []string{" /run/agent-secrets", "/run/agent-data", "/run/agent-secrets ", "", "/run/agent-data"}
	got := DedupPaths(in)
	want := []string{"/run/agent-secrets", "/run/agent-data"}

	if len(got) != len(want) {
		t.Fatalf("DedupPaths() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("DedupPaths()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestParseHidePaths_SplitsOnColon(t *testing.T) {
	got := ParseHidePaths("/run/agent-secrets:/run/agent-data:/run/agent-data-export")
	want := []string{"/run/agent-secrets", "/run/agent-data", "/run/agent-data-export"}

	if len(got) != len(want) {
		t.Fatalf("ParseHidePaths() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ParseHidePaths()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestParseHidePaths_Empty(t *testing.T) {
	if got := ParseHidePaths(""); got != nil {
		t.Errorf("ParseHidePaths(\"\") = %v, want nil", got)
	}
}

func TestDefaultHidePaths_IncludeSensitiveMounts(t *testing.T) {
	want := map[string]bool{
		"/run/agent-secrets":      true,
		"/run/agent-data":         true,
		"/run/agent-data-export":  true,
	}
	if len(DefaultHidePaths) != len(want) {
		t.Fatalf("DefaultHidePaths = %v, want %d entries", DefaultHidePaths, len(want))
	}
	for _, p := range DefaultHidePaths {
		if !want[p] {
			t.Errorf("unexpected default hide path %q", p)
		}
	}
}
