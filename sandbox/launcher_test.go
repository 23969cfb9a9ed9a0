package sandbox

import (
	"reflect"
	"testing"
)

func TestParseArgs_SplitsOnDelimiter(t *testing.T) {
	flags, argv := ParseArgs([]string{"--user", "agentuser", "--cwd", "/workspace", "--", "/bin/echo", "hi"})
	if !reflect.DeepEqual(flags, []string{"--user", "agentuser", "--cwd", "/workspace"}) {
		t.Errorf("flags = %v", flags)
	}
	if !reflect.DeepEqual(argv, []string{"/bin/echo", "hi"}) {
		t.Errorf("argv = %v", argv)
	}
}

func TestParseArgs_NoDelimiter(t *testing.T) {
	flags, argv := ParseArgs([]string{"--user", "agentuser"})
	if !reflect.DeepEqual(flags, []string{"--user", "agentuser"}) {
		t.Errorf("flags = %v", flags)
	}
	if argv != nil {
		t.Errorf("argv = %v, want nil", argv)
	}
}

func TestFormatArgv(t *testing.T) {
	if got := FormatArgv([]string{"/bin/echo", "hi", "there"}); got != "/bin/echo hi there" {
		t.Errorf("FormatArgv() = %q", got)
	}
}
