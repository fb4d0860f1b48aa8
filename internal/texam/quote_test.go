package texam

import (
	"strings"
	"testing"
)

func TestQuotePOSIX(t *testing.T) {
	cases := []struct{ in, want string }{
		{"", "''"},
		{"plain-arg_1.txt", "plain-arg_1.txt"},
		{"has space", "'has space'"},
		{"it's", `'it'\''s'`},
	}
	for _, c := range cases {
		if got := quotePOSIX(c.in); got != c.want {
			t.Errorf("quotePOSIX(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestBuildCommandStdoutOnly(t *testing.T) {
	got := BuildCommand([]string{"echo", "hi"}, "", "/out/stdout.log", "", false)
	if !strings.Contains(got, "> /out/stdout.log") {
		t.Errorf("expected stdout redirection, got %q", got)
	}
	if strings.Contains(got, "2>") {
		t.Errorf("did not expect a stderr redirection when none was requested, got %q", got)
	}
	if !strings.HasPrefix(got, "mkdir -p /out && ") {
		t.Errorf("expected a parent mkdir -p for the stdout target, got %q", got)
	}
}

func TestBuildCommandIgnoreErrorAppendsOrTrue(t *testing.T) {
	got := BuildCommand([]string{"false"}, "", "", "", true)
	if !strings.HasSuffix(got, "|| true") {
		t.Errorf("expected ignore_error to append '|| true', got %q", got)
	}
}

func TestBuildCommandNoRedirection(t *testing.T) {
	got := BuildCommand([]string{"echo", "hi there"}, "", "", "", false)
	want := "echo 'hi there'"
	if got != want {
		t.Errorf("BuildCommand = %q, want %q", got, want)
	}
}

func TestBuildCommandStdinAndStdoutAndStderr(t *testing.T) {
	got := BuildCommand([]string{"cat"}, "/in/a.txt", "/out/a.log", "/out/a.err", false)
	if !strings.Contains(got, "< /in/a.txt") || !strings.Contains(got, "> /out/a.log") || !strings.Contains(got, "2> /out/a.err") {
		t.Errorf("expected stdin/stdout/stderr redirection, got %q", got)
	}
}
