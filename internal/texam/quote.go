package texam

import "strings"

// quotePOSIX applies POSIX single-quote quoting to one shell argument,
// the Go standard library has no shlex equivalent; this implements the
// same quoting shlex.quote performs in the Python original (wrap in single
// quotes, escaping embedded single quotes as '\''). See DESIGN.md for why
// this stays a small hand-written helper rather than pulling in a
// dependency for one function.
func quotePOSIX(arg string) string {
	if arg == "" {
		return "''"
	}
	if !needsQuoting(arg) {
		return arg
	}
	return "'" + strings.ReplaceAll(arg, "'", `'\''`) + "'"
}

func needsQuoting(s string) bool {
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			continue
		case strings.ContainsRune("@%_-+=:,./", r):
			continue
		default:
			return true
		}
	}
	return false
}

// BuildCommand assembles the shell pipeline Texam runs inside the
// executor container: quote each command arg, apply stdin/stdout/stderr
// redirection, append "|| true" iff ignoreError, prepending mkdir -p for
// any redirection target's parent directory (spec.md §4.7).
func BuildCommand(command []string, stdin, stdout, stderr string, ignoreError bool) string {
	var b strings.Builder

	for _, dst := range []string{stdout, stderr} {
		if dst == "" {
			continue
		}
		dir := parentDir(dst)
		if dir != "" && dir != "." {
			b.WriteString("mkdir -p ")
			b.WriteString(quotePOSIX(dir))
			b.WriteString(" && ")
		}
	}

	for i, part := range command {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(quotePOSIX(part))
	}

	if stdin != "" {
		b.WriteString(" < ")
		b.WriteString(quotePOSIX(stdin))
	}
	if stdout != "" {
		b.WriteString(" > ")
		b.WriteString(quotePOSIX(stdout))
	}
	if stderr != "" {
		b.WriteString(" 2> ")
		b.WriteString(quotePOSIX(stderr))
	}
	if ignoreError {
		b.WriteString(" || true")
	}

	return b.String()
}

func parentDir(p string) string {
	idx := strings.LastIndex(p, "/")
	if idx < 0 {
		return ""
	}
	if idx == 0 {
		return "/"
	}
	return p[:idx]
}
