package console

import "github.com/kenta2/cryptsetup/internal/expect"

// The prompt shape is reproduced bit-exactly for compatibility with an
// automated root shell: an optional ANSI control sequence, then
// "root@<host>:<cwd># " (or "$ "), with host and cwd restricted to a
// conservative identifier character set.
const (
	csiExpr    = `\x1b\[[0-9;?]*[A-Za-z]`
	promptExpr = `(?:` + csiExpr + `)?root@[-0-9A-Za-z._]+:[-0-9A-Za-z._/~+]+[#$] `
)

var (
	// ShellPrompt matches the automated root shell prompt at the start of
	// the buffer.
	ShellPrompt = expect.MustCompile(promptExpr)

	// CommandOutput matches what follows a verified command echo: an
	// optional bracketed-paste-off sequence and carriage return, an
	// optional run of output terminated by CRLF, then the next prompt.
	// The prompt is captured so the caller can reinject it.
	CommandOutput = expect.MustCompile(
		`(?:` + csiExpr + `\r)?(?:(?P<output>(?s).*?)\r\n)??(?P<prompt>` + promptExpr + `)`)

	// LoginBanner matches the issue banner ("<distro> <arch>", one or more
	// CRLFs, then "<hostname> login: "), capturing the hostname.
	LoginBanner = expect.MustCompile(
		`(?s)(?:.*?(?:\r\n)+)?(?P<host>[-0-9A-Za-z._]+) login: `)

	// PasswordPrompt matches a password prompt, tolerating leading text.
	PasswordPrompt = expect.MustCompile(`(?s).*?Password: `)

	// UnlockPrompt matches the early-boot disk unlock request, optionally
	// preceded by prior output or an ellipsis marker, capturing the disk
	// name.
	UnlockPrompt = expect.MustCompile(
		`(?s)(?:.*(?:\r\n|\.\.\. ))??Please unlock disk (?P<name>[-0-9A-Za-z._]+): `)
)
