package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
)

// readPassword and isTerminal are test seams for the terminal.
var (
	readPassword = term.ReadPassword
	isTerminal   = term.IsTerminal
)

var errInputClosed = errors.New("input closed")

// prompt prints label and reads one trimmed line.
func (a *App) prompt(label string) (string, error) {
	if _, err := fmt.Fprint(a.out, label+": "); err != nil {
		return "", err
	}
	if !a.in.Scan() {
		if err := a.in.Err(); err != nil {
			return "", err
		}
		return "", errInputClosed
	}
	return strings.TrimSpace(a.in.Text()), nil
}

// promptPassword reads a password without echo when stdin is a terminal and
// falls back to a plain line otherwise.
func (a *App) promptPassword() (string, error) {
	fd := int(os.Stdin.Fd())
	if a.stdin != os.Stdin || !isTerminal(fd) {
		return a.prompt("Password")
	}
	if _, err := fmt.Fprint(a.out, "Password: "); err != nil {
		return "", err
	}
	pw, err := readPassword(fd)
	fmt.Fprintln(a.out)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(pw), nil
}
