package policy

import (
	"strings"

	clierr "github.com/ipor-labs/fusion/internal/errors"
)

// CheckCommandAllowed enforces the --enable-commands allowlist. An entry allows
// the exact path and every subcommand below it.
func CheckCommandAllowed(allowlist []string, commandPath string) error {
	if len(allowlist) == 0 {
		return nil
	}
	normPath := normalize(commandPath)
	for _, allowed := range allowlist {
		norm := normalize(allowed)
		if norm == "" {
			continue
		}
		if norm == normPath || strings.HasPrefix(normPath, norm+" ") {
			return nil
		}
	}
	return clierr.New(clierr.CodeBlocked, "command blocked by --enable-commands policy")
}

var writeCommands = map[string]struct{}{
	"init":                 {},
	"encrypt":              {},
	"config encrypt":       {},
	"supply":               {},
	"withdraw":             {},
	"vault deposit":        {},
	"roles grant":          {},
	"roles revoke":         {},
	"withdrawals request":  {},
	"withdrawals release":  {},
	"rewards morpho claim": {},
	"actions submit":       {},
}

// IsWriteCommand reports whether a command can broadcast a transaction or rewrite config.
func IsWriteCommand(commandPath string) bool {
	_, ok := writeCommands[normalize(commandPath)]
	return ok
}

// CheckReadOnly blocks state-changing commands when read-only mode is on.
func CheckReadOnly(readOnly bool, commandPath string) error {
	if !readOnly || !IsWriteCommand(commandPath) {
		return nil
	}
	return clierr.New(clierr.CodeBlocked, "command blocked by --read-only")
}

func normalize(v string) string {
	parts := strings.Fields(strings.ToLower(strings.TrimSpace(v)))
	return strings.Join(parts, " ")
}
