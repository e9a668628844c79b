// Package policy gates which commands an agent may invoke.
package policy

import (
	"strings"

	clierr "github.com/ggonzalez94/edufi-cli/internal/errors"
)

// CheckCommandAllowed reports whether commandPath is on the allowlist. An entry
// allows its whole group, so "swap" admits "swap plan" and "swap run". An
// empty allowlist allows everything.
func CheckCommandAllowed(allowlist []string, commandPath string) error {
	if len(allowlist) == 0 {
		return nil
	}
	path := normalize(commandPath)
	if alwaysAllowed(path) {
		return nil
	}
	for _, allowed := range allowlist {
		entry := normalize(allowed)
		if entry == "" {
			continue
		}
		if path == entry || strings.HasPrefix(path, entry+" ") {
			return nil
		}
	}
	return clierr.New(clierr.CodeBlocked, "command blocked by --enable-commands policy: "+path)
}

// version and schema are introspection only.
func alwaysAllowed(path string) bool {
	return path == "version" || path == "schema" || strings.HasPrefix(path, "schema ")
}

func normalize(v string) string {
	return strings.Join(strings.Fields(strings.ToLower(v)), " ")
}
