package script

import (
	"strings"
	"unicode"
)

// DefaultTaskPrefix is prepended to every derived task name.
const DefaultTaskPrefix = "TUC_"

// BaseName returns the last element of path, accepting both '/' and '\'
// as separators so Windows paths resolve the same on every host.
func BaseName(path string) string {
	return path[strings.LastIndexAny(path, `/\`)+1:]
}

// TaskName derives the scheduler task name for a script: prefix plus the
// file name with whitespace and scheduler-reserved characters (\ / : * ? " < > |)
// replaced by '_'. The extension is kept, so "backup.cmd" becomes "TUC_backup.cmd".
func TaskName(prefix, path string) string {
	if prefix == "" {
		prefix = DefaultTaskPrefix
	}
	return prefix + NormalizeTaskName(BaseName(path))
}

// NormalizeTaskName replaces characters that are unsafe in a task name.
func NormalizeTaskName(name string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || unicode.IsControl(r) || strings.ContainsRune(`\/:*?"<>|`, r) {
			return '_'
		}
		return r
	}, name)
}
