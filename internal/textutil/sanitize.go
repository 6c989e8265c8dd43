package textutil

import "strings"

// pathReplacer replaces characters that would split or break a path component.
var pathReplacer = strings.NewReplacer(
	"/", "_",
	"\\", "_",
	":", "_",
	"\x00", "_",
)

// SafeName maps value to a single filesystem path component. Separators,
// colons and NUL become underscores; empty, "." and ".." map to "_".
func SafeName(value string) string {
	name := strings.TrimSpace(pathReplacer.Replace(strings.TrimSpace(value)))
	if name == "" || name == "." || name == ".." {
		return "_"
	}
	return name
}
