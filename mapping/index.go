package mapping

import "strings"

var indexNameReplacer = strings.NewReplacer(
	"#", "_", `\`, "_", "/", "_", "*", "_", "?", "_",
	`"`, "_", "<", "_", ">", "_", "|", "_", " ", "_",
)

// SanitizeIndexName lowercases name, trims '.', '_', '-' and '+' from both
// ends in that order, and replaces characters that are not allowed in index
// names with '_'.
func SanitizeIndexName(name string) string {
	name = strings.ToLower(name)
	for _, c := range []string{".", "_", "-", "+"} {
		name = strings.Trim(name, c)
	}
	return indexNameReplacer.Replace(name)
}
