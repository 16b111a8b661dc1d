package facematch

import (
	"path"
	"strings"
)

// PersonNameFromObject derives the person name encoded in a corpus object
// name: the base name up to its first dot, with underscores read as spaces.
// "refs/Jan_Novák.front.jpg" yields "Jan Novák".
func PersonNameFromObject(objectName string) string {
	base := path.Base(strings.ReplaceAll(objectName, "\\", "/"))
	if base == "." || base == "/" {
		return ""
	}
	stem, _, _ := strings.Cut(base, ".")
	return strings.TrimSpace(strings.ReplaceAll(stem, "_", " "))
}

// SameName reports whether two names refer to the same person after normalization.
func SameName(a, b string) bool {
	na, nb := NormalizePersonName(a), NormalizePersonName(b)
	return na != "" && na == nb
}
