package strx

import "strings"

// Coalesce returns the first non-blank value.
func Coalesce(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
