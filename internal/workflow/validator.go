package workflow

import "strings"

// IsReady reports whether every required field holds non-blank text.
func IsReady(fields map[string]string, required []string) bool {
	for _, name := range required {
		if strings.TrimSpace(fields[name]) == "" {
			return false
		}
	}
	return true
}
