package bot

import (
	"regexp"
	"strings"
)

// DefaultDisplayName is used when a push name is missing or unusable.
const DefaultDisplayName = "Pemustaka"

const maxDisplayNameLen = 20

var displayNameAllowed = regexp.MustCompile(`[^\w\s.\-@]`)

// sanitizeName cleans a WhatsApp push name before it is echoed back in the
// greeting. Phone-number names (leading +) and names that clean down to
// nothing fall back to the generic honorific.
func sanitizeName(raw string) string {
	if raw == "" || strings.HasPrefix(raw, "+") {
		return DefaultDisplayName
	}
	clean := displayNameAllowed.ReplaceAllString(raw, "")
	clean = strings.ReplaceAll(clean, "<", "&lt;")
	clean = strings.ReplaceAll(clean, ">", "&gt;")
	if len(clean) > maxDisplayNameLen {
		clean = clean[:maxDisplayNameLen] + "..."
	}
	if strings.TrimSpace(clean) == "" {
		return DefaultDisplayName
	}
	return clean
}

// normalize lowercases and trims user input for matching.
func normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}
