package sanitize

import (
	"regexp"
)

var (
	scriptBlockRe  = regexp.MustCompile(`(?is)<script\b.*?</script\s*>`)
	eventHandlerRe = regexp.MustCompile(`(?i)\s*\bon\w+\s*=\s*["'][^"']*["']`)
	dangerousSrcRe = regexp.MustCompile(`(?i)\b(href|src)\s*=\s*["']\s*(?:javascript|data|vbscript):[^"']*["']`)
)

func stripOnce(input string) string {
	clean := scriptBlockRe.ReplaceAllString(input, "")
	clean = eventHandlerRe.ReplaceAllString(clean, "")
	return dangerousSrcRe.ReplaceAllString(clean, `$1=""`)
}

// StripDangerousHTML removes <script> blocks, on* event handler attributes and
// javascript:/data:/vbscript: href or src values. Other markup is kept.
// Removal is repeated until the result is stable, so fragments that reassemble
// into a dangerous construct after one pass are also removed
func StripDangerousHTML(input string) string {
	clean := input
	for {
		next := stripOnce(clean)
		if next == clean {
			return clean
		}
		clean = next
	}
}
