package sanitize

import (
	"regexp"
	"strings"
)

// Context identifies where a value will be rendered
type Context string

const (
	ContextHTML Context = "html"
	ContextAttr Context = "attr"
	ContextURL  Context = "url"
	// ContextRaw passes values through untouched; trusted data only
	ContextRaw Context = "raw"
)

// SanitizeString sanitizes input for ctx. Unknown contexts are treated as html
func SanitizeString(input string, ctx Context) string {
	switch ctx {
	case ContextRaw:
		return input
	case ContextURL:
		return SanitizeURL(input)
	case ContextAttr:
		return EscapeAttribute(StripDangerousHTML(input), false)
	default:
		return EscapeHTML(StripDangerousHTML(input))
	}
}

// SanitizeValue recursively sanitizes every string found in maps and slices;
// other values are returned as-is
func SanitizeValue(v interface{}, ctx Context) interface{} {
	switch value := v.(type) {
	case string:
		return SanitizeString(value, ctx)
	case []string:
		result := make([]string, len(value))
		for i, s := range value {
			result[i] = SanitizeString(s, ctx)
		}
		return result
	case []interface{}:
		result := make([]interface{}, len(value))
		for i, item := range value {
			result[i] = SanitizeValue(item, ctx)
		}
		return result
	case map[string]interface{}:
		result := make(map[string]interface{}, len(value))
		for k, item := range value {
			result[k] = SanitizeValue(item, ctx)
		}
		return result
	case map[string]string:
		result := make(map[string]string, len(value))
		for k, s := range value {
			result[k] = SanitizeString(s, ctx)
		}
		return result
	default:
		return v
	}
}

var (
	filenameInvalidRe = regexp.MustCompile(`[^a-zA-Z0-9._-]`)
	filenameRepeatRe  = regexp.MustCompile(`[-_]+`)
	filenameLeadRe    = regexp.MustCompile(`^[-_.]+`)
)

const maxFilenameLength = 255

func sanitizeFilenameOnce(name string) string {
	name = strings.ReplaceAll(name, "..", "")
	name = strings.NewReplacer("/", "-", `\`, "-", ":", "-").Replace(name)
	name = filenameInvalidRe.ReplaceAllString(name, "_")
	name = filenameRepeatRe.ReplaceAllStringFunc(name, func(m string) string { return m[:1] })
	name = filenameLeadRe.ReplaceAllString(name, "")
	if len(name) > maxFilenameLength {
		name = name[:maxFilenameLength]
	}
	return name
}

// SanitizeFilename strips traversal sequences, separators and special characters
// from a file name, so it is safe to join to a directory or pass to a CLI tool
func SanitizeFilename(name string) string {
	for {
		next := sanitizeFilenameOnce(name)
		if next == name {
			return name
		}
		name = next
	}
}
