package sanitize

import "regexp"

const (
	PatternScriptTag        = "script_tag"
	PatternEventHandler     = "event_handler"
	PatternJavascriptScheme = "javascript_scheme"
	PatternSQLInjection     = "sql_injection"
	PatternPathTraversal    = "path_traversal"
	PatternCommandChars     = "command_injection"
)

type suspiciousPattern struct {
	name string
	re   *regexp.Regexp
}

var suspiciousPatterns = []suspiciousPattern{
	{PatternScriptTag, regexp.MustCompile(`(?is)<\s*script[^>]*>.*?<\s*/\s*script\s*>`)},
	{PatternEventHandler, regexp.MustCompile(`(?i)\bon\w+\s*=\s*["'][^"']*["']`)},
	{PatternJavascriptScheme, regexp.MustCompile(`(?i)javascript\s*:`)},
	{PatternSQLInjection, regexp.MustCompile(`(?i)(union\s+select|insert\s+into|update\s+\w+\s+set|delete\s+from|drop\s+table|create\s+table|'\s*(or|and)\s*'?\d*'?\s*=\s*'?\d*'?)`)},
	{PatternPathTraversal, regexp.MustCompile(`\.\./|\.\.\\`)},
	{PatternCommandChars, regexp.MustCompile("[`|;&<>$]")},
}

// DetectSuspiciousPatterns returns the names of the attack patterns found in input
func DetectSuspiciousPatterns(input string) []string {
	result := make([]string, 0)
	for _, p := range suspiciousPatterns {
		if p.re.MatchString(input) {
			result = append(result, p.name)
		}
	}
	return result
}
