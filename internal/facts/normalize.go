package facts

import "strings"

var lineCleaner = []struct{ old, new string }{
	{"\u00a0", " "},
	{"   ", " "},
	{"  ", " "},
	{"\n", ""},
	{"\r", ""},
}

// NormalizeLine replaces non-breaking spaces, collapses runs of two or three
// spaces and strips embedded line breaks. The replacements run in order, each
// over the whole line, so longer runs are only partly collapsed.
func NormalizeLine(s string) string {
	for _, r := range lineCleaner {
		s = strings.ReplaceAll(s, r.old, r.new)
	}
	return s
}
