// Package facts implements the facts worker: it peeks a resort name from its
// mailbox, scrapes the resort's encyclopedia article and writes a short
// capsule of statistics and prose to its result slot.
package facts

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedCapsule is returned by ParseCapsule for content without an
// echo line.
var ErrMalformedCapsule = errors.New("malformed facts capsule")

// EchoSuffix terminates the first line of every capsule.
const EchoSuffix = ":"

// Capsule is the parsed content of the facts result slot.
type Capsule struct {
	Locator    string   `json:"locator"`
	Statistics []string `json:"statistics"`
	Paragraphs []string `json:"paragraphs"`
}

// Locator turns a search term into the article name: surrounding whitespace
// is dropped and inner spaces become underscores.
func Locator(term string) string {
	return strings.ReplaceAll(strings.TrimSpace(term), " ", "_")
}

// EchoLine is the first line the worker writes for term.
func EchoLine(term string) string {
	return NormalizeLine(Locator(term) + EchoSuffix)
}

// Format renders the capsule as newline-terminated, normalized lines: echo,
// statistics, then paragraphs.
func Format(c Capsule) string {
	var b strings.Builder
	writeLine := func(s string) {
		b.WriteString(NormalizeLine(s))
		b.WriteByte('\n')
	}
	writeLine(c.Locator + EchoSuffix)
	for _, s := range c.Statistics {
		writeLine(s)
	}
	for _, p := range c.Paragraphs {
		writeLine(p)
	}
	return b.String()
}

// ParseCapsule splits result slot content back into a Capsule. Statistics
// are the captioned lines directly after the echo line, up to and including
// the first Skiable area line; everything after them is prose. A capsule
// holding only the echo line is valid.
func ParseCapsule(content string) (Capsule, error) {
	lines := strings.Split(strings.TrimRight(content, "\r\n"), "\n")
	echo := strings.TrimRight(lines[0], "\r")
	if !strings.HasSuffix(echo, EchoSuffix) || len(echo) == len(EchoSuffix) {
		return Capsule{}, fmt.Errorf("%w: first line %q", ErrMalformedCapsule, echo)
	}
	c := Capsule{Locator: strings.TrimSuffix(echo, EchoSuffix)}

	rest := lines[1:]
	for len(rest) > 0 {
		line := strings.TrimRight(rest[0], "\r")
		l, ok := statLineLabel(line)
		if !ok {
			break
		}
		c.Statistics = append(c.Statistics, line)
		rest = rest[1:]
		if l.terminal {
			break
		}
	}
	for _, line := range rest {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		c.Paragraphs = append(c.Paragraphs, line)
	}
	return c, nil
}

// FirstLine returns content up to the first newline.
func FirstLine(content string) string {
	if i := strings.IndexByte(content, '\n'); i >= 0 {
		return content[:i]
	}
	return content
}

// statLineLabel reports the caption line starts with: the full label
// followed by the space inserted at its offset.
func statLineLabel(line string) (statLabel, bool) {
	for _, l := range statLabels {
		if strings.HasPrefix(line, l.label+" ") {
			return l, true
		}
	}
	return statLabel{}, false
}
