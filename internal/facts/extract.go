package facts

import (
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// MaxParagraphs caps the prose kept per article.
const MaxParagraphs = 10

// minParagraphRunes is the shortest trimmed paragraph that still counts.
const minParagraphRunes = 3

// statLabel marks an infobox row and the rune offset where its value starts.
// Many articles render the label and value without a separating space. The
// offset is the rune length of label, the full caption a row is expected to
// carry.
type statLabel struct {
	prefix   string
	label    string
	offset   int
	terminal bool
}

var statLabels = []statLabel{
	{prefix: "Vertical", label: "Vertical", offset: 8},
	{prefix: "Top", label: "Top elevation", offset: 13},
	{prefix: "Base", label: "Base elevation", offset: 14},
	{prefix: "Skiable", label: "Skiable area", offset: 12, terminal: true},
}

// Statistics collects labeled table rows in document order. Scanning stops
// after the Skiable row.
func Statistics(doc *goquery.Document) []string {
	var out []string
	doc.Find("tr").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		text := row.Text()
		for _, l := range statLabels {
			if !strings.HasPrefix(text, l.prefix) {
				continue
			}
			out = append(out, insertSpaceAt(text, l.offset))
			return !l.terminal
		}
		return true
	})
	return out
}

// Paragraphs collects up to MaxParagraphs paragraphs with visible text.
func Paragraphs(doc *goquery.Document) []string {
	var out []string
	doc.Find("p").EachWithBreak(func(_ int, p *goquery.Selection) bool {
		text := p.Text()
		if utf8.RuneCountInString(strings.TrimSpace(text)) >= minParagraphRunes {
			out = append(out, text)
		}
		return len(out) < MaxParagraphs
	})
	return out
}

// insertSpaceAt inserts one space before the rune at offset, or appends it
// when s is shorter.
func insertSpaceAt(s string, offset int) string {
	i := 0
	for pos := range s {
		if i == offset {
			return s[:pos] + " " + s[pos:]
		}
		i++
	}
	return s + " "
}
