// Package detector decides when an article fetched over plain HTTP should be
// rendered again in headless Chrome.
package detector

import (
	"bytes"

	"github.com/JakeFAU/resort-relay/internal/relay"
)

// DefaultBodyThreshold is the body size under which script-heavy pages are
// treated as client-rendered shells.
const DefaultBodyThreshold = 2048

// Promotion reasons.
const (
	ReasonNone         = ""
	ReasonEmptyBody    = "empty_body"
	ReasonScriptShell  = "script_shell"
	ReasonClientMarker = "client_marker"
)

var clientMarkers = [][]byte{
	[]byte("__next"),
	[]byte(`id="root"`),
	[]byte(`id="app"`),
	[]byte("data-reactroot"),
	[]byte("<noscript>"),
}

// Heuristic flags pages that look rendered in the browser.
type Heuristic struct {
	BodyThreshold int
}

// NewHeuristic creates a detector; a threshold of zero uses DefaultBodyThreshold.
func NewHeuristic(threshold int) *Heuristic {
	if threshold <= 0 {
		threshold = DefaultBodyThreshold
	}
	return &Heuristic{BodyThreshold: threshold}
}

// ShouldPromote reports whether resp deserves a headless render.
func (h *Heuristic) ShouldPromote(resp relay.FetchResponse) bool {
	return h.Evaluate(resp) != ReasonNone
}

// Evaluate returns the reason resp should be promoted, or ReasonNone. Only
// successful responses are promoted; a missing article stays missing.
func (h *Heuristic) Evaluate(resp relay.FetchResponse) string {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return ReasonNone
	}
	body := resp.Body
	if len(bytes.TrimSpace(body)) == 0 {
		return ReasonEmptyBody
	}
	if len(body) < h.BodyThreshold && scriptShare(body) >= 25 {
		return ReasonScriptShell
	}
	lower := bytes.ToLower(body)
	for _, marker := range clientMarkers {
		if bytes.Contains(lower, marker) {
			return ReasonClientMarker
		}
	}
	return ReasonNone
}

// scriptShare returns the percentage of body covered by <script> elements.
// An unterminated tag covers the rest of the document.
func scriptShare(body []byte) int {
	lower := bytes.ToLower(body)
	total := len(lower)
	if total == 0 {
		return 0
	}
	open, end := []byte("<script"), []byte("</script>")

	covered := 0
	for pos := 0; pos < total; {
		i := bytes.Index(lower[pos:], open)
		if i < 0 {
			break
		}
		start := pos + i
		next := total
		if j := bytes.Index(lower[start:], end); j >= 0 {
			next = start + j + len(end)
		}
		covered += next - start
		pos = next
	}
	return covered * 100 / total
}
