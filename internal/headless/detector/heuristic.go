// Package detector decides when a plain fetch of the rate page should be retried in headless
// Chrome.
package detector

import (
	"bytes"
	"net/http"

	"github.com/JakeFAU/loan-rate-crawler/internal/loan"
)

// Heuristic promotes pages that arrived without a rate table and look script-rendered.
type Heuristic struct {
	BodyLengthThreshold int
}

// NewHeuristic creates a new detector. A zero threshold means 2048 bytes.
func NewHeuristic(threshold int) *Heuristic {
	if threshold <= 0 {
		threshold = 2048
	}
	return &Heuristic{BodyLengthThreshold: threshold}
}

var spaMarkers = [][]byte{
	[]byte("__next"),
	[]byte(`id="root"`),
	[]byte(`id="app"`),
	[]byte("data-reactroot"),
}

var tableTag = []byte("<table")

// ShouldPromote reports whether resp needs a headless render before it can be parsed.
// Failed responses are never promoted; the pipeline reports those as they are.
func (h *Heuristic) ShouldPromote(resp loan.FetchResponse) bool {
	if resp.StatusCode != http.StatusOK || resp.UsedHeadless {
		return false
	}
	body := bytes.ToLower(resp.Body)
	if len(body) == 0 {
		return true
	}
	if bytes.Contains(body, tableTag) {
		return false
	}
	if len(body) < h.BodyLengthThreshold && scriptDensityHigh(body) {
		return true
	}
	for _, marker := range spaMarkers {
		if bytes.Contains(body, bytes.ToLower(marker)) {
			return true
		}
	}
	return false
}

// scriptDensityHigh expects a lower-cased body.
func scriptDensityHigh(body []byte) bool {
	total := len(body)
	if total == 0 {
		return false
	}

	var (
		openTag  = []byte("<script")
		closeTag = []byte("</script>")
	)
	covered := 0
	pos := 0
	for {
		rel := bytes.Index(body[pos:], openTag)
		if rel == -1 {
			break
		}
		start := pos + rel

		tagClose := bytes.IndexByte(body[start:], '>')
		if tagClose == -1 {
			// Unterminated tag swallows the rest of the document.
			covered += total - start
			break
		}
		contentStart := start + tagClose + 1

		next := total
		if end := bytes.Index(body[contentStart:], closeTag); end != -1 {
			next = contentStart + end + len(closeTag)
		}
		covered += next - start
		pos = next
	}
	return covered*100/total >= 25
}
