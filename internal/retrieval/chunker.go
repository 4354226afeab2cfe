package retrieval

import (
	"fmt"
	"strings"
)

// #region add-document
// AddDocument ingests a document: paragraphs that fit the chunk size are
// stored whole, larger ones are split into overlapping windows that prefer
// to break at a sentence boundary within the last 30% of the window.
func (c *Corpus) AddDocument(content, source string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	added := 0
	for _, para := range splitParagraphs(content) {
		if len(para) <= c.config.ChunkSize {
			c.appendLocked(para, source)
			added++
			continue
		}
		for _, window := range slideWindows(para, c.config.ChunkSize, c.config.ChunkOverlap) {
			c.appendLocked(window, source)
			added++
		}
	}
	return added
}

func (c *Corpus) appendLocked(text, source string) {
	c.chunks = append(c.chunks, Chunk{
		ID:     fmt.Sprintf("%s_%d", source, len(c.chunks)),
		Source: source,
		Text:   text,
	})
}

// #endregion add-document

// #region windowing
var sentenceEnds = []string{". ", ".\n", "! ", "!\n", "? ", "?\n"}

func splitParagraphs(content string) []string {
	var paras []string
	for _, p := range strings.Split(content, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			paras = append(paras, p)
		}
	}
	return paras
}

// slideWindows cuts text into chunks of roughly size chars with overlap
// chars shared between neighbours.
func slideWindows(text string, size, overlap int) []string {
	var windows []string
	start := 0
	for start < len(text) {
		end := start + size
		if end > len(text) {
			end = len(text)
		}
		window := text[start:end]

		// Break at a sentence ending if one falls in the last 30%.
		if end < len(text) {
			best := -1
			for _, punct := range sentenceEnds {
				if idx := strings.LastIndex(window, punct); idx > best {
					best = idx
				}
			}
			if best > size*7/10 {
				window = text[start : start+best+1]
				end = start + best + 1
			}
		}

		if trimmed := strings.TrimSpace(window); trimmed != "" {
			windows = append(windows, trimmed)
		}

		next := end - overlap
		if next <= start {
			next = start + 1
		}
		start = next
		if end == len(text) {
			break
		}
	}
	return windows
}

// #endregion windowing
