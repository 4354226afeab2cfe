package retrieval

import (
	"sort"
	"strings"
	"sync"
)

// #region corpus
// Corpus is the append-only collection of document chunks shared across
// concurrent task runs. Reads take the read lock; ingestion is serialized.
type Corpus struct {
	mu     sync.RWMutex
	chunks []Chunk
	config Config
}

// NewCorpus creates an empty corpus with the given config.
func NewCorpus(config Config) *Corpus {
	return &Corpus{config: config}
}

// Add appends a single pre-chunked entry.
func (c *Corpus) Add(chunk Chunk) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chunks = append(c.chunks, chunk)
}

// Len reports the number of stored chunks.
func (c *Corpus) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.chunks)
}

// #endregion corpus

// #region retrieve
// Retrieve ranks all chunks against the query and returns at most topK,
// ordered by descending score. Whenever the corpus holds at least topK
// chunks, exactly topK are returned regardless of absolute score, so the
// generation stage always receives context. The near-zero threshold only
// drops entries when more candidates exist than needed.
func (c *Corpus) Retrieve(query string, topK int) []ScoredChunk {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.chunks) == 0 || topK <= 0 {
		return nil
	}

	qTokens := queryTokens(query)
	qSet := tokenSet(qTokens)
	phrases := queryPhrases(query)

	scored := make([]ScoredChunk, 0, len(c.chunks))
	for _, chunk := range c.chunks {
		scored = append(scored, ScoredChunk{
			Chunk: chunk,
			Score: scoreChunk(chunk.Text, qTokens, qSet, phrases),
		})
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })

	if len(scored) < topK {
		return scored
	}

	kept := scored[:0:0]
	for _, sc := range scored {
		if sc.Score >= c.config.MinScore {
			kept = append(kept, sc)
		}
	}
	if len(kept) >= topK {
		return kept[:topK]
	}
	return scored[:topK]
}

// Texts extracts the chunk texts in order.
func Texts(chunks []ScoredChunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Text
	}
	return out
}

// #endregion retrieve

// #region scoring
// queryPhrases returns the full lowercased query plus every adjacent
// two-token phrase, each paired with its token length.
func queryPhrases(query string) []phrase {
	lower := strings.ToLower(strings.TrimSpace(query))
	tokens := tokenize(query)
	phrases := []phrase{{text: lower, tokens: len(tokens)}}
	for i := 0; i+1 < len(tokens); i++ {
		phrases = append(phrases, phrase{text: tokens[i] + " " + tokens[i+1], tokens: 2})
	}
	return phrases
}

type phrase struct {
	text   string
	tokens int
}

// scoreChunk blends five lexical signals into one relevance score.
func scoreChunk(chunkText string, qTokens []string, qSet map[string]bool, phrases []phrase) float64 {
	chunkLower := strings.ToLower(chunkText)
	chunkTokens := tokenize(chunkText)
	chunkSet := tokenSet(chunkTokens)

	// 1. Jaccard similarity over token sets, floored when any overlap exists.
	intersection := 0
	for t := range qSet {
		if chunkSet[t] {
			intersection++
		}
	}
	union := len(qSet) + len(chunkSet) - intersection
	jaccard := 0.0
	if union > 0 {
		jaccard = float64(intersection) / float64(union)
	}
	if intersection > 0 && jaccard < 0.1 {
		jaccard = 0.1
	}

	// 2. Literal phrase matches, each worth 0.2 plus 0.1 per phrase token.
	phraseScore := 0.0
	for _, p := range phrases {
		if p.text != "" && strings.Contains(chunkLower, p.text) {
			phraseScore += 0.2 + 0.1*float64(p.tokens)
		}
	}
	if phraseScore > 1.5 {
		phraseScore = 1.5
	}

	// 3. Keyword coverage: fraction of query tokens found anywhere in the chunk.
	hits := 0
	for _, t := range qTokens {
		if strings.Contains(chunkLower, t) {
			hits++
		}
	}
	keyword := 0.0
	if len(qTokens) > 0 {
		keyword = float64(hits) / float64(len(qTokens))
	}
	if hits > 0 && keyword < 0.15 {
		keyword = 0.15
	}

	// 4. Normalized term frequency of query tokens within the chunk.
	occurrences := 0
	for _, t := range chunkTokens {
		if qSet[t] {
			occurrences++
		}
	}
	freq := 0.0
	if len(chunkTokens) > 0 {
		freq = float64(occurrences) / float64(len(chunkTokens))
	}
	if freq > 0.5 {
		freq = 0.5
	}

	// 5. Small length bonus for matching chunks, proportional and capped.
	lengthBonus := 0.0
	if hits > 0 {
		lengthBonus = float64(len(chunkText)) / 4000.0
		if lengthBonus > 0.1 {
			lengthBonus = 0.1
		}
	}

	return 0.3*jaccard + 0.3*phraseScore + 0.2*keyword + 0.15*freq + 0.05*lengthBonus
}

// #endregion scoring
