package retrieval

// #region chunk
// Chunk is one retrievable piece of ingested document text.
type Chunk struct {
	ID     string
	Source string
	Text   string
}

// ScoredChunk pairs a chunk with its relevance to a query. Ordering by
// Score descending is the retrieval contract.
type ScoredChunk struct {
	Chunk
	Score float64
}

// #endregion chunk

// #region config
// Config holds limits for corpus chunking and ranking.
type Config struct {
	ChunkSize    int     // target chars per chunk
	ChunkOverlap int     // chars of overlap between adjacent chunks
	MinScore     float64 // drop threshold, applied only when candidates exceed topK
}

// DefaultConfig returns the standard chunking and ranking limits.
func DefaultConfig() Config {
	return Config{
		ChunkSize:    1000,
		ChunkOverlap: 200,
		MinScore:     0.001,
	}
}

// #endregion config
