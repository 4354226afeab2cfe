package memory

import "time"

// #region entry
// Entry is one stored (task, best solution) pair.
type Entry struct {
	TaskHash   string
	Task       string
	Solution   string
	Score      float64
	Meta       Meta
	CreatedAt  time.Time
	Similarity float64 // populated by RetrieveSimilar
}

// #endregion entry

// #region meta
// Meta records how the stored solution was produced.
type Meta struct {
	IsCode     bool `json:"is_code"`
	UsedChunks bool `json:"used_chunks"`
	Iterations int  `json:"iterations"`
}

// #endregion meta
