package memory

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS memories (
	task_hash     TEXT PRIMARY KEY,
	task          TEXT NOT NULL,
	solution      TEXT NOT NULL,
	quality_score REAL NOT NULL,
	metadata      TEXT,
	created_at    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_memories_score ON memories(quality_score);
`

// #endregion schema

// #region store-struct
// Store keeps the best known solution per task in SQLite. One live entry
// per task hash; an entry is replaced only by a strictly better score.
type Store struct {
	db *sql.DB
}

// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// NewStoreWithDB wraps an already opened database. The memories table must
// be migrated by the caller or by a prior NewStore on the same handle.
func NewStoreWithDB(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use by other packages (e.g. analytics).
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion constructor

// #region hash
// HashTask returns the content-addressed dedup key for a task text.
func HashTask(task string) string {
	sum := sha256.Sum256([]byte(task))
	return hex.EncodeToString(sum[:])
}

// #endregion hash

// #region save
// Save stores a solution for the task. If an entry already exists for the
// task hash, it is replaced only when score is strictly greater than the
// stored score; the conditional upsert keeps that rule atomic per key.
func (s *Store) Save(task, solution string, score float64, meta Meta) error {
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO memories (task_hash, task, solution, quality_score, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(task_hash) DO UPDATE SET
			solution      = excluded.solution,
			quality_score = excluded.quality_score,
			metadata      = excluded.metadata,
			created_at    = excluded.created_at
		WHERE excluded.quality_score > memories.quality_score`,
		HashTask(task), task, solution, score, string(metaJSON),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save memory: %w", err)
	}
	return nil
}

// #endregion save

// #region get
// Get returns the stored entry for a task, or ok=false when none exists.
func (s *Store) Get(task string) (Entry, bool, error) {
	row := s.db.QueryRow(`
		SELECT task_hash, task, solution, quality_score, metadata, created_at
		FROM memories WHERE task_hash = ?`, HashTask(task))

	entry, err := scanEntry(row.Scan)
	if err == sql.ErrNoRows {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("get memory: %w", err)
	}
	return entry, true, nil
}

// #endregion get

// #region retrieve-similar
// RetrieveSimilar returns up to limit past entries whose task text is
// lexically similar to task (Jaccard above 0.2), ranked by similarity then
// stored score, both descending.
func (s *Store) RetrieveSimilar(task string, limit int) ([]Entry, error) {
	if limit <= 0 {
		return nil, nil
	}

	rows, err := s.db.Query(`
		SELECT task_hash, task, solution, quality_score, metadata, created_at
		FROM memories ORDER BY quality_score DESC`)
	if err != nil {
		return nil, fmt.Errorf("query memories: %w", err)
	}
	defer rows.Close()

	queryWords := taskWords(task)
	var similar []Entry
	for rows.Next() {
		entry, err := scanEntry(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		sim := jaccard(queryWords, taskWords(entry.Task))
		if sim <= 0.2 {
			continue
		}
		entry.Similarity = sim
		similar = append(similar, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memories: %w", err)
	}

	sort.SliceStable(similar, func(i, j int) bool {
		if similar[i].Similarity != similar[j].Similarity {
			return similar[i].Similarity > similar[j].Similarity
		}
		return similar[i].Score > similar[j].Score
	})
	if len(similar) > limit {
		similar = similar[:limit]
	}
	return similar, nil
}

// #endregion retrieve-similar

// #region helpers
func scanEntry(scan func(...any) error) (Entry, error) {
	var entry Entry
	var metaJSON sql.NullString
	var createdStr string
	if err := scan(&entry.TaskHash, &entry.Task, &entry.Solution, &entry.Score, &metaJSON, &createdStr); err != nil {
		return Entry{}, err
	}
	if metaJSON.Valid && metaJSON.String != "" {
		if err := json.Unmarshal([]byte(metaJSON.String), &entry.Meta); err != nil {
			return Entry{}, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	entry.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	return entry, nil
}

func taskWords(task string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(task)) {
		set[w] = true
	}
	return set
}

func jaccard(a, b map[string]bool) float64 {
	intersection := 0
	for w := range a {
		if b[w] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// #endregion helpers
