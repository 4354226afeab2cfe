package retrieval

import (
	"fmt"
	"strings"
	"testing"
)

// #region helpers

func seededCorpus(texts ...string) *Corpus {
	c := NewCorpus(DefaultConfig())
	for i, text := range texts {
		c.Add(Chunk{ID: fmt.Sprintf("doc_%d", i), Source: "doc", Text: text})
	}
	return c
}

// #endregion helpers

func TestRetrieveReturnsExactlyTopK(t *testing.T) {
	c := seededCorpus(
		"Binary search halves the interval on every comparison.",
		"Quick sort partitions around a pivot element.",
		"A hash table maps keys to buckets in constant time.",
		"Photosynthesis converts sunlight into chemical energy.",
		"Linked lists trade random access for cheap insertion.",
	)

	got := c.Retrieve("binary search algorithm", 3)
	if len(got) != 3 {
		t.Fatalf("got %d chunks, want exactly 3", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Score > got[i-1].Score {
			t.Fatalf("results not sorted descending at %d: %.4f > %.4f",
				i, got[i].Score, got[i-1].Score)
		}
	}
	if !strings.Contains(got[0].Text, "Binary search") {
		t.Fatalf("top chunk = %q, want the binary search chunk", got[0].Text)
	}
}

func TestRetrieveSmallCorpusReturnsEverything(t *testing.T) {
	c := seededCorpus(
		"Rust guarantees memory safety without a garbage collector.",
		"Go ships a garbage collector tuned for low latency.",
	)
	got := c.Retrieve("garbage collector", 5)
	if len(got) != 2 {
		t.Fatalf("got %d chunks, want all 2", len(got))
	}
}

func TestRetrieveEmptyCorpus(t *testing.T) {
	c := NewCorpus(DefaultConfig())
	if got := c.Retrieve("anything", 3); got != nil {
		t.Fatalf("got %v, want nil from empty corpus", got)
	}
}

func TestRetrieveZeroTopK(t *testing.T) {
	c := seededCorpus("some text")
	if got := c.Retrieve("text", 0); got != nil {
		t.Fatalf("got %v, want nil for topK=0", got)
	}
}

func TestRetrieveStopwordOnlyQuery(t *testing.T) {
	c := seededCorpus(
		"What is the answer to the question.",
		"Unrelated chunk about marine biology.",
		"Another chunk that is about something else entirely.",
	)
	// Every query token is a stopword; ranking falls back to the raw tokens
	// instead of returning nothing.
	got := c.Retrieve("what is the", 2)
	if len(got) != 2 {
		t.Fatalf("got %d chunks, want 2", len(got))
	}
}

func TestRetrieveIrrelevantQueryStillFills(t *testing.T) {
	c := seededCorpus(
		"alpha beta gamma",
		"delta epsilon zeta",
		"eta theta iota",
	)
	got := c.Retrieve("zzz qqq xxx", 3)
	if len(got) != 3 {
		t.Fatalf("got %d chunks, want 3 even with zero relevance", len(got))
	}
}

func TestPhraseMatchBeatsScatteredTokens(t *testing.T) {
	c := seededCorpus(
		"The binary search routine assumes sorted input.",
		"A search through the binary log found nothing.",
	)
	got := c.Retrieve("binary search", 2)
	if !strings.Contains(got[0].Text, "binary search routine") {
		t.Fatalf("top chunk = %q, want the literal phrase match first", got[0].Text)
	}
}

func TestTexts(t *testing.T) {
	scored := []ScoredChunk{
		{Chunk: Chunk{Text: "one"}},
		{Chunk: Chunk{Text: "two"}},
	}
	got := Texts(scored)
	if len(got) != 2 || got[0] != "one" || got[1] != "two" {
		t.Fatalf("Texts = %v", got)
	}
}

// #region chunker

func TestAddDocumentShortParagraphs(t *testing.T) {
	c := NewCorpus(DefaultConfig())
	added := c.AddDocument("First paragraph.\n\nSecond paragraph.\n\n\n\n", "notes.txt")
	if added != 2 {
		t.Fatalf("added = %d, want 2", added)
	}
	if c.Len() != 2 {
		t.Fatalf("corpus length = %d, want 2", c.Len())
	}
}

func TestAddDocumentSplitsLongParagraph(t *testing.T) {
	sentence := "The quick brown fox jumps over the lazy dog near the river bank. "
	long := strings.TrimSpace(strings.Repeat(sentence, 50))

	c := NewCorpus(Config{ChunkSize: 300, ChunkOverlap: 60, MinScore: 0.001})
	added := c.AddDocument(long, "fox.txt")
	if added < 2 {
		t.Fatalf("added = %d, want a long paragraph split into multiple chunks", added)
	}

	got := c.Retrieve("quick brown fox", added)
	for _, sc := range got {
		if len(sc.Text) > 300 {
			t.Fatalf("chunk %q exceeds size limit: %d chars", sc.ID, len(sc.Text))
		}
		if sc.Text == "" {
			t.Fatal("empty chunk stored")
		}
	}
}

func TestAddDocumentChunkIDs(t *testing.T) {
	c := NewCorpus(DefaultConfig())
	c.AddDocument("Alpha.\n\nBeta.", "guide.txt")
	got := c.Retrieve("alpha beta", 2)
	for _, sc := range got {
		if sc.Source != "guide.txt" {
			t.Fatalf("source = %q, want guide.txt", sc.Source)
		}
		if !strings.HasPrefix(sc.ID, "guide.txt_") {
			t.Fatalf("ID = %q, want guide.txt_ prefix", sc.ID)
		}
	}
}

// #endregion chunker
