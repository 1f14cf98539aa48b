package retrieval

import "time"

// Table names understood by the SQLite vector store.
const (
	StyleTable    = "style_vectors"
	FeedbackTable = "feedback_vectors"
)

// VectorStore is the interface for vector storage and similarity search.
// The current implementation uses SQLite with brute-force cosine similarity,
// which is comfortable for per-profile collections of a few thousand vectors.
type VectorStore interface {
	// Insert adds records to the given table.
	Insert(table string, records []Record) error

	// Search performs vector similarity search within one profile's records,
	// returning the top-K most similar.
	Search(table, profile string, vector []float32, topK int) ([]ScoredRecord, error)

	// Count returns the number of records stored for the profile.
	Count(table, profile string) (int, error)

	// ListEntryKeys returns the entry keys (feedback timestamps, or record
	// IDs for style records) stored for the profile. Used to detect
	// unindexed feedback entries during reconciliation.
	ListEntryKeys(table, profile string) ([]string, error)

	// DeleteProfile removes all of a profile's records from the table.
	// Used when a style index is rebuilt after samples are appended.
	DeleteProfile(table, profile string) error
}

// Record represents a row in the vector store.
type Record struct {
	ID      string
	Profile string
	// Kind is the feedback kind; empty for style records.
	Kind string
	// EntryKey ties a feedback vector back to its log entry (the entry's
	// RFC3339Nano timestamp). Empty for style records.
	EntryKey  string
	Text      string
	Embedding []float32
	CreatedAt time.Time
}

// ScoredRecord is a Record with a similarity score attached.
type ScoredRecord struct {
	Record
	Score float32
}
