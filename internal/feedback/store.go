// Package feedback persists user reactions to generated posts and serves
// similarity-plus-recency retrieval over them.
//
// Each profile has a durable append-only JSON log and a vector index over
// the canonical rendering of every entry. The log is the source of truth;
// the index is eventually consistent with it. A partial store (log written,
// index insert failed) surfaces as ErrUnindexed and is repaired by
// Reconcile.
package feedback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/quill/internal/profilestore"
	"github.com/kalambet/quill/internal/retrieval"
)

var (
	// ErrUnknownKind is returned when a feedback kind is outside the closed enumeration.
	ErrUnknownKind = errors.New("unknown feedback kind")
	// ErrUnindexed signals a partial store: the log write succeeded but the
	// vector index was not updated. The entry is durable and will be picked
	// up by the next Reconcile pass.
	ErrUnindexed = errors.New("feedback stored but not indexed")
)

// Embedder maps text to an embedding vector. Implemented by retrieval.Embedder.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Store manages per-profile feedback logs and their vector indexes.
// Writes to the same profile are serialized with a per-profile mutex.
type Store struct {
	dir      string
	embedder Embedder
	vectors  retrieval.VectorStore

	mu     sync.Mutex
	locks  map[string]*sync.Mutex
	lastTS map[string]time.Time

	now func() time.Time
}

// NewStore creates a Store rooted at dir, creating the directory if missing.
func NewStore(dir string, embedder Embedder, vectors retrieval.VectorStore) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating feedback directory: %w", err)
	}
	return &Store{
		dir:      dir,
		embedder: embedder,
		vectors:  vectors,
		locks:    make(map[string]*sync.Mutex),
		lastTS:   make(map[string]time.Time),
		now:      time.Now,
	}, nil
}

func (s *Store) logPath(profile string) string {
	return filepath.Join(s.dir, profilestore.Slugify(profile)+"_feedback.json")
}

func (s *Store) lock(profile string) *sync.Mutex {
	slug := profilestore.Slugify(profile)
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[slug]
	if !ok {
		l = &sync.Mutex{}
		s.locks[slug] = l
	}
	return l
}

// Store validates, timestamps, and persists the entry: append to the
// profile's JSON log, then insert the canonical-text embedding into the
// vector index. Returns the stored entry (with its assigned timestamp).
//
// An embedding or index failure after a successful log write returns the
// entry together with an error wrapping ErrUnindexed; any other error
// means nothing was persisted.
func (s *Store) Store(ctx context.Context, e Entry) (Entry, error) {
	if !e.Kind.Valid() {
		return Entry{}, fmt.Errorf("%w: %q", ErrUnknownKind, e.Kind)
	}
	if profilestore.Slugify(e.Profile) == "" {
		return Entry{}, fmt.Errorf("invalid profile name %q", e.Profile)
	}

	l := s.lock(e.Profile)
	l.Lock()
	defer l.Unlock()

	log, err := s.loadLogLocked(e.Profile)
	if err != nil {
		return Entry{}, err
	}

	e.Timestamp = s.nextTimestampLocked(e.Profile, log)

	log = append(log, e)
	if err := s.writeLogLocked(e.Profile, log); err != nil {
		return Entry{}, fmt.Errorf("writing feedback log: %w", err)
	}
	s.lastTS[profilestore.Slugify(e.Profile)] = e.Timestamp

	if err := s.indexEntry(ctx, e); err != nil {
		return e, fmt.Errorf("%w: %v", ErrUnindexed, err)
	}
	return e, nil
}

// nextTimestampLocked assigns a strictly increasing timestamp per profile,
// so entry keys are unique and recency ordering is total. Must be called
// with the profile lock held.
func (s *Store) nextTimestampLocked(profile string, log []Entry) time.Time {
	slug := profilestore.Slugify(profile)
	last, ok := s.lastTS[slug]
	if !ok && len(log) > 0 {
		last = log[len(log)-1].Timestamp
	}
	ts := s.now().UTC()
	if !ts.After(last) {
		ts = last.Add(time.Nanosecond)
	}
	return ts
}

func (s *Store) indexEntry(ctx context.Context, e Entry) error {
	text := e.CanonicalText()
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("embedding feedback: %w", err)
	}
	rec := retrieval.Record{
		ID:        uuid.New().String(),
		Profile:   profilestore.Slugify(e.Profile),
		Kind:      string(e.Kind),
		EntryKey:  e.Key(),
		Text:      text,
		Embedding: vec,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.vectors.Insert(retrieval.FeedbackTable, []retrieval.Record{rec}); err != nil {
		return fmt.Errorf("inserting feedback vector: %w", err)
	}
	return nil
}

// Relevant returns up to k feedback entries contextually similar to query.
// It requests 2k nearest neighbors, filters to kind when given, re-sorts
// the filtered candidates by entry timestamp descending (the user's latest
// stated preference wins over older, possibly superseded feedback), and
// truncates to k. A profile with no indexed feedback yields an empty
// result, never an error.
func (s *Store) Relevant(ctx context.Context, profile, query string, kind Kind, k int) ([]Entry, error) {
	if kind != "" && !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if k <= 0 {
		return nil, nil
	}

	slug := profilestore.Slugify(profile)
	count, err := s.vectors.Count(retrieval.FeedbackTable, slug)
	if err != nil {
		return nil, fmt.Errorf("checking feedback index: %w", err)
	}
	if count == 0 {
		return nil, nil
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	scored, err := s.vectors.Search(retrieval.FeedbackTable, slug, vec, 2*k)
	if err != nil {
		return nil, fmt.Errorf("searching feedback index: %w", err)
	}

	log, err := s.loadLog(profile)
	if err != nil {
		return nil, err
	}
	byKey := make(map[string]Entry, len(log))
	for _, e := range log {
		byKey[e.Key()] = e
	}

	var matched []Entry
	for _, sc := range scored {
		if kind != "" && Kind(sc.Kind) != kind {
			continue
		}
		e, ok := byKey[sc.EntryKey]
		if !ok {
			// Index row with no log entry: skip rather than fail. Should not
			// happen since the log is written before the index.
			continue
		}
		matched = append(matched, e)
	}

	sortByTimestampDesc(matched)
	if len(matched) > k {
		matched = matched[:k]
	}
	return matched, nil
}

// Summary aggregates a profile's feedback log.
type Summary struct {
	Total          int       `json:"total_feedback"`
	Positive       int       `json:"positive"`
	Negative       int       `json:"negative"`
	Refinements    int       `json:"refinements"`
	RecentPatterns []Pattern `json:"recent_patterns"`
}

// Pattern is one recent feedback entry reduced for the summary view.
type Pattern struct {
	Text      string    `json:"feedback_text"`
	Kind      Kind      `json:"feedback_type"`
	Timestamp time.Time `json:"timestamp"`
}

// LearningScore is positive count minus negative count, a coarse proxy
// for cumulative positive reinforcement.
func (s Summary) LearningScore() int {
	return s.Positive - s.Negative
}

const recentPatternCount = 5

// Summary returns counts by kind and the 5 most recent entries. A missing
// profile yields the zero summary, never an error.
func (s *Store) Summary(profile string) (Summary, error) {
	log, err := s.loadLog(profile)
	if err != nil {
		return Summary{}, err
	}

	out := Summary{Total: len(log)}
	for _, e := range log {
		switch e.Kind {
		case KindPositive:
			out.Positive++
		case KindNegative:
			out.Negative++
		case KindRefinement:
			out.Refinements++
		}
	}

	recent := make([]Entry, len(log))
	copy(recent, log)
	sortByTimestampDesc(recent)
	if len(recent) > recentPatternCount {
		recent = recent[:recentPatternCount]
	}
	for _, e := range recent {
		out.RecentPatterns = append(out.RecentPatterns, Pattern{
			Text:      e.Text,
			Kind:      e.Kind,
			Timestamp: e.Timestamp,
		})
	}
	return out, nil
}

// StrongestPatterns groups the full log by kind, each group sorted by
// timestamp descending and truncated to k.
func (s *Store) StrongestPatterns(profile string, k int) (map[Kind][]Entry, error) {
	log, err := s.loadLog(profile)
	if err != nil {
		return nil, err
	}

	out := map[Kind][]Entry{
		KindPositive:   {},
		KindNegative:   {},
		KindRefinement: {},
	}
	for _, e := range log {
		if !e.Kind.Valid() {
			continue
		}
		out[e.Kind] = append(out[e.Kind], e)
	}
	for kind, entries := range out {
		sortByTimestampDesc(entries)
		if len(entries) > k {
			out[kind] = entries[:k]
		}
	}
	return out, nil
}

// Reconcile re-embeds and indexes log entries missing from the vector
// index, repairing partial stores. Returns the number of entries indexed.
func (s *Store) Reconcile(ctx context.Context, profile string) (int, error) {
	l := s.lock(profile)
	l.Lock()
	defer l.Unlock()

	log, err := s.loadLogLocked(profile)
	if err != nil {
		return 0, err
	}
	if len(log) == 0 {
		return 0, nil
	}

	slug := profilestore.Slugify(profile)
	keys, err := s.vectors.ListEntryKeys(retrieval.FeedbackTable, slug)
	if err != nil {
		return 0, fmt.Errorf("listing indexed entries: %w", err)
	}
	indexed := make(map[string]bool, len(keys))
	for _, k := range keys {
		indexed[k] = true
	}

	reindexed := 0
	for _, e := range log {
		if indexed[e.Key()] {
			continue
		}
		if err := s.indexEntry(ctx, e); err != nil {
			return reindexed, fmt.Errorf("reindexing entry %s: %w", e.Key(), err)
		}
		reindexed++
	}
	return reindexed, nil
}

// Profiles returns the profiles that have a feedback log.
func (s *Store) Profiles() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("listing feedback logs: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		const suffix = "_feedback.json"
		if len(name) > len(suffix) && name[len(name)-len(suffix):] == suffix {
			names = append(names, name[:len(name)-len(suffix)])
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *Store) loadLog(profile string) ([]Entry, error) {
	l := s.lock(profile)
	l.Lock()
	defer l.Unlock()
	return s.loadLogLocked(profile)
}

func (s *Store) loadLogLocked(profile string) ([]Entry, error) {
	data, err := os.ReadFile(s.logPath(profile))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading feedback log: %w", err)
	}
	var log []Entry
	if err := json.Unmarshal(data, &log); err != nil {
		return nil, fmt.Errorf("parsing feedback log for %s: %w", profile, err)
	}
	return log, nil
}

func (s *Store) writeLogLocked(profile string, log []Entry) error {
	data, err := json.MarshalIndent(log, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling feedback log: %w", err)
	}

	path := s.logPath(profile)
	tmp, err := os.CreateTemp(s.dir, ".quill-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}

func sortByTimestampDesc(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
}
