// Package styleindex maintains per-profile vector indexes over writing
// samples and serves the style exemplars used during generation.
//
// Indexes are built lazily on first use and rebuilt after samples change.
// Concurrent builds of the same profile are collapsed into one.
package styleindex

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/kalambet/quill/internal/profilestore"
	"github.com/kalambet/quill/internal/retrieval"
)

// ErrEmptyProfile is returned when a profile exists but has no writing
// samples to index.
var ErrEmptyProfile = errors.New("profile has no writing samples")

// BatchEmbedder maps texts to embedding vectors. Implemented by
// retrieval.Embedder.
type BatchEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Manager builds and queries style indexes.
type Manager struct {
	profiles *profilestore.Store
	embedder BatchEmbedder
	vectors  retrieval.VectorStore

	builds singleflight.Group
}

// NewManager creates a Manager over the given profile store and vector store.
func NewManager(profiles *profilestore.Store, embedder BatchEmbedder, vectors retrieval.VectorStore) *Manager {
	return &Manager{
		profiles: profiles,
		embedder: embedder,
		vectors:  vectors,
	}
}

// Exemplars returns up to k writing samples most similar to the given
// context, building the profile's index first if it does not exist yet.
func (m *Manager) Exemplars(ctx context.Context, profile, contextText string, k int) ([]string, error) {
	slug := profilestore.Slugify(profile)
	if err := m.ensureIndex(ctx, profile); err != nil {
		return nil, err
	}

	vec, err := m.embedder.Embed(ctx, contextText)
	if err != nil {
		return nil, fmt.Errorf("embedding context: %w", err)
	}
	scored, err := m.vectors.Search(retrieval.StyleTable, slug, vec, k)
	if err != nil {
		return nil, fmt.Errorf("searching style index: %w", err)
	}

	exemplars := make([]string, 0, len(scored))
	for _, s := range scored {
		exemplars = append(exemplars, s.Text)
	}
	return exemplars, nil
}

// ensureIndex builds the profile's style index if it is missing.
// Concurrent callers for the same profile share one build.
func (m *Manager) ensureIndex(ctx context.Context, profile string) error {
	slug := profilestore.Slugify(profile)
	count, err := m.vectors.Count(retrieval.StyleTable, slug)
	if err != nil {
		return fmt.Errorf("checking style index: %w", err)
	}
	if count > 0 {
		return nil
	}

	_, err, _ = m.builds.Do(slug, func() (any, error) {
		// Re-check under the flight: another caller may have built it
		// between our count and the Do.
		count, err := m.vectors.Count(retrieval.StyleTable, slug)
		if err != nil {
			return nil, err
		}
		if count > 0 {
			return nil, nil
		}
		return nil, m.build(ctx, profile)
	})
	return err
}

// Rebuild drops the profile's style index and builds it from the current
// samples. Called after samples are appended.
func (m *Manager) Rebuild(ctx context.Context, profile string) error {
	slug := profilestore.Slugify(profile)
	_, err, _ := m.builds.Do(slug, func() (any, error) {
		if err := m.vectors.DeleteProfile(retrieval.StyleTable, slug); err != nil {
			return nil, fmt.Errorf("clearing style index: %w", err)
		}
		return nil, m.build(ctx, profile)
	})
	return err
}

func (m *Manager) build(ctx context.Context, profile string) error {
	samples, err := m.profiles.Samples(profile)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		return fmt.Errorf("%w: %s", ErrEmptyProfile, profile)
	}

	vecs, err := m.embedder.EmbedBatch(ctx, samples)
	if err != nil {
		return fmt.Errorf("embedding samples: %w", err)
	}

	slug := profilestore.Slugify(profile)
	records := make([]retrieval.Record, len(samples))
	now := time.Now().UTC()
	for i, sample := range samples {
		records[i] = retrieval.Record{
			ID:        uuid.New().String(),
			Profile:   slug,
			Text:      sample,
			Embedding: vecs[i],
			CreatedAt: now,
		}
	}
	if err := m.vectors.Insert(retrieval.StyleTable, records); err != nil {
		return fmt.Errorf("inserting style vectors: %w", err)
	}
	return nil
}

// IndexedCount reports how many style vectors the profile currently has.
func (m *Manager) IndexedCount(profile string) (int, error) {
	return m.vectors.Count(retrieval.StyleTable, profilestore.Slugify(profile))
}
